package llm

import (
	"context"
	"log/slog"
	"strings"

	"github.com/myrjola/canonforge/internal/errors"
	"google.golang.org/genai"
)

const (
	geminiName         = "gemini"
	DefaultGeminiModel = "gemini-2.5-flash"
)

type GeminiConfig struct {
	APIKey string
	Model  string
}

type GeminiProvider struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

func NewGeminiProvider(ctx context.Context, cfg GeminiConfig, logger *slog.Logger) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, &Error{Provider: geminiName, Kind: ErrorKindConfig, Message: "API key is required"}
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{ //nolint:exhaustruct // defaults are fine
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, &Error{Provider: geminiName, Kind: ErrorKindConfig, Message: err.Error(), Cause: err}
	}
	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiProvider{
		client: client,
		model:  model,
		logger: logger.With("source", "GeminiProvider"),
	}, nil
}

func (p *GeminiProvider) Name() string {
	return geminiName
}

func (p *GeminiProvider) SendChat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	config := &genai.GenerateContentConfig{ //nolint:exhaustruct // only the set fields matter
		ResponseMIMEType: "application/json",
		Temperature:      req.Temperature,
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens) //nolint:gosec // template limits are small
	}
	var (
		system   []string
		contents []*genai.Content
	)
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		case RoleUser:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	if len(system) > 0 {
		config.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}

	result, err := p.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return ChatResponse{}, p.classify(ctx, err)
	}
	response := ChatResponse{
		Content:  result.Text(),
		Model:    model,
		Provider: geminiName,
	}
	if result.ModelVersion != "" {
		response.Model = result.ModelVersion
	}
	if usage := result.UsageMetadata; usage != nil {
		response.Usage = Usage{
			PromptTokens:     int(usage.PromptTokenCount),
			CompletionTokens: int(usage.CandidatesTokenCount),
		}
	}
	p.logger.LogAttrs(ctx, slog.LevelDebug, "gemini response received",
		slog.String("model", response.Model), slog.Int("completion_tokens", response.Usage.CompletionTokens))
	return response, nil
}

func (p *GeminiProvider) classify(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.Wrap(ctxErr, "gemini request aborted")
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &Error{
			Provider:   geminiName,
			Kind:       KindForStatus(apiErr.Code),
			StatusCode: apiErr.Code,
			Message:    apiErr.Message,
			Cause:      err,
		}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return &Error{
			Provider:   geminiName,
			Kind:       KindForStatus(apiErrPtr.Code),
			StatusCode: apiErrPtr.Code,
			Message:    apiErrPtr.Message,
			Cause:      err,
		}
	}
	return classifyTransport(geminiName, err)
}
