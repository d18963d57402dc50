package llm

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/myrjola/canonforge/internal/errors"
	"github.com/sashabaranov/go-openai"
)

const (
	openAIName         = "openai"
	DefaultOpenAIModel = "gpt-4o-mini"
	// MaxTokens is used when neither the request nor the template sets a limit.
	MaxTokens = 4096
)

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	// Stream requests the response as a server-sent event stream. The text is still returned in one piece.
	Stream bool
}

type OpenAIProvider struct {
	client *openai.Client
	model  string
	stream bool
	logger *slog.Logger
}

func NewOpenAIProvider(cfg OpenAIConfig, logger *slog.Logger) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, &Error{Provider: openAIName, Kind: ErrorKindConfig, Message: "API key is required"}
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
		stream: cfg.Stream,
		logger: logger.With("source", "OpenAIProvider"),
	}, nil
}

func (p *OpenAIProvider) Name() string {
	return openAIName
}

func (p *OpenAIProvider) SendChat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	completionRequest := p.completionRequest(req)
	if p.stream {
		return p.streamCompletion(ctx, completionRequest)
	}

	completion, err := p.client.CreateChatCompletion(ctx, completionRequest)
	if err != nil {
		return ChatResponse{}, p.classify(ctx, err)
	}
	if len(completion.Choices) == 0 {
		return ChatResponse{}, &Error{Provider: openAIName, Kind: ErrorKindServer, Message: "response has no choices"}
	}
	return ChatResponse{
		Content:  completion.Choices[0].Message.Content,
		Model:    completion.Model,
		Provider: openAIName,
		Usage: Usage{
			PromptTokens:     completion.Usage.PromptTokens,
			CompletionTokens: completion.Usage.CompletionTokens,
		},
	}, nil
}

func (p *OpenAIProvider) completionRequest(req ChatRequest) openai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = p.model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = MaxTokens
	}
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{ //nolint:exhaustruct // this is better for readability
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	completionRequest := openai.ChatCompletionRequest{ //nolint:exhaustruct // this is better for readability
		Model:     model,
		MaxTokens: maxTokens,
		Messages:  messages,
	}
	if req.Temperature != nil {
		completionRequest.Temperature = *req.Temperature
	}
	return completionRequest
}

func (p *OpenAIProvider) streamCompletion(
	ctx context.Context,
	completionRequest openai.ChatCompletionRequest,
) (ChatResponse, error) {
	completionRequest.Stream = true
	stream, err := p.client.CreateChatCompletionStream(ctx, completionRequest)
	if err != nil {
		return ChatResponse{}, p.classify(ctx, err)
	}
	defer func() {
		if closeErr := stream.Close(); closeErr != nil {
			p.logger.LogAttrs(ctx, slog.LevelWarn, "close completion stream", errors.SlogError(closeErr))
		}
	}()

	var (
		content strings.Builder
		model   = completionRequest.Model
	)
	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return ChatResponse{}, p.classify(ctx, recvErr)
		}
		if chunk.Model != "" {
			model = chunk.Model
		}
		for _, choice := range chunk.Choices {
			content.WriteString(choice.Delta.Content)
		}
	}
	// Streams do not report usage.
	return ChatResponse{Content: content.String(), Model: model, Provider: openAIName}, nil
}

func (p *OpenAIProvider) classify(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.Wrap(ctxErr, "openai request aborted")
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &Error{
			Provider:   openAIName,
			Kind:       KindForStatus(apiErr.HTTPStatusCode),
			StatusCode: apiErr.HTTPStatusCode,
			Message:    apiErr.Message,
			Cause:      err,
		}
	}
	var requestErr *openai.RequestError
	if errors.As(err, &requestErr) {
		return &Error{
			Provider:   openAIName,
			Kind:       KindForStatus(requestErr.HTTPStatusCode),
			StatusCode: requestErr.HTTPStatusCode,
			Message:    requestErr.Error(),
			Cause:      err,
		}
	}
	return classifyTransport(openAIName, err)
}
