// Package generation turns a generation request into persisted drafts. It grounds the request, assembles the context,
// renders the template, calls the LLM, parses the answer and tags every candidate entity with a trust level.
package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/myrjola/canonforge/internal/assembler"
	"github.com/myrjola/canonforge/internal/contexthelpers"
	"github.com/myrjola/canonforge/internal/errors"
	"github.com/myrjola/canonforge/internal/grounding"
	"github.com/myrjola/canonforge/internal/llm"
	"github.com/myrjola/canonforge/internal/logging"
	"github.com/myrjola/canonforge/internal/models"
	"github.com/myrjola/canonforge/internal/pipeline"
	"github.com/myrjola/canonforge/internal/templates"
	"github.com/myrjola/canonforge/internal/trust"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/myrjola/canonforge/internal/generation"

// DraftWriter persists the drafts of one request atomically.
type DraftWriter interface {
	CreateDrafts(ctx context.Context, drafts []models.GenerationDraft) error
}

// TemplateSource resolves the prompt template of a generation type.
type TemplateSource interface {
	Get(generationType models.GenerationType) (*templates.Template, error)
}

type Dependencies struct {
	Drafts    DraftWriter
	Templates TemplateSource
	Grounder  grounding.Grounder
	Assembler *assembler.Assembler
	Provider  llm.Provider
	Trust     *trust.Assigner
}

type Options struct {
	Retry RetryPolicy
	// CampaignConcurrency caps the simultaneous LLM calls per campaign. Zero means unbounded.
	CampaignConcurrency int
	// Budgets overrides the context budget per generation type. Missing types use DefaultBudgets.
	Budgets map[models.GenerationType]assembler.Budget
	// CitationLimit caps the citations requested from the grounder. Zero means no limit.
	CitationLimit int
	Now           func() time.Time
	NewID         func() string
}

func DefaultOptions() Options {
	return Options{
		Retry:         DefaultRetryPolicy(),
		Budgets:       DefaultBudgets(),
		CitationLimit: 20, //nolint:mnd // default limit.
		Now:           time.Now,
		NewID:         uuid.NewString,
	}
}

type Request struct {
	CampaignID     string
	WizardID       string
	GenerationType models.GenerationType
	Intent         models.CampaignIntent
	// Conversation is the wizard conversation window in chronological order.
	Conversation []models.ConversationMessage
	// Prompt is the free-form request of the GM.
	Prompt string
	// Variables fill template variables other than the reserved context sections.
	Variables map[string]string
	// TokenBudget overrides the total context budget of the generation type when positive.
	TokenBudget int
	// Provider and Model select the LLM. Empty means the defaults.
	Provider string
	Model    string
	Filters  grounding.Filters
}

type Response struct {
	DraftIDs []string                `json:"draft_ids"`
	Context  models.AssembledContext `json:"context"`
	Provider string                  `json:"provider"`
	Model    string                  `json:"model"`
	Usage    llm.Usage               `json:"usage"`
	Attempts int                     `json:"attempts"`
	Latency  time.Duration           `json:"latency"`
}

type Orchestrator struct {
	drafts    DraftWriter
	templates TemplateSource
	grounder  grounding.Grounder
	assembler *assembler.Assembler
	provider  llm.Provider
	trust     *trust.Assigner

	retry         RetryPolicy
	budgets       map[models.GenerationType]assembler.Budget
	citationLimit int
	limiter       *campaignLimiter
	now           func() time.Time
	newID         func() string

	logger *slog.Logger
	tracer trace.Tracer
}

func New(deps Dependencies, opts Options, logger *slog.Logger) *Orchestrator {
	defaults := DefaultOptions()
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = defaults.Retry
	}
	budgets := DefaultBudgets()
	for t, b := range opts.Budgets {
		budgets[t] = b
	}
	if opts.Now == nil {
		opts.Now = defaults.Now
	}
	if opts.NewID == nil {
		opts.NewID = defaults.NewID
	}
	return &Orchestrator{
		drafts:        deps.Drafts,
		templates:     deps.Templates,
		grounder:      deps.Grounder,
		assembler:     deps.Assembler,
		provider:      deps.Provider,
		trust:         deps.Trust,
		retry:         opts.Retry,
		budgets:       budgets,
		citationLimit: opts.CitationLimit,
		limiter:       newCampaignLimiter(opts.CampaignConcurrency),
		now:           opts.Now,
		newID:         opts.NewID,
		logger:        logger.With("source", "Orchestrator"),
		tracer:        otel.Tracer(tracerName),
	}
}

// Generate produces one draft per entity in the model response. Drafts are only persisted when every step
// succeeded, so a failed or canceled request leaves nothing behind.
func (o *Orchestrator) Generate(ctx context.Context, req Request) (_ Response, err error) {
	start := o.now()
	if req.WizardID == "" {
		req.WizardID = contexthelpers.WizardID(ctx)
	}
	scope := pipeline.Scope{CampaignID: req.CampaignID, GenerationType: req.GenerationType}
	ctx = logging.WithAttrs(ctx,
		slog.String("campaign_id", req.CampaignID),
		slog.String("generation_type", string(req.GenerationType)))
	ctx, span := o.tracer.Start(ctx, "generation.Generate", trace.WithAttributes(
		attribute.String("campaign_id", req.CampaignID),
		attribute.String("generation_type", string(req.GenerationType)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "generation failed")
		}
		span.End()
	}()

	tmpl, entityType, err := o.resolveTemplate(req.GenerationType, scope)
	if err != nil {
		return Response{}, err
	}

	citations, groundingErr := o.grounder.FindCitations(ctx, grounding.Query{
		CampaignID:     req.CampaignID,
		GenerationType: req.GenerationType,
		Text:           strings.TrimSpace(req.Prompt + " " + req.Intent.Fantasy),
		Limit:          o.citationLimit,
	}, req.Filters)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Response{}, errors.Wrap(ctxErr, "generation canceled during grounding")
	}

	budget := budgetFor(o.budgets, req.GenerationType, req.TokenBudget)
	assembled, err := o.assembler.Assemble(ctx, req.Intent, req.Conversation,
		assembler.Grounding{Citations: citations, Err: groundingErr}, budget)
	if err != nil {
		var contextErr *pipeline.ContextError
		if errors.As(err, &contextErr) {
			contextErr.Scope = scope
			return Response{}, contextErr
		}
		return Response{}, errors.Wrap(err, "assemble context")
	}

	rendered, err := tmpl.Render(promptVariables(req, assembled))
	if err != nil {
		return Response{}, pipeline.Validation(scope, "render template", err)
	}

	chat := llm.ChatRequest{
		Provider: req.Provider,
		Model:    req.Model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: rendered.System},
			{Role: llm.RoleUser, Content: rendered.User},
		},
		Temperature: tmpl.Temperature,
		MaxTokens:   tmpl.MaxTokens,
	}
	resp, attempts, err := o.callLLM(ctx, req.CampaignID, chat, scope)
	if err != nil {
		return Response{}, err
	}

	payloads, err := parseEntities(resp.Content, tmpl, entityType)
	if err != nil {
		o.logger.LogAttrs(ctx, slog.LevelWarn, "malformed model response", errors.SlogError(err))
		return Response{}, &pipeline.GenerationError{
			Kind:        pipeline.GenerationMalformedResponse,
			Message:     "model response could not be parsed into entities",
			Scope:       scope,
			RawResponse: resp.Content,
			Cause:       err,
		}
	}

	drafts := o.buildDrafts(req, entityType, payloads, assembled.Citations)

	if ctxErr := ctx.Err(); ctxErr != nil {
		return Response{}, errors.Wrap(ctxErr, "generation canceled before persisting drafts")
	}
	if err = o.drafts.CreateDrafts(ctx, drafts); err != nil {
		return Response{}, pipeline.Internal(scope, "persist drafts", err)
	}

	ids := make([]string, 0, len(drafts))
	for _, d := range drafts {
		ids = append(ids, d.ID)
	}
	latency := o.now().Sub(start)
	span.SetAttributes(attribute.Int("drafts", len(ids)), attribute.Int("attempts", attempts))
	o.logger.LogAttrs(ctx, slog.LevelInfo, "drafts generated",
		slog.Int("drafts", len(ids)),
		slog.Int("attempts", attempts),
		slog.String("provider", resp.Provider),
		slog.String("model", resp.Model),
		slog.Int("context_tokens", assembled.TotalUsed),
		slog.Duration("latency", latency))
	return Response{
		DraftIDs: ids,
		Context:  assembled,
		Provider: resp.Provider,
		Model:    resp.Model,
		Usage:    resp.Usage,
		Attempts: attempts,
		Latency:  latency,
	}, nil
}

func (o *Orchestrator) resolveTemplate(
	generationType models.GenerationType,
	scope pipeline.Scope,
) (*templates.Template, models.EntityType, error) {
	entityType, err := generationType.EntityType()
	if err != nil {
		return nil, "", &pipeline.GenerationError{
			Kind:    pipeline.GenerationTemplateNotFound,
			Message: "unknown generation type",
			Scope:   scope,
			Cause:   err,
		}
	}
	tmpl, err := o.templates.Get(generationType)
	if err != nil {
		return nil, "", &pipeline.GenerationError{
			Kind:    pipeline.GenerationTemplateNotFound,
			Message: "no template for generation type",
			Scope:   scope,
			Cause:   err,
		}
	}
	return tmpl, entityType, nil
}

// callLLM waits for a campaign slot and sends the chat request with retries.
func (o *Orchestrator) callLLM(
	ctx context.Context,
	campaignID string,
	chat llm.ChatRequest,
	scope pipeline.Scope,
) (llm.ChatResponse, int, error) {
	release, err := o.limiter.acquire(ctx, campaignID)
	if err != nil {
		return llm.ChatResponse{}, 0, errors.Wrap(err, "generation canceled waiting for campaign slot")
	}
	defer release()

	ctx, span := o.tracer.Start(ctx, "generation.SendChat", trace.WithAttributes(
		attribute.String("provider", chat.Provider),
		attribute.String("model", chat.Model),
	))
	defer span.End()
	resp, attempts, err := o.sendChat(ctx, chat, scope)
	span.SetAttributes(attribute.Int("attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "chat failed")
	}
	return resp, attempts, err
}

func (o *Orchestrator) buildDrafts(
	req Request,
	entityType models.EntityType,
	payloads []json.RawMessage,
	citations []models.Citation,
) []models.GenerationDraft {
	now := o.now()
	drafts := make([]models.GenerationDraft, 0, len(payloads))
	for _, data := range payloads {
		assignment := o.trust.Assign(data, citations)
		draftID := o.newID()
		drafts = append(drafts, models.GenerationDraft{
			ID:              draftID,
			CampaignID:      req.CampaignID,
			WizardID:        req.WizardID,
			EntityType:      entityType,
			Data:            data,
			Status:          models.CanonStatusDraft,
			TrustLevel:      assignment.Level,
			TrustConfidence: assignment.Confidence,
			Citations:       o.attachCitations(citations, draftID, now),
			CreatedAt:       now,
			UpdatedAt:       now,
		})
	}
	return drafts
}

// attachCitations copies the citations for one draft. Each draft owns its citation rows, the grounding ID is kept
// as the source ID when the citation has none.
func (o *Orchestrator) attachCitations(citations []models.Citation, draftID string, now time.Time) []models.Citation {
	attached := make([]models.Citation, 0, len(citations))
	for _, c := range citations {
		if c.SourceID == "" {
			c.SourceID = c.ID
		}
		c.ID = o.newID()
		c.UsedIn = draftID
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		attached = append(attached, c)
	}
	return attached
}

// Reserved template variables filled from the assembled context.
const (
	VariableCampaignContext = "campaign_context"
	VariableCitations       = "citations"
	VariableConversation    = "conversation"
	VariablePrompt          = "prompt"
)

// promptVariables merges the request variables with the rendered context sections. Empty sections are left out so
// that template defaults apply.
func promptVariables(req Request, assembled models.AssembledContext) map[string]string {
	vars := make(map[string]string, len(req.Variables)+4) //nolint:mnd // reserved variables.
	for k, v := range req.Variables {
		vars[k] = v
	}
	vars[VariableCampaignContext] = assembler.RenderIntent(assembled.Intent)

	if len(assembled.Citations) > 0 {
		lines := make([]string, 0, len(assembled.Citations))
		for i, c := range assembled.Citations {
			lines = append(lines, fmt.Sprintf("%d. %s", i+1, assembler.RenderCitation(c)))
		}
		vars[VariableCitations] = strings.Join(lines, "\n")
	} else {
		delete(vars, VariableCitations)
	}

	if len(assembled.Conversation) > 0 {
		lines := make([]string, 0, len(assembled.Conversation))
		for _, m := range assembled.Conversation {
			lines = append(lines, assembler.RenderMessage(m))
		}
		vars[VariableConversation] = strings.Join(lines, "\n")
	} else {
		delete(vars, VariableConversation)
	}

	if prompt := strings.TrimSpace(req.Prompt); prompt != "" {
		vars[VariablePrompt] = prompt
	} else {
		delete(vars, VariablePrompt)
	}
	return vars
}
