package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/myrjola/canonforge/internal/errors"
	"github.com/myrjola/canonforge/internal/models"
)

// Scope is the context a caller needs to act on an error.
type Scope struct {
	DraftID        string
	CampaignID     string
	GenerationType models.GenerationType
}

func (s Scope) attrs() []slog.Attr {
	var attrs []slog.Attr
	if s.DraftID != "" {
		attrs = append(attrs, slog.String("draft_id", s.DraftID))
	}
	if s.CampaignID != "" {
		attrs = append(attrs, slog.String("campaign_id", s.CampaignID))
	}
	if s.GenerationType != "" {
		attrs = append(attrs, slog.String("generation_type", string(s.GenerationType)))
	}
	return attrs
}

func causeAttr(cause error) []slog.Attr {
	if cause == nil {
		return nil
	}
	return []slog.Attr{errors.SlogError(cause)}
}

type ContextErrorKind string

const (
	ContextBudgetExceeded       ContextErrorKind = "budget_exceeded"
	ContextGroundingUnavailable ContextErrorKind = "grounding_unavailable"
)

// ContextError is raised while assembling the prompt context.
type ContextError struct {
	Kind    ContextErrorKind
	Message string
	Scope   Scope
	// Needed and Budget are set for ContextBudgetExceeded.
	Needed int
	Budget int
	Cause  error
}

func (e *ContextError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ContextError) Unwrap() error { return e.Cause }

// Is reports whether target is a ContextError of the same kind.
func (e *ContextError) Is(target error) bool {
	t, ok := target.(*ContextError) //nolint:errorlint // comparing kinds, not unwrapping.
	return ok && t.Kind == e.Kind
}

func (e *ContextError) LogValue() slog.Value {
	attrs := []slog.Attr{slog.String("kind", string(e.Kind)), slog.String("msg", e.Message)}
	if e.Kind == ContextBudgetExceeded {
		attrs = append(attrs, slog.Int("needed", e.Needed), slog.Int("budget", e.Budget))
	}
	attrs = append(attrs, e.Scope.attrs()...)
	return slog.GroupValue(append(attrs, causeAttr(e.Cause)...)...)
}

type GenerationErrorKind string

const (
	GenerationTemplateNotFound  GenerationErrorKind = "template_not_found"
	GenerationLLMFailure        GenerationErrorKind = "llm_failure"
	GenerationMalformedResponse GenerationErrorKind = "malformed_response"
)

// GenerationError is raised while producing drafts. A failed generation never leaves drafts behind.
type GenerationError struct {
	Kind    GenerationErrorKind
	Message string
	Scope   Scope
	// Retryable is meaningful for GenerationLLMFailure. It is false once the retry budget is spent.
	Retryable bool
	// RawResponse preserves the model output for GenerationMalformedResponse.
	RawResponse string
	Cause       error
}

func (e *GenerationError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *GenerationError) Unwrap() error { return e.Cause }

func (e *GenerationError) Is(target error) bool {
	t, ok := target.(*GenerationError) //nolint:errorlint // comparing kinds, not unwrapping.
	return ok && t.Kind == e.Kind
}

func (e *GenerationError) LogValue() slog.Value {
	attrs := []slog.Attr{slog.String("kind", string(e.Kind)), slog.String("msg", e.Message)}
	switch e.Kind {
	case GenerationLLMFailure:
		attrs = append(attrs, slog.Bool("retryable", e.Retryable))
	case GenerationMalformedResponse:
		attrs = append(attrs, slog.String("raw_response", e.RawResponse))
	case GenerationTemplateNotFound:
	}
	attrs = append(attrs, e.Scope.attrs()...)
	return slog.GroupValue(append(attrs, causeAttr(e.Cause)...)...)
}

type PipelineErrorKind string

const (
	PipelineInvalidTransition PipelineErrorKind = "invalid_transition"
	PipelineNotFound          PipelineErrorKind = "not_found"
	PipelineValidation        PipelineErrorKind = "validation"
	PipelineDraftLocked       PipelineErrorKind = "draft_locked"
	PipelineInternal          PipelineErrorKind = "internal"
)

// PipelineError is raised by draft lifecycle operations. The draft is left unchanged whenever one is returned.
type PipelineError struct { //nolint:revive // the taxonomy name reads better than Error at call sites.
	Kind    PipelineErrorKind
	Message string
	Scope   Scope
	// From and To are set for PipelineInvalidTransition.
	From  models.CanonStatus
	To    models.CanonStatus
	Cause error
}

func (e *PipelineError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Kind == PipelineInvalidTransition {
		msg = fmt.Sprintf("%s: %s (%s -> %s)", e.Kind, e.Message, e.From, e.To)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *PipelineError) Unwrap() error { return e.Cause }

func (e *PipelineError) Is(target error) bool {
	t, ok := target.(*PipelineError) //nolint:errorlint // comparing kinds, not unwrapping.
	return ok && t.Kind == e.Kind
}

func (e *PipelineError) LogValue() slog.Value {
	attrs := []slog.Attr{slog.String("kind", string(e.Kind)), slog.String("msg", e.Message)}
	if e.Kind == PipelineInvalidTransition {
		attrs = append(attrs, slog.String("from", string(e.From)), slog.String("to", string(e.To)))
	}
	attrs = append(attrs, e.Scope.attrs()...)
	return slog.GroupValue(append(attrs, causeAttr(e.Cause)...)...)
}

// Sentinels for errors.Is. Only the Kind is compared.
var (
	ErrBudgetExceeded       = &ContextError{Kind: ContextBudgetExceeded}       //nolint:gochecknoglobals // sentinel.
	ErrGroundingUnavailable = &ContextError{Kind: ContextGroundingUnavailable} //nolint:gochecknoglobals // sentinel.

	ErrTemplateNotFound  = &GenerationError{Kind: GenerationTemplateNotFound}  //nolint:gochecknoglobals // sentinel.
	ErrLLMFailure        = &GenerationError{Kind: GenerationLLMFailure}        //nolint:gochecknoglobals // sentinel.
	ErrMalformedResponse = &GenerationError{Kind: GenerationMalformedResponse} //nolint:gochecknoglobals // sentinel.

	ErrInvalidTransition = &PipelineError{Kind: PipelineInvalidTransition} //nolint:gochecknoglobals // sentinel.
	ErrNotFound          = &PipelineError{Kind: PipelineNotFound}          //nolint:gochecknoglobals // sentinel.
	ErrValidation        = &PipelineError{Kind: PipelineValidation}        //nolint:gochecknoglobals // sentinel.
	ErrDraftLocked       = &PipelineError{Kind: PipelineDraftLocked}       //nolint:gochecknoglobals // sentinel.
	ErrInternal          = &PipelineError{Kind: PipelineInternal}          //nolint:gochecknoglobals // sentinel.
)

// InvalidTransition builds the error for an illegal status move.
func InvalidTransition(scope Scope, from, to models.CanonStatus) *PipelineError {
	return &PipelineError{
		Kind:    PipelineInvalidTransition,
		Message: "transition not allowed",
		Scope:   scope,
		From:    from,
		To:      to,
	}
}

// NotFound builds the error for a missing draft or entity.
func NotFound(scope Scope, what string) *PipelineError {
	return &PipelineError{Kind: PipelineNotFound, Message: what + " not found", Scope: scope}
}

// Validation builds the error for a request that can never succeed as given.
func Validation(scope Scope, message string, cause error) *PipelineError {
	return &PipelineError{Kind: PipelineValidation, Message: message, Scope: scope, Cause: cause}
}

// DraftLocked builds the error for a draft held by a concurrent acceptance operation.
func DraftLocked(scope Scope) *PipelineError {
	return &PipelineError{Kind: PipelineDraftLocked, Message: "draft is locked by another operation", Scope: scope}
}

// Internal wraps infrastructure failures such as storage errors.
func Internal(scope Scope, message string, cause error) *PipelineError {
	return &PipelineError{Kind: PipelineInternal, Message: message, Scope: scope, Cause: cause}
}
