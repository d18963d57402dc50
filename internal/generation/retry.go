package generation

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/myrjola/canonforge/internal/errors"
	"github.com/myrjola/canonforge/internal/llm"
	"github.com/myrjola/canonforge/internal/pipeline"
)

// RetryPolicy bounds the retries of transient LLM failures.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,                      //nolint:mnd // default policy.
		InitialBackoff: 500 * time.Millisecond, //nolint:mnd // default policy.
		MaxBackoff:     10 * time.Second,       //nolint:mnd // default policy.
	}
}

// sendChat calls the provider, retrying timeouts, rate limits and server errors with exponential backoff. It
// returns the number of attempts made.
func (o *Orchestrator) sendChat(
	ctx context.Context,
	req llm.ChatRequest,
	scope pipeline.Scope,
) (llm.ChatResponse, int, error) {
	policy := o.retry
	exponential := backoff.NewExponentialBackOff()
	exponential.InitialInterval = policy.InitialBackoff
	exponential.MaxInterval = policy.MaxBackoff

	var (
		attempts int
		lastErr  error
	)
	operation := func() (llm.ChatResponse, error) {
		attempts++
		resp, err := o.provider.SendChat(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil || !llm.IsRetryable(err) {
			return llm.ChatResponse{}, backoff.Permanent(err)
		}
		return llm.ChatResponse{}, err
	}
	notify := func(err error, wait time.Duration) {
		o.logger.LogAttrs(ctx, slog.LevelWarn, "transient LLM failure, retrying",
			slog.Int("attempt", attempts), slog.Duration("wait", wait), errors.SlogError(err))
	}

	resp, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(exponential),
		backoff.WithMaxTries(uint(max(policy.MaxAttempts, 1))), //nolint:gosec // clamped to be positive.
		backoff.WithNotify(notify),
	)
	if err == nil {
		return resp, attempts, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return llm.ChatResponse{}, attempts, errors.Wrap(ctxErr, "generation canceled during LLM call")
	}
	if lastErr == nil {
		lastErr = err
	}
	message := "LLM call failed"
	if llm.IsRetryable(lastErr) {
		message = "LLM call failed after retries"
	}
	return llm.ChatResponse{}, attempts, &pipeline.GenerationError{
		Kind:      pipeline.GenerationLLMFailure,
		Message:   message,
		Scope:     scope,
		Retryable: false,
		Cause:     lastErr,
	}
}
