package llm

import (
	"context"
	"log/slog"
	"slices"

	"github.com/myrjola/canonforge/internal/errors"
)

// Router dispatches requests to a named provider.
type Router struct {
	providers map[string]Provider
	fallback  string
	logger    *slog.Logger
}

// NewRouter registers the providers by name. The first provider is the default for requests that do not name one.
func NewRouter(logger *slog.Logger, providers ...Provider) (*Router, error) {
	if len(providers) == 0 {
		return nil, errors.New("router needs at least one provider")
	}
	r := &Router{
		providers: make(map[string]Provider, len(providers)),
		fallback:  providers[0].Name(),
		logger:    logger.With("source", "Router"),
	}
	for _, p := range providers {
		if _, ok := r.providers[p.Name()]; ok {
			return nil, errors.New("duplicate provider", slog.String("provider", p.Name()))
		}
		r.providers[p.Name()] = p
	}
	return r, nil
}

func (r *Router) Name() string {
	return "router"
}

// Providers lists the registered provider names in sorted order.
func (r *Router) Providers() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (r *Router) SendChat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	name := req.Provider
	if name == "" {
		name = r.fallback
	}
	provider, ok := r.providers[name]
	if !ok {
		return ChatResponse{}, &Error{Provider: name, Kind: ErrorKindConfig, Message: "unknown provider"}
	}
	r.logger.LogAttrs(ctx, slog.LevelDebug, "sending chat request",
		slog.String("provider", name), slog.Int("messages", len(req.Messages)))
	return provider.SendChat(ctx, req)
}
