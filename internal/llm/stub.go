package llm

import (
	"context"
	"strings"
	"sync"
)

// Stub is an offline provider. It replies with the canned response of the longest key that appears in the last user
// message, or with Default when no key matches. It records every request it receives.
type Stub struct {
	Responses map[string]string
	Default   string

	mu       sync.Mutex
	requests []ChatRequest
}

func (s *Stub) Name() string {
	return "stub"
}

func (s *Stub) SendChat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return ChatResponse{}, err //nolint:wrapcheck // cancellation is passed through as is.
	}
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	var prompt string
	for _, m := range req.Messages {
		if m.Role == RoleUser {
			prompt = m.Content
		}
	}
	content := s.Default
	longest := 0
	for key, response := range s.Responses {
		// The longest matching key wins so that map order does not matter.
		if strings.Contains(prompt, key) && len(key) > longest {
			content, longest = response, len(key)
		}
	}
	return ChatResponse{
		Content:  content,
		Model:    "stub",
		Provider: s.Name(),
		Usage:    Usage{PromptTokens: len(prompt) / 4, CompletionTokens: len(content) / 4}, //nolint:mnd // rough estimate
	}, nil
}

// Requests returns a copy of the requests received so far.
func (s *Stub) Requests() []ChatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ChatRequest(nil), s.requests...)
}
