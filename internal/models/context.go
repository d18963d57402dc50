package models

import "time"

// CampaignIntent is the stable creative anchor every generation request must respect. There is one active intent
// per campaign and the pipeline only reads it.
type CampaignIntent struct {
	Fantasy           string   `json:"fantasy"`
	PlayerExperiences []string `json:"player_experiences,omitempty"`
	Constraints       []string `json:"constraints,omitempty"`
	Themes            []string `json:"themes,omitempty"`
	ToneKeywords      []string `json:"tone_keywords,omitempty"`
	Avoid             []string `json:"avoid,omitempty"`
}

type ConversationMessage struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type TruncationKind string

const (
	TruncationKindCitation     TruncationKind = "citation"
	TruncationKindConversation TruncationKind = "conversation"
)

// TruncationWarning names an item that did not fit in the context budget.
type TruncationWarning struct {
	Item   string         `json:"item"`
	Kind   TruncationKind `json:"kind"`
	Reason string         `json:"reason"`
}

// AssembledContext is the token-budgeted context handed to prompt rendering.
type AssembledContext struct {
	Intent             CampaignIntent `json:"intent"`
	IntentTokens       int            `json:"intent_tokens"`
	CitationTokens     int            `json:"citation_tokens"`
	ConversationTokens int            `json:"conversation_tokens"`
	TotalUsed          int            `json:"total_used"`
	TotalBudget        int            `json:"total_budget"`
	// Citations are in relevance order.
	Citations []Citation `json:"citations"`
	// Conversation holds the kept messages in chronological order.
	Conversation         []ConversationMessage `json:"conversation"`
	Warnings             []TruncationWarning   `json:"warnings"`
	GroundingUnavailable bool                  `json:"grounding_unavailable"`
}
