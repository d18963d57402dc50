package models

import (
	"encoding/json"
	"time"
)

// CanonStatusLogEntry records one status hop of a draft. Entries are append-only and Sequence increases by one per
// draft, so a complete history has no gaps.
type CanonStatusLogEntry struct {
	ID             string      `json:"id"`
	DraftID        string      `json:"draft_id"`
	Sequence       int         `json:"sequence"`
	PreviousStatus CanonStatus `json:"previous_status"`
	NewStatus      CanonStatus `json:"new_status"`
	Reason         string      `json:"reason,omitempty"`
	TriggeredBy    string      `json:"triggered_by"`
	Timestamp      time.Time   `json:"timestamp"`
}

// Decision is the GM action recorded by an AcceptanceEvent.
type Decision string

const (
	DecisionAccept  Decision = "accept"
	DecisionReject  Decision = "reject"
	DecisionModify  Decision = "modify"
	DecisionApprove Decision = "approve"
	DecisionRevoke  Decision = "revoke"
)

// AcceptanceEvent records a GM decision on a draft, including decisions that did not change its status.
type AcceptanceEvent struct {
	ID            string          `json:"id"`
	DraftID       string          `json:"draft_id"`
	EntityType    EntityType      `json:"entity_type"`
	Decision      Decision        `json:"decision"`
	Modifications json.RawMessage `json:"modifications,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

// DraftHistory is the full audit trail of a draft.
type DraftHistory struct {
	StatusLog []CanonStatusLogEntry `json:"status_log"`
	Events    []AcceptanceEvent     `json:"events"`
}
