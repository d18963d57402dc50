package models

import (
	"log/slog"

	"github.com/myrjola/canonforge/internal/errors"
)

// CanonStatus is the lifecycle stage of a draft, from tentative suggestion to committed campaign fact.
type CanonStatus string

const (
	CanonStatusDraft      CanonStatus = "draft"
	CanonStatusApproved   CanonStatus = "approved"
	CanonStatusCanonical  CanonStatus = "canonical"
	CanonStatusDeprecated CanonStatus = "deprecated"
)

// canonTransitions is the complete legal transition table. Anything absent is illegal.
var canonTransitions = map[CanonStatus][]CanonStatus{ //nolint:gochecknoglobals // read-only lookup table.
	CanonStatusDraft:      {CanonStatusApproved, CanonStatusDeprecated},
	CanonStatusApproved:   {CanonStatusCanonical, CanonStatusDeprecated},
	CanonStatusCanonical:  {CanonStatusDeprecated},
	CanonStatusDeprecated: nil,
}

// ParseCanonStatus validates a persisted or user-supplied status.
func ParseCanonStatus(s string) (CanonStatus, error) {
	status := CanonStatus(s)
	if _, ok := canonTransitions[status]; !ok {
		return "", errors.New("unknown canon status", slog.String("status", s))
	}
	return status, nil
}

// CanTransitionTo reports whether a single hop from s to target is legal.
func (s CanonStatus) CanTransitionTo(target CanonStatus) bool {
	for _, next := range canonTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// IsEditable reports whether the payload may still change.
func (s CanonStatus) IsEditable() bool {
	return s == CanonStatusDraft || s == CanonStatusApproved
}

// IsTerminal reports whether no transition leaves s.
func (s CanonStatus) IsTerminal() bool {
	return len(canonTransitions[s]) == 0
}

// PathTo returns the hops from s to target. A direct hop is returned as a single step. The only multi-hop path
// allowed is the draft to canonical shortcut, which passes through approved. ok is false when target is unreachable
// or equal to s.
func (s CanonStatus) PathTo(target CanonStatus) ([]CanonStatus, bool) {
	if s.CanTransitionTo(target) {
		return []CanonStatus{target}, true
	}
	if s == CanonStatusDraft && target == CanonStatusCanonical {
		return []CanonStatus{CanonStatusApproved, CanonStatusCanonical}, true
	}
	return nil, false
}
