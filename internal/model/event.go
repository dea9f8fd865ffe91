package model

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event is a single scheduled group event. Generated occurrences of a
// recurring event are ordinary Events with their own ID.
//
// Descriptive fields (name, category, tags, ...) are opaque to the
// scheduling core and carried through materialization unchanged.
type Event struct {
	ID string `json:"id"`

	Name        string `json:"name"`
	Category    string `json:"category,omitempty"`
	Description string `json:"description,omitempty"`
	Visibility  string `json:"visibility,omitempty"`
	GroupID     string `json:"group_id,omitempty"`
	ImageID     string `json:"image_id,omitempty"`

	Tags      []string `json:"tags,omitempty"`
	Languages []string `json:"languages,omitempty"`
	Platforms []string `json:"platforms,omitempty"`

	// StartTime/EndTime carry local wall-clock semantics.
	// EndTime > StartTime is the creating caller's responsibility;
	// the core treats it as a precondition and does not re-validate.
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	Recurrence *RecurrenceRule `json:"recurrence,omitempty"`

	// ExecutedRuleIDs is the idempotency marker for automation rules:
	// once a rule id lands here the (rule, event) pair never fires again.
	// Grows monotonically.
	ExecutedRuleIDs []string `json:"executed_rule_ids,omitempty"`
}

// NewID returns a fresh opaque event id.
func NewID() string { return uuid.NewString() }

// Duration returns EndTime - StartTime.
// Negative or zero results are propagated as-is (precondition violation upstream).
func (e *Event) Duration() time.Duration { return e.EndTime.Sub(e.StartTime) }

// HasExecuted reports whether the given automation rule already fired for
// this event.
func (e *Event) HasExecuted(ruleID string) bool {
	return slices.Contains(e.ExecutedRuleIDs, ruleID)
}

// MarkExecuted appends ruleID to the idempotency marker (no duplicates).
func (e *Event) MarkExecuted(ruleID string) {
	if ruleID == "" || e.HasExecuted(ruleID) {
		return
	}
	e.ExecutedRuleIDs = append(e.ExecutedRuleIDs, ruleID)
}

// Clone returns a deep copy: collections are independently mutable and the
// recurrence rule is copied, never shared.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Tags = slices.Clone(e.Tags)
	cp.Languages = slices.Clone(e.Languages)
	cp.Platforms = slices.Clone(e.Platforms)
	cp.ExecutedRuleIDs = slices.Clone(e.ExecutedRuleIDs)
	cp.Recurrence = e.Recurrence.Clone()
	return &cp
}

// Normalize defensively defaults nil collections. Events loaded from older
// stores may round-trip with null slices; that must never be fatal.
func (e *Event) Normalize() {
	if e.ID == "" {
		e.ID = NewID()
	}
	e.Name = strings.TrimSpace(e.Name)
	if e.Tags == nil {
		e.Tags = []string{}
	}
	if e.Languages == nil {
		e.Languages = []string{}
	}
	if e.Platforms == nil {
		e.Platforms = []string{}
	}
	if e.ExecutedRuleIDs == nil {
		e.ExecutedRuleIDs = []string{}
	}
	if e.Recurrence != nil {
		e.Recurrence.Normalize()
	}
}
