package model

import (
	"slices"
	"time"
)

// RecurKind selects which expansion algorithm applies to a RecurrenceRule.
//
// The set is closed on purpose: this is not an RFC 5545 grammar, it is the
// fixed pattern vocabulary the group tooling has always supported.
type RecurKind string

const (
	RecurNone          RecurKind = "none"
	RecurWeekly        RecurKind = "weekly"
	RecurMonthly       RecurKind = "monthly"
	RecurSpecificDates RecurKind = "specific_dates"

	// RecurInterval is the legacy fixed-interval pattern: repeat every
	// IntervalDays starting from the original event start.
	RecurInterval RecurKind = "interval"
)

// RecurrenceRule describes how an event repeats.
type RecurrenceRule struct {
	Enabled bool      `json:"enabled"`
	Kind    RecurKind `json:"kind"`

	// DaysOfWeek applies to RecurWeekly (time.Weekday, Sunday=0).
	DaysOfWeek []time.Weekday `json:"days_of_week,omitempty"`

	// MonthDays applies to RecurMonthly (1..31). Days that don't exist in
	// a given month (31 in April, 29 in a non-leap February) are skipped
	// during expansion, not rejected here.
	MonthDays []int `json:"month_days,omitempty"`

	// SpecificDates applies to RecurSpecificDates. Only the date component
	// is meaningful; the time of day always comes from the base event.
	SpecificDates []time.Time `json:"specific_dates,omitempty"`

	// IntervalDays applies to RecurInterval; values < 1 are treated as 1.
	IntervalDays int `json:"interval_days,omitempty"`

	// Until is an inclusive upper bound on occurrence dates (date component
	// only). Nil means no bound beyond the generation horizon.
	Until *time.Time `json:"until,omitempty"`
}

// Active reports whether the rule can yield occurrences at all: it must be
// enabled and its pattern set for Kind must be non-empty.
func (r *RecurrenceRule) Active() bool {
	if r == nil || !r.Enabled {
		return false
	}
	switch r.Kind {
	case RecurWeekly:
		return len(r.DaysOfWeek) > 0
	case RecurMonthly:
		return len(r.MonthDays) > 0
	case RecurSpecificDates:
		return len(r.SpecificDates) > 0
	case RecurInterval:
		return true
	default:
		return false
	}
}

func (r *RecurrenceRule) Clone() *RecurrenceRule {
	if r == nil {
		return nil
	}
	cp := *r
	cp.DaysOfWeek = slices.Clone(r.DaysOfWeek)
	cp.MonthDays = slices.Clone(r.MonthDays)
	cp.SpecificDates = slices.Clone(r.SpecificDates)
	if r.Until != nil {
		u := *r.Until
		cp.Until = &u
	}
	return &cp
}

// Normalize defaults nil collections loaded from legacy stores.
func (r *RecurrenceRule) Normalize() {
	if r.Kind == "" {
		r.Kind = RecurNone
	}
	if r.DaysOfWeek == nil {
		r.DaysOfWeek = []time.Weekday{}
	}
	if r.MonthDays == nil {
		r.MonthDays = []int{}
	}
	if r.SpecificDates == nil {
		r.SpecificDates = []time.Time{}
	}
	if r.Kind == RecurInterval && r.IntervalDays < 1 {
		r.IntervalDays = 1
	}
}
