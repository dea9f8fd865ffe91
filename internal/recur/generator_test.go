package recur

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groupmgr/internal/model"
)

func baseEvent(start, end time.Time, rule *model.RecurrenceRule) *model.Event {
	return &model.Event{
		ID:         "base",
		Name:       "Weekly Meetup",
		StartTime:  start,
		EndTime:    end,
		Recurrence: rule,
	}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestWeeklyExpansion(t *testing.T) {
	// Base event: Monday 2024-01-01 18:00-19:00, weekly on Mondays,
	// horizon end of January.
	start := time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 1, 19, 0, 0, 0, time.UTC)
	rule := &model.RecurrenceRule{
		Enabled:    true,
		Kind:       model.RecurWeekly,
		DaysOfWeek: []time.Weekday{time.Monday},
	}
	horizon := time.Date(2024, 1, 31, 23, 59, 0, 0, time.UTC)

	got := New(baseEvent(start, end, rule), start, horizon).Slice()

	want := []time.Time{
		time.Date(2024, 1, 8, 18, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 15, 18, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 22, 18, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 29, 18, 0, 0, 0, time.UTC),
	}
	// The January 1 original must not be re-emitted.
	assert.Equal(t, want, got)
}

func TestWeeklyUntilBound(t *testing.T) {
	start := time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	until := date(2024, 1, 15)
	rule := &model.RecurrenceRule{
		Enabled:    true,
		Kind:       model.RecurWeekly,
		DaysOfWeek: []time.Weekday{time.Monday},
		Until:      &until,
	}
	horizon := date(2024, 3, 1)

	got := New(baseEvent(start, end, rule), start, horizon).Slice()

	require.Len(t, got, 2)
	assert.Equal(t, time.Date(2024, 1, 8, 18, 0, 0, 0, time.UTC), got[0])
	// Until is inclusive on the date component.
	assert.Equal(t, time.Date(2024, 1, 15, 18, 0, 0, 0, time.UTC), got[1])
	for _, occ := range got {
		assert.False(t, occ.After(time.Date(2024, 1, 15, 23, 59, 59, 0, time.UTC)))
	}
}

func TestMonthlyDay31SkipsShortMonths(t *testing.T) {
	// MonthDays={31} across Jan-Apr of a non-leap year: only Jan 31 and
	// Mar 31 exist; Feb and Apr are skipped without error.
	start := time.Date(2023, 1, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	rule := &model.RecurrenceRule{
		Enabled:   true,
		Kind:      model.RecurMonthly,
		MonthDays: []int{31},
	}
	horizon := date(2023, 4, 30)

	got := New(baseEvent(start, end, rule), start, horizon).Slice()

	want := []time.Time{
		time.Date(2023, 1, 31, 10, 0, 0, 0, time.UTC),
		time.Date(2023, 3, 31, 10, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, want, got)
}

func TestMonthlyDiscardsBeforeFloor(t *testing.T) {
	start := time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	rule := &model.RecurrenceRule{
		Enabled:   true,
		Kind:      model.RecurMonthly,
		MonthDays: []int{10, 20},
	}
	// Floor mid-month: Jan 10 is in the past relative to "now".
	floor := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	horizon := date(2024, 2, 28)

	got := New(baseEvent(start, end, rule), floor, horizon).Slice()

	want := []time.Time{
		time.Date(2024, 1, 20, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 10, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 20, 9, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, want, got)
}

func TestSpecificDatesSortedAndBounded(t *testing.T) {
	start := time.Date(2024, 6, 1, 20, 30, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	rule := &model.RecurrenceRule{
		Enabled: true,
		Kind:    model.RecurSpecificDates,
		// Deliberately unsorted, with one date in the past and one
		// beyond the horizon.
		SpecificDates: []time.Time{
			date(2024, 6, 20),
			date(2024, 5, 1),
			date(2024, 6, 10),
			date(2024, 9, 1),
		},
	}
	horizon := date(2024, 7, 1)

	got := New(baseEvent(start, end, rule), start, horizon).Slice()

	want := []time.Time{
		time.Date(2024, 6, 10, 20, 30, 0, 0, time.UTC),
		time.Date(2024, 6, 20, 20, 30, 0, 0, time.UTC),
	}
	assert.Equal(t, want, got)
}

func TestIntervalWalk(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	horizon := date(2024, 1, 31)

	tests := []struct {
		name         string
		intervalDays int
		wantDays     []int
	}{
		{name: "weekly interval", intervalDays: 7, wantDays: []int{8, 15, 22, 29}},
		// Jan 31 10:00 would exceed the midnight horizon, so the walk
		// stops at Jan 21.
		{name: "ten days", intervalDays: 10, wantDays: []int{11, 21}},
		// Values below 1 clamp to 1 instead of looping forever.
		{name: "zero clamps to one", intervalDays: 0, wantDays: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := &model.RecurrenceRule{
				Enabled:      true,
				Kind:         model.RecurInterval,
				IntervalDays: tt.intervalDays,
			}
			got := New(baseEvent(start, end, rule), start, horizon).Slice()

			if tt.wantDays == nil {
				// Daily steps: Jan 2 .. Jan 30 inclusive (Jan 31 10:00
				// exceeds the midnight horizon).
				require.Len(t, got, 29)
				assert.Equal(t, time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC), got[0])
				return
			}
			require.Len(t, got, len(tt.wantDays))
			for i, d := range tt.wantDays {
				assert.Equal(t, time.Date(2024, 1, d, 10, 0, 0, 0, time.UTC), got[i])
			}
		})
	}
}

func TestInactiveRulesYieldNothing(t *testing.T) {
	start := time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	horizon := date(2024, 3, 1)

	tests := []struct {
		name string
		rule *model.RecurrenceRule
	}{
		{name: "nil rule", rule: nil},
		{name: "disabled", rule: &model.RecurrenceRule{
			Enabled: false, Kind: model.RecurWeekly, DaysOfWeek: []time.Weekday{time.Monday},
		}},
		{name: "weekly with empty day set", rule: &model.RecurrenceRule{
			Enabled: true, Kind: model.RecurWeekly,
		}},
		{name: "monthly with empty day set", rule: &model.RecurrenceRule{
			Enabled: true, Kind: model.RecurMonthly,
		}},
		{name: "kind none", rule: &model.RecurrenceRule{
			Enabled: true, Kind: model.RecurNone,
		}},
		{name: "unknown kind", rule: &model.RecurrenceRule{
			Enabled: true, Kind: model.RecurKind("bogus"),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New(baseEvent(start, end, tt.rule), start, horizon).Slice()
			assert.Empty(t, got)
		})
	}
}

func TestSequenceIsDeterministicAndRestartable(t *testing.T) {
	start := time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	rule := &model.RecurrenceRule{
		Enabled:    true,
		Kind:       model.RecurWeekly,
		DaysOfWeek: []time.Weekday{time.Monday, time.Thursday},
	}
	seq := New(baseEvent(start, end, rule), start, date(2024, 2, 15))

	first := seq.Slice()
	second := seq.Slice()
	require.NotEmpty(t, first)
	assert.Equal(t, first, second)

	// Partially draining one cursor must not affect a fresh one.
	c := seq.Cursor()
	_, ok := c.Next()
	require.True(t, ok)
	assert.Equal(t, first, seq.Slice())

	// An exhausted cursor stays exhausted.
	drained := seq.Cursor()
	for {
		if _, ok := drained.Next(); !ok {
			break
		}
	}
	_, ok = drained.Next()
	assert.False(t, ok)
}
