package recur

import (
	"slices"
	"time"

	"groupmgr/internal/model"
)

// Sequence is a lazily evaluated, finite stream of occurrence start
// instants for one base event and rule.
//
// Bounds honored by every pattern kind:
//   - strictly after the base event's original start (the original is
//     never re-emitted)
//   - at or before Horizon
//   - date component at or before the rule's Until, when set
type Sequence struct {
	// BaseStart is the original event start; it anchors the time of day
	// (and the interval walk for the legacy pattern).
	BaseStart time.Time

	// Floor is the lower generation bound, normally max(now, BaseStart).
	Floor time.Time

	// Horizon is the furthest instant occurrences may be produced for.
	Horizon time.Time

	Rule *model.RecurrenceRule
}

// New builds a Sequence for the event's recurrence rule.
// floor is clamped up to the base start so callers can pass "now" directly.
func New(ev *model.Event, floor, horizon time.Time) Sequence {
	if floor.Before(ev.StartTime) {
		floor = ev.StartTime
	}
	return Sequence{
		BaseStart: ev.StartTime,
		Floor:     floor,
		Horizon:   horizon,
		Rule:      ev.Recurrence,
	}
}

// Cursor starts a fresh walk over the sequence. An inactive rule (disabled,
// empty pattern set, unknown kind) yields an exhausted cursor.
func (s Sequence) Cursor() Cursor {
	if !s.Rule.Active() || !s.BaseStart.Before(s.Horizon) {
		return emptyCursor{}
	}
	switch s.Rule.Kind {
	case model.RecurWeekly:
		return newWeeklyCursor(s)
	case model.RecurMonthly:
		return newMonthlyCursor(s)
	case model.RecurSpecificDates:
		return newSpecificCursor(s)
	case model.RecurInterval:
		return newIntervalCursor(s)
	default:
		return emptyCursor{}
	}
}

// Slice drains a fresh cursor into a slice. Convenience for callers and tests.
func (s Sequence) Slice() []time.Time {
	var out []time.Time
	c := s.Cursor()
	for {
		t, ok := c.Next()
		if !ok {
			return out
		}
		out = append(out, t)
	}
}

// Cursor yields successive start instants. Next reports ok=false once the
// walk is exhausted; after that it keeps returning false.
type Cursor interface {
	Next() (time.Time, bool)
}

type emptyCursor struct{}

func (emptyCursor) Next() (time.Time, bool) { return time.Time{}, false }

// at rebuilds a candidate instant: the given calendar date carrying the
// base event's time of day, in the base event's location.
func (s Sequence) at(date time.Time) time.Time {
	h, m, sec := s.BaseStart.Clock()
	return time.Date(date.Year(), date.Month(), date.Day(), h, m, sec,
		s.BaseStart.Nanosecond(), s.BaseStart.Location())
}

// pastUntil reports whether the date component of d exceeds the rule's
// inclusive Until bound.
func (s Sequence) pastUntil(d time.Time) bool {
	u := s.Rule.Until
	if u == nil {
		return false
	}
	dy, dm, dd := d.Date()
	uy, um, ud := u.Date()
	if dy != uy {
		return dy > uy
	}
	if dm != um {
		return dm > um
	}
	return dd > ud
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// ---- weekly ----

// weeklyCursor walks calendar days from the floor date to the horizon date
// and emits days whose weekday is in the rule's set.
type weeklyCursor struct {
	seq  Sequence
	days map[time.Weekday]bool
	cur  time.Time // next date to examine (midnight)
	end  time.Time // horizon date (midnight)
	done bool
}

func newWeeklyCursor(s Sequence) *weeklyCursor {
	days := make(map[time.Weekday]bool, len(s.Rule.DaysOfWeek))
	for _, d := range s.Rule.DaysOfWeek {
		days[d] = true
	}
	return &weeklyCursor{
		seq:  s,
		days: days,
		cur:  midnight(s.Floor),
		end:  midnight(s.Horizon),
	}
}

func (c *weeklyCursor) Next() (time.Time, bool) {
	for !c.done {
		if c.cur.After(c.end) {
			c.done = true
			break
		}
		d := c.cur
		c.cur = c.cur.AddDate(0, 0, 1)

		// Until is a hard stop, not a filter: nothing past it is examined.
		if c.seq.pastUntil(d) {
			c.done = true
			break
		}
		if !c.days[d.Weekday()] {
			continue
		}
		cand := c.seq.at(d)
		if !cand.After(c.seq.BaseStart) {
			continue
		}
		if cand.After(c.seq.Horizon) {
			c.done = true
			break
		}
		return cand, true
	}
	return time.Time{}, false
}

// ---- monthly ----

// monthlyCursor walks months from the floor's month to the horizon's month
// and, inside each month, the configured days in ascending order. Days that
// do not exist in a month (31 in April) are skipped silently.
type monthlyCursor struct {
	seq  Sequence
	days []int

	year  int
	month time.Month
	di    int

	endYear  int
	endMonth time.Month
	done     bool
}

func newMonthlyCursor(s Sequence) *monthlyCursor {
	days := slices.Clone(s.Rule.MonthDays)
	slices.Sort(days)
	c := &monthlyCursor{seq: s, days: days}
	c.year, c.month = s.Floor.Year(), s.Floor.Month()
	c.endYear, c.endMonth = s.Horizon.Year(), s.Horizon.Month()
	return c
}

func (c *monthlyCursor) Next() (time.Time, bool) {
	for !c.done {
		if c.year > c.endYear || (c.year == c.endYear && c.month > c.endMonth) {
			c.done = true
			break
		}
		if c.di >= len(c.days) {
			c.di = 0
			c.month++
			if c.month > time.December {
				c.month = time.January
				c.year++
			}
			continue
		}
		day := c.days[c.di]
		c.di++

		if day < 1 || !daysExistsIn(c.year, c.month, day) {
			continue
		}
		d := time.Date(c.year, c.month, day, 0, 0, 0, 0, c.seq.BaseStart.Location())
		cand := c.seq.at(d)
		if cand.Before(c.seq.Floor) {
			continue
		}
		if !cand.After(c.seq.BaseStart) {
			continue
		}
		// A valid candidate beyond either bound ends the whole walk.
		if c.seq.pastUntil(d) || cand.After(c.seq.Horizon) {
			c.done = true
			break
		}
		return cand, true
	}
	return time.Time{}, false
}

// daysExistsIn reports whether the given day exists in year/month, without
// time.Date's normalization rolling it into the next month.
func daysExistsIn(year int, month time.Month, day int) bool {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return t.Month() == month && t.Day() == day
}

// ---- specific dates ----

// specificCursor emits the configured calendar dates in ascending order.
type specificCursor struct {
	seq   Sequence
	dates []time.Time
	i     int
	done  bool
}

func newSpecificCursor(s Sequence) *specificCursor {
	dates := slices.Clone(s.Rule.SpecificDates)
	slices.SortFunc(dates, func(a, b time.Time) int { return a.Compare(b) })
	return &specificCursor{seq: s, dates: dates}
}

func (c *specificCursor) Next() (time.Time, bool) {
	floorDate := midnight(c.seq.Floor)
	for !c.done {
		if c.i >= len(c.dates) {
			c.done = true
			break
		}
		d := c.dates[c.i]
		c.i++

		if midnight(d).Before(floorDate) {
			continue
		}
		cand := c.seq.at(d)
		if !cand.After(c.seq.BaseStart) {
			continue
		}
		if c.seq.pastUntil(d) || cand.After(c.seq.Horizon) {
			c.done = true
			break
		}
		return cand, true
	}
	return time.Time{}, false
}

// ---- legacy interval ----

// intervalCursor steps IntervalDays (minimum 1) at a time from the original
// event start. Steps in the past are emitted too; duplicate suppression at
// materialization keeps them harmless.
type intervalCursor struct {
	seq  Sequence
	step int
	cur  time.Time
	done bool
}

func newIntervalCursor(s Sequence) *intervalCursor {
	step := s.Rule.IntervalDays
	if step < 1 {
		step = 1
	}
	return &intervalCursor{seq: s, step: step, cur: s.BaseStart}
}

func (c *intervalCursor) Next() (time.Time, bool) {
	if c.done {
		return time.Time{}, false
	}
	cand := c.cur.AddDate(0, 0, c.step)
	if c.seq.pastUntil(cand) || cand.After(c.seq.Horizon) {
		c.done = true
		return time.Time{}, false
	}
	c.cur = cand
	return cand, true
}
