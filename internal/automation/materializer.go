package automation

import (
	"time"

	"groupmgr/internal/model"
	"groupmgr/internal/recur"
	"groupmgr/pkg/logx"
)

// DefaultHorizonDays bounds how far ahead occurrences are materialized.
const DefaultHorizonDays = 30

// Materializer expands enabled recurrence rules into concrete Events
// inside a rolling horizon.
//
// It appends to the slice it is given and reports whether anything was
// added; the caller owns persistence. Re-running with the same horizon
// converges: the (name, start) duplicate check suppresses everything that
// already exists.
type Materializer struct {
	log logx.Logger
	now func() time.Time

	HorizonDays int
}

func NewMaterializer(now func() time.Time, horizonDays int, log logx.Logger) *Materializer {
	if now == nil {
		now = time.Now
	}
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Materializer{log: log, now: now, HorizonDays: horizonDays}
}

// Run expands every event with an active recurrence rule and returns the
// (possibly grown) slice plus whether any event was added.
func (m *Materializer) Run(events []*model.Event) ([]*model.Event, bool) {
	now := m.now()
	horizon := now.AddDate(0, 0, m.HorizonDays)

	// Duplicate suppression keys on (name, start instant). The key is
	// intentionally coarse — it mirrors what the store has always deduped
	// on, and a stable occurrence id would change observable behavior.
	seen := make(map[string]bool, len(events))
	for _, ev := range events {
		seen[occurrenceKey(ev.Name, ev.StartTime)] = true
	}

	added := 0
	// Walk a snapshot of the incoming slice; occurrences of occurrences
	// are caught on the next run (and deduped anyway).
	for _, base := range events[:len(events):len(events)] {
		if !base.Recurrence.Active() {
			continue
		}
		dur := base.Duration()
		seq := recur.New(base, now, horizon)
		c := seq.Cursor()
		for {
			start, ok := c.Next()
			if !ok {
				break
			}
			key := occurrenceKey(base.Name, start)
			if seen[key] {
				continue
			}
			seen[key] = true
			events = append(events, cloneForOccurrence(base, start, dur))
			added++
		}
	}

	if added > 0 {
		m.log.Info("occurrences materialized",
			logx.Int("added", added),
			logx.Int("total", len(events)),
			logx.Time("horizon", horizon))
	}
	return events, added > 0
}

func occurrenceKey(name string, start time.Time) string {
	return name + "\x00" + start.UTC().Format(time.RFC3339Nano)
}

// cloneForOccurrence builds the concrete event for one occurrence: same
// descriptive fields (deep-copied), shifted window, fresh id, empty
// executed-rule markers.
func cloneForOccurrence(base *model.Event, start time.Time, dur time.Duration) *model.Event {
	ev := base.Clone()
	ev.ID = model.NewID()
	ev.StartTime = start
	ev.EndTime = start.Add(dur)
	ev.ExecutedRuleIDs = []string{}
	return ev
}
