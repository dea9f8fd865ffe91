package app

import (
	"context"
	"errors"
	"fmt"

	"groupmgr/internal/model"
)

// In-process API for the surrounding tooling (UI, CLI, tests). Every
// mutation runs on the writer goroutine; readers receive deep copies so
// later edits can't race the engine.

var ErrNotFound = errors.New("not found")

// CreateEvent validates and inserts a new event, returning its id.
//
// EndTime > StartTime is enforced here, at the creating boundary — the
// scheduling core itself treats it as a precondition.
func (a *App) CreateEvent(ctx context.Context, ev *model.Event) (string, error) {
	if ev == nil {
		return "", errors.New("event is nil")
	}
	if !ev.EndTime.After(ev.StartTime) {
		return "", fmt.Errorf("event %q: end time must be after start time", ev.Name)
	}
	cp := ev.Clone()
	cp.ID = ""
	cp.Normalize()

	var err error
	a.do(func() {
		a.events = append(a.events, cp)
		err = a.persistEvents(ctx)
	})
	return cp.ID, err
}

// UpdateEvent replaces the descriptive and temporal fields of an existing
// event. The executed-rule markers of the stored event are preserved:
// editing an event never re-arms rules that already fired.
func (a *App) UpdateEvent(ctx context.Context, ev *model.Event) error {
	if ev == nil || ev.ID == "" {
		return ErrNotFound
	}
	if !ev.EndTime.After(ev.StartTime) {
		return fmt.Errorf("event %q: end time must be after start time", ev.Name)
	}
	var err error
	a.do(func() {
		for i, cur := range a.events {
			if cur.ID != ev.ID {
				continue
			}
			cp := ev.Clone()
			cp.ExecutedRuleIDs = cur.ExecutedRuleIDs
			cp.Normalize()
			a.events[i] = cp
			err = a.persistEvents(ctx)
			return
		}
		err = ErrNotFound
	})
	return err
}

func (a *App) DeleteEvent(ctx context.Context, id string) error {
	var err error
	a.do(func() {
		for i, cur := range a.events {
			if cur.ID != id {
				continue
			}
			a.events = append(a.events[:i], a.events[i+1:]...)
			err = a.persistEvents(ctx)
			return
		}
		err = ErrNotFound
	})
	return err
}

// Events returns a deep-copied snapshot.
func (a *App) Events() []*model.Event {
	var out []*model.Event
	a.do(func() {
		out = make([]*model.Event, len(a.events))
		for i, ev := range a.events {
			out[i] = ev.Clone()
		}
	})
	return out
}

func (a *App) CreateRule(ctx context.Context, r *model.AutomationRule) (string, error) {
	if r == nil {
		return "", errors.New("rule is nil")
	}
	cp := *r
	cp.ID = ""
	cp.Normalize()

	var err error
	a.do(func() {
		a.rules = append(a.rules, &cp)
		err = a.persistRules(ctx)
	})
	return cp.ID, err
}

func (a *App) UpdateRule(ctx context.Context, r *model.AutomationRule) error {
	if r == nil || r.ID == "" {
		return ErrNotFound
	}
	var err error
	a.do(func() {
		for i, cur := range a.rules {
			if cur.ID != r.ID {
				continue
			}
			cp := *r
			cp.Normalize()
			a.rules[i] = &cp
			err = a.persistRules(ctx)
			return
		}
		err = ErrNotFound
	})
	return err
}

func (a *App) DeleteRule(ctx context.Context, id string) error {
	var err error
	a.do(func() {
		for i, cur := range a.rules {
			if cur.ID != id {
				continue
			}
			a.rules = append(a.rules[:i], a.rules[i+1:]...)
			err = a.persistRules(ctx)
			return
		}
		err = ErrNotFound
	})
	return err
}

// Rules returns a copied snapshot.
func (a *App) Rules() []*model.AutomationRule {
	var out []*model.AutomationRule
	a.do(func() {
		out = make([]*model.AutomationRule, len(a.rules))
		for i, r := range a.rules {
			cp := *r
			out[i] = &cp
		}
	})
	return out
}

// RefreshOccurrences re-runs the materializer on demand and reports
// whether any occurrence was added.
func (a *App) RefreshOccurrences(ctx context.Context) bool {
	var added bool
	a.do(func() { added = a.materializeLocked(ctx) })
	return added
}

func (a *App) persistEvents(ctx context.Context) error {
	if a.st == nil {
		return nil
	}
	return a.st.SaveEvents(ctx, a.events)
}

func (a *App) persistRules(ctx context.Context) error {
	if a.st == nil {
		return nil
	}
	return a.st.SaveRules(ctx, a.rules)
}
