package automation

import (
	"context"
	"fmt"
	"time"

	"groupmgr/internal/model"
	"groupmgr/pkg/logx"
)

// Executor performs the external actions of a firing.
//
// CreateGroupPost failures are faults: the pair is deferred and retried.
// SendNotification is non-throwing by contract — it reports success with a
// flag, and a false flag does NOT defer marking. That asymmetry matches the
// long-standing behavior operators depend on (a flaky notifier must not
// re-post to the group every tick).
type Executor interface {
	CreateGroupPost(ctx context.Context, groupID, title, body, imageID string) error
	SendNotification(ctx context.Context, title, body string) bool
}

// EventSaver is the persistence hook flushed at most once per tick.
type EventSaver interface {
	SaveEvents(ctx context.Context, events []*model.Event) error
}

// Engine evaluates automation rules against events on each tick.
//
// The engine is not internally synchronized: it expects to run on the
// single-writer path that owns the event and rule collections. Ticks must
// not overlap (the app serializes them).
type Engine struct {
	log  logx.Logger
	exec Executor
	save EventSaver

	now           func() time.Time
	actionTimeout time.Duration
}

func NewEngine(exec Executor, save EventSaver, now func() time.Time, actionTimeout time.Duration, log logx.Logger) *Engine {
	if now == nil {
		now = time.Now
	}
	if actionTimeout <= 0 {
		actionTimeout = 30 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{log: log, exec: exec, save: save, now: now, actionTimeout: actionTimeout}
}

// TickReport summarizes one scan.
type TickReport struct {
	Fired    int
	Deferred int
	Skipped  int

	// Modified reports whether any event gained an executed-rule marker.
	Modified bool

	// SaveErr is the flush failure, if any. Markers stay in memory and the
	// flush retries next tick; nothing was fired twice.
	SaveErr error
}

// Tick scans rules × events once. Each eligible pair is attempted at most
// once; one failing pair never aborts the rest of the scan. The store is
// flushed a single time, and only when something was marked.
func (e *Engine) Tick(ctx context.Context, rules []*model.AutomationRule, events []*model.Event) TickReport {
	var rep TickReport
	now := e.now().UTC()

	for _, rule := range rules {
		if rule == nil || !rule.Enabled {
			continue
		}
		for _, ev := range events {
			if ctx.Err() != nil {
				rep.SaveErr = e.flush(ctx, events, rep.Modified)
				return rep
			}
			res := e.attempt(ctx, rule, ev, now)
			switch res.Outcome {
			case OutcomeFired:
				rep.Fired++
				rep.Modified = true
				e.log.Info("automation fired",
					logx.String("rule", res.RuleID),
					logx.String("event", res.EventID),
					logx.String("event_name", ev.Name))
			case OutcomeDeferred:
				rep.Deferred++
				e.log.Warn("automation deferred",
					logx.String("rule", res.RuleID),
					logx.String("event", res.EventID),
					logx.String("reason", res.Reason),
					logx.Err(res.Err))
			default:
				rep.Skipped++
				if e.log.Enabled(logx.LevelTrace) {
					e.log.Trace("automation skipped",
						logx.String("rule", res.RuleID),
						logx.String("event", res.EventID),
						logx.String("reason", res.Reason))
				}
			}
		}
	}

	rep.SaveErr = e.flush(ctx, events, rep.Modified)
	if rep.SaveErr != nil {
		e.log.Error("event flush failed; retrying next tick", logx.Err(rep.SaveErr))
	}
	return rep
}

func (e *Engine) flush(ctx context.Context, events []*model.Event, modified bool) error {
	if !modified || e.save == nil {
		return nil
	}
	return e.save.SaveEvents(ctx, events)
}

// attempt evaluates and, when the window is open, executes one pair.
// The event is marked executed only after the action completed without a
// fault, so a crash or error leaves the pair retryable.
func (e *Engine) attempt(ctx context.Context, rule *model.AutomationRule, ev *model.Event, now time.Time) (res FireResult) {
	res = FireResult{RuleID: rule.ID, EventID: ev.ID, Outcome: OutcomeSkipped}

	// Sole idempotency guard; no time-based dedup beyond it.
	if ev.HasExecuted(rule.ID) {
		res.Reason = "already executed"
		return res
	}
	if rule.FilterGroupID != "" && rule.FilterGroupID != ev.GroupID {
		res.Reason = "group filter"
		return res
	}

	start := ev.StartTime.UTC()
	end := ev.EndTime.UTC()
	trigger := rule.TriggerInstant(start, end)

	switch rule.Trigger {
	case model.TriggerAfterEventEnd:
		if now.Before(trigger) {
			res.Reason = "window not open"
			return res
		}
	default: // before_event_start
		if now.Before(trigger) {
			res.Reason = "window not open"
			return res
		}
		// Never announce an event that is already underway or over.
		if !start.After(now) {
			res.Reason = "event already started"
			return res
		}
	}

	// A panicking executor counts as a thrown fault: defer, don't mark.
	defer func() {
		if r := recover(); r != nil {
			res.Outcome = OutcomeDeferred
			res.Reason = "action panic"
			res.Err = fmt.Errorf("panic: %v", r)
		}
	}()

	title := Render(rule.TitleTemplate, ev)
	body := Render(rule.BodyTemplate, ev)

	actx, cancel := context.WithTimeout(ctx, e.actionTimeout)
	defer cancel()

	if rule.PostToGroup && ev.GroupID != "" {
		if err := e.exec.CreateGroupPost(actx, ev.GroupID, title, body, ev.ImageID); err != nil {
			res.Outcome = OutcomeDeferred
			res.Reason = "group post failed"
			res.Err = err
			return res
		}
	}

	// Empty payload: skip the notification step entirely, still mark below.
	if rule.Notify && (title != "" || body != "") {
		if ok := e.exec.SendNotification(actx, title, body); !ok {
			// Reported failure, not a fault: log and proceed to mark.
			e.log.Warn("notification reported failure",
				logx.String("rule", rule.ID),
				logx.String("event", ev.ID))
		}
	}

	ev.MarkExecuted(rule.ID)
	res.Outcome = OutcomeFired
	return res
}
