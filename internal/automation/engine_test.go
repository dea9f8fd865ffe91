package automation

import (
	"context"
	"errors"
	"testing"
	"time"

	"groupmgr/internal/model"
	"groupmgr/pkg/logx"
)

type postCall struct {
	groupID, title, body, imageID string
}

type fakeExecutor struct {
	posts    []postCall
	postErr  error
	panicMsg string

	notifies  [][2]string
	notifyOK  bool
	notifyOKd bool // when false, notifyOK defaults to true
}

func (f *fakeExecutor) CreateGroupPost(ctx context.Context, groupID, title, body, imageID string) error {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.postErr != nil {
		return f.postErr
	}
	f.posts = append(f.posts, postCall{groupID, title, body, imageID})
	return nil
}

func (f *fakeExecutor) SendNotification(ctx context.Context, title, body string) bool {
	f.notifies = append(f.notifies, [2]string{title, body})
	if !f.notifyOKd {
		return true
	}
	return f.notifyOK
}

type fakeSaver struct {
	saves int
	err   error
}

func (f *fakeSaver) SaveEvents(ctx context.Context, events []*model.Event) error {
	f.saves++
	return f.err
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestEngine(exec *fakeExecutor, save *fakeSaver, now time.Time) *Engine {
	return NewEngine(exec, save, fixedClock(now), time.Second, logx.Nop())
}

func testEvent(start, end time.Time) *model.Event {
	return &model.Event{
		ID:        "ev1",
		Name:      "Game Night",
		GroupID:   "grp_1",
		StartTime: start,
		EndTime:   end,
	}
}

func notifyRule() *model.AutomationRule {
	return &model.AutomationRule{
		ID:            "rule1",
		Name:          "announce",
		Enabled:       true,
		Trigger:       model.TriggerBeforeEventStart,
		Offset:        model.Duration(30 * time.Minute),
		TitleTemplate: "{EventName} starting soon",
		BodyTemplate:  "{EventName} at {StartTime}",
		Notify:        true,
	}
}

func TestFiresExactlyOnce(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	// Window open (20min < 30min offset), event not started yet.
	ev := testEvent(now.Add(20*time.Minute), now.Add(80*time.Minute))
	rule := notifyRule()

	exec := &fakeExecutor{}
	save := &fakeSaver{}
	eng := newTestEngine(exec, save, now)

	rep := eng.Tick(context.Background(), []*model.AutomationRule{rule}, []*model.Event{ev})
	if rep.Fired != 1 {
		t.Fatalf("Fired = %d, want 1", rep.Fired)
	}
	if !rep.Modified {
		t.Fatal("expected Modified")
	}
	if len(exec.notifies) != 1 {
		t.Fatalf("notifications = %d, want 1", len(exec.notifies))
	}
	if got := exec.notifies[0][0]; got != "Game Night starting soon" {
		t.Fatalf("rendered title = %q", got)
	}
	if !ev.HasExecuted("rule1") {
		t.Fatal("event not marked executed")
	}

	// Re-running N times must not fire again.
	for i := 0; i < 3; i++ {
		rep = eng.Tick(context.Background(), []*model.AutomationRule{rule}, []*model.Event{ev})
		if rep.Fired != 0 {
			t.Fatalf("tick %d: Fired = %d, want 0", i, rep.Fired)
		}
	}
	if len(exec.notifies) != 1 {
		t.Fatalf("notifications after re-runs = %d, want 1", len(exec.notifies))
	}
	if got := len(ev.ExecutedRuleIDs); got != 1 {
		t.Fatalf("ExecutedRuleIDs len = %d, want 1", got)
	}
}

func TestBeforeStartWindowEdges(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rule := notifyRule()

	tests := []struct {
		name      string
		start     time.Time
		wantFired bool
	}{
		{name: "window not open yet", start: now.Add(2 * time.Hour), wantFired: false},
		{name: "window open", start: now.Add(10 * time.Minute), wantFired: true},
		{name: "event already started", start: now.Add(-time.Minute), wantFired: false},
		{name: "event starts exactly now", start: now, wantFired: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := testEvent(tt.start, tt.start.Add(time.Hour))
			exec := &fakeExecutor{}
			eng := newTestEngine(exec, &fakeSaver{}, now)

			rep := eng.Tick(context.Background(), []*model.AutomationRule{rule}, []*model.Event{ev})
			if fired := rep.Fired == 1; fired != tt.wantFired {
				t.Fatalf("fired = %v, want %v", fired, tt.wantFired)
			}
		})
	}
}

func TestAfterEndHasNoUpperBound(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rule := notifyRule()
	rule.Trigger = model.TriggerAfterEventEnd
	rule.Offset = model.Duration(15 * time.Minute)

	// Event ended three days ago: still fires (no upper bound).
	ev := testEvent(now.AddDate(0, 0, -3), now.AddDate(0, 0, -3).Add(time.Hour))
	exec := &fakeExecutor{}
	eng := newTestEngine(exec, &fakeSaver{}, now)

	rep := eng.Tick(context.Background(), []*model.AutomationRule{rule}, []*model.Event{ev})
	if rep.Fired != 1 {
		t.Fatalf("Fired = %d, want 1", rep.Fired)
	}

	// Not yet past end+offset: skipped.
	ev2 := testEvent(now.Add(-time.Hour), now.Add(-10*time.Minute))
	rep = eng.Tick(context.Background(), []*model.AutomationRule{rule}, []*model.Event{ev2})
	if rep.Fired != 0 {
		t.Fatalf("Fired = %d, want 0 (offset window not reached)", rep.Fired)
	}
}

func TestGroupFilter(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rule := notifyRule()
	rule.FilterGroupID = "grp_other"

	ev := testEvent(now.Add(10*time.Minute), now.Add(time.Hour))
	exec := &fakeExecutor{}
	eng := newTestEngine(exec, &fakeSaver{}, now)

	rep := eng.Tick(context.Background(), []*model.AutomationRule{rule}, []*model.Event{ev})
	if rep.Fired != 0 || len(exec.notifies) != 0 {
		t.Fatal("rule should not fire for a filtered-out group")
	}

	rule.FilterGroupID = "grp_1"
	rep = eng.Tick(context.Background(), []*model.AutomationRule{rule}, []*model.Event{ev})
	if rep.Fired != 1 {
		t.Fatalf("Fired = %d, want 1 for matching group", rep.Fired)
	}
}

func TestPostFaultDefersThenRetries(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rule := notifyRule()
	rule.PostToGroup = true

	ev := testEvent(now.Add(10*time.Minute), now.Add(time.Hour))
	exec := &fakeExecutor{postErr: errors.New("api down")}
	save := &fakeSaver{}
	eng := newTestEngine(exec, save, now)

	rep := eng.Tick(context.Background(), []*model.AutomationRule{rule}, []*model.Event{ev})
	if rep.Deferred != 1 || rep.Fired != 0 {
		t.Fatalf("got fired=%d deferred=%d, want 0/1", rep.Fired, rep.Deferred)
	}
	if ev.HasExecuted("rule1") {
		t.Fatal("deferred pair must stay unmarked")
	}
	if save.saves != 0 {
		t.Fatalf("saves = %d, want 0 (nothing modified)", save.saves)
	}

	// Next tick the API recovered: the same pair fires once.
	exec.postErr = nil
	rep = eng.Tick(context.Background(), []*model.AutomationRule{rule}, []*model.Event{ev})
	if rep.Fired != 1 {
		t.Fatalf("Fired = %d, want 1 after recovery", rep.Fired)
	}
	if len(exec.posts) != 1 {
		t.Fatalf("posts = %d, want 1", len(exec.posts))
	}
	if !ev.HasExecuted("rule1") {
		t.Fatal("event should be marked after successful retry")
	}
	if save.saves != 1 {
		t.Fatalf("saves = %d, want 1", save.saves)
	}
}

func TestExecutorPanicIsContained(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rule := notifyRule()
	rule.PostToGroup = true

	evBroken := testEvent(now.Add(10*time.Minute), now.Add(time.Hour))
	evOK := testEvent(now.Add(15*time.Minute), now.Add(2*time.Hour))
	evOK.ID = "ev2"
	evOK.GroupID = ""
	evOK.Name = "Movie Night"

	exec := &fakeExecutor{panicMsg: "boom"}
	eng := newTestEngine(exec, &fakeSaver{}, now)

	// evBroken's post panics; evOK has no group so it skips the post
	// step and still fires. The scan must survive the panic.
	rep := eng.Tick(context.Background(), []*model.AutomationRule{rule},
		[]*model.Event{evBroken, evOK})
	if rep.Deferred != 1 {
		t.Fatalf("Deferred = %d, want 1", rep.Deferred)
	}
	if rep.Fired != 1 {
		t.Fatalf("Fired = %d, want 1 (other pair must still be evaluated)", rep.Fired)
	}
	if evBroken.HasExecuted("rule1") {
		t.Fatal("panicking pair must stay unmarked")
	}
	if !evOK.HasExecuted("rule1") {
		t.Fatal("healthy pair should have fired")
	}
}

func TestNotificationFailureStillMarks(t *testing.T) {
	// The notifier is non-throwing: a reported failure is logged but the
	// pair is marked executed anyway (long-standing behavior; a flaky
	// notifier must not cause repeated group posts).
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rule := notifyRule()

	ev := testEvent(now.Add(10*time.Minute), now.Add(time.Hour))
	exec := &fakeExecutor{notifyOKd: true, notifyOK: false}
	eng := newTestEngine(exec, &fakeSaver{}, now)

	rep := eng.Tick(context.Background(), []*model.AutomationRule{rule}, []*model.Event{ev})
	if rep.Fired != 1 {
		t.Fatalf("Fired = %d, want 1", rep.Fired)
	}
	if !ev.HasExecuted("rule1") {
		t.Fatal("event must be marked despite failed notification")
	}
}

func TestEmptyPayloadSkipsNotification(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rule := notifyRule()
	rule.TitleTemplate = ""
	rule.BodyTemplate = ""
	rule.PostToGroup = true

	ev := testEvent(now.Add(10*time.Minute), now.Add(time.Hour))
	exec := &fakeExecutor{}
	eng := newTestEngine(exec, &fakeSaver{}, now)

	rep := eng.Tick(context.Background(), []*model.AutomationRule{rule}, []*model.Event{ev})
	if rep.Fired != 1 {
		t.Fatalf("Fired = %d, want 1", rep.Fired)
	}
	if len(exec.notifies) != 0 {
		t.Fatalf("notifications = %d, want 0 for empty payload", len(exec.notifies))
	}
	if len(exec.posts) != 1 {
		t.Fatalf("posts = %d, want 1", len(exec.posts))
	}
	if !ev.HasExecuted("rule1") {
		t.Fatal("event must still be marked")
	}
}

func TestSingleFlushPerTick(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r1 := notifyRule()
	r2 := notifyRule()
	r2.ID = "rule2"

	ev1 := testEvent(now.Add(10*time.Minute), now.Add(time.Hour))
	ev2 := testEvent(now.Add(20*time.Minute), now.Add(2*time.Hour))
	ev2.ID = "ev2"

	exec := &fakeExecutor{}
	save := &fakeSaver{}
	eng := newTestEngine(exec, save, now)

	rep := eng.Tick(context.Background(),
		[]*model.AutomationRule{r1, r2}, []*model.Event{ev1, ev2})
	if rep.Fired != 4 {
		t.Fatalf("Fired = %d, want 4", rep.Fired)
	}
	if save.saves != 1 {
		t.Fatalf("saves = %d, want exactly 1 flush per tick", save.saves)
	}
}

func TestDisabledRuleIsIgnored(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rule := notifyRule()
	rule.Enabled = false

	ev := testEvent(now.Add(10*time.Minute), now.Add(time.Hour))
	exec := &fakeExecutor{}
	eng := newTestEngine(exec, &fakeSaver{}, now)

	rep := eng.Tick(context.Background(), []*model.AutomationRule{rule}, []*model.Event{ev})
	if rep.Fired != 0 || rep.Skipped != 0 || rep.Deferred != 0 {
		t.Fatalf("disabled rule produced outcomes: %+v", rep)
	}
}

func TestSaveFailureIsReportedAndRetriedNextTick(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rule := notifyRule()

	ev := testEvent(now.Add(10*time.Minute), now.Add(time.Hour))
	exec := &fakeExecutor{}
	save := &fakeSaver{err: errors.New("disk full")}
	eng := newTestEngine(exec, save, now)

	rep := eng.Tick(context.Background(), []*model.AutomationRule{rule}, []*model.Event{ev})
	if rep.SaveErr == nil {
		t.Fatal("expected SaveErr")
	}
	// The marker is in memory; the pair does not re-fire, and the next
	// modification flushes again.
	if !ev.HasExecuted("rule1") {
		t.Fatal("marker should persist in memory across a failed flush")
	}
}
