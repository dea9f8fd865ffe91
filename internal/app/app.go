package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"

	"groupmgr/internal/automation"
	"groupmgr/internal/config"
	"groupmgr/internal/groupapi"
	"groupmgr/internal/model"
	"groupmgr/internal/notify"
	"groupmgr/internal/store"
	logx "groupmgr/pkg/logx"
)

// App owns the event and automation-rule collections and everything that
// mutates them.
//
// Concurrency model: one writer goroutine drains a command queue. Engine
// ticks, materializer runs, and operator CRUD all execute as commands on
// that goroutine, so the shared collections are never mutated
// concurrently. Readers get cloned snapshots.
type App struct {
	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger

	st store.Store // nil when persistence is disabled
	tg *notify.Service

	engine *automation.Engine
	mat    *automation.Materializer

	now func() time.Time

	// Owned by the writer goroutine after Start.
	events []*model.Event
	rules  []*model.AutomationRule

	cmds chan func()

	c        *cron.Cron
	tickID   cron.EntryID
	interval time.Duration
	// tickBusy makes overlapping ticks impossible even if a scan outlives
	// the interval: the cron callback just skips.
	tickBusy atomic.Bool

	runMu     sync.Mutex
	runCancel context.CancelFunc
	wg        sync.WaitGroup
	running   bool
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(cfg.LogxConfig())
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	a := &App{
		cfgm: cfgm,
		logs: logs,
		log:  log,
		now:  time.Now,
		cmds: make(chan func(), 64),
	}
	if err := a.build(cfg); err != nil {
		logs.Close()
		return nil, err
	}
	return a, nil
}

// build constructs the collaborators for a config snapshot. It is called
// once from New and again (on the writer goroutine) on config reload.
func (a *App) build(cfg *config.Config) error {
	stCfg, err := cfg.StoreConfig()
	if err != nil {
		return err
	}
	if a.st == nil {
		st, err := store.Open(stCfg, a.log.With(logx.String("comp", "store")))
		if err != nil {
			return err
		}
		a.st = st
	}

	var api *groupapi.Client
	if apiCfg, ok, err := cfg.GroupAPIConfig(); err != nil {
		return err
	} else if ok {
		api, err = groupapi.New(apiCfg, a.log.With(logx.String("comp", "groupapi")))
		if err != nil {
			return err
		}
	}

	tg, err := notify.New(cfg.NotifyConfig(), a.log.With(logx.String("comp", "notify")))
	if err != nil {
		return err
	}
	a.tg = tg

	actionTimeout, err := cfg.ActionTimeout()
	if err != nil {
		return err
	}
	interval, err := cfg.TickInterval()
	if err != nil {
		return err
	}
	a.interval = interval

	exec := &actionExecutor{api: api, tg: tg}
	a.engine = automation.NewEngine(exec, a.st, a.now, actionTimeout,
		a.log.With(logx.String("comp", "engine")))
	a.mat = automation.NewMaterializer(a.now, cfg.HorizonDays(),
		a.log.With(logx.String("comp", "materializer")))
	return nil
}

func (a *App) Start(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.running {
		return nil
	}

	if err := a.loadState(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.runCancel = cancel
	a.running = true

	// Writer goroutine: the only place events/rules are touched.
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-runCtx.Done():
				return
			case fn := <-a.cmds:
				fn()
			}
		}
	}()

	// Startup materialization, then persist if anything was added.
	a.do(func() { a.materializeLocked(runCtx) })

	// Automation tick.
	a.c = cron.New()
	id, err := a.c.AddFunc("@every "+a.interval.String(), func() { a.enqueueTick(runCtx) })
	if err != nil {
		cancel()
		a.running = false
		return err
	}
	a.tickID = id
	a.c.Start()

	// Config hot reload.
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		_ = a.cfgm.Watch(runCtx)
	}()
	sub := a.cfgm.Subscribe(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-runCtx.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(cfg)
			}
		}
	}()

	a.notifySystemd(runCtx)
	a.log.Info("app started",
		logx.Duration("tick_interval", a.interval),
		logx.Int("events", len(a.events)),
		logx.Int("rules", len(a.rules)))
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	a.runMu.Lock()
	if !a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = false
	cancel := a.runCancel
	a.runCancel = nil
	c := a.c
	a.c = nil
	a.runMu.Unlock()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	// Let an in-flight tick finish before tearing down the writer loop:
	// either a firing completes and is persisted, or it never marked.
	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	if a.st != nil {
		_ = a.st.Close()
	}
	_ = a.logs.Close()
	return nil
}

func (a *App) loadState(ctx context.Context) error {
	if a.st == nil {
		a.events = []*model.Event{}
		a.rules = []*model.AutomationRule{}
		return nil
	}
	events, err := a.st.LoadEvents(ctx)
	if err != nil {
		return err
	}
	rules, err := a.st.LoadRules(ctx)
	if err != nil {
		return err
	}
	if events == nil {
		events = []*model.Event{}
	}
	if rules == nil {
		rules = []*model.AutomationRule{}
	}
	a.events = events
	a.rules = rules
	return nil
}

// do runs fn on the writer goroutine and waits for it to finish.
func (a *App) do(fn func()) {
	done := make(chan struct{})
	a.cmds <- func() {
		defer close(done)
		fn()
	}
	<-done
}

func (a *App) enqueueTick(ctx context.Context) {
	// Serialize ticks: skip when the previous scan is still in flight.
	if !a.tickBusy.CompareAndSwap(false, true) {
		a.log.Warn("tick skipped; previous scan still running")
		return
	}
	select {
	case a.cmds <- func() {
		defer a.tickBusy.Store(false)
		rep := a.engine.Tick(ctx, a.rules, a.events)
		if rep.Fired > 0 || rep.Deferred > 0 {
			a.log.Debug("tick done",
				logx.Int("fired", rep.Fired),
				logx.Int("deferred", rep.Deferred),
				logx.Int("skipped", rep.Skipped))
		}
	}:
	default:
		a.tickBusy.Store(false)
		a.log.Warn("tick dropped; command queue full")
	}
}

// materializeLocked runs on the writer goroutine.
func (a *App) materializeLocked(ctx context.Context) bool {
	events, added := a.mat.Run(a.events)
	a.events = events
	if added && a.st != nil {
		if err := a.st.SaveEvents(ctx, a.events); err != nil {
			a.log.Error("persisting materialized events failed", logx.Err(err))
		}
	}
	return added
}

// applyConfig reacts to a validated config reload.
func (a *App) applyConfig(cfg *config.Config) {
	a.logs.Apply(cfg.LogxConfig())

	a.do(func() {
		oldInterval := a.interval
		if err := a.build(cfg); err != nil {
			a.log.Error("config apply failed; keeping previous collaborators", logx.Err(err))
			return
		}
		if a.interval != oldInterval && a.c != nil {
			a.c.Remove(a.tickID)
			runCtx := context.Background()
			if id, err := a.c.AddFunc("@every "+a.interval.String(), func() { a.enqueueTick(runCtx) }); err == nil {
				a.tickID = id
			} else {
				a.log.Error("rescheduling tick failed", logx.Err(err))
			}
			a.log.Info("tick interval updated", logx.Duration("interval", a.interval))
		}
	})
}

// notifySystemd reports readiness and feeds the watchdog when running
// under systemd; it is a no-op elsewhere.
func (a *App) notifySystemd(ctx context.Context) {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	}()
}
