package store

import (
	"context"
	"errors"
	"time"

	"groupmgr/internal/model"
)

var ErrDisabled = errors.New("store disabled")

// Config configures persistence.
//
// Driver values:
//   - "file": dependency-free JSON snapshot files
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", persistence is disabled and the app runs
// purely in memory.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the persistence API for the event and rule collections.
//
// Save* always writes the full collection: the app is the single logical
// writer, so replace-all semantics keep the drivers trivial and crash-safe.
type Store interface {
	LoadEvents(ctx context.Context) ([]*model.Event, error)
	SaveEvents(ctx context.Context, events []*model.Event) error

	LoadRules(ctx context.Context) ([]*model.AutomationRule, error)
	SaveRules(ctx context.Context, rules []*model.AutomationRule) error

	Close() error
}
