//go:build sqlite
// +build sqlite

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"groupmgr/internal/model"
	logx "groupmgr/pkg/logx"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id   TEXT PRIMARY KEY,
	data TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS rules (
	id   TEXT PRIMARY KEY,
	data TEXT NOT NULL
);
`

// sqliteStore keeps each collection as JSON rows keyed by id. The core
// never queries inside a record, so a blob column keeps the schema stable
// across model changes.
type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) LoadEvents(ctx context.Context) ([]*model.Event, error) {
	rows, err := s.queryData(ctx, "events")
	if err != nil {
		return nil, err
	}
	events := make([]*model.Event, 0, len(rows))
	for _, raw := range rows {
		var ev model.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			s.log.Warn("skipping undecodable event row", logx.Err(err))
			continue
		}
		ev.Normalize()
		events = append(events, &ev)
	}
	return events, nil
}

func (s *sqliteStore) SaveEvents(ctx context.Context, events []*model.Event) error {
	return s.replaceAll(ctx, "events", func(put func(id string, v any) error) error {
		for _, ev := range events {
			if err := put(ev.ID, ev); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *sqliteStore) LoadRules(ctx context.Context) ([]*model.AutomationRule, error) {
	rows, err := s.queryData(ctx, "rules")
	if err != nil {
		return nil, err
	}
	rules := make([]*model.AutomationRule, 0, len(rows))
	for _, raw := range rows {
		var r model.AutomationRule
		if err := json.Unmarshal(raw, &r); err != nil {
			s.log.Warn("skipping undecodable rule row", logx.Err(err))
			continue
		}
		r.Normalize()
		rules = append(rules, &r)
	}
	return rules, nil
}

func (s *sqliteStore) SaveRules(ctx context.Context, rules []*model.AutomationRule) error {
	return s.replaceAll(ctx, "rules", func(put func(id string, v any) error) error {
		for _, r := range rules {
			if err := put(r.ID, r); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *sqliteStore) queryData(ctx context.Context, table string) ([][]byte, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx, "SELECT data FROM "+table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, rows.Err()
}

// replaceAll rewrites a table inside one transaction: either the whole new
// snapshot lands or none of it does.
func (s *sqliteStore) replaceAll(ctx context.Context, table string, fill func(put func(id string, v any) error) error) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO "+table+"(id, data) VALUES(?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	put := func(id string, v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		_, err = stmt.ExecContext(ctx, id, string(b))
		return err
	}
	if err := fill(put); err != nil {
		return err
	}
	return tx.Commit()
}
