package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"groupmgr/internal/model"
	logx "groupmgr/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.events.json
//   - <prefix>.rules.json
//
// Writes go through a temp file + rename so a crash mid-save never leaves
// a torn snapshot behind.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	eventsPath string
	rulesPath  string
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("store.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	return &fileStore{
		log:        log,
		eventsPath: prefix + ".events.json",
		rulesPath:  prefix + ".rules.json",
	}, nil
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) LoadEvents(ctx context.Context) ([]*model.Event, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	var events []*model.Event
	if err := readJSON(s.eventsPath, &events); err != nil {
		return nil, err
	}
	for _, ev := range events {
		ev.Normalize()
	}
	return events, nil
}

func (s *fileStore) SaveEvents(ctx context.Context, events []*model.Event) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if events == nil {
		events = []*model.Event{}
	}
	return writeJSONAtomic(s.eventsPath, events)
}

func (s *fileStore) LoadRules(ctx context.Context) ([]*model.AutomationRule, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	var rules []*model.AutomationRule
	if err := readJSON(s.rulesPath, &rules); err != nil {
		return nil, err
	}
	for _, r := range rules {
		r.Normalize()
	}
	return rules, nil
}

func (s *fileStore) SaveRules(ctx context.Context, rules []*model.AutomationRule) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if rules == nil {
		rules = []*model.AutomationRule{}
	}
	return writeJSONAtomic(s.rulesPath, rules)
}

// readJSON decodes path into out; a missing file is an empty collection.
func readJSON(path string, out any) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()
	return json.NewDecoder(f).Decode(out)
}

func writeJSONAtomic(path string, v any) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
