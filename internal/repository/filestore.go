package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"TradePilot/internal/domain/models"
)

const (
	tradesFile   = "trades.json"
	patternsFile = "pattern_stats.json"
	contextsFile = "context_stats.json"
)

// FileStore keeps the trade ledger and both stat collections in JSON
// files under one directory. Every mutation rewrites the affected file
// through a temp-file rename, so a crash mid-write never leaves a
// half-written collection. A corrupt file at load is a hard error: the
// ledger is the source of truth and must not be silently reset.
type FileStore struct {
	mu  sync.Mutex
	dir string

	trades   []models.TradeRecord
	patterns map[string]models.PatternStat
	contexts map[string]models.ContextStat
}

// NewFileStore loads (or initializes) the collections under dir.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	s := &FileStore{
		dir:      dir,
		patterns: make(map[string]models.PatternStat),
		contexts: make(map[string]models.ContextStat),
	}
	if err := loadJSON(filepath.Join(dir, tradesFile), &s.trades); err != nil {
		return nil, err
	}

	var patterns []models.PatternStat
	if err := loadJSON(filepath.Join(dir, patternsFile), &patterns); err != nil {
		return nil, err
	}
	for _, p := range patterns {
		s.patterns[p.Name] = p
	}

	var contexts []models.ContextStat
	if err := loadJSON(filepath.Join(dir, contextsFile), &contexts); err != nil {
		return nil, err
	}
	for _, c := range contexts {
		s.contexts[c.Label] = c
	}
	return s, nil
}

func (s *FileStore) Append(_ context.Context, trade models.TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, trade)
	return s.saveTrades()
}

func (s *FileStore) Update(_ context.Context, trade models.TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.trades {
		if s.trades[i].EntryTime.Equal(trade.EntryTime) && s.trades[i].Asset == trade.Asset {
			s.trades[i] = trade
			return s.saveTrades()
		}
	}
	return fmt.Errorf("update trade: no entry at %s for %s", trade.EntryTime, trade.Asset)
}

func (s *FileStore) All(_ context.Context) ([]models.TradeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.TradeRecord, len(s.trades))
	copy(out, s.trades)
	return out, nil
}

func (s *FileStore) PatternStat(_ context.Context, name string) (models.PatternStat, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stat, ok := s.patterns[name]
	return stat, ok, nil
}

func (s *FileStore) PutPatternStat(_ context.Context, stat models.PatternStat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patterns[stat.Name] = stat
	var all []models.PatternStat
	for _, p := range s.patterns {
		all = append(all, p)
	}
	return saveJSON(filepath.Join(s.dir, patternsFile), all)
}

func (s *FileStore) AllPatternStats(_ context.Context) ([]models.PatternStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PatternStat
	for _, p := range s.patterns {
		out = append(out, p)
	}
	return out, nil
}

func (s *FileStore) ContextStat(_ context.Context, label string) (models.ContextStat, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stat, ok := s.contexts[label]
	return stat, ok, nil
}

func (s *FileStore) PutContextStat(_ context.Context, stat models.ContextStat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contexts[stat.Label] = stat
	var all []models.ContextStat
	for _, c := range s.contexts {
		all = append(all, c)
	}
	return saveJSON(filepath.Join(s.dir, contextsFile), all)
}

func (s *FileStore) AllContextStats(_ context.Context) ([]models.ContextStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ContextStat
	for _, c := range s.contexts {
		out = append(out, c)
	}
	return out, nil
}

// saveTrades persists the ledger. Caller holds the mutex.
func (s *FileStore) saveTrades() error {
	return saveJSON(filepath.Join(s.dir, tradesFile), s.trades)
}

func loadJSON(path string, dest interface{}) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func saveJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".store-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
