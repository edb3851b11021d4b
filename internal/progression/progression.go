package progression

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	xlogger "TradePilot/pkg/logger"
)

// Level is one rung of the unlock ladder. Reaching Threshold USD of
// total balance unlocks the listed assets permanently.
type Level struct {
	Number    int      `json:"level"`
	Threshold float64  `json:"threshold"`
	Unlocks   []string `json:"unlocks"`
}

// DefaultLadder starts with BTC only and unlocks one asset per level.
func DefaultLadder() []Level {
	return []Level{
		{Number: 1, Threshold: 0, Unlocks: []string{"BTC"}},
		{Number: 2, Threshold: 85, Unlocks: []string{"ETH"}},
		{Number: 3, Threshold: 120, Unlocks: []string{"SOL"}},
		{Number: 4, Threshold: 180, Unlocks: []string{"XRP"}},
		{Number: 5, Threshold: 270, Unlocks: []string{"ADA"}},
		{Number: 6, Threshold: 400, Unlocks: []string{"DOGE"}},
		{Number: 7, Threshold: 600, Unlocks: []string{"AVAX"}},
		{Number: 8, Threshold: 1000, Unlocks: []string{"LINK"}},
		{Number: 9, Threshold: 2000, Unlocks: []string{"DOT"}},
	}
}

// state is the persisted slice of the tracker.
type state struct {
	Level       int     `json:"level"`
	PeakBalance float64 `json:"peak_balance"`
}

// Progress is the externally visible snapshot.
type Progress struct {
	Level         int      `json:"level"`
	PeakBalance   float64  `json:"peak_balance"`
	Unlocked      []string `json:"unlocked"`
	NextThreshold float64  `json:"next_threshold,omitempty"`
	NextUnlocks   []string `json:"next_unlocks,omitempty"`
}

// Tracker maintains the gamified unlock ladder. The level is a high-water
// mark: a drawdown never re-locks an asset.
type Tracker struct {
	mu     sync.Mutex
	ladder []Level
	st     state
	path   string
	logger *xlogger.Logger
}

// New loads the tracker state from path, starting at level 1 when the
// file does not exist yet. A corrupt file is a hard error so a damaged
// ladder never silently resets progress.
func New(path string, ladder []Level, logger *xlogger.Logger) (*Tracker, error) {
	if len(ladder) == 0 {
		ladder = DefaultLadder()
	}
	sort.SliceStable(ladder, func(i, j int) bool { return ladder[i].Threshold < ladder[j].Threshold })

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create progression state dir: %w", err)
	}

	t := &Tracker{
		ladder: ladder,
		st:     state{Level: 1},
		path:   path,
		logger: logger,
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return t, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read progression state: %w", err)
	}
	if err := json.Unmarshal(data, &t.st); err != nil {
		return nil, fmt.Errorf("parse progression state %s: %w", path, err)
	}
	if t.st.Level < 1 {
		t.st.Level = 1
	}
	return t, nil
}

// CanTrade reports whether the asset is unlocked at the current level.
func (t *Tracker) CanTrade(asset string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, lv := range t.ladder[:t.levelIndex()+1] {
		for _, a := range lv.Unlocks {
			if a == asset {
				return true
			}
		}
	}
	return false
}

// UpdateBalance advances the ladder against a new total balance and
// persists the state. Returns the assets unlocked by this update, if any.
func (t *Tracker) UpdateBalance(ctx context.Context, balanceUSD float64) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if balanceUSD > t.st.PeakBalance {
		t.st.PeakBalance = balanceUSD
	}

	var unlocked []string
	for i := t.levelIndex() + 1; i < len(t.ladder); i++ {
		if t.st.PeakBalance < t.ladder[i].Threshold {
			break
		}
		t.st.Level = t.ladder[i].Number
		unlocked = append(unlocked, t.ladder[i].Unlocks...)
	}

	if err := t.save(); err != nil {
		return nil, err
	}
	if len(unlocked) > 0 {
		t.logger.Info("level up",
			xlogger.Int("level", t.st.Level),
			xlogger.Strings("unlocked", unlocked),
			xlogger.Float64("balance", balanceUSD))
	}
	return unlocked, nil
}

// Snapshot returns the current progress view.
func (t *Tracker) Snapshot() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.levelIndex()
	p := Progress{
		Level:       t.st.Level,
		PeakBalance: t.st.PeakBalance,
	}
	for _, lv := range t.ladder[:idx+1] {
		p.Unlocked = append(p.Unlocked, lv.Unlocks...)
	}
	if idx+1 < len(t.ladder) {
		p.NextThreshold = t.ladder[idx+1].Threshold
		p.NextUnlocks = t.ladder[idx+1].Unlocks
	}
	return p
}

// levelIndex maps the stored level number to its ladder index. Caller
// holds the mutex.
func (t *Tracker) levelIndex() int {
	for i, lv := range t.ladder {
		if lv.Number == t.st.Level {
			return i
		}
	}
	return 0
}

// save writes the state atomically via a temp file rename.
func (t *Tracker) save() error {
	data, err := json.MarshalIndent(t.st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal progression state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(t.path), ".progression-*")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp state: %w", err)
	}
	if err := os.Rename(tmp.Name(), t.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
