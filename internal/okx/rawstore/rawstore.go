package rawstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Store appends raw WebSocket frames to per-day JSONL files, one file per
// instrument and channel:
//
//	<dir>/trades/BTC-USDT_trades_2026-08-31.jsonl
//
// Non-trade channels land under <dir>/other.
type Store struct {
	baseDir string
	mu      sync.Mutex
}

// NewStore creates the directory layout under baseDir and prunes files older
// than retentionDays. retentionDays <= 0 keeps everything.
func NewStore(baseDir string, retentionDays int) (*Store, error) {
	for _, sub := range []string{"trades", "other"} {
		if err := os.MkdirAll(filepath.Join(baseDir, sub), 0755); err != nil {
			return nil, fmt.Errorf("create raw data dir: %w", err)
		}
	}
	s := &Store{baseDir: baseDir}
	if retentionDays > 0 {
		s.Prune(retentionDays)
	}
	return s, nil
}

// Prune removes JSONL files dated more than retentionDays days ago and
// returns how many were removed. The day is taken from the file name suffix;
// files that do not follow the naming scheme are left alone.
func (s *Store) Prune(retentionDays int) int {
	cutoff := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -retentionDays)

	removed := 0
	for _, sub := range []string{"trades", "other"} {
		matches, err := filepath.Glob(filepath.Join(s.baseDir, sub, "*.jsonl"))
		if err != nil {
			continue
		}
		for _, path := range matches {
			day, ok := fileDate(path)
			if !ok || !day.Before(cutoff) {
				continue
			}
			if os.Remove(path) == nil {
				removed++
			}
		}
	}
	return removed
}

// fileDate extracts the YYYY-MM-DD suffix from a raw data file name.
func fileDate(path string) (time.Time, bool) {
	name := strings.TrimSuffix(filepath.Base(path), ".jsonl")
	i := strings.LastIndex(name, "_")
	if i < 0 {
		return time.Time{}, false
	}
	day, err := time.Parse("2006-01-02", name[i+1:])
	if err != nil {
		return time.Time{}, false
	}
	return day, true
}

// Append writes one raw frame as a JSONL line.
func (s *Store) Append(channel, instID string, raw []byte) error {
	sub := "other"
	if channel == "trades" {
		sub = "trades"
	}
	if instID == "" {
		instID = "unknown"
	}
	if channel == "" {
		channel = "unknown"
	}

	name := fmt.Sprintf("%s_%s_%s.jsonl", instID, channel, time.Now().UTC().Format("2006-01-02"))
	path := filepath.Join(s.baseDir, sub, name)

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open raw file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(raw, '\n')); err != nil {
		return fmt.Errorf("append raw frame: %w", err)
	}
	return nil
}
