package heartbeat

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Beat is the liveness record written after every completed scan cycle.
type Beat struct {
	LastScan time.Time `json:"last_scan"`
	Symbols  int       `json:"symbols"`
	Signals  int       `json:"signals"`
	Errors   int       `json:"errors"`
}

// Age returns how long ago the beat was taken.
func (b Beat) Age(now time.Time) time.Duration { return now.Sub(b.LastScan) }

// Stale reports whether the scanner should be considered down.
func (b Beat) Stale(now time.Time, after time.Duration) bool {
	return b.LastScan.IsZero() || b.Age(now) > after
}

// Load reads the heartbeat file. Returns a zero beat if the file doesn't exist.
func Load(path string) (Beat, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Beat{}, nil
		}
		return Beat{}, err
	}
	var b Beat
	if err := json.Unmarshal(data, &b); err != nil {
		return Beat{}, fmt.Errorf("parse heartbeat %s: %w", path, err)
	}
	return b, nil
}

// Write replaces the heartbeat file atomically.
func Write(path string, b Beat) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create heartbeat dir: %w", err)
		}
	}
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
