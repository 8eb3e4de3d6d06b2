package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// HoursWatcher polls the hours file and hands every accepted version to apply.
type HoursWatcher struct {
	path     string
	interval time.Duration
	logger   zerolog.Logger
	apply    func(*HoursConfig) error

	seen fileStamp
}

type fileStamp struct {
	mod  time.Time
	size int64
}

func stampOf(info os.FileInfo) fileStamp {
	return fileStamp{mod: info.ModTime(), size: info.Size()}
}

// NewHoursWatcher creates a watcher for path (configs/hours.yaml when empty) polling
// every interval (30s when not positive).
func NewHoursWatcher(path string, interval time.Duration, logger *zerolog.Logger, apply func(*HoursConfig) error) *HoursWatcher {
	if path == "" {
		path = "configs/hours.yaml"
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	w := &HoursWatcher{path: path, interval: interval, logger: zerolog.Nop(), apply: apply}
	if logger != nil {
		w.logger = logger.With().Str("component", "hours_watcher").Str("path", path).Logger()
	}
	return w
}

// WatchHours applies the hours file once and keeps re-applying it in the background
// whenever it changes, until ctx is done. The first load must succeed.
func WatchHours(ctx context.Context, path string, interval time.Duration, logger *zerolog.Logger, onUpdate func(*HoursConfig) error) error {
	w := NewHoursWatcher(path, interval, logger, onUpdate)
	if err := w.Reload(); err != nil {
		return err
	}
	go w.Run(ctx)
	return nil
}

// Reload reads, validates and applies the file unconditionally.
func (w *HoursWatcher) Reload() error {
	info, err := os.Stat(w.path)
	if err != nil {
		return fmt.Errorf("stat hours config: %w", err)
	}
	cfg, err := LoadHours(w.path)
	if err != nil {
		return err
	}
	if err := w.apply(cfg); err != nil {
		return fmt.Errorf("apply hours config: %w", err)
	}
	w.seen = stampOf(info)
	return nil
}

// Run polls until ctx is done.
func (w *HoursWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

// poll reloads when the file's mtime or size moved. A rejected file is remembered so
// the same broken content is reported once; the previous hours stay in force.
func (w *HoursWatcher) poll() {
	info, err := os.Stat(w.path)
	if err != nil {
		w.logger.Debug().Err(err).Msg("hours file not readable")
		return
	}
	stamp := stampOf(info)
	if stamp == w.seen {
		return
	}

	cfg, err := LoadHours(w.path)
	if err != nil {
		w.seen = stamp
		w.logger.Warn().Err(err).Msg("hours file rejected, keeping previous hours")
		return
	}
	if err := w.apply(cfg); err != nil {
		// Not remembered: the next tick retries the same file.
		w.logger.Error().Err(err).Msg("apply hours")
		return
	}
	w.seen = stamp
	w.logger.Info().Str("hours", cfg.String()).Msg("hours reloaded")
}
