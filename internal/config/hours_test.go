package config

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"salonsched/internal/timeutil"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hoursYAML = `
business_hours:
  - branch_id: br-1
    days:
      - {day: mon, open: "09:00", close: "18:00"}
      - {day: tue, open: "09:00", close: "18:00"}
      - {day: sun, closed: true}
staff_shifts:
  - staff_id: staff-7
    days:
      - day: mon
        start: "10:00"
        end: "16:00"
        breaks:
          - {start: "13:00", end: "13:30"}
      - {day: tue, off: true}
`

func TestLoadHours(t *testing.T) {
	cfg, err := LoadHours(writeFile(t, "hours.yaml", hoursYAML))
	require.NoError(t, err)

	require.Len(t, cfg.BusinessHours, 1)
	mon, open := cfg.BusinessHours[0].For(timeutil.Monday)
	assert.True(t, open)
	assert.Equal(t, "09:00", mon.Open.String())
	_, open = cfg.BusinessHours[0].For(timeutil.Sunday)
	assert.False(t, open)

	require.Len(t, cfg.StaffShifts, 1)
	assert.Equal(t, "br-1", cfg.StaffShifts[0].BranchID, "single branch is the default")
	shift, ok := cfg.StaffShifts[0].For(timeutil.Monday)
	require.True(t, ok)
	require.Len(t, shift.Breaks, 1)
	assert.Equal(t, "13:30", shift.Breaks[0].End.String())
	assert.Equal(t, "HoursConfig: 1 branches, 1 staff shifts", cfg.String())
}

func TestLoadHours_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"close before open", "business_hours:\n  - branch_id: b\n    days:\n      - {day: mon, open: \"18:00\", close: \"09:00\"}\n", "business_hours[0]"},
		{"bad time", "business_hours:\n  - branch_id: b\n    days:\n      - {day: mon, open: \"24:00\", close: \"09:00\"}\n", "parse hours config"},
		{"duplicate branch", "business_hours:\n  - branch_id: b\n  - branch_id: b\n", "duplicate branch"},
		{"break outside shift", "staff_shifts:\n  - staff_id: s\n    days:\n      - {day: mon, start: \"10:00\", end: \"12:00\", breaks: [{start: \"11:30\", end: \"12:30\"}]}\n", "staff_shifts[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadHours(writeFile(t, "hours.yaml", tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestWatchHours(t *testing.T) {
	path := writeFile(t, "hours.yaml", hoursYAML)
	logger := zerolog.Nop()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu      sync.Mutex
		updates []*HoursConfig
	)
	err := WatchHours(ctx, path, 10*time.Millisecond, &logger, func(cfg *HoursConfig) error {
		mu.Lock()
		defer mu.Unlock()
		updates = append(updates, cfg)
		return nil
	})
	require.NoError(t, err)

	changed := hoursYAML + "  - staff_id: staff-8\n    days:\n      - {day: mon, start: \"09:00\", end: \"12:00\"}\n"
	require.NoError(t, os.WriteFile(path, []byte(changed), 0o644))
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(updates) == 2 && len(updates[1].StaffShifts) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestHoursWatcher_Poll(t *testing.T) {
	path := writeFile(t, "hours.yaml", hoursYAML)
	logger := zerolog.Nop()

	var (
		applied  []*HoursConfig
		applyErr error
	)
	w := NewHoursWatcher(path, time.Hour, &logger, func(cfg *HoursConfig) error {
		if applyErr != nil {
			return applyErr
		}
		applied = append(applied, cfg)
		return nil
	})
	require.NoError(t, w.Reload())
	require.Len(t, applied, 1)

	touch := func(body string, offset time.Duration) {
		t.Helper()
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		at := time.Now().Add(offset)
		require.NoError(t, os.Chtimes(path, at, at))
	}

	t.Run("Unchanged", func(t *testing.T) {
		w.poll()
		assert.Len(t, applied, 1)
	})

	t.Run("RejectedFileKeepsPreviousHours", func(t *testing.T) {
		touch("business_hours:\n  - branch_id: b\n  - branch_id: b\n", time.Minute)
		w.poll()
		w.poll()
		assert.Len(t, applied, 1)
	})

	t.Run("ApplyFailureRetried", func(t *testing.T) {
		touch(hoursYAML, 2*time.Minute)
		applyErr = assert.AnError
		w.poll()
		assert.Len(t, applied, 1)

		applyErr = nil
		w.poll()
		assert.Len(t, applied, 2)
	})

	t.Run("SizeChangeWithSameMtime", func(t *testing.T) {
		info, err := os.Stat(path)
		require.NoError(t, err)
		changed := hoursYAML + "  - staff_id: staff-8\n    days:\n      - {day: mon, start: \"09:00\", end: \"12:00\"}\n"
		require.NoError(t, os.WriteFile(path, []byte(changed), 0o644))
		require.NoError(t, os.Chtimes(path, info.ModTime(), info.ModTime()))

		w.poll()
		require.Len(t, applied, 3)
		assert.Len(t, applied[2].StaffShifts, 2)
	})
}
