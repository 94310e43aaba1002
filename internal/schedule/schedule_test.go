package schedule_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/rosmirror/internal/events"
	"github.com/TheMichaelB/rosmirror/internal/schedule"
)

func newSchedule(t *testing.T) (*schedule.Schedule, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schedule.json")
	return schedule.Load(path, events.Discard()), path
}

// 2024-05-01 is a Wednesday.
func at(hour, minute int) time.Time {
	return time.Date(2024, 5, 1, hour, minute, 0, 0, time.UTC)
}

func TestShouldRunNowOncePerDay(t *testing.T) {
	s, _ := newSchedule(t)

	assert.False(t, s.ShouldRunNow(at(2, 59)))
	assert.True(t, s.ShouldRunNow(at(3, 0)))
	assert.False(t, s.ShouldRunNow(at(3, 1)), "second tick in the same window")
	assert.False(t, s.ShouldRunNow(at(3, 5)), "window end is exclusive")

	assert.True(t, s.ShouldRunNow(at(3, 2).AddDate(0, 0, 1)))
}

func TestShouldRunNowDays(t *testing.T) {
	s, _ := newSchedule(t)
	cfg := schedule.DefaultConfig()
	cfg.Days = []string{"Monday", "fri"}
	_, err := s.Update(cfg)
	require.NoError(t, err)

	assert.False(t, s.ShouldRunNow(at(3, 0)), "wednesday")
	assert.True(t, s.ShouldRunNow(at(3, 0).AddDate(0, 0, 2)), "friday")
}

func TestShouldRunNowAcrossMidnight(t *testing.T) {
	s, _ := newSchedule(t)
	cfg := schedule.DefaultConfig()
	cfg.Time = "23:58"
	cfg.WindowMinutes = 5
	_, err := s.Update(cfg)
	require.NoError(t, err)

	// The window opened Wednesday 23:58 and closes Thursday 00:03.
	assert.True(t, s.ShouldRunNow(at(0, 1).AddDate(0, 0, 1)), "after midnight, inside the window")
	assert.False(t, s.ShouldRunNow(at(0, 2).AddDate(0, 0, 1)), "same window already ran")
	assert.False(t, s.ShouldRunNow(at(0, 3).AddDate(0, 0, 1)), "window end is exclusive")

	assert.True(t, s.ShouldRunNow(at(23, 59).AddDate(0, 0, 1)), "thursday's own window")
}

func TestShouldRunNowAcrossMidnightRespectsDays(t *testing.T) {
	s, _ := newSchedule(t)
	cfg := schedule.DefaultConfig()
	cfg.Time = "23:58"
	cfg.WindowMinutes = 5
	cfg.Days = []string{"wed"}
	_, err := s.Update(cfg)
	require.NoError(t, err)

	assert.True(t, s.ShouldRunNow(at(0, 1).AddDate(0, 0, 1)), "window started on wednesday")
	assert.False(t, s.ShouldRunNow(at(0, 1).AddDate(0, 0, 2)), "window started on thursday")
}

func TestShouldRunNowTimezone(t *testing.T) {
	s, _ := newSchedule(t)
	cfg := schedule.DefaultConfig()
	cfg.Timezone = "Europe/Riga"
	cfg.Time = "06:00"
	_, err := s.Update(cfg)
	require.NoError(t, err)

	// Riga is UTC+3 in May
	assert.False(t, s.ShouldRunNow(at(6, 0)))
	assert.True(t, s.ShouldRunNow(at(3, 0)))
}

func TestPauseResume(t *testing.T) {
	s, path := newSchedule(t)

	require.NoError(t, s.Pause())
	assert.False(t, s.ShouldRunNow(at(3, 0)))
	assert.True(t, schedule.Load(path, events.Discard()).Config().Paused)

	require.NoError(t, s.Resume())
	assert.True(t, s.ShouldRunNow(at(3, 1)))
}

func TestLastRunSurvivesReload(t *testing.T) {
	s, path := newSchedule(t)
	require.True(t, s.ShouldRunNow(at(3, 0)))

	reloaded := schedule.Load(path, events.Discard())
	assert.False(t, reloaded.ShouldRunNow(at(3, 2)))
}

func TestUpdateValidation(t *testing.T) {
	s, _ := newSchedule(t)

	tests := []struct {
		name   string
		mutate func(*schedule.Config)
	}{
		{"bad time", func(c *schedule.Config) { c.Time = "25:00" }},
		{"bad timezone", func(c *schedule.Config) { c.Timezone = "Mars/Olympus" }},
		{"bad window", func(c *schedule.Config) { c.WindowMinutes = 0 }},
		{"bad day", func(c *schedule.Config) { c.Days = []string{"someday"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := schedule.DefaultConfig()
			tt.mutate(&cfg)
			_, err := s.Update(cfg)
			assert.ErrorIs(t, err, schedule.ErrInvalidSchedule)
		})
	}

	assert.Equal(t, "03:00", s.Config().Time)
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedule.json")
	require.NoError(t, os.WriteFile(path, []byte("[]"), 0644))

	s := schedule.Load(path, events.Discard())
	assert.Equal(t, schedule.DefaultConfig(), s.Config())
}

func TestNextRun(t *testing.T) {
	s, _ := newSchedule(t)

	assert.Equal(t, at(3, 0), s.NextRun(at(1, 0)))
	assert.Equal(t, at(3, 0).AddDate(0, 0, 1), s.NextRun(at(4, 0)))

	require.NoError(t, s.Pause())
	assert.True(t, s.NextRun(at(1, 0)).IsZero())
}
