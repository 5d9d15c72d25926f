package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	c := Defaults()

	assert.Equal(t, 25, c.PomodoroMinutes)
	assert.Equal(t, 5, c.BreakMinutes)
	assert.Equal(t, 60, c.MinSessionSeconds)
	assert.Equal(t, 80, c.FocusBonusThreshold)
	assert.Equal(t, 10, c.FocusBonusPoints)
	assert.Equal(t, []Milestone{{At: 30, Points: 5}, {At: 60, Points: 15}, {At: 120, Points: 30}}, c.DurationTiers)
	assert.Equal(t, []Milestone{{At: 3, Points: 15}, {At: 7, Points: 35}, {At: 30, Points: 150}}, c.StreakMilestones)
	assert.Equal(t, "mysql", c.DBDriver)
	assert.Equal(t, "@every 15m", c.StaleSweepSchedule)
}

func TestParseMilestones(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []Milestone
		wantErr bool
	}{
		{name: "sorted output", raw: "120:30, 30:5,60:15", want: []Milestone{{30, 5}, {60, 15}, {120, 30}}},
		{name: "single", raw: "3:10", want: []Milestone{{3, 10}}},
		{name: "missing colon", raw: "30", wantErr: true},
		{name: "bad number", raw: "x:5", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMilestones(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("POMODORO_MINUTES", "50")
	t.Setenv("REWARD_DURATION_TIERS", "30:30,60:45")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("LOG_COMPRESS", "true")

	c := Defaults()
	applyEnvOverrides(&c)

	assert.Equal(t, 50, c.PomodoroMinutes)
	assert.Equal(t, []Milestone{{30, 30}, {60, 45}}, c.DurationTiers)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, c.AllowedOrigins)
	assert.True(t, c.LogCompress)
}

func TestLoadJSONConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{
		"app": {"AppPort": "9090", "JWTSecret": "s3cret"},
		"database": {"Driver": "sqlite", "SQLitePath": "tmp/test.db"},
		"study": {"PomodoroMinutes": 30, "Timezone": "UTC"},
		"reward": {"DurationTiers": [{"at": 45, "points": 9}]}
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	var c AppConfig
	require.NoError(t, loadJSONConfig(path, &c))
	applyDefaults(&c)

	assert.Equal(t, "9090", c.AppPort)
	assert.Equal(t, "s3cret", c.JWTSecret)
	assert.Equal(t, "sqlite", c.DBDriver)
	assert.Equal(t, 30, c.PomodoroMinutes)
	assert.Equal(t, []Milestone{{45, 9}}, c.DurationTiers)
	assert.Equal(t, time.UTC, c.Location())
}

func TestLoadJSONConfigMissingFile(t *testing.T) {
	var c AppConfig
	assert.NoError(t, loadJSONConfig(filepath.Join(t.TempDir(), "nope.json"), &c))
}

func TestOpenDatabaseSQLite(t *testing.T) {
	c := Defaults()
	c.DBDriver = "sqlite"
	c.SQLitePath = "file:config_open_test?mode=memory&cache=shared"
	c.LogLevel = "silent"

	conn, err := OpenDatabase(c)
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	assert.NoError(t, sqlDB.Ping())
	_ = sqlDB.Close()
}

func TestOpenDatabaseUnknownDriver(t *testing.T) {
	c := Defaults()
	c.DBDriver = "oracle"
	_, err := OpenDatabase(c)
	assert.Error(t, err)
}
