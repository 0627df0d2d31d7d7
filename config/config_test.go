package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadAppliesFileAndDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `
server:
  data_dir: `+dir+`
log:
  file: `+filepath.Join(dir, "logs", "attendance.log")+`
db:
  file: `+filepath.Join(dir, "db", "attendance.db")+`
monitor:
  interval: 10s
  buffer_size: 3
email:
  enabled: true
  sender_email: escola@example.org
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.Monitor.Interval)
	assert.Equal(t, 3, cfg.Monitor.BufferSize)
	assert.Equal(t, 0.5, cfg.Monitor.Tolerance)
	assert.Equal(t, 80, cfg.Monitor.JPEGQuality)
	assert.Equal(t, "smtp.gmail.com", cfg.Email.SMTPServer)
	assert.Equal(t, 587, cfg.Email.SMTPPort)
	assert.Equal(t, "Sistema de Monitoramento", cfg.Email.SenderName)
	assert.True(t, cfg.Email.Enabled)

	assert.DirExists(t, filepath.Join(dir, "logs"))
	assert.DirExists(t, filepath.Join(dir, "db"))
}

func TestValidateClampsMonitorValues(t *testing.T) {
	tests := []struct {
		name     string
		in       MonitorConfig
		interval time.Duration
		buffer   int
	}{
		{"too fast", MonitorConfig{Interval: time.Second, BufferSize: 1}, 5 * time.Second, 2},
		{"too slow", MonitorConfig{Interval: time.Minute, BufferSize: 50}, 30 * time.Second, 5},
		{"in range", MonitorConfig{Interval: 12 * time.Second, BufferSize: 4}, 12 * time.Second, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Monitor: tt.in}
			cfg.Validate()
			assert.Equal(t, tt.interval, cfg.Monitor.Interval)
			assert.Equal(t, tt.buffer, cfg.Monitor.BufferSize)
			assert.Equal(t, 3*time.Second, cfg.Monitor.StopTimeout)
			assert.Equal(t, 128, cfg.Monitor.DescriptorSize)
			assert.Equal(t, 1, cfg.Dispatch.Workers)
		})
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ATTENDANCE_SERVER_DATA_DIR", dir)
	t.Setenv("ATTENDANCE_LOG_FILE", filepath.Join(dir, "attendance.log"))
	t.Setenv("ATTENDANCE_DB_FILE", filepath.Join(dir, "attendance.db"))

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Monitor.Interval)
	assert.Equal(t, "pt", cfg.I18n.DefaultLanguage)
}
