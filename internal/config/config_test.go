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
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, []string{ProbeGit, ProbeWeather, ProbeConnectivity}, cfg.Probes)
	assert.Equal(t, 7*24*time.Hour, cfg.Retention())
}

func TestLoadOverridesAndDefaults(t *testing.T) {
	path := writeConfig(t, `
data_directory: /var/lib/hostfeed
probes: [connectivity, git]
retention_days: 3
git:
  repo_path: /srv/app
  fetch: false
weather:
  user_agent: "pi-dashboard/1.0 ops@example.com"
connectivity:
  method: tcp
  target: 1.1.1.1
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{ProbeConnectivity, ProbeGit}, cfg.Probes)
	assert.Equal(t, "/var/lib/hostfeed/feed.json", cfg.FeedPath())
	assert.Equal(t, "/var/lib/hostfeed/stats.sqlite", cfg.StatsDBPath())
	assert.Equal(t, 3*24*time.Hour, cfg.Retention())
	assert.Equal(t, "/srv/app", cfg.Git.RepoPath)
	assert.False(t, cfg.Git.FetchEnabled())
	assert.Equal(t, 20, cfg.Git.TimeoutSeconds)
	assert.Equal(t, "pi-dashboard/1.0 ops@example.com", cfg.Weather.UserAgent)
	assert.Equal(t, "Oslo", cfg.Weather.Name)
	assert.Equal(t, MethodTCP, cfg.Connectivity.Method)
	assert.Equal(t, 1, cfg.Connectivity.TimeoutSeconds)
	assert.Equal(t, ":8000", cfg.Server.Addr)
}

func TestLoadAbsoluteDataFiles(t *testing.T) {
	path := writeConfig(t, "feed_file: /tmp/feed.json\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/feed.json", cfg.FeedPath())
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "unknown probe", body: "probes: [git, disk]\n", want: `unknown probe "disk"`},
		{name: "duplicate probe", body: "probes: [git, git]\n", want: "more than once"},
		{name: "bad method", body: "connectivity:\n  method: icmp\n", want: "connectivity method"},
		{name: "bad latitude", body: "weather:\n  latitude: 91\n", want: "latitude"},
		{name: "bad yaml", body: "probes: [git\n", want: "parse config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestExampleConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config.example.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "/srv/app", cfg.Git.RepoPath)
	assert.True(t, cfg.Git.FetchEnabled())
	assert.NotEmpty(t, cfg.Weather.UserAgent)
	assert.Equal(t, MethodPing, cfg.Connectivity.Method)
	assert.Equal(t, filepath.Join("data", "feed.json"), cfg.FeedPath())
}
