package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hostfeed/internal/config"
	"hostfeed/internal/models"
	"hostfeed/internal/probe"
	"hostfeed/internal/storage"
)

var fixedNow = time.Date(2026, 10, 17, 9, 30, 15, 0, time.Local)

func fixedClock() time.Time { return fixedNow }

type staticProbe struct {
	name   string
	item   models.StatusItem
	checks int
}

func (p *staticProbe) Name() string { return p.name }

func (p *staticProbe) Check(context.Context) models.StatusItem {
	p.checks++
	return p.item
}

type failingWriter struct{}

func (failingWriter) Write(models.Feed) error { return errors.New("replace feed file: read-only file system") }

type memoryWriter struct{ feeds []models.Feed }

func (w *memoryWriter) Write(feed models.Feed) error {
	w.feeds = append(w.feeds, feed)
	return nil
}

func newStaticProbe(name, title string, status models.Status) *staticProbe {
	return &staticProbe{name: name, item: models.StatusItem{
		Title:     title,
		Status:    status,
		Detail:    title + " detail",
		Timestamp: models.NewTimestamp(fixedNow),
	}}
}

func TestBuildKeepsProbeOrderAndAppendsUpdater(t *testing.T) {
	git := newStaticProbe("git", "Git repo", models.StatusWarn)
	weather := newStaticProbe("weather", "Weather (Oslo)", models.StatusBad)
	agg := NewAggregator([]probe.Probe{git, weather}, &memoryWriter{}, WithClock(fixedClock))

	feed := agg.Build(context.Background())

	require.Len(t, feed.Items, 3)
	assert.Equal(t, "Git repo", feed.Items[0].Title)
	assert.Equal(t, "Weather (Oslo)", feed.Items[1].Title)
	updater := feed.Items[2]
	assert.Equal(t, UpdaterTitle, updater.Title)
	assert.Equal(t, models.StatusOK, updater.Status)
	assert.Equal(t, "Feed updated successfully", updater.Detail)
	require.NotNil(t, feed.UpdatedAt)
	assert.Equal(t, models.NewTimestamp(fixedNow), *feed.UpdatedAt)
	assert.Equal(t, *feed.UpdatedAt, updater.Timestamp)
	assert.Equal(t, 1, git.checks)
	assert.Equal(t, 1, weather.checks)
}

func TestBuildWithoutProbes(t *testing.T) {
	feed := NewAggregator(nil, &memoryWriter{}).Build(context.Background())

	require.Len(t, feed.Items, 1)
	assert.Equal(t, UpdaterTitle, feed.Items[0].Title)
}

func TestRunPersists(t *testing.T) {
	w := &memoryWriter{}
	agg := NewAggregator([]probe.Probe{newStaticProbe("git", "Git repo", models.StatusOK)}, w, WithClock(fixedClock))

	feed, err := agg.Run(context.Background())

	require.NoError(t, err)
	require.Len(t, w.feeds, 1)
	assert.Equal(t, feed, w.feeds[0])
}

func TestRunReportsPersistFailure(t *testing.T) {
	agg := NewAggregator([]probe.Probe{newStaticProbe("git", "Git repo", models.StatusOK)}, failingWriter{})

	_, err := agg.Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "persist feed")
}

func TestRunReplacesPreviousFeed(t *testing.T) {
	store, err := storage.NewFeedStore(filepath.Join(t.TempDir(), "feed.json"))
	require.NoError(t, err)
	p := newStaticProbe("git", "Git repo", models.StatusBad)
	agg := NewAggregator([]probe.Probe{p}, store, WithClock(fixedClock))

	_, err = agg.Run(context.Background())
	require.NoError(t, err)
	p.item.Status = models.StatusOK
	_, err = agg.Run(context.Background())
	require.NoError(t, err)

	feed, err := store.Read()
	require.NoError(t, err)
	require.Len(t, feed.Items, 2)
	assert.Equal(t, models.StatusOK, feed.Items[0].Status)
}

func TestRunTwiceDiffersOnlyInTimestamps(t *testing.T) {
	store, err := storage.NewFeedStore(filepath.Join(t.TempDir(), "feed.json"))
	require.NoError(t, err)
	probes := []probe.Probe{
		newStaticProbe("git", "Git repo", models.StatusWarn),
		newStaticProbe("weather", "Weather (Oslo)", models.StatusOK),
		newStaticProbe("connectivity", "Internet", models.StatusBad),
	}
	now := fixedNow
	agg := NewAggregator(probes, store, WithClock(func() time.Time { return now }))

	_, err = agg.Run(context.Background())
	require.NoError(t, err)
	first, err := store.Read()
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	_, err = agg.Run(context.Background())
	require.NoError(t, err)
	second, err := store.Read()
	require.NoError(t, err)

	require.Len(t, second.Items, len(first.Items))
	for i := range first.Items {
		a, b := first.Items[i], second.Items[i]
		assert.Equal(t, a.Title, b.Title)
		assert.Equal(t, a.Status, b.Status, a.Title)
		assert.Equal(t, a.Detail, b.Detail, a.Title)
	}
	require.NotNil(t, first.UpdatedAt)
	require.NotNil(t, second.UpdatedAt)
	assert.Equal(t, 2*time.Second, second.UpdatedAt.Sub(first.UpdatedAt.Time))

	// Blank the timestamps; nothing else may differ.
	for _, f := range []*models.Feed{&first, &second} {
		f.UpdatedAt = nil
		for i := range f.Items {
			f.Items[i].Timestamp = models.Timestamp{}
		}
	}
	assert.Equal(t, first, second)
}

func TestEndToEndAllHealthy(t *testing.T) {
	weatherSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"properties":{"timeseries":[{"data":{"instant":{"details":{"air_temperature":12.0,"wind_speed":3.5}}}}]}}`))
	}))
	t.Cleanup(weatherSrv.Close)

	gitOutputs := map[string]string{
		"fetch":     "",
		"status":    "",
		"rev-parse": "origin/main",
		"rev-list":  "0\t0",
	}
	runGit := func(_ context.Context, name string, args ...string) (string, error) {
		if name != "git" || len(args) < 3 {
			return "", errors.New("unexpected command")
		}
		return gitOutputs[args[2]], nil
	}

	cfg := config.DefaultConfig()
	cfg.Probes = []string{config.ProbeGit, config.ProbeWeather}
	cfg.Weather.Endpoint = weatherSrv.URL
	cfg.Weather.UserAgent = "hostfeed-test/1.0 ops@example.com"
	probes, err := probe.FromConfig(cfg, probe.WithRunner(runGit))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "feed.json")
	store, err := storage.NewFeedStore(path)
	require.NoError(t, err)

	_, err = NewAggregator(probes, store).Run(context.Background())
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\n  \"items\"")

	feed, err := storage.OpenFeedStore(path).Read()
	require.NoError(t, err)
	require.Len(t, feed.Items, 3)
	assert.Equal(t, []string{"Git repo", "Weather (Oslo)", UpdaterTitle},
		[]string{feed.Items[0].Title, feed.Items[1].Title, feed.Items[2].Title})
	for _, item := range feed.Items {
		assert.Equal(t, models.StatusOK, item.Status, item.Title)
	}
	assert.Equal(t, "12.0°C, wind 3.5 m/s", feed.Items[1].Detail)
}
