// Package feed assembles the status feed from the configured probes and
// persists it.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"hostfeed/internal/logging"
	"hostfeed/internal/metrics"
	"hostfeed/internal/models"
	"hostfeed/internal/probe"
)

const (
	// UpdaterTitle labels the item every successful build ends with.
	UpdaterTitle  = "Updater"
	updaterDetail = "Feed updated successfully"
)

// Writer persists a completed feed.
type Writer interface {
	Write(feed models.Feed) error
}

// Aggregator runs probes in order and writes their results as one feed.
type Aggregator struct {
	probes []probe.Probe
	store  Writer
	now    func() time.Time
	logger *slog.Logger
}

// Option customises an Aggregator.
type Option func(*Aggregator)

// WithClock overrides the time source used for the Updater item and updated_at.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// WithLogger sets the run logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) { a.logger = logger }
}

// NewAggregator creates an aggregator for probes, in the order given.
func NewAggregator(probes []probe.Probe, store Writer, opts ...Option) *Aggregator {
	a := &Aggregator{
		probes: probes,
		store:  store,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = logging.OrDiscard(a.logger)
	return a
}

// Build runs every probe sequentially and returns the feed without
// persisting it. It never fails: probe problems are already items.
func (a *Aggregator) Build(ctx context.Context) models.Feed {
	return a.build(ctx, a.logger)
}

func (a *Aggregator) build(ctx context.Context, logger *slog.Logger) models.Feed {
	items := make([]models.StatusItem, 0, len(a.probes)+1)
	for _, p := range a.probes {
		start := time.Now()
		item := p.Check(ctx)
		took := time.Since(start)

		metrics.ObserveProbe(p.Name(), item.Status, took)
		logger.Debug("probe finished",
			"probe", p.Name(),
			"status", item.Status,
			"detail", item.Detail,
			"duration", took)
		items = append(items, item)
	}

	finished := models.NewTimestamp(a.now())
	items = append(items, models.StatusItem{
		Title:     UpdaterTitle,
		Status:    models.StatusOK,
		Detail:    updaterDetail,
		Timestamp: finished,
	})
	return models.Feed{UpdatedAt: &finished, Items: items}
}

// Run builds the feed and replaces the persisted one. On error the
// previous feed is left in place.
func (a *Aggregator) Run(ctx context.Context) (models.Feed, error) {
	logger := a.logger.With("run_id", uuid.NewString())
	logger.Info("feed build started", "probes", len(a.probes))

	feed := a.build(ctx, logger)
	err := a.store.Write(feed)
	metrics.ObserveFeedBuild(feed.UpdatedAt.Time, err)
	if err != nil {
		logger.Error("feed build failed", "error", err)
		return feed, fmt.Errorf("persist feed: %w", err)
	}

	summary := metrics.Summarize(feed, a.now())
	logger.Info("feed build finished",
		"items", summary.Total,
		"worst", summary.Worst,
		"warn", summary.Warn,
		"bad", summary.Bad)
	return feed, nil
}
