// Package recorder appends one resource sample per invocation to the
// sample store and prunes rows past the retention window.
package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"hostfeed/internal/logging"
	"hostfeed/internal/metrics"
	"hostfeed/internal/models"
)

// Sampler produces the sample values; the recorder assigns the timestamp.
type Sampler interface {
	Sample(ctx context.Context) (models.MetricSample, error)
}

// Store upserts a sample and deletes rows older than cutoff.
type Store interface {
	Put(ctx context.Context, sample models.MetricSample, cutoff int64) (int, error)
}

// Recorder ties a sampler to a store.
type Recorder struct {
	sampler   Sampler
	store     Store
	retention time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// New creates a recorder keeping retention worth of samples. If logger
// is nil, a no-op logger is used.
func New(sampler Sampler, store Store, retention time.Duration, logger *slog.Logger) *Recorder {
	return &Recorder{
		sampler:   sampler,
		store:     store,
		retention: retention,
		now:       time.Now,
		logger:    logging.OrDiscard(logger),
	}
}

// Record samples the host and stores the row keyed by the current Unix
// second. A second invocation within the same second overwrites the row.
func (r *Recorder) Record(ctx context.Context) (models.MetricSample, error) {
	sample, err := r.sampler.Sample(ctx)
	if err != nil {
		metrics.ObserveRecord(0, err)
		return models.MetricSample{}, fmt.Errorf("sample host: %w", err)
	}

	now := r.now()
	sample.Timestamp = now.Unix()
	cutoff := now.Add(-r.retention).Unix()

	pruned, err := r.store.Put(ctx, sample, cutoff)
	metrics.ObserveRecord(pruned, err)
	if err != nil {
		return sample, fmt.Errorf("store sample: %w", err)
	}

	r.logger.Info("sample recorded",
		"ts", sample.Timestamp,
		"cpu", sample.CPU,
		"ram", sample.RAM,
		"disk", sample.Disk,
		"temp", sample.Temp,
		"pruned", pruned)
	return sample, nil
}
