package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"hostfeed/internal/feed"
	"hostfeed/internal/metrics"
	"hostfeed/internal/models"
	"hostfeed/internal/probe"
	"hostfeed/internal/recorder"
	"hostfeed/internal/storage"
)

func updateCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "update",
		Usage: "Record a resource sample, then rebuild the status feed",
		Description: `Runs the resource recorder followed by the feed builder. A recorder
failure is logged and reflected in the exit status, but the feed is
still rebuilt. Intended to be run from a timer or cron.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "metrics-textfile",
				Usage:   "write run metrics here for the node_exporter textfile collector",
				Sources: cli.EnvVars("HOSTFEED_METRICS_TEXTFILE"),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			var errs []error
			if err := a.record(ctx); err != nil {
				a.logger.Error("recording sample failed", "error", err)
				errs = append(errs, err)
			}
			if _, err := a.buildFeed(ctx); err != nil {
				errs = append(errs, err)
			}
			if path := cmd.String("metrics-textfile"); path != "" {
				if err := metrics.WriteTextfile(path); err != nil {
					a.logger.Warn("metrics textfile not written", "path", path, "error", err)
					errs = append(errs, err)
				}
			}
			return errors.Join(errs...)
		},
	}
}

func recordCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "record",
		Usage: "Record one resource sample and prune old rows",
		Action: func(ctx context.Context, _ *cli.Command) error {
			return a.record(ctx)
		},
	}
}

func showCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "show",
		Usage: "Print the persisted feed and its summary",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "summary",
				Usage: "print only the summary",
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			current, err := storage.OpenFeedStore(a.cfg.FeedPath()).Read()
			if err != nil {
				return err
			}
			out := struct {
				Feed    *models.Feed        `json:"feed,omitempty"`
				Summary metrics.FeedSummary `json:"summary"`
			}{
				Summary: metrics.Summarize(current, time.Now()),
			}
			if !cmd.Bool("summary") {
				out.Feed = &current
			}
			enc := json.NewEncoder(a.stdout)
			enc.SetEscapeHTML(false)
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return fmt.Errorf("print feed: %w", err)
			}
			return nil
		},
	}
}

// record runs the resource recorder once.
func (a *app) record(ctx context.Context) (err error) {
	store, err := storage.OpenSampleStore(a.cfg.StatsDBPath(), a.logger)
	if err != nil {
		return fmt.Errorf("record sample: %w", err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	rec := recorder.New(a.newSampler(a.cfg.Sampler, a.logger), store, a.cfg.Retention(), a.logger)
	if _, err := rec.Record(ctx); err != nil {
		return fmt.Errorf("record sample: %w", err)
	}
	return nil
}

// buildFeed runs every configured probe and persists the feed.
func (a *app) buildFeed(ctx context.Context) (models.Feed, error) {
	probes, err := probe.FromConfig(a.cfg, probe.WithLogger(a.logger))
	if err != nil {
		metrics.ObserveFeedBuild(time.Now(), err)
		return models.Feed{}, fmt.Errorf("build probes: %w", err)
	}
	store, err := storage.NewFeedStore(a.cfg.FeedPath())
	if err != nil {
		metrics.ObserveFeedBuild(time.Now(), err)
		return models.Feed{}, err
	}
	return feed.NewAggregator(probes, store, feed.WithLogger(a.logger)).Run(ctx)
}
