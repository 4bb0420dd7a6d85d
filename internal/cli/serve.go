package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"hostfeed/internal/metrics"
	"hostfeed/internal/server"
	"hostfeed/internal/storage"
)

const shutdownTimeout = 5 * time.Second

func serveCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the status page, feed and live stats over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Usage:   "listen address; overrides server.addr",
				Sources: cli.EnvVars("HOSTFEED_ADDR"),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			addr := cmd.String("addr")
			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", addr, err)
			}
			return a.serve(ctx, ln)
		},
	}
}

// serve runs the status page on ln until ctx is cancelled.
func (a *app) serve(ctx context.Context, ln net.Listener) error {
	if err := metrics.RegisterRuntimeCollectors(); err != nil {
		a.logger.Warn("runtime metrics unavailable", "error", err)
	}

	srv, err := server.New(
		storage.OpenFeedStore(a.cfg.FeedPath()),
		a.newSampler(a.cfg.Sampler, a.logger),
		server.Options{
			Addr:               ln.Addr().String(),
			PushInterval:       time.Duration(a.cfg.Server.PushIntervalSec) * time.Second,
			StatsRatePerSecond: a.cfg.Server.StatsRatePerSecond,
			Logger:             a.logger,
		})
	if err != nil {
		_ = ln.Close()
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.notify(daemon.SdNotifyStopping)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	a.logger.Info("status page listening",
		"addr", ln.Addr().String(),
		"feed", a.cfg.FeedPath(),
		"push_interval_seconds", a.cfg.Server.PushIntervalSec)
	a.notify(daemon.SdNotifyReady)

	if err := g.Wait(); err != nil {
		return err
	}
	a.logger.Info("server stopped gracefully")
	return nil
}

// notify reports state to systemd when running under a notify unit.
func (a *app) notify(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		a.logger.Warn("systemd notify failed", "state", state, "error", err)
		return
	}
	if sent {
		a.logger.Debug("systemd notified", "state", state)
	}
}
