// Package cli wires configuration, logging and the hostfeed components
// into the hostfeed command.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"hostfeed/internal/config"
	"hostfeed/internal/logging"
	"hostfeed/internal/models"
	"hostfeed/internal/sampler"
)

const name = "hostfeed"

var (
	// overridden during build with ldflags
	version = "dev"
	commit  = "unknown"
)

// hostSampler is what the recorder and the status page need from the sampler.
type hostSampler interface {
	Sample(ctx context.Context) (models.MetricSample, error)
	Snapshot(ctx context.Context) models.Stats
}

// app carries the state shared by every subcommand once the root Before
// hook has run.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	stdout io.Writer

	newSampler func(cfg config.SamplerConfig, logger *slog.Logger) hostSampler
}

func newApp(stdout io.Writer) *app {
	return &app{
		stdout: stdout,
		newSampler: func(cfg config.SamplerConfig, logger *slog.Logger) hostSampler {
			return sampler.New(cfg, logger)
		},
	}
}

// Execute runs the hostfeed command with the process arguments and exits
// non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(newApp(os.Stdout)).Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:    name,
		Usage:   "Host health feed builder, resource recorder and status page",
		Version: fmt.Sprintf("%s (%s)", version, commit),
		Writer:  a.stdout,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "path to configuration file (YAML)",
				Sources: cli.EnvVars("HOSTFEED_CONFIG"),
				Value:   "config.yaml",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "log level (debug, info, warn, error); defaults to the configured level",
				Sources: cli.EnvVars("HOSTFEED_LOG_LEVEL"),
			},
		},
		Before: a.setup,
		Commands: []*cli.Command{
			updateCmd(a),
			recordCmd(a),
			showCmd(a),
			serveCmd(a),
		},
	}
}

// setup loads configuration and installs the logger before any subcommand runs.
func (a *app) setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	path := cmd.String("config")
	cfg, err := config.Load(path)
	if err != nil {
		return ctx, fmt.Errorf("load config %s: %w", path, err)
	}
	a.cfg = cfg

	level := cmd.String("log-level")
	if level == "" {
		level = cfg.LogLevel
	}
	a.logger = logging.SetDefaultStructuredLoggerWithLevel(name, version, level)
	a.logger.Debug("configuration loaded",
		"config", path,
		"data_directory", cfg.DataDirectory,
		"probes", cfg.Probes)
	return ctx, nil
}
