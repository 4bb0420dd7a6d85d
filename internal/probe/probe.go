// Package probe implements the independent health checks that make up a
// feed. A probe never returns an error: whatever goes wrong inside it is
// folded into the StatusItem it produces.
package probe

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"hostfeed/internal/logging"
	"hostfeed/internal/models"
)

// Probe inspects one external condition.
type Probe interface {
	// Name identifies the probe in logs and metrics.
	Name() string
	// Check always returns exactly one item, degrading to bad on failure.
	Check(ctx context.Context) models.StatusItem
}

// Runner executes a command and returns its trimmed combined output.
type Runner func(ctx context.Context, name string, args ...string) (string, error)

// ExecRunner runs commands on the host with a non-interactive environment.
func ExecRunner(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), "LC_ALL=C", "GIT_TERMINAL_PROMPT=0")
	cmd.WaitDelay = time.Second

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	text := strings.TrimSpace(out.String())
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		if text != "" {
			return text, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, text)
		}
		return text, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return text, nil
}

// Option customises a probe.
type Option func(*base)

// WithClock overrides the completion time source.
func WithClock(now func() time.Time) Option {
	return func(b *base) { b.now = now }
}

// WithLogger sets the logger used for diagnostics that do not end up in the item.
func WithLogger(logger *slog.Logger) Option {
	return func(b *base) { b.logger = logger }
}

// WithRunner replaces command execution.
func WithRunner(run Runner) Option {
	return func(b *base) { b.run = run }
}

// WithHTTPClient replaces the client used for outbound requests.
func WithHTTPClient(client *http.Client) Option {
	return func(b *base) { b.client = client }
}

type base struct {
	title  string
	now    func() time.Time
	logger *slog.Logger
	run    Runner
	client *http.Client
}

func newBase(title string, opts []Option) base {
	b := base{
		title:  title,
		now:    time.Now,
		run:    ExecRunner,
		client: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(&b)
	}
	b.logger = logging.OrDiscard(b.logger)
	return b
}

// Title returns the label the probe puts on its items.
func (b *base) Title() string {
	return b.title
}

func (b *base) item(status models.Status, detail string) models.StatusItem {
	return models.StatusItem{
		Title:     b.title,
		Status:    status,
		Detail:    detail,
		Timestamp: models.NewTimestamp(b.now()),
	}
}
