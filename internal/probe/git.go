package probe

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"hostfeed/internal/config"
	"hostfeed/internal/models"
)

// GitTitle labels git probe items.
const GitTitle = "Git repo"

// Git reports working tree cleanliness and divergence from upstream.
type Git struct {
	base
	repo    string
	fetch   bool
	timeout time.Duration
}

// NewGit creates a git probe for the configured repository.
func NewGit(cfg config.GitConfig, opts ...Option) *Git {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Git{
		base:    newBase(GitTitle, opts),
		repo:    cfg.RepoPath,
		fetch:   cfg.FetchEnabled(),
		timeout: timeout,
	}
}

// Name implements Probe.
func (g *Git) Name() string { return config.ProbeGit }

// Check implements Probe.
func (g *Git) Check(ctx context.Context) models.StatusItem {
	status, detail, err := g.inspect(ctx)
	if err != nil {
		return g.item(models.StatusBad, "Git error: "+err.Error())
	}
	return g.item(status, detail)
}

func (g *Git) inspect(ctx context.Context) (models.Status, string, error) {
	if g.fetch {
		// A failed fetch only risks a stale comparison.
		if _, err := g.git(ctx, "fetch", "--prune"); err != nil {
			g.logger.Warn("git fetch failed", "repo", g.repo, "error", err)
		}
	}

	porcelain, err := g.git(ctx, "status", "--porcelain")
	if err != nil {
		return "", "", err
	}
	dirty := strings.TrimSpace(porcelain) != ""
	tree := "clean"
	if dirty {
		tree = "dirty"
	}

	if _, err := g.git(ctx, "rev-parse", "--abbrev-ref", "--symbolic-full-name", "@{u}"); err != nil {
		g.logger.Debug("no upstream configured", "repo", g.repo, "error", err)
		return classifyGit(dirty, 0, 0, false), tree + ", no upstream", nil
	}

	counts, err := g.git(ctx, "rev-list", "--left-right", "--count", "HEAD...@{u}")
	if err != nil {
		return "", "", err
	}
	ahead, behind, err := parseAheadBehind(counts)
	if err != nil {
		return "", "", err
	}
	return classifyGit(dirty, ahead, behind, true), fmt.Sprintf("%s, ahead %d, behind %d", tree, ahead, behind), nil
}

func (g *Git) git(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return g.run(ctx, "git", append([]string{"-C", g.repo}, args...)...)
}

// classifyGit maps tree state to a status. Being behind dominates.
func classifyGit(dirty bool, ahead, behind int, hasUpstream bool) models.Status {
	switch {
	case !hasUpstream && dirty:
		return models.StatusWarn
	case !hasUpstream:
		return models.StatusOK
	case behind > 0:
		return models.StatusBad
	case dirty || ahead > 0:
		return models.StatusWarn
	default:
		return models.StatusOK
	}
}

// parseAheadBehind reads "<ahead>\t<behind>" from rev-list --left-right --count HEAD...@{u}.
func parseAheadBehind(out string) (int, int, error) {
	fields := strings.Fields(out)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("unexpected rev-list output %q", out)
	}
	ahead, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, fmt.Errorf("parse ahead count: %w", err)
	}
	behind, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, fmt.Errorf("parse behind count: %w", err)
	}
	return ahead, behind, nil
}
