package probe

import (
	"context"
	"math"
	"net"
	"strconv"
	"strings"
	"time"

	"hostfeed/internal/config"
	"hostfeed/internal/models"
)

// ConnectivityTitle labels connectivity probe items.
const ConnectivityTitle = "Internet"

// Connectivity makes one bounded reachability attempt against a target.
type Connectivity struct {
	base
	target  string
	method  string
	timeout time.Duration
	dial    func(ctx context.Context, network, address string) (net.Conn, error)
}

// NewConnectivity configures a connectivity probe.
func NewConnectivity(cfg config.ConnectivityConfig, opts ...Option) *Connectivity {
	target := strings.TrimSpace(cfg.Target)
	if target == "" {
		target = "8.8.8.8"
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = time.Second
	}
	method := cfg.Method
	if method == "" {
		method = config.MethodPing
	}

	c := &Connectivity{
		base:    newBase(ConnectivityTitle, opts),
		target:  target,
		method:  method,
		timeout: timeout,
	}
	dialer := &net.Dialer{}
	c.dial = dialer.DialContext
	return c
}

// Name implements Probe.
func (c *Connectivity) Name() string { return config.ProbeConnectivity }

// Check implements Probe.
func (c *Connectivity) Check(ctx context.Context) models.StatusItem {
	started := time.Now()
	if err := c.reach(ctx); err != nil {
		c.logger.Debug("target unreachable", "target", c.target, "method", c.method, "error", err)
		return c.item(models.StatusBad, "No ping to "+c.target)
	}
	c.logger.Debug("target reachable", "target", c.target, "latency_ms", time.Since(started).Milliseconds())
	return c.item(models.StatusOK, "Online")
}

func (c *Connectivity) reach(ctx context.Context) error {
	if c.method == config.MethodTCP {
		return c.dialTCP(ctx)
	}
	return c.ping(ctx)
}

func (c *Connectivity) ping(ctx context.Context) error {
	seconds := int(math.Ceil(c.timeout.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	// ping enforces -W itself; the context only guards against a hung process.
	ctx, cancel := context.WithTimeout(ctx, c.timeout+time.Second)
	defer cancel()
	_, err := c.run(ctx, "ping", "-c", "1", "-W", strconv.Itoa(seconds), c.target)
	return err
}

func (c *Connectivity) dialTCP(ctx context.Context) error {
	address := c.target
	if _, _, err := net.SplitHostPort(address); err != nil {
		address = net.JoinHostPort(address, "53")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	conn, err := c.dial(ctx, "tcp", address)
	if err != nil {
		return err
	}
	return conn.Close()
}
