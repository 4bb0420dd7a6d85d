package probe

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hostfeed/internal/config"
	"hostfeed/internal/models"
)

func TestConnectivityPing(t *testing.T) {
	var gotName string
	var gotArgs []string
	run := func(_ context.Context, name string, args ...string) (string, error) {
		gotName, gotArgs = name, args
		return "1 packets transmitted, 1 received", nil
	}
	c := NewConnectivity(config.ConnectivityConfig{Target: "8.8.8.8", Method: config.MethodPing, TimeoutSeconds: 2},
		WithRunner(run), WithClock(fixedClock))

	item := c.Check(context.Background())

	assert.Equal(t, ConnectivityTitle, item.Title)
	assert.Equal(t, models.StatusOK, item.Status)
	assert.Equal(t, "Online", item.Detail)
	assert.Equal(t, "ping", gotName)
	assert.Equal(t, []string{"-c", "1", "-W", "2", "8.8.8.8"}, gotArgs)
}

func TestConnectivityPingFailure(t *testing.T) {
	run := func(context.Context, string, ...string) (string, error) {
		return "", errors.New("exit status 1")
	}
	c := NewConnectivity(config.ConnectivityConfig{Target: "1.1.1.1"}, WithRunner(run))

	item := c.Check(context.Background())

	assert.Equal(t, models.StatusBad, item.Status)
	assert.Equal(t, "No ping to 1.1.1.1", item.Detail)
}

func TestConnectivityTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	c := NewConnectivity(config.ConnectivityConfig{Target: ln.Addr().String(), Method: config.MethodTCP, TimeoutSeconds: 1})

	item := c.Check(context.Background())

	assert.Equal(t, models.StatusOK, item.Status)
	assert.Equal(t, "Online", item.Detail)
}

func TestConnectivityTCPRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	c := NewConnectivity(config.ConnectivityConfig{Target: addr, Method: config.MethodTCP, TimeoutSeconds: 1})

	item := c.Check(context.Background())

	assert.Equal(t, models.StatusBad, item.Status)
	assert.Equal(t, "No ping to "+addr, item.Detail)
}

func TestConnectivityTCPDefaultsToDNSPort(t *testing.T) {
	var gotAddress string
	c := NewConnectivity(config.ConnectivityConfig{Target: "9.9.9.9", Method: config.MethodTCP})
	c.dial = func(_ context.Context, _, address string) (net.Conn, error) {
		gotAddress = address
		return nil, errors.New("unreachable")
	}

	item := c.Check(context.Background())

	assert.Equal(t, "9.9.9.9:53", gotAddress)
	assert.Equal(t, models.StatusBad, item.Status)
}

func TestFromConfigOrder(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Probes = []string{config.ProbeConnectivity, config.ProbeWeather, config.ProbeGit}
	cfg.Weather.UserAgent = "hostfeed-test/1.0"

	probes, err := FromConfig(cfg)
	require.NoError(t, err)
	require.Len(t, probes, 3)
	assert.Equal(t, config.ProbeConnectivity, probes[0].Name())
	assert.Equal(t, config.ProbeWeather, probes[1].Name())
	assert.Equal(t, config.ProbeGit, probes[2].Name())
}

func TestFromConfigMissingUserAgent(t *testing.T) {
	_, err := FromConfig(config.DefaultConfig())
	assert.ErrorIs(t, err, ErrMissingUserAgent)
}
