package sampler

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hostfeed/internal/config"
)

const meminfo = `MemTotal:        4000000 kB
MemFree:          500000 kB
MemAvailable:    1000000 kB
Buffers:          100000 kB
`

func readCloser(content string) func() (io.ReadCloser, error) {
	return func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(content)), nil
	}
}

// sequence returns each /proc/stat snapshot in turn.
func sequence(contents ...string) func() (io.ReadCloser, error) {
	i := 0
	return func() (io.ReadCloser, error) {
		content := contents[i%len(contents)]
		i++
		return io.NopCloser(strings.NewReader(content)), nil
	}
}

func failing() (io.ReadCloser, error) {
	return nil, errors.New("no such file")
}

type fakeUDPConn struct {
	net.Conn
	local net.Addr
}

func (c fakeUDPConn) LocalAddr() net.Addr { return c.local }
func (c fakeUDPConn) Close() error        { return nil }

func newTestSampler() *Sampler {
	s := New(config.SamplerConfig{CPUIntervalMS: 0, DiskPath: "/"}, nil)
	s.cpuInterval = 0
	s.openProcStat = sequence(
		"cpu  100 0 100 700 100 0 0 0 0 0\ncpu0 1 2 3 4\n",
		"cpu  150 0 150 750 150 0 0 0 0 0\ncpu0 1 2 3 4\n",
	)
	s.openProcMeminfo = readCloser(meminfo)
	s.diskUsage = func(string) (Usage, error) {
		return Usage{Used: 16 * bytesPerGB, Total: 64 * bytesPerGB}, nil
	}
	s.uptime = func() (time.Duration, error) { return 3*time.Hour + 1500*time.Millisecond, nil }
	s.run = func(context.Context, string, ...string) ([]byte, error) {
		return []byte("temp=48.3'C\n"), nil
	}
	s.readFile = func(string) ([]byte, error) { return nil, errors.New("absent") }
	s.dial = func(context.Context, string, string) (net.Conn, error) {
		return fakeUDPConn{local: &net.UDPAddr{IP: net.ParseIP("192.168.1.42"), Port: 51000}}, nil
	}
	return s
}

func TestCPUPercentFromDeltas(t *testing.T) {
	s := newTestSampler()

	cpu, err := s.CPUPercent(context.Background())
	require.NoError(t, err)
	// total delta 200, idle+iowait delta 100.
	assert.InDelta(t, 50.0, cpu, 1e-9)
}

func TestCPUPercentNoDelta(t *testing.T) {
	s := newTestSampler()
	s.openProcStat = readCloser("cpu  1 1 1 1\n")

	cpu, err := s.CPUPercent(context.Background())
	require.NoError(t, err)
	assert.Zero(t, cpu)
}

func TestCPUPercentErrors(t *testing.T) {
	tests := []struct {
		name string
		open func() (io.ReadCloser, error)
	}{
		{name: "open failure", open: failing},
		{name: "missing line", open: readCloser("intr 1 2 3\n")},
		{name: "short line", open: readCloser("cpu  1 2\n")},
		{name: "garbage field", open: readCloser("cpu  1 x 3 4\n")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSampler()
			s.openProcStat = tt.open
			_, err := s.CPUPercent(context.Background())
			assert.Error(t, err)
		})
	}
}

func TestCPUPercentHonoursContext(t *testing.T) {
	s := newTestSampler()
	s.cpuInterval = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.CPUPercent(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemory(t *testing.T) {
	s := newTestSampler()

	mem, err := s.Memory()
	require.NoError(t, err)
	assert.Equal(t, uint64(3000000*1024), mem.Used)
	assert.Equal(t, uint64(4000000*1024), mem.Total)
	assert.InDelta(t, 75.0, mem.Percent(), 1e-9)

	s.openProcMeminfo = readCloser("MemTotal: 100 kB\n")
	_, err = s.Memory()
	assert.Error(t, err)
}

func TestSample(t *testing.T) {
	s := newTestSampler()

	sample, err := s.Sample(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sample.Timestamp)
	assert.InDelta(t, 50.0, sample.CPU, 1e-9)
	assert.InDelta(t, 75.0, sample.RAM, 1e-9)
	assert.InDelta(t, 25.0, sample.Disk, 1e-9)
	require.NotNil(t, sample.Temp)
	assert.InDelta(t, 48.3, *sample.Temp, 1e-9)
}

func TestSampleFailsWithoutDisk(t *testing.T) {
	s := newTestSampler()
	s.diskUsage = func(string) (Usage, error) { return Usage{}, errors.New("statfs failed") }

	_, err := s.Sample(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "statfs /")
}

func TestSnapshot(t *testing.T) {
	s := newTestSampler()

	stats := s.Snapshot(context.Background())

	assert.InDelta(t, 50.0, stats.CPUPercent, 1e-9)
	assert.InDelta(t, 75.0, stats.RAMPercent, 1e-9)
	assert.InDelta(t, 2.86, stats.RAMUsedGB, 1e-9)
	assert.InDelta(t, 3.81, stats.RAMTotalGB, 1e-9)
	assert.InDelta(t, 25.0, stats.DiskPercent, 1e-9)
	assert.InDelta(t, 16.0, stats.DiskUsedGB, 1e-9)
	assert.InDelta(t, 64.0, stats.DiskTotalGB, 1e-9)
	assert.Equal(t, int64(3*3600+1), stats.UptimeS)
	require.NotNil(t, stats.TempC)
	assert.InDelta(t, 48.3, *stats.TempC, 1e-9)
	require.NotNil(t, stats.IP)
	assert.Equal(t, "192.168.1.42", *stats.IP)
}

func TestSnapshotDegradesToUnknown(t *testing.T) {
	s := newTestSampler()
	s.openProcStat = failing
	s.openProcMeminfo = failing
	s.diskUsage = func(string) (Usage, error) { return Usage{}, errors.New("nope") }
	s.uptime = func() (time.Duration, error) { return 0, errors.New("nope") }
	s.run = func(context.Context, string, ...string) ([]byte, error) { return nil, errors.New("not found") }
	s.dial = func(context.Context, string, string) (net.Conn, error) { return nil, errors.New("network is unreachable") }

	stats := s.Snapshot(context.Background())

	assert.Zero(t, stats.CPUPercent)
	assert.Zero(t, stats.RAMTotalGB)
	assert.Zero(t, stats.UptimeS)
	assert.Nil(t, stats.TempC)
	assert.Nil(t, stats.IP)
}

func TestTemperatureFallsBackToThermalZone(t *testing.T) {
	s := newTestSampler()
	s.run = func(context.Context, string, ...string) ([]byte, error) {
		return nil, errors.New("vcgencmd: not found")
	}
	s.readFile = func(path string) ([]byte, error) {
		assert.Equal(t, thermalZonePath, path)
		return []byte("51234\n"), nil
	}

	temp := s.Temperature(context.Background())
	require.NotNil(t, temp)
	assert.InDelta(t, 51.23, *temp, 1e-9)
}

func TestParseVcgencmdTemp(t *testing.T) {
	temp, err := ParseVcgencmdTemp("temp=48.3'C\n")
	require.NoError(t, err)
	assert.InDelta(t, 48.3, temp, 1e-9)

	_, err = ParseVcgencmdTemp("VCHI initialization failed")
	assert.Error(t, err)
	_, err = ParseVcgencmdTemp("temp=hot'C")
	assert.Error(t, err)
}

func TestUsagePercent(t *testing.T) {
	assert.Zero(t, Usage{}.Percent())
	assert.InDelta(t, 100.0, Usage{Used: 5, Total: 4}.Percent(), 1e-9)
}
