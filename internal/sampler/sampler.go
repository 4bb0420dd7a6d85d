// Package sampler reads instantaneous host resource usage: CPU, memory,
// disk, SoC temperature, uptime and the outbound IP address.
//
// Every reader is best-effort. Temperature and IP are optional and come
// back as nil when they cannot be determined.
package sampler

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"hostfeed/internal/config"
	"hostfeed/internal/logging"
	"hostfeed/internal/models"
)

const (
	bytesPerGB       = 1024 * 1024 * 1024
	commandTimeout   = 2 * time.Second
	ipDialTimeout    = time.Second
	thermalZonePath  = "/sys/class/thermal/thermal_zone0/temp"
	defaultIPAddress = "8.8.8.8:80"
)

// Usage is a used/total pair in bytes.
type Usage struct {
	Used  uint64
	Total uint64
}

// Percent returns Used as a share of Total, clamped to 0..100.
func (u Usage) Percent() float64 {
	if u.Total == 0 {
		return 0
	}
	return clampPercent(float64(u.Used) / float64(u.Total) * 100)
}

// Sampler reads host metrics. The function fields are the OS seams
// replaced in tests.
type Sampler struct {
	cpuInterval time.Duration
	diskPath    string
	ipAddress   string
	logger      *slog.Logger

	openProcStat    func() (io.ReadCloser, error)
	openProcMeminfo func() (io.ReadCloser, error)
	diskUsage       func(path string) (Usage, error)
	uptime          func() (time.Duration, error)
	run             func(ctx context.Context, name string, args ...string) ([]byte, error)
	readFile        func(path string) ([]byte, error)
	dial            func(ctx context.Context, network, address string) (net.Conn, error)
}

// New creates a sampler from configuration. If logger is nil, a no-op logger is used.
func New(cfg config.SamplerConfig, logger *slog.Logger) *Sampler {
	interval := time.Duration(cfg.CPUIntervalMS) * time.Millisecond
	if interval < 0 {
		interval = 0
	}
	diskPath := cfg.DiskPath
	if diskPath == "" {
		diskPath = "/"
	}
	ipAddress := cfg.IPProbeAddress
	if ipAddress == "" {
		ipAddress = defaultIPAddress
	}
	dialer := &net.Dialer{Timeout: ipDialTimeout}

	return &Sampler{
		cpuInterval: interval,
		diskPath:    diskPath,
		ipAddress:   ipAddress,
		logger:      logging.OrDiscard(logger),
		openProcStat: func() (io.ReadCloser, error) {
			return os.Open("/proc/stat")
		},
		openProcMeminfo: func() (io.ReadCloser, error) {
			return os.Open("/proc/meminfo")
		},
		diskUsage: statDisk,
		uptime:    readUptime,
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).Output()
		},
		readFile: os.ReadFile,
		dial:     dialer.DialContext,
	}
}

// Sample reads the values stored in the time series. The timestamp is
// left for the caller to assign.
func (s *Sampler) Sample(ctx context.Context) (models.MetricSample, error) {
	cpu, err := s.CPUPercent(ctx)
	if err != nil {
		return models.MetricSample{}, err
	}
	mem, err := s.Memory()
	if err != nil {
		return models.MetricSample{}, err
	}
	disk, err := s.Disk()
	if err != nil {
		return models.MetricSample{}, err
	}
	return models.MetricSample{
		CPU:  round2(cpu),
		RAM:  round2(mem.Percent()),
		Disk: round2(disk.Percent()),
		Temp: s.Temperature(ctx),
	}, nil
}

// Snapshot gathers the live view for the status page. Readers that fail
// leave their fields zero or nil.
func (s *Sampler) Snapshot(ctx context.Context) models.Stats {
	var stats models.Stats

	if cpu, err := s.CPUPercent(ctx); err != nil {
		s.logger.Warn("cpu reading failed", "error", err)
	} else {
		stats.CPUPercent = round2(cpu)
	}
	if mem, err := s.Memory(); err != nil {
		s.logger.Warn("memory reading failed", "error", err)
	} else {
		stats.RAMPercent = round2(mem.Percent())
		stats.RAMUsedGB = gigabytes(mem.Used)
		stats.RAMTotalGB = gigabytes(mem.Total)
	}
	if disk, err := s.Disk(); err != nil {
		s.logger.Warn("disk reading failed", "path", s.diskPath, "error", err)
	} else {
		stats.DiskPercent = round2(disk.Percent())
		stats.DiskUsedGB = gigabytes(disk.Used)
		stats.DiskTotalGB = gigabytes(disk.Total)
	}
	if up, err := s.uptime(); err != nil {
		s.logger.Warn("uptime reading failed", "error", err)
	} else {
		stats.UptimeS = int64(up / time.Second)
	}
	stats.TempC = s.Temperature(ctx)
	stats.IP = s.OutboundIP(ctx)
	return stats
}

// CPUPercent measures utilisation across two /proc/stat reads separated
// by the configured interval.
func (s *Sampler) CPUPercent(ctx context.Context) (float64, error) {
	first, err := s.readCPUTimes()
	if err != nil {
		return 0, err
	}
	if s.cpuInterval > 0 {
		timer := time.NewTimer(s.cpuInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return 0, ctx.Err()
		case <-timer.C:
		}
	}
	second, err := s.readCPUTimes()
	if err != nil {
		return 0, err
	}

	deltaTotal := second.total - first.total
	if second.total < first.total || deltaTotal == 0 {
		return 0, nil
	}
	deltaIdle := second.idle - first.idle
	if second.idle < first.idle {
		deltaIdle = 0
	}
	return clampPercent((1 - float64(deltaIdle)/float64(deltaTotal)) * 100), nil
}

type cpuTimes struct {
	idle  uint64
	total uint64
}

// readCPUTimes parses the aggregate cpu line. Idle includes iowait.
func (s *Sampler) readCPUTimes() (cpuTimes, error) {
	f, err := s.openProcStat()
	if err != nil {
		return cpuTimes{}, fmt.Errorf("open /proc/stat: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "cpu ") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 5 {
			return cpuTimes{}, errors.New("/proc/stat cpu line too short")
		}

		// Fields: cpu user nice system idle iowait irq softirq steal guest guest_nice.
		// guest time is already counted in user and nice.
		var times cpuTimes
		for i := 1; i < len(fields) && i <= 8; i++ {
			val, err := strconv.ParseUint(fields[i], 10, 64)
			if err != nil {
				return cpuTimes{}, fmt.Errorf("parse /proc/stat field %d: %w", i, err)
			}
			times.total += val
			if i == 4 || i == 5 {
				times.idle += val
			}
		}
		return times, nil
	}
	if err := scanner.Err(); err != nil {
		return cpuTimes{}, fmt.Errorf("read /proc/stat: %w", err)
	}
	return cpuTimes{}, errors.New("cpu line not found in /proc/stat")
}

// Memory reads /proc/meminfo. Used is MemTotal minus MemAvailable.
func (s *Sampler) Memory() (Usage, error) {
	f, err := s.openProcMeminfo()
	if err != nil {
		return Usage{}, fmt.Errorf("open /proc/meminfo: %w", err)
	}
	defer f.Close()

	var total, available uint64
	var foundTotal, foundAvailable bool
	scanner := bufio.NewScanner(f)
	for !(foundTotal && foundAvailable) && scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "MemTotal:"):
			total, err = parseMemInfoLine(line)
			if err != nil {
				return Usage{}, fmt.Errorf("parse MemTotal: %w", err)
			}
			foundTotal = true
		case strings.HasPrefix(line, "MemAvailable:"):
			available, err = parseMemInfoLine(line)
			if err != nil {
				return Usage{}, fmt.Errorf("parse MemAvailable: %w", err)
			}
			foundAvailable = true
		}
	}
	if !foundTotal || !foundAvailable {
		return Usage{}, errors.New("MemTotal or MemAvailable missing from /proc/meminfo")
	}
	if available > total {
		available = total
	}
	return Usage{Used: (total - available) * 1024, Total: total * 1024}, nil
}

// parseMemInfoLine extracts the kB value from "MemTotal:  16384000 kB".
func parseMemInfoLine(line string) (uint64, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0, fmt.Errorf("too few fields: %q", line)
	}
	return strconv.ParseUint(fields[1], 10, 64)
}

// Disk reports usage of the filesystem holding the configured path.
func (s *Sampler) Disk() (Usage, error) {
	usage, err := s.diskUsage(s.diskPath)
	if err != nil {
		return Usage{}, fmt.Errorf("statfs %s: %w", s.diskPath, err)
	}
	return usage, nil
}

// Temperature returns the SoC temperature in °C, or nil when no sensor
// is readable. vcgencmd is preferred; the thermal zone is the fallback.
func (s *Sampler) Temperature(ctx context.Context) *float64 {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	out, err := s.run(ctx, "vcgencmd", "measure_temp")
	if err == nil {
		temp, perr := ParseVcgencmdTemp(string(out))
		if perr == nil {
			return &temp
		}
		s.logger.Debug("unexpected vcgencmd output", "output", string(out), "error", perr)
	}

	raw, err := s.readFile(thermalZonePath)
	if err != nil {
		return nil
	}
	milli, err := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
	if err != nil {
		s.logger.Debug("unexpected thermal zone value", "value", string(raw), "error", err)
		return nil
	}
	temp := round2(milli / 1000)
	return &temp
}

// ParseVcgencmdTemp parses "temp=48.3'C".
func ParseVcgencmdTemp(out string) (float64, error) {
	out = strings.TrimSpace(out)
	_, value, ok := strings.Cut(out, "=")
	if !ok {
		return 0, fmt.Errorf("unexpected temperature output %q", out)
	}
	value, _, _ = strings.Cut(value, "'")
	temp, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("parse temperature %q: %w", value, err)
	}
	return temp, nil
}

// OutboundIP asks the routing table which local address would reach the
// probe address. A UDP connect sends no packets.
func (s *Sampler) OutboundIP(ctx context.Context) *string {
	ctx, cancel := context.WithTimeout(ctx, ipDialTimeout)
	defer cancel()

	conn, err := s.dial(ctx, "udp", s.ipAddress)
	if err != nil {
		s.logger.Debug("outbound ip lookup failed", "error", err)
		return nil
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || addr.IP == nil || addr.IP.IsUnspecified() {
		return nil
	}
	ip := addr.IP.String()
	return &ip
}

func clampPercent(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

func gigabytes(b uint64) float64 {
	return round2(float64(b) / bytesPerGB)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
