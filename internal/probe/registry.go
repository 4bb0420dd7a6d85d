package probe

import (
	"fmt"

	"hostfeed/internal/config"
)

// FromConfig builds the probes in the configured order.
func FromConfig(cfg config.Config, opts ...Option) ([]Probe, error) {
	probes := make([]Probe, 0, len(cfg.Probes))
	for _, name := range cfg.Probes {
		switch name {
		case config.ProbeGit:
			probes = append(probes, NewGit(cfg.Git, opts...))
		case config.ProbeWeather:
			weather, err := NewWeather(cfg.Weather, opts...)
			if err != nil {
				return nil, err
			}
			probes = append(probes, weather)
		case config.ProbeConnectivity:
			probes = append(probes, NewConnectivity(cfg.Connectivity, opts...))
		default:
			return nil, fmt.Errorf("unknown probe %q", name)
		}
	}
	return probes, nil
}
