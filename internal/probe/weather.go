package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"hostfeed/internal/config"
	"hostfeed/internal/models"
)

const maxForecastBytes = 4 << 20

// ErrMissingUserAgent is returned when the weather probe has no client identity.
var ErrMissingUserAgent = errors.New("weather user_agent is required by the forecast API")

// Weather fetches and summarises the forecast for one location.
type Weather struct {
	base
	url       string
	userAgent string
	timeout   time.Duration
}

type instantDetails struct {
	AirTemperature *float64 `json:"air_temperature"`
	WindSpeed      *float64 `json:"wind_speed"`
}

// forecast mirrors the part of the locationforecast document we read.
type forecast struct {
	Properties struct {
		Timeseries []struct {
			Data struct {
				Instant *struct {
					Details *instantDetails `json:"details"`
				} `json:"instant"`
				NextHour struct {
					Summary struct {
						SymbolCode string `json:"symbol_code"`
					} `json:"summary"`
					Details struct {
						PrecipitationAmount *float64 `json:"precipitation_amount"`
					} `json:"details"`
				} `json:"next_1_hours"`
			} `json:"data"`
		} `json:"timeseries"`
	} `json:"properties"`
}

// NewWeather builds a weather probe. A missing user agent is a configuration error.
func NewWeather(cfg config.WeatherConfig, opts ...Option) (*Weather, error) {
	if strings.TrimSpace(cfg.UserAgent) == "" {
		return nil, ErrMissingUserAgent
	}
	endpoint, err := url.Parse(cfg.Endpoint)
	if err != nil || endpoint.Scheme == "" || endpoint.Host == "" {
		return nil, fmt.Errorf("invalid weather endpoint %q", cfg.Endpoint)
	}
	query := endpoint.Query()
	query.Set("lat", strconv.FormatFloat(cfg.Latitude, 'f', -1, 64))
	query.Set("lon", strconv.FormatFloat(cfg.Longitude, 'f', -1, 64))
	endpoint.RawQuery = query.Encode()

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	name := cfg.Name
	if name == "" {
		name = "local"
	}
	return &Weather{
		base:      newBase(fmt.Sprintf("Weather (%s)", name), opts),
		url:       endpoint.String(),
		userAgent: cfg.UserAgent,
		timeout:   timeout,
	}, nil
}

// Name implements Probe.
func (w *Weather) Name() string { return config.ProbeWeather }

// Check implements Probe.
func (w *Weather) Check(ctx context.Context) models.StatusItem {
	fc, err := w.fetch(ctx)
	if err != nil {
		return w.item(models.StatusBad, "Weather error: "+err.Error())
	}
	return w.item(models.StatusOK, summarizeForecast(fc))
}

func (w *Weather) fetch(ctx context.Context) (*forecast, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", w.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, errors.New("request timed out")
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	var fc forecast
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxForecastBytes)).Decode(&fc); err != nil {
		return nil, fmt.Errorf("decode forecast: %w", err)
	}
	if len(fc.Properties.Timeseries) == 0 {
		return nil, errors.New("forecast has no timeseries entries")
	}
	// next_1_hours is optional, instant.details is not.
	if first := fc.Properties.Timeseries[0].Data.Instant; first == nil || first.Details == nil {
		return nil, errors.New("forecast entry has no instant details")
	}
	return &fc, nil
}

// summarizeForecast joins whichever fields the first entry carries.
func summarizeForecast(fc *forecast) string {
	data := fc.Properties.Timeseries[0].Data
	var bits []string
	details := data.Instant.Details
	if v := details.AirTemperature; v != nil {
		bits = append(bits, formatNumber(*v)+"°C")
	}
	if v := details.WindSpeed; v != nil {
		bits = append(bits, "wind "+formatNumber(*v)+" m/s")
	}
	if v := data.NextHour.Details.PrecipitationAmount; v != nil {
		bits = append(bits, "next 1h "+formatNumber(*v)+" mm")
	}
	if code := data.NextHour.Summary.SymbolCode; code != "" {
		bits = append(bits, code)
	}
	if len(bits) == 0 {
		return "No data parsed"
	}
	return strings.Join(bits, ", ")
}

// formatNumber prints the shortest form but keeps one decimal on whole numbers.
func formatNumber(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
