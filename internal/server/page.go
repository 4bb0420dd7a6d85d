package server

import (
	"fmt"
	"html/template"

	"hostfeed/internal/models"
)

const unknown = "unknown"

var pageFuncs = template.FuncMap{
	"temperature": formatTemperature,
	"ip":          formatIP,
	"uptime":      formatUptime,
	"timestamp":   formatTimestamp,
}

func formatTemperature(v *float64) string {
	if v == nil {
		return unknown
	}
	return fmt.Sprintf("%.1f °C", *v)
}

func formatIP(v *string) string {
	if v == nil || *v == "" {
		return unknown
	}
	return *v
}

// formatUptime renders seconds as "2d 3h 4m"; zero means the reading failed.
func formatUptime(seconds int64) string {
	if seconds <= 0 {
		return unknown
	}
	days := seconds / 86400
	hours := seconds % 86400 / 3600
	minutes := seconds % 3600 / 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

func formatTimestamp(ts *models.Timestamp) string {
	if ts == nil || ts.IsZero() {
		return unknown
	}
	return ts.String()
}
