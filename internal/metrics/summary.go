package metrics

import (
	"math"
	"time"

	"hostfeed/internal/models"
)

// FeedSummary condenses a feed into counts per status.
type FeedSummary struct {
	Total       int           `json:"total"`
	OK          int           `json:"ok"`
	Warn        int           `json:"warn"`
	Bad         int           `json:"bad"`
	Worst       models.Status `json:"worst"`
	HealthyPct  float64       `json:"healthy_percent"`
	LastUpdated string        `json:"last_updated,omitempty"`
	AgeSeconds  *int64        `json:"age_seconds,omitempty"`
}

// Summarize aggregates item statuses of feed. now is used to compute the
// age of the feed; a feed that was never written has no age.
func Summarize(feed models.Feed, now time.Time) FeedSummary {
	summary := FeedSummary{Worst: models.StatusOK}
	for _, item := range feed.Items {
		summary.Total++
		switch item.Status {
		case models.StatusOK:
			summary.OK++
		case models.StatusWarn:
			summary.Warn++
		default:
			summary.Bad++
		}
		summary.Worst = models.Worse(summary.Worst, item.Status)
	}
	if summary.Total > 0 {
		summary.HealthyPct = round2(float64(summary.OK) / float64(summary.Total) * 100)
	}

	if feed.UpdatedAt != nil && !feed.UpdatedAt.IsZero() {
		summary.LastUpdated = feed.UpdatedAt.String()
		age := int64(now.Sub(feed.UpdatedAt.Time) / time.Second)
		if age < 0 {
			age = 0
		}
		summary.AgeSeconds = &age
	}
	return summary
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
