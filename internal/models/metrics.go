package models

// MetricSample is one row of the resource time series.
type MetricSample struct {
	Timestamp int64    `json:"ts"`
	CPU       float64  `json:"cpu"`
	RAM       float64  `json:"ram"`
	Disk      float64  `json:"disk"`
	Temp      *float64 `json:"temp"`
}

// Stats is the live resource snapshot rendered by the presenter.
// Nil pointers mean the value could not be determined.
type Stats struct {
	CPUPercent  float64  `json:"cpu_percent"`
	RAMPercent  float64  `json:"ram_percent"`
	RAMUsedGB   float64  `json:"ram_used_gb"`
	RAMTotalGB  float64  `json:"ram_total_gb"`
	DiskPercent float64  `json:"disk_percent"`
	DiskUsedGB  float64  `json:"disk_used_gb"`
	DiskTotalGB float64  `json:"disk_total_gb"`
	TempC       *float64 `json:"temp_c"`
	UptimeS     int64    `json:"uptime_s"`
	IP          *string  `json:"ip"`
}
