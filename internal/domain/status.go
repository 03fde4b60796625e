package domain

import "time"

// SystemCounts are the raw totals behind SystemStatus.
type SystemCounts struct {
	Households     int `json:"households"`
	CamerasOnline  int `json:"cameras_online"`
	CamerasOffline int `json:"cameras_offline"`
	ActiveAlerts   int `json:"active_alerts"`
}

// SystemStatus is the fleet-wide health summary shown on the dashboard.
type SystemStatus struct {
	SystemCounts
	CacheHealthy bool      `json:"cache_healthy"`
	Healthy      bool      `json:"healthy"`
	GeneratedAt  time.Time `json:"generated_at"`
}
