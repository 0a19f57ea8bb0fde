package models

import "time"

// EngineStatus describes the simulation engine's lifecycle state.
type EngineStatus struct {
	IsRunning       bool       `json:"isRunning"`
	SpeedMultiplier float64    `json:"speedMultiplier"`
	VehicleCount    int        `json:"vehicleCount"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
	TickInterval    string     `json:"tickInterval"`
	EndOfRoute      string     `json:"endOfRoutePolicy"`
}

// VehicleStatus is the control-plane view of a simulated vehicle,
// returned by every per-vehicle control action.
type VehicleStatus struct {
	VehicleID          string     `json:"vehicleId"`
	VehicleNumber      string     `json:"vehicleNumber"`
	DeviceID           string     `json:"deviceId"`
	RouteID            string     `json:"routeId"`
	Type               string     `json:"type"`
	Status             string     `json:"status"`
	Paused             bool       `json:"paused"`
	SpeedKmh           float64    `json:"speedKmh"`
	Passengers         int        `json:"currentPassengers"`
	Capacity           int        `json:"capacity"`
	DelayMinutes       float64    `json:"delayMinutes"`
	DelayReason        string     `json:"delayReason,omitempty"`
	Latitude           float64    `json:"latitude"`
	Longitude          float64    `json:"longitude"`
	SegmentIndex       int        `json:"segmentIndex"`
	SegmentProgress    float64    `json:"segmentProgress"`
	ProgressPercentage float64    `json:"progressPercentage"`
	UpdatedAt          *time.Time `json:"updatedAt,omitempty"`
}

// LiveLocationsResponse is the payload for the live-locations query.
type LiveLocationsResponse struct {
	Vehicles  []TrackingRecord `json:"vehicles"`
	Count     int              `json:"count"`
	Timestamp time.Time        `json:"timestamp"`
}

// RouteStats are route-level aggregates over the currently live vehicles.
// A vehicle counts as on-time while its delay is at most five minutes.
type RouteStats struct {
	TotalVehicles   int     `json:"totalVehicles"`
	OnTimeCount     int     `json:"onTimeCount"`
	DelayedCount    int     `json:"delayedCount"`
	AvgDelayMinutes float64 `json:"avgDelayMinutes"`
	AvgLoadPercent  float64 `json:"avgLoadPercent"`
}

// RouteVehiclesResponse is the payload for the per-route vehicle query.
type RouteVehiclesResponse struct {
	RouteID   string           `json:"routeId"`
	RouteName string           `json:"routeName,omitempty"`
	Vehicles  []TrackingRecord `json:"vehicles"`
	Count     int              `json:"count"`
	Stats     RouteStats       `json:"stats"`
	Timestamp time.Time        `json:"timestamp"`
}

// HistorySummary aggregates a vehicle's history slice.
type HistorySummary struct {
	RecordCount     int     `json:"recordCount"`
	AvgSpeedKmh     float64 `json:"avgSpeedKmh"`
	AvgDelayMinutes float64 `json:"avgDelayMinutes"`
	TotalDistanceKm float64 `json:"totalDistanceKm"`
}

// VehicleHistoryResponse is the payload for the vehicle-history query.
type VehicleHistoryResponse struct {
	VehicleID string           `json:"vehicleId"`
	From      time.Time        `json:"from"`
	To        time.Time        `json:"to"`
	Records   []TrackingRecord `json:"records"`
	Count     int              `json:"count"`
	Summary   HistorySummary   `json:"summary"`
}

// StatusBucket is one time-bucketed aggregate row in an analytics report.
type StatusBucket struct {
	Bucket          time.Time `json:"bucket"`
	Status          string    `json:"status"`
	Count           int       `json:"count"`
	AvgSpeedKmh     float64   `json:"avgSpeedKmh"`
	AvgDelayMinutes float64   `json:"avgDelayMinutes"`
	AvgLoadPercent  float64   `json:"avgLoadPercent"`
}

// VolumeBucket is the hourly unique-vehicle count.
type VolumeBucket struct {
	Bucket         time.Time `json:"bucket"`
	UniqueVehicles int       `json:"uniqueVehicles"`
}

// AnalyticsTotals summarize a whole analytics period.
type AnalyticsTotals struct {
	RecordCount     int     `json:"recordCount"`
	UniqueVehicles  int     `json:"uniqueVehicles"`
	AvgSpeedKmh     float64 `json:"avgSpeedKmh"`
	AvgDelayMinutes float64 `json:"avgDelayMinutes"`
	AvgLoadPercent  float64 `json:"avgLoadPercent"`
}

// AnalyticsReport is the payload for the tracking-analytics query.
type AnalyticsReport struct {
	From          time.Time       `json:"from"`
	To            time.Time       `json:"to"`
	RouteID       string          `json:"routeId,omitempty"`
	StatusBuckets []StatusBucket  `json:"statusDistribution"`
	HourlyVolume  []VolumeBucket  `json:"hourlyVolume"`
	Totals        AnalyticsTotals `json:"totals"`
}
