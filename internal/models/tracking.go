package models

import (
	"errors"
	"fmt"
	"time"
)

// Vehicle operational status values. Transitions are owned by the
// simulation engine: on_route and at_stop flip as the vehicle passes
// waypoints, delayed is entered when the current delay crosses the
// threshold, and breakdown is only ever set (and cleared) by an
// explicit control action.
const (
	StatusOnRoute   = "on_route"
	StatusAtStop    = "at_stop"
	StatusDelayed   = "delayed"
	StatusBreakdown = "breakdown"
)

// KnownStatus reports whether s is one of the defined vehicle statuses.
func KnownStatus(s string) bool {
	switch s {
	case StatusOnRoute, StatusAtStop, StatusDelayed, StatusBreakdown:
		return true
	}
	return false
}

// TrackingRecord is one persisted, timestamped observation of a vehicle.
// Records are immutable once written; the store keeps the full history
// plus a materialized latest-per-vehicle view.
type TrackingRecord struct {
	RecordID      string    `json:"recordId"`
	DeviceID      string    `json:"deviceId"`
	RouteID       string    `json:"routeId"`
	VehicleID     string    `json:"vehicleId"`
	VehicleNumber string    `json:"vehicleNumber"`
	RecordedAt    time.Time `json:"timestamp"`

	Location      VehicleLocation   `json:"location"`
	RouteProgress RouteProgress     `json:"routeProgress"`
	PassengerLoad PassengerLoad     `json:"passengerLoad"`
	Operational   OperationalInfo   `json:"operationalInfo"`
	Environment   EnvironmentalData `json:"environmentalData"`
}

// VehicleLocation is the geographic part of a tracking record.
type VehicleLocation struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	SpeedKmh  float64 `json:"speed"`
	Heading   float64 `json:"heading"`
}

// RouteProgress describes how far along its route polyline a vehicle is.
type RouteProgress struct {
	SegmentIndex       int        `json:"segment"`
	SegmentProgress    float64    `json:"segmentProgress"`
	DistanceCoveredKm  float64    `json:"distanceCovered"`
	ProgressPercentage float64    `json:"progressPercentage"`
	ETA                *time.Time `json:"eta,omitempty"`
}

// PassengerLoad describes occupancy at the time of the snapshot.
type PassengerLoad struct {
	Current        int     `json:"current"`
	Max            int     `json:"max"`
	LoadPercentage float64 `json:"loadPercentage"`
}

// DelayInfo describes the current delay attributed to a vehicle.
type DelayInfo struct {
	Minutes    float64    `json:"currentDelay"`
	Reason     string     `json:"reason,omitempty"`
	ReportedAt *time.Time `json:"reportedAt,omitempty"`
}

// OperationalInfo is the status part of a tracking record.
type OperationalInfo struct {
	Status string    `json:"status"`
	Delay  DelayInfo `json:"delays"`
}

// EnvironmentalData carries synthetic weather/traffic context. Purely
// descriptive; nothing in the engine keys off it.
type EnvironmentalData struct {
	Weather string `json:"weather,omitempty"`
	Traffic string `json:"traffic,omitempty"`
}

// LocationPing is a direct location update from a hardware feed. It
// bypasses the simulator and is converted into a TrackingRecord on
// ingestion. Timestamp is optional; the ingest time is used when absent.
type LocationPing struct {
	DeviceID      string     `json:"deviceId" validate:"required"`
	RouteID       string     `json:"routeId" validate:"required"`
	VehicleID     string     `json:"vehicleId" validate:"required"`
	VehicleNumber string     `json:"vehicleNumber"`
	Latitude      float64    `json:"lat" validate:"gte=-90,lte=90"`
	Longitude     float64    `json:"lon" validate:"gte=-180,lte=180"`
	SpeedKmh      float64    `json:"speed" validate:"gte=0"`
	Heading       float64    `json:"heading" validate:"gte=0,lt=360"`
	Status        string     `json:"status,omitempty"`
	Passengers    *int       `json:"passengers,omitempty"`
	Capacity      *int       `json:"capacity,omitempty"`
	DelayMinutes  float64    `json:"delayMinutes,omitempty"`
	Timestamp     *time.Time `json:"timestamp,omitempty"`
}

// Bounds is a geographic bounding box for live-location queries.
type Bounds struct {
	MinLat float64 `json:"minLat"`
	MinLon float64 `json:"minLon"`
	MaxLat float64 `json:"maxLat"`
	MaxLon float64 `json:"maxLon"`
}

// Validate checks the box for well-formedness.
func (b Bounds) Validate() error {
	if b.MinLat < -90 || b.MaxLat > 90 || b.MinLon < -180 || b.MaxLon > 180 {
		return fmt.Errorf("%w: bounds out of range", ErrInvalidInput)
	}
	if b.MinLat >= b.MaxLat || b.MinLon >= b.MaxLon {
		return fmt.Errorf("%w: bounds min must be less than max", ErrInvalidInput)
	}
	return nil
}

// Contains reports whether the point lies inside the box.
func (b Bounds) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// Booking is the narrow read-only view of a booking consumed by the ETA
// lookup. TravelDate is "2006-01-02", DepartureTime is "15:04".
type Booking struct {
	RouteID       string `json:"routeId" validate:"required"`
	TravelDate    string `json:"travelDate" validate:"required"`
	DepartureTime string `json:"departureTime" validate:"required"`
}

// ETA bucket values returned by the booking ETA lookup.
const (
	ETABucketOnTime          = "on_time"          // delay <= 5 min
	ETABucketSlightlyDelayed = "slightly_delayed" // delay <= 15 min
	ETABucketDelayed         = "delayed"          // delay > 15 min
)

// ETAEstimate is the result of a booking ETA lookup. When no vehicle is
// live on the booking's route, Tracked is false and the time fields
// carry the unadjusted schedule.
type ETAEstimate struct {
	Tracked            bool      `json:"tracked"`
	RouteID            string    `json:"routeId"`
	VehicleID          string    `json:"vehicleId,omitempty"`
	VehicleNumber      string    `json:"vehicleNumber,omitempty"`
	ScheduledDeparture time.Time `json:"scheduledDeparture"`
	EstimatedDeparture time.Time `json:"estimatedDeparture"`
	DelayMinutes       float64   `json:"delayMinutes"`
	Bucket             string    `json:"bucket,omitempty"`
	Message            string    `json:"message,omitempty"`
}

// Sentinel errors shared across packages. Handlers map these onto HTTP
// status codes with errors.Is.
var (
	// ErrInvalidInput rejects a request without touching engine or
	// vehicle state (bad speed, passenger count, delay value, bounds).
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound covers unknown vehicle and route identifiers.
	ErrNotFound = errors.New("not found")

	// ErrEngineNotRunning is returned by per-vehicle control operations
	// while the simulation is stopped.
	ErrEngineNotRunning = errors.New("simulation engine is not running")
)
