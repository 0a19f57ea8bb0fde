package simulation

import (
	"time"

	"github.com/Sri-Express/Backend-sub002/internal/models"
	"github.com/Sri-Express/Backend-sub002/internal/route"
)

// vehicle is the per-vehicle mutable simulation state. It is owned
// exclusively by the engine: created on Start, mutated under the engine
// lock every tick and by control operations, discarded on Reset.
type vehicle struct {
	VehicleID     string
	DeviceID      string
	VehicleNumber string
	RouteID       string
	Type          string
	Capacity      int

	Passengers int
	SpeedKmh   float64

	// DistanceKm is the cumulative distance along the polyline for the
	// current traversal, always within [0, route length]. Direction is
	// +1 travelling start->end and -1 on the return leg under the
	// reverse end-of-route policy.
	DistanceKm float64
	Direction  int

	Position route.Position

	Status          string
	Paused          bool
	DelayMinutes    float64
	DelayReason     string
	DelayReportedAt time.Time

	lastRecordAt time.Time
	updatedAt    time.Time
}

// heading returns the travel heading, flipped on the return leg.
func (v *vehicle) heading() float64 {
	h := v.Position.Heading
	if v.Direction < 0 {
		h += 180
		if h >= 360 {
			h -= 360
		}
	}
	return h
}

// loadPercentage is the occupancy as a percentage of capacity.
func (v *vehicle) loadPercentage() float64 {
	if v.Capacity <= 0 {
		return 0
	}
	return 100 * float64(v.Passengers) / float64(v.Capacity)
}

// status builds the control-plane view of the vehicle.
func (v *vehicle) status() models.VehicleStatus {
	st := models.VehicleStatus{
		VehicleID:          v.VehicleID,
		VehicleNumber:      v.VehicleNumber,
		DeviceID:           v.DeviceID,
		RouteID:            v.RouteID,
		Type:               v.Type,
		Status:             v.Status,
		Paused:             v.Paused,
		SpeedKmh:           v.SpeedKmh,
		Passengers:         v.Passengers,
		Capacity:           v.Capacity,
		DelayMinutes:       v.DelayMinutes,
		DelayReason:        v.DelayReason,
		Latitude:           v.Position.Latitude,
		Longitude:          v.Position.Longitude,
		SegmentIndex:       v.Position.SegmentIndex,
		SegmentProgress:    v.Position.SegmentProgress,
		ProgressPercentage: v.Position.ProgressPercentage,
	}
	if !v.updatedAt.IsZero() {
		t := v.updatedAt
		st.UpdatedAt = &t
	}
	return st
}

// record converts the current state into an immutable tracking record.
func (v *vehicle) record(recordID string, ts time.Time, eta *time.Time, env models.EnvironmentalData) models.TrackingRecord {
	var reportedAt *time.Time
	if !v.DelayReportedAt.IsZero() {
		t := v.DelayReportedAt
		reportedAt = &t
	}

	return models.TrackingRecord{
		RecordID:      recordID,
		DeviceID:      v.DeviceID,
		RouteID:       v.RouteID,
		VehicleID:     v.VehicleID,
		VehicleNumber: v.VehicleNumber,
		RecordedAt:    ts,
		Location: models.VehicleLocation{
			Latitude:  v.Position.Latitude,
			Longitude: v.Position.Longitude,
			SpeedKmh:  v.SpeedKmh,
			Heading:   v.heading(),
		},
		RouteProgress: models.RouteProgress{
			SegmentIndex:       v.Position.SegmentIndex,
			SegmentProgress:    v.Position.SegmentProgress,
			DistanceCoveredKm:  v.Position.DistanceCoveredKm,
			ProgressPercentage: v.Position.ProgressPercentage,
			ETA:                eta,
		},
		PassengerLoad: models.PassengerLoad{
			Current:        v.Passengers,
			Max:            v.Capacity,
			LoadPercentage: v.loadPercentage(),
		},
		Operational: models.OperationalInfo{
			Status: v.Status,
			Delay: models.DelayInfo{
				Minutes:    v.DelayMinutes,
				Reason:     v.DelayReason,
				ReportedAt: reportedAt,
			},
		},
		Environment: env,
	}
}
