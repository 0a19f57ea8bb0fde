package simulation

import (
	"fmt"
	"sort"
	"time"

	"github.com/Sri-Express/Backend-sub002/internal/models"
)

// Per-vehicle control operations. Each one takes the engine lock, so it
// is mutually exclusive with the tick's mutation pass, validates its
// input before touching state, and returns the resulting vehicle status.

const maxVehicleSpeedKmh = 120

// Vehicles lists all simulated vehicles ordered by id.
func (e *Engine) Vehicles() []models.VehicleStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]models.VehicleStatus, 0, len(e.vehicles))
	for _, v := range e.vehicles {
		out = append(out, v.status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VehicleID < out[j].VehicleID })
	return out
}

// Vehicle returns the status of one vehicle.
func (e *Engine) Vehicle(vehicleID string) (models.VehicleStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, err := e.lookup(vehicleID)
	if err != nil {
		return models.VehicleStatus{}, err
	}
	return v.status(), nil
}

// PauseVehicle freezes a vehicle in place. Snapshots keep flowing so
// the vehicle stays visible to live queries.
func (e *Engine) PauseVehicle(vehicleID string) (models.VehicleStatus, error) {
	return e.mutate(vehicleID, func(v *vehicle) error {
		v.Paused = true
		return nil
	})
}

// ResumeVehicle clears a pause or a breakdown. Breakdown never clears
// with time; this is the only way back.
func (e *Engine) ResumeVehicle(vehicleID string) (models.VehicleStatus, error) {
	return e.mutate(vehicleID, func(v *vehicle) error {
		v.Paused = false
		if v.Status == models.StatusBreakdown {
			v.Status = models.StatusOnRoute
			v.DelayMinutes = 0
			v.DelayReason = ""
			v.DelayReportedAt = time.Time{}
		}
		return nil
	})
}

// SetVehicleSpeed sets a vehicle's cruising speed in km/h.
func (e *Engine) SetVehicleSpeed(vehicleID string, speedKmh float64) (models.VehicleStatus, error) {
	if speedKmh < 0 || speedKmh > maxVehicleSpeedKmh {
		return models.VehicleStatus{}, fmt.Errorf("%w: speed %.1f km/h outside [0, %d]",
			models.ErrInvalidInput, speedKmh, maxVehicleSpeedKmh)
	}
	return e.mutate(vehicleID, func(v *vehicle) error {
		v.SpeedKmh = speedKmh
		return nil
	})
}

// SetPassengers sets the current passenger count, bounded by capacity.
func (e *Engine) SetPassengers(vehicleID string, passengers int) (models.VehicleStatus, error) {
	return e.mutate(vehicleID, func(v *vehicle) error {
		if passengers < 0 || passengers > v.Capacity {
			return fmt.Errorf("%w: passengers %d outside [0, %d]",
				models.ErrInvalidInput, passengers, v.Capacity)
		}
		v.Passengers = passengers
		return nil
	})
}

// SetDelay sets the current delay in minutes and toggles the
// delayed/on_route status accordingly. Breakdown status is preserved.
func (e *Engine) SetDelay(vehicleID string, minutes float64, reason string) (models.VehicleStatus, error) {
	if minutes < 0 {
		return models.VehicleStatus{}, fmt.Errorf("%w: delay must be non-negative", models.ErrInvalidInput)
	}
	return e.mutate(vehicleID, func(v *vehicle) error {
		v.DelayMinutes = minutes
		v.DelayReason = reason
		if minutes > 0 {
			v.DelayReportedAt = time.Now().UTC()
		} else {
			v.DelayReportedAt = time.Time{}
			v.DelayReason = ""
		}
		if v.Status != models.StatusBreakdown {
			if minutes > e.cfg.DelayThresholdMinutes {
				v.Status = models.StatusDelayed
			} else {
				v.Status = models.StatusOnRoute
			}
		}
		return nil
	})
}

// ForceBreakdown puts a vehicle into breakdown. The vehicle holds
// position and reports a delay of at least the configured breakdown
// floor until an explicit resume.
func (e *Engine) ForceBreakdown(vehicleID string, reason string) (models.VehicleStatus, error) {
	if reason == "" {
		reason = "mechanical failure"
	}
	return e.mutate(vehicleID, func(v *vehicle) error {
		v.Status = models.StatusBreakdown
		v.DelayReason = reason
		v.DelayReportedAt = time.Now().UTC()
		if v.DelayMinutes < e.cfg.BreakdownDelayMinutes {
			v.DelayMinutes = e.cfg.BreakdownDelayMinutes
		}
		return nil
	})
}

// mutate runs fn on the vehicle under the engine lock and returns the
// resulting status. State is only mutated when fn succeeds.
func (e *Engine) mutate(vehicleID string, fn func(*vehicle) error) (models.VehicleStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, err := e.lookup(vehicleID)
	if err != nil {
		return models.VehicleStatus{}, err
	}
	if err := fn(v); err != nil {
		return models.VehicleStatus{}, err
	}
	v.updatedAt = time.Now().UTC()
	return v.status(), nil
}

func (e *Engine) lookup(vehicleID string) (*vehicle, error) {
	if !e.running && len(e.vehicles) == 0 {
		return nil, models.ErrEngineNotRunning
	}
	v, ok := e.vehicles[vehicleID]
	if !ok {
		return nil, fmt.Errorf("%w: vehicle %s", models.ErrNotFound, vehicleID)
	}
	return v, nil
}
