// Package simulation implements the fleet position simulation engine:
// a tick-driven state machine that advances every simulated vehicle
// along its route polyline and snapshots the result into the tracking
// store. The engine is an explicit object constructed once at process
// start and handed to the serving layer; it holds no package state.
package simulation

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/Sri-Express/Backend-sub002/internal/config"
	"github.com/Sri-Express/Backend-sub002/internal/fleet"
	"github.com/Sri-Express/Backend-sub002/internal/models"
	"github.com/Sri-Express/Backend-sub002/internal/route"
	"github.com/Sri-Express/Backend-sub002/internal/store"
)

var weatherStates = []string{"clear", "cloudy", "light_rain", "heavy_rain"}

// Engine owns the tick loop, the speed multiplier, and the shared
// vehicle state map. All mutation happens under mu: the tick's advance
// pass and every control operation are mutually exclusive, so a caller
// never observes a half-updated vehicle. Successive ticks cannot
// overlap because the loop goroutine runs them sequentially.
type Engine struct {
	cfg         *config.Config
	catalog     *route.Catalog
	assignments []fleet.Assignment
	store       store.Store

	mu         sync.Mutex
	rng        *rand.Rand
	vehicles   map[string]*vehicle
	running    bool
	multiplier float64
	startedAt  time.Time
	weather    string
	cancel     context.CancelFunc
}

// New constructs a stopped engine. A zero seed derives one from the
// wall clock; tests pass a fixed seed for reproducible runs.
func New(cfg *config.Config, catalog *route.Catalog, assignments []fleet.Assignment, st store.Store) *Engine {
	seed := cfg.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	multiplier := cfg.SpeedMultiplier
	if multiplier < config.MinSpeedMultiplier || multiplier > config.MaxSpeedMultiplier {
		multiplier = 1
	}

	return &Engine{
		cfg:         cfg,
		catalog:     catalog,
		assignments: assignments,
		store:       st,
		rng:         rand.New(rand.NewSource(seed)),
		vehicles:    make(map[string]*vehicle),
		multiplier:  multiplier,
		weather:     "clear",
	}
}

// Start initializes one simulated vehicle per configured vehicle-route
// assignment and begins ticking. Starting a running engine is a no-op
// that returns the current status.
func (e *Engine) Start() models.EngineStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return e.statusLocked()
	}

	e.vehicles = make(map[string]*vehicle, len(e.assignments))
	perRoute := make(map[string]int)
	for _, a := range e.assignments {
		r, ok := e.catalog.Route(a.RouteID)
		if !ok {
			log.Printf("simulation: skipping %s: unknown route %s", a.DeviceID, a.RouteID)
			continue
		}

		speed := a.CruiseSpeedKmh
		if speed <= 0 {
			speed = e.cfg.DefaultSpeedKmh
		}

		// Vehicles sharing a route start staggered along it so the
		// demo fleet does not pile up at the first waypoint.
		offset := float64(perRoute[a.RouteID]) * r.LengthKm() / 4
		offset = math.Mod(offset, math.Max(r.LengthKm(), 1))
		perRoute[a.RouteID]++

		v := &vehicle{
			VehicleID:     fmt.Sprintf("%s-%s", a.RouteID, a.VehicleNumber),
			DeviceID:      a.DeviceID,
			VehicleNumber: a.VehicleNumber,
			RouteID:       a.RouteID,
			Type:          a.VehicleType,
			Capacity:      r.Vehicle.Capacity,
			Passengers:    e.rng.Intn(r.Vehicle.Capacity + 1),
			SpeedKmh:      speed,
			DistanceKm:    offset,
			Direction:     1,
			Status:        models.StatusOnRoute,
			updatedAt:     time.Now().UTC(),
		}
		v.Position = r.PositionAt(v.DistanceKm)
		e.vehicles[v.VehicleID] = v
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.running = true
	e.startedAt = time.Now().UTC()

	go e.run(ctx)

	log.Printf("simulation: started with %d vehicles (tick %v, multiplier %.1f)",
		len(e.vehicles), e.cfg.TickInterval, e.multiplier)
	return e.statusLocked()
}

// Stop halts future ticks. An in-flight tick finishes; in-memory
// vehicle state is retained until Reset.
func (e *Engine) Stop() models.EngineStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		e.cancel()
		e.cancel = nil
		e.running = false
		log.Println("simulation: stopped")
	}
	return e.statusLocked()
}

// Reset stops the engine and discards all vehicle state.
func (e *Engine) Reset() models.EngineStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		e.cancel()
		e.cancel = nil
		e.running = false
	}
	e.vehicles = make(map[string]*vehicle)
	e.startedAt = time.Time{}
	log.Println("simulation: reset")
	return e.statusLocked()
}

// SetSpeed updates the speed multiplier. The multiplier scales the
// simulated distance covered per tick, not the wall-clock cadence. It
// may be set while stopped and takes effect on the next start.
func (e *Engine) SetSpeed(m float64) (models.EngineStatus, error) {
	if m < config.MinSpeedMultiplier || m > config.MaxSpeedMultiplier {
		return models.EngineStatus{}, fmt.Errorf("%w: speed multiplier %.2f outside [%.1f, %.1f]",
			models.ErrInvalidInput, m, config.MinSpeedMultiplier, config.MaxSpeedMultiplier)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.multiplier = m
	return e.statusLocked(), nil
}

// Status reports the engine lifecycle state.
func (e *Engine) Status() models.EngineStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statusLocked()
}

func (e *Engine) statusLocked() models.EngineStatus {
	st := models.EngineStatus{
		IsRunning:       e.running,
		SpeedMultiplier: e.multiplier,
		VehicleCount:    len(e.vehicles),
		TickInterval:    e.cfg.TickInterval.String(),
		EndOfRoute:      e.cfg.EndOfRoutePolicy,
	}
	if !e.startedAt.IsZero() {
		t := e.startedAt
		st.StartedAt = &t
	}
	return st
}

func (e *Engine) run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.Tick(time.Now().UTC())
		case <-ctx.Done():
			return
		}
	}
}

// Tick advances every vehicle by one simulation step and hands the
// resulting snapshot batch to the writer. Exported so tests can drive
// the engine without waiting on the wall clock.
func (e *Engine) Tick(now time.Time) {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}

	e.drift()

	// Walk the fleet in id order so the shared rng hands out the same
	// draws to the same vehicles on every run with a fixed seed.
	ids := make([]string, 0, len(e.vehicles))
	for id := range e.vehicles {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	batch := make([]models.TrackingRecord, 0, len(e.vehicles))
	for _, id := range ids {
		v := e.vehicles[id]
		if err := e.advance(v, now); err != nil {
			// One vehicle's failure never aborts the tick for the
			// rest: its state is frozen for this round and skipped.
			log.Printf("simulation: tick failed for %s: %v", v.VehicleID, err)
			continue
		}
		batch = append(batch, e.snapshot(v, now))
	}
	e.mu.Unlock()

	if len(batch) > 0 {
		go e.writeBatch(batch)
	}
}

// advance moves one vehicle along its route and updates its status.
// Paused and broken-down vehicles hold position but still snapshot, so
// they stay visible to live queries instead of going stale.
func (e *Engine) advance(v *vehicle, now time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic advancing vehicle: %v", r)
		}
	}()

	r, ok := e.catalog.Route(v.RouteID)
	if !ok {
		return fmt.Errorf("route %s not in catalog", v.RouteID)
	}

	if v.Paused || v.Status == models.StatusBreakdown {
		v.updatedAt = now
		return nil
	}

	deltaKm := v.SpeedKmh * e.cfg.TickInterval.Hours() * e.multiplier
	wasAtStop := v.Status == models.StatusAtStop

	e.move(v, r, deltaKm)
	e.perturbDelay(v, now)
	e.applyStatus(v, wasAtStop)

	v.updatedAt = now
	return nil
}

// move applies a distance delta to the vehicle, handling the end of the
// polyline per the configured policy: loop wraps back to the start,
// reverse flips the travel direction. Landing exactly on the route end
// clamps to the final waypoint for this tick.
func (e *Engine) move(v *vehicle, r *route.Route, deltaKm float64) {
	total := r.LengthKm()
	if total <= 0 {
		v.Position = r.PositionAt(0)
		return
	}

	d := v.DistanceKm + float64(v.Direction)*deltaKm

	switch {
	case d >= 0 && d <= total:
		v.DistanceKm = d
	case d > total:
		switch e.cfg.EndOfRoutePolicy {
		case config.EndPolicyReverse:
			over := math.Mod(d-total, 2*total)
			if over <= total {
				v.DistanceKm = total - over
				v.Direction = -v.Direction
			} else {
				v.DistanceKm = over - total
			}
		default: // loop
			v.DistanceKm = math.Mod(d, total)
		}
	default: // d < 0, only reachable on the reverse return leg
		under := math.Mod(-d, 2*total)
		if under <= total {
			v.DistanceKm = under
			v.Direction = -v.Direction
		} else {
			v.DistanceKm = 2*total - under
		}
	}

	v.Position = r.PositionAt(v.DistanceKm)
}

// perturbDelay applies a bounded random walk to the vehicle's delay,
// standing in for traffic conditions.
func (e *Engine) perturbDelay(v *vehicle, now time.Time) {
	jitter := (e.rng.Float64()*2 - 1) * e.cfg.DelayJitterMinutes
	next := route.Clamp(v.DelayMinutes+jitter, 0, e.cfg.MaxDelayMinutes)
	if next > 0 && v.DelayMinutes == 0 {
		v.DelayReason = "traffic congestion"
		v.DelayReportedAt = now
	}
	if next == 0 {
		v.DelayReason = ""
		v.DelayReportedAt = time.Time{}
	}
	v.DelayMinutes = next
}

// applyStatus runs the on_route / at_stop / delayed edges. Breakdown is
// never entered or left here; only control actions touch it.
func (e *Engine) applyStatus(v *vehicle, wasAtStop bool) {
	if v.Status == models.StatusBreakdown {
		return
	}

	if v.DelayMinutes > e.cfg.DelayThresholdMinutes {
		v.Status = models.StatusDelayed
		return
	}

	atStop := v.Position.AtEnd ||
		v.Position.DistanceIntoSegmentKm <= e.cfg.StopRadiusKm ||
		v.Position.SegmentLengthKm-v.Position.DistanceIntoSegmentKm <= e.cfg.StopRadiusKm

	if atStop {
		if !wasAtStop {
			e.churnPassengers(v)
		}
		v.Status = models.StatusAtStop
	} else {
		v.Status = models.StatusOnRoute
	}
}

// churnPassengers exchanges a bounded random number of passengers when
// the vehicle pulls into a stop.
func (e *Engine) churnPassengers(v *vehicle) {
	if v.Capacity <= 0 {
		return
	}
	swing := v.Capacity/4 + 1
	delta := e.rng.Intn(2*swing+1) - swing
	next := v.Passengers + delta
	if next < 0 {
		next = 0
	}
	if next > v.Capacity {
		next = v.Capacity
	}
	v.Passengers = next
}

// drift occasionally shifts the engine-wide synthetic weather.
func (e *Engine) drift() {
	if e.rng.Float64() < 0.02 {
		e.weather = weatherStates[e.rng.Intn(len(weatherStates))]
	}
}

// eta estimates arrival at the end of the current traversal leg.
func (e *Engine) eta(v *vehicle, r *route.Route, ts time.Time) *time.Time {
	remaining := r.LengthKm() - v.DistanceKm
	if v.Direction < 0 {
		remaining = v.DistanceKm
	}
	effective := v.SpeedKmh * e.multiplier
	if effective <= 0 || remaining < 0 {
		return nil
	}
	t := ts.Add(time.Duration(remaining / effective * float64(time.Hour)))
	return &t
}

func (e *Engine) trafficFor(v *vehicle) string {
	switch {
	case v.DelayMinutes > e.cfg.DelayThresholdMinutes:
		return "heavy"
	case v.DelayMinutes > 2:
		return "moderate"
	default:
		return "light"
	}
}
