package simulation

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Sri-Express/Backend-sub002/internal/models"
)

// snapshot converts a vehicle's current state into a tracking record.
// Caller holds the engine lock. Per-vehicle record timestamps strictly
// increase: a tick landing on the previous record's wall-clock instant
// is nudged forward a millisecond.
func (e *Engine) snapshot(v *vehicle, now time.Time) models.TrackingRecord {
	ts := now
	if !ts.After(v.lastRecordAt) {
		ts = v.lastRecordAt.Add(time.Millisecond)
	}
	v.lastRecordAt = ts

	var eta *time.Time
	if r, ok := e.catalog.Route(v.RouteID); ok {
		eta = e.eta(v, r, ts)
	}

	env := models.EnvironmentalData{
		Weather: e.weather,
		Traffic: e.trafficFor(v),
	}

	return v.record(uuid.New().String(), ts, eta, env)
}

// writeBatch persists one tick's snapshots. Writes are fire-and-forget
// from the tick's point of view: they run after the engine lock is
// released, in parallel across vehicles, each under its own timeout. A
// failed write is logged and dropped; the next tick retries with fresh
// data, so a store outage produces a gap rather than a backlog. Each
// vehicle appears at most once per batch, which keeps per-vehicle write
// ordering trivially monotonic.
func (e *Engine) writeBatch(batch []models.TrackingRecord) {
	g := new(errgroup.Group)
	g.SetLimit(8)

	for _, rec := range batch {
		rec := rec
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), e.cfg.StoreTimeout)
			defer cancel()

			if err := e.store.Append(ctx, rec); err != nil {
				log.Printf("tracking: append failed for %s: %v", rec.VehicleID, err)
			}
			return nil
		})
	}

	g.Wait()
}
