// Package store persists tracking records as an append-only history
// plus a materialized latest-per-vehicle view, and answers the read-side
// queries over both. Two backends are provided: SQLite (default) and
// Postgres, selected by configuration.
package store

import (
	"context"
	"time"

	"github.com/Sri-Express/Backend-sub002/internal/models"
)

// LatestFilter narrows a latest-positions query. Zero values mean "no
// filter"; Freshness must be positive, records older than it are
// considered offline and excluded.
type LatestFilter struct {
	RouteID   string
	Status    string
	Bounds    *models.Bounds
	Freshness time.Duration
	Limit     int
}

// Store is the tracking persistence collaborator. All operations honor
// the context deadline; callers bound them with timeouts so a slow
// backend degrades a single request instead of blocking the tick loop.
type Store interface {
	// Append writes one immutable record to the history and refreshes
	// the latest-per-vehicle view. The view only moves forward: a
	// record older than the current latest for its vehicle is kept in
	// history but does not regress the view.
	Append(ctx context.Context, rec models.TrackingRecord) error

	// LatestPositions returns the most recent record per vehicle
	// matching the filter, newest first.
	LatestPositions(ctx context.Context, f LatestFilter) ([]models.TrackingRecord, error)

	// VehicleHistory returns a vehicle's records within [from, to],
	// oldest first, capped at limit.
	VehicleHistory(ctx context.Context, vehicleID string, from, to time.Time, limit int) ([]models.TrackingRecord, error)

	// Analytics aggregates history within [from, to], optionally
	// restricted to one route: hourly status distribution, hourly
	// unique-vehicle volume, and period totals.
	Analytics(ctx context.Context, from, to time.Time, routeID string) (models.AnalyticsReport, error)

	// Cleanup deletes history older than the retention window and
	// returns the number of rows removed.
	Cleanup(ctx context.Context, retention time.Duration) (int64, error)

	// Ping probes backend connectivity.
	Ping(ctx context.Context) error

	Close() error
}

// recordColumns is the shared column order used by both backends for
// full-record selects and inserts.
const recordColumns = `record_id, device_id, route_id, vehicle_id, vehicle_number,
	recorded_at_utc, latitude, longitude, speed_kmh, heading,
	segment_index, segment_progress, distance_covered_km, progress_pct, eta_utc,
	passengers, capacity, load_pct,
	status, delay_minutes, delay_reason, delay_reported_at_utc,
	weather, traffic`
