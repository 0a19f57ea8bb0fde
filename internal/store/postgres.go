package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Sri-Express/Backend-sub002/internal/models"
)

// postgresSchema mirrors schema.sql with native timestamp columns.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS tracking_history (
    record_id             TEXT PRIMARY KEY,
    device_id             TEXT NOT NULL,
    route_id              TEXT NOT NULL,
    vehicle_id            TEXT NOT NULL,
    vehicle_number        TEXT NOT NULL,
    recorded_at_utc       TIMESTAMPTZ NOT NULL,
    latitude              DOUBLE PRECISION NOT NULL,
    longitude             DOUBLE PRECISION NOT NULL,
    speed_kmh             DOUBLE PRECISION NOT NULL,
    heading               DOUBLE PRECISION NOT NULL,
    segment_index         INTEGER NOT NULL,
    segment_progress      DOUBLE PRECISION NOT NULL,
    distance_covered_km   DOUBLE PRECISION NOT NULL,
    progress_pct          DOUBLE PRECISION NOT NULL,
    eta_utc               TIMESTAMPTZ,
    passengers            INTEGER NOT NULL,
    capacity              INTEGER NOT NULL,
    load_pct              DOUBLE PRECISION NOT NULL,
    status                TEXT NOT NULL,
    delay_minutes         DOUBLE PRECISION NOT NULL,
    delay_reason          TEXT,
    delay_reported_at_utc TIMESTAMPTZ,
    weather               TEXT,
    traffic               TEXT
);

CREATE INDEX IF NOT EXISTS idx_tracking_history_vehicle_time
    ON tracking_history (vehicle_id, recorded_at_utc);

CREATE INDEX IF NOT EXISTS idx_tracking_history_route_time
    ON tracking_history (route_id, recorded_at_utc);

CREATE TABLE IF NOT EXISTS tracking_latest (
    vehicle_id            TEXT PRIMARY KEY,
    record_id             TEXT NOT NULL,
    device_id             TEXT NOT NULL,
    route_id              TEXT NOT NULL,
    vehicle_number        TEXT NOT NULL,
    recorded_at_utc       TIMESTAMPTZ NOT NULL,
    latitude              DOUBLE PRECISION NOT NULL,
    longitude             DOUBLE PRECISION NOT NULL,
    speed_kmh             DOUBLE PRECISION NOT NULL,
    heading               DOUBLE PRECISION NOT NULL,
    segment_index         INTEGER NOT NULL,
    segment_progress      DOUBLE PRECISION NOT NULL,
    distance_covered_km   DOUBLE PRECISION NOT NULL,
    progress_pct          DOUBLE PRECISION NOT NULL,
    eta_utc               TIMESTAMPTZ,
    passengers            INTEGER NOT NULL,
    capacity              INTEGER NOT NULL,
    load_pct              DOUBLE PRECISION NOT NULL,
    status                TEXT NOT NULL,
    delay_minutes         DOUBLE PRECISION NOT NULL,
    delay_reason          TEXT,
    delay_reported_at_utc TIMESTAMPTZ,
    weather               TEXT,
    traffic               TEXT,
    updated_at            TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tracking_latest_route
    ON tracking_latest (route_id);
`

// PostgresStore is the Postgres tracking store backend, selected when
// DATABASE_URL is configured.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to Postgres and ensures the schema exists.
func NewPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Ping probes database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Append inserts the record into the history log and refreshes the
// latest-per-vehicle view.
func (s *PostgresStore) Append(ctx context.Context, rec models.TrackingRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	args := []interface{}{
		rec.RecordID, rec.DeviceID, rec.RouteID, rec.VehicleID, rec.VehicleNumber,
		rec.RecordedAt.UTC(), rec.Location.Latitude, rec.Location.Longitude,
		rec.Location.SpeedKmh, rec.Location.Heading,
		rec.RouteProgress.SegmentIndex, rec.RouteProgress.SegmentProgress,
		rec.RouteProgress.DistanceCoveredKm, rec.RouteProgress.ProgressPercentage, rec.RouteProgress.ETA,
		rec.PassengerLoad.Current, rec.PassengerLoad.Max, rec.PassengerLoad.LoadPercentage,
		rec.Operational.Status, rec.Operational.Delay.Minutes, rec.Operational.Delay.Reason, rec.Operational.Delay.ReportedAt,
		rec.Environment.Weather, rec.Environment.Traffic,
	}

	historyQuery := fmt.Sprintf(`
		INSERT INTO tracking_history (%s)
		VALUES (%s)
		ON CONFLICT (record_id) DO NOTHING
	`, recordColumns, placeholders(24))
	if _, err := tx.Exec(ctx, historyQuery, args...); err != nil {
		return fmt.Errorf("failed to insert history for %s: %w", rec.VehicleID, err)
	}

	latestQuery := fmt.Sprintf(`
		INSERT INTO tracking_latest (vehicle_id, %s, updated_at)
		VALUES ($25, %s, NOW())
		ON CONFLICT (vehicle_id) DO UPDATE SET
			record_id = excluded.record_id,
			device_id = excluded.device_id,
			route_id = excluded.route_id,
			vehicle_number = excluded.vehicle_number,
			recorded_at_utc = excluded.recorded_at_utc,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			speed_kmh = excluded.speed_kmh,
			heading = excluded.heading,
			segment_index = excluded.segment_index,
			segment_progress = excluded.segment_progress,
			distance_covered_km = excluded.distance_covered_km,
			progress_pct = excluded.progress_pct,
			eta_utc = excluded.eta_utc,
			passengers = excluded.passengers,
			capacity = excluded.capacity,
			load_pct = excluded.load_pct,
			status = excluded.status,
			delay_minutes = excluded.delay_minutes,
			delay_reason = excluded.delay_reason,
			delay_reported_at_utc = excluded.delay_reported_at_utc,
			weather = excluded.weather,
			traffic = excluded.traffic,
			updated_at = excluded.updated_at
		WHERE excluded.recorded_at_utc > tracking_latest.recorded_at_utc
	`, recordColumns, placeholders(24))

	latestArgs := append(append([]interface{}{}, args...), rec.VehicleID)
	if _, err := tx.Exec(ctx, latestQuery, latestArgs...); err != nil {
		return fmt.Errorf("failed to upsert latest for %s: %w", rec.VehicleID, err)
	}

	return tx.Commit(ctx)
}

// LatestPositions returns the freshest record per vehicle matching the filter.
func (s *PostgresStore) LatestPositions(ctx context.Context, f LatestFilter) ([]models.TrackingRecord, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM tracking_latest WHERE 1=1", recordColumns)
	var args []interface{}

	if f.Freshness > 0 {
		args = append(args, time.Now().UTC().Add(-f.Freshness))
		fmt.Fprintf(&sb, " AND recorded_at_utc > $%d", len(args))
	}
	if f.RouteID != "" {
		args = append(args, f.RouteID)
		fmt.Fprintf(&sb, " AND route_id = $%d", len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		fmt.Fprintf(&sb, " AND status = $%d", len(args))
	}
	if f.Bounds != nil {
		args = append(args, f.Bounds.MinLat, f.Bounds.MaxLat, f.Bounds.MinLon, f.Bounds.MaxLon)
		fmt.Fprintf(&sb, " AND latitude BETWEEN $%d AND $%d AND longitude BETWEEN $%d AND $%d",
			len(args)-3, len(args)-2, len(args)-1, len(args))
	}
	sb.WriteString(" ORDER BY recorded_at_utc DESC")
	if f.Limit > 0 {
		args = append(args, f.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest positions: %w", err)
	}
	defer rows.Close()

	return scanRecordsPgx(rows)
}

// VehicleHistory returns the vehicle's records within [from, to], oldest first.
func (s *PostgresStore) VehicleHistory(ctx context.Context, vehicleID string, from, to time.Time, limit int) ([]models.TrackingRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM tracking_history
		WHERE vehicle_id = $1 AND recorded_at_utc >= $2 AND recorded_at_utc <= $3
		ORDER BY recorded_at_utc ASC
		LIMIT $4
	`, recordColumns)

	rows, err := s.pool.Query(ctx, query, vehicleID, from.UTC(), to.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query vehicle history: %w", err)
	}
	defer rows.Close()

	return scanRecordsPgx(rows)
}

// Analytics aggregates history within [from, to] by hour bucket.
func (s *PostgresStore) Analytics(ctx context.Context, from, to time.Time, routeID string) (models.AnalyticsReport, error) {
	report := models.AnalyticsReport{
		From:    from.UTC(),
		To:      to.UTC(),
		RouteID: routeID,
	}

	routeClause := ""
	baseArgs := []interface{}{from.UTC(), to.UTC()}
	if routeID != "" {
		routeClause = " AND route_id = $3"
		baseArgs = append(baseArgs, routeID)
	}

	statusQuery := `
		SELECT date_trunc('hour', recorded_at_utc) AS bucket,
			status,
			COUNT(*),
			AVG(speed_kmh),
			AVG(delay_minutes),
			AVG(load_pct)
		FROM tracking_history
		WHERE recorded_at_utc >= $1 AND recorded_at_utc <= $2` + routeClause + `
		GROUP BY bucket, status
		ORDER BY bucket ASC, status ASC
	`
	rows, err := s.pool.Query(ctx, statusQuery, baseArgs...)
	if err != nil {
		return report, fmt.Errorf("failed to query status distribution: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var b models.StatusBucket
		if err := rows.Scan(&b.Bucket, &b.Status, &b.Count, &b.AvgSpeedKmh, &b.AvgDelayMinutes, &b.AvgLoadPercent); err != nil {
			return report, fmt.Errorf("failed to scan status bucket: %w", err)
		}
		report.StatusBuckets = append(report.StatusBuckets, b)
	}
	if err := rows.Err(); err != nil {
		return report, fmt.Errorf("error iterating status buckets: %w", err)
	}

	volumeQuery := `
		SELECT date_trunc('hour', recorded_at_utc) AS bucket,
			COUNT(DISTINCT vehicle_id)
		FROM tracking_history
		WHERE recorded_at_utc >= $1 AND recorded_at_utc <= $2` + routeClause + `
		GROUP BY bucket
		ORDER BY bucket ASC
	`
	volRows, err := s.pool.Query(ctx, volumeQuery, baseArgs...)
	if err != nil {
		return report, fmt.Errorf("failed to query hourly volume: %w", err)
	}
	defer volRows.Close()

	for volRows.Next() {
		var v models.VolumeBucket
		if err := volRows.Scan(&v.Bucket, &v.UniqueVehicles); err != nil {
			return report, fmt.Errorf("failed to scan volume bucket: %w", err)
		}
		report.HourlyVolume = append(report.HourlyVolume, v)
	}
	if err := volRows.Err(); err != nil {
		return report, fmt.Errorf("error iterating volume buckets: %w", err)
	}

	totalsQuery := `
		SELECT COUNT(*),
			COUNT(DISTINCT vehicle_id),
			COALESCE(AVG(speed_kmh), 0),
			COALESCE(AVG(delay_minutes), 0),
			COALESCE(AVG(load_pct), 0)
		FROM tracking_history
		WHERE recorded_at_utc >= $1 AND recorded_at_utc <= $2` + routeClause
	err = s.pool.QueryRow(ctx, totalsQuery, baseArgs...).Scan(
		&report.Totals.RecordCount,
		&report.Totals.UniqueVehicles,
		&report.Totals.AvgSpeedKmh,
		&report.Totals.AvgDelayMinutes,
		&report.Totals.AvgLoadPercent,
	)
	if err != nil {
		return report, fmt.Errorf("failed to query analytics totals: %w", err)
	}

	return report, nil
}

// Cleanup deletes history and stale latest rows older than retention.
func (s *PostgresStore) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)

	var total int64
	for _, q := range []string{
		"DELETE FROM tracking_history WHERE recorded_at_utc < $1",
		"DELETE FROM tracking_latest WHERE recorded_at_utc < $1",
	} {
		tag, err := s.pool.Exec(ctx, q, cutoff)
		if err != nil {
			return total, fmt.Errorf("failed to cleanup: %w", err)
		}
		total += tag.RowsAffected()
	}

	return total, nil
}

func scanRecordsPgx(rows pgx.Rows) ([]models.TrackingRecord, error) {
	var records []models.TrackingRecord
	for rows.Next() {
		var rec models.TrackingRecord
		var reason, weather, traffic *string

		err := rows.Scan(
			&rec.RecordID, &rec.DeviceID, &rec.RouteID, &rec.VehicleID, &rec.VehicleNumber,
			&rec.RecordedAt, &rec.Location.Latitude, &rec.Location.Longitude,
			&rec.Location.SpeedKmh, &rec.Location.Heading,
			&rec.RouteProgress.SegmentIndex, &rec.RouteProgress.SegmentProgress,
			&rec.RouteProgress.DistanceCoveredKm, &rec.RouteProgress.ProgressPercentage, &rec.RouteProgress.ETA,
			&rec.PassengerLoad.Current, &rec.PassengerLoad.Max, &rec.PassengerLoad.LoadPercentage,
			&rec.Operational.Status, &rec.Operational.Delay.Minutes, &reason, &rec.Operational.Delay.ReportedAt,
			&weather, &traffic,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tracking record: %w", err)
		}

		if reason != nil {
			rec.Operational.Delay.Reason = *reason
		}
		if weather != nil {
			rec.Environment.Weather = *weather
		}
		if traffic != nil {
			rec.Environment.Traffic = *traffic
		}

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tracking records: %w", err)
	}

	return records, nil
}

// placeholders renders "$1, $2, ... $n".
func placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", i+1)
	}
	return strings.Join(parts, ", ")
}
