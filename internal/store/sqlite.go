package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Sri-Express/Backend-sub002/internal/models"
)

// schemaSQL is the single source of truth for the SQLite schema,
// embedded at compile time.
//
//go:embed schema.sql
var schemaSQL string

// timeLayout is RFC3339 with fixed millisecond precision. The fixed
// width keeps lexicographic ordering of stored strings consistent with
// chronological ordering, which the index range scans rely on.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// SQLiteStore is the default tracking store backend.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex // serializes writes; SQLite allows one writer at a time
}

// NewSQLite opens (creating if needed) a SQLite tracking store with WAL
// mode enabled and ensures the schema exists.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	dsn := dbPath + "?_journal=WAL&_fk=1&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = 10000",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			log.Printf("Warning: failed to set %s: %v", pragma, err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.ensureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) ensureSchema(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping probes database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Append inserts the record into the history log and refreshes the
// latest-per-vehicle view. The upsert only applies when the incoming
// record is newer than the stored one, so out-of-order ingest cannot
// regress the view.
func (s *SQLiteStore) Append(ctx context.Context, rec models.TrackingRecord) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	recordedAt := rec.RecordedAt.UTC().Format(timeLayout)
	var etaStr, reportedAtStr *string
	if rec.RouteProgress.ETA != nil {
		v := rec.RouteProgress.ETA.UTC().Format(timeLayout)
		etaStr = &v
	}
	if rec.Operational.Delay.ReportedAt != nil {
		v := rec.Operational.Delay.ReportedAt.UTC().Format(timeLayout)
		reportedAtStr = &v
	}

	args := []interface{}{
		rec.RecordID, rec.DeviceID, rec.RouteID, rec.VehicleID, rec.VehicleNumber,
		recordedAt, rec.Location.Latitude, rec.Location.Longitude, rec.Location.SpeedKmh, rec.Location.Heading,
		rec.RouteProgress.SegmentIndex, rec.RouteProgress.SegmentProgress,
		rec.RouteProgress.DistanceCoveredKm, rec.RouteProgress.ProgressPercentage, etaStr,
		rec.PassengerLoad.Current, rec.PassengerLoad.Max, rec.PassengerLoad.LoadPercentage,
		rec.Operational.Status, rec.Operational.Delay.Minutes, rec.Operational.Delay.Reason, reportedAtStr,
		rec.Environment.Weather, rec.Environment.Traffic,
	}

	historyQuery := fmt.Sprintf(`
		INSERT OR IGNORE INTO tracking_history (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, recordColumns)
	if _, err := tx.ExecContext(ctx, historyQuery, args...); err != nil {
		return fmt.Errorf("failed to insert history for %s: %w", rec.VehicleID, err)
	}

	latestQuery := fmt.Sprintf(`
		INSERT INTO tracking_latest (vehicle_id, %s, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
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
	`, recordColumns)

	latestArgs := append([]interface{}{rec.VehicleID}, args...)
	latestArgs = append(latestArgs, time.Now().UTC().Format(timeLayout))
	if _, err := tx.ExecContext(ctx, latestQuery, latestArgs...); err != nil {
		return fmt.Errorf("failed to upsert latest for %s: %w", rec.VehicleID, err)
	}

	return tx.Commit()
}

// LatestPositions returns the freshest record per vehicle matching the filter.
func (s *SQLiteStore) LatestPositions(ctx context.Context, f LatestFilter) ([]models.TrackingRecord, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM tracking_latest WHERE 1=1", recordColumns)
	var args []interface{}

	if f.Freshness > 0 {
		sb.WriteString(" AND recorded_at_utc > ?")
		args = append(args, time.Now().UTC().Add(-f.Freshness).Format(timeLayout))
	}
	if f.RouteID != "" {
		sb.WriteString(" AND route_id = ?")
		args = append(args, f.RouteID)
	}
	if f.Status != "" {
		sb.WriteString(" AND status = ?")
		args = append(args, f.Status)
	}
	if f.Bounds != nil {
		sb.WriteString(" AND latitude BETWEEN ? AND ? AND longitude BETWEEN ? AND ?")
		args = append(args, f.Bounds.MinLat, f.Bounds.MaxLat, f.Bounds.MinLon, f.Bounds.MaxLon)
	}
	sb.WriteString(" ORDER BY recorded_at_utc DESC")
	if f.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest positions: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// VehicleHistory returns the vehicle's records within [from, to], oldest first.
func (s *SQLiteStore) VehicleHistory(ctx context.Context, vehicleID string, from, to time.Time, limit int) ([]models.TrackingRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM tracking_history
		WHERE vehicle_id = ? AND recorded_at_utc >= ? AND recorded_at_utc <= ?
		ORDER BY recorded_at_utc ASC
		LIMIT ?
	`, recordColumns)

	rows, err := s.db.QueryContext(ctx, query,
		vehicleID,
		from.UTC().Format(timeLayout),
		to.UTC().Format(timeLayout),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query vehicle history: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Analytics aggregates history within [from, to] by hour bucket.
func (s *SQLiteStore) Analytics(ctx context.Context, from, to time.Time, routeID string) (models.AnalyticsReport, error) {
	report := models.AnalyticsReport{
		From:    from.UTC(),
		To:      to.UTC(),
		RouteID: routeID,
	}

	fromStr := from.UTC().Format(timeLayout)
	toStr := to.UTC().Format(timeLayout)

	routeClause := ""
	baseArgs := []interface{}{fromStr, toStr}
	if routeID != "" {
		routeClause = " AND route_id = ?"
		baseArgs = append(baseArgs, routeID)
	}

	statusQuery := `
		SELECT strftime('%Y-%m-%dT%H:00:00Z', recorded_at_utc) AS bucket,
			status,
			COUNT(*),
			AVG(speed_kmh),
			AVG(delay_minutes),
			AVG(load_pct)
		FROM tracking_history
		WHERE recorded_at_utc >= ? AND recorded_at_utc <= ?` + routeClause + `
		GROUP BY bucket, status
		ORDER BY bucket ASC, status ASC
	`
	rows, err := s.db.QueryContext(ctx, statusQuery, baseArgs...)
	if err != nil {
		return report, fmt.Errorf("failed to query status distribution: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var bucketStr string
		var b models.StatusBucket
		if err := rows.Scan(&bucketStr, &b.Status, &b.Count, &b.AvgSpeedKmh, &b.AvgDelayMinutes, &b.AvgLoadPercent); err != nil {
			return report, fmt.Errorf("failed to scan status bucket: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, bucketStr); err == nil {
			b.Bucket = t
		}
		report.StatusBuckets = append(report.StatusBuckets, b)
	}
	if err := rows.Err(); err != nil {
		return report, fmt.Errorf("error iterating status buckets: %w", err)
	}

	volumeQuery := `
		SELECT strftime('%Y-%m-%dT%H:00:00Z', recorded_at_utc) AS bucket,
			COUNT(DISTINCT vehicle_id)
		FROM tracking_history
		WHERE recorded_at_utc >= ? AND recorded_at_utc <= ?` + routeClause + `
		GROUP BY bucket
		ORDER BY bucket ASC
	`
	volRows, err := s.db.QueryContext(ctx, volumeQuery, baseArgs...)
	if err != nil {
		return report, fmt.Errorf("failed to query hourly volume: %w", err)
	}
	defer volRows.Close()

	for volRows.Next() {
		var bucketStr string
		var v models.VolumeBucket
		if err := volRows.Scan(&bucketStr, &v.UniqueVehicles); err != nil {
			return report, fmt.Errorf("failed to scan volume bucket: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, bucketStr); err == nil {
			v.Bucket = t
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
		WHERE recorded_at_utc >= ? AND recorded_at_utc <= ?` + routeClause
	err = s.db.QueryRowContext(ctx, totalsQuery, baseArgs...).Scan(
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
func (s *SQLiteStore) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cutoff := time.Now().UTC().Add(-retention).Format(timeLayout)

	var total int64
	for _, q := range []string{
		"DELETE FROM tracking_history WHERE recorded_at_utc < ?",
		"DELETE FROM tracking_latest WHERE recorded_at_utc < ?",
	} {
		result, err := s.db.ExecContext(ctx, q, cutoff)
		if err != nil {
			return total, fmt.Errorf("failed to cleanup: %w", err)
		}
		n, _ := result.RowsAffected()
		total += n
	}

	return total, nil
}

// scanRecords reads full tracking records from a result set in the
// shared recordColumns order.
func scanRecords(rows *sql.Rows) ([]models.TrackingRecord, error) {
	var records []models.TrackingRecord
	for rows.Next() {
		var rec models.TrackingRecord
		var recordedAtStr string
		var etaStr, reportedAtStr, reason, weather, traffic *string

		err := rows.Scan(
			&rec.RecordID, &rec.DeviceID, &rec.RouteID, &rec.VehicleID, &rec.VehicleNumber,
			&recordedAtStr, &rec.Location.Latitude, &rec.Location.Longitude,
			&rec.Location.SpeedKmh, &rec.Location.Heading,
			&rec.RouteProgress.SegmentIndex, &rec.RouteProgress.SegmentProgress,
			&rec.RouteProgress.DistanceCoveredKm, &rec.RouteProgress.ProgressPercentage, &etaStr,
			&rec.PassengerLoad.Current, &rec.PassengerLoad.Max, &rec.PassengerLoad.LoadPercentage,
			&rec.Operational.Status, &rec.Operational.Delay.Minutes, &reason, &reportedAtStr,
			&weather, &traffic,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tracking record: %w", err)
		}

		if t, err := time.Parse(time.RFC3339Nano, recordedAtStr); err == nil {
			rec.RecordedAt = t
		}
		if etaStr != nil {
			if t, err := time.Parse(time.RFC3339Nano, *etaStr); err == nil {
				rec.RouteProgress.ETA = &t
			}
		}
		if reportedAtStr != nil {
			if t, err := time.Parse(time.RFC3339Nano, *reportedAtStr); err == nil {
				rec.Operational.Delay.ReportedAt = &t
			}
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
