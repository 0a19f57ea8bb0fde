// Package query implements the read side of the tracking system. It is
// independent of the tick loop: every method runs against the store
// under a bounded timeout and may execute concurrently with writes. A
// query observing the store between two ticks may miss the very latest
// write; that staleness is accepted.
package query

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/Sri-Express/Backend-sub002/internal/config"
	"github.com/Sri-Express/Backend-sub002/internal/models"
	"github.com/Sri-Express/Backend-sub002/internal/route"
	"github.com/Sri-Express/Backend-sub002/internal/store"
)

const (
	defaultLiveLimit    = 50
	maxLiveLimit        = 500
	defaultHistoryLimit = 500
	maxHistoryLimit     = 5000
	maxAnalyticsHours   = 720
)

// LiveQuery narrows a live-locations request.
type LiveQuery struct {
	Bounds  *models.Bounds
	RouteID string
	Status  string
	Limit   int
}

// Service answers live, historical, ETA, and analytics queries.
type Service struct {
	store   store.Store
	catalog *route.Catalog
	cfg     *config.Config
}

// NewService creates a query service over the given store and catalog.
func NewService(st store.Store, catalog *route.Catalog, cfg *config.Config) *Service {
	return &Service{store: st, catalog: catalog, cfg: cfg}
}

// GetLiveLocations returns the latest record per vehicle matching the
// filters, restricted to records inside the freshness window. Vehicles
// without a fresh record are considered offline and excluded.
func (s *Service) GetLiveLocations(ctx context.Context, q LiveQuery) (models.LiveLocationsResponse, error) {
	resp := models.LiveLocationsResponse{Vehicles: []models.TrackingRecord{}, Timestamp: time.Now().UTC()}

	if q.Status != "" && !models.KnownStatus(q.Status) {
		return resp, fmt.Errorf("%w: unknown status %q", models.ErrInvalidInput, q.Status)
	}
	if q.Bounds != nil {
		if err := q.Bounds.Validate(); err != nil {
			return resp, err
		}
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLiveLimit
	}
	if limit > maxLiveLimit {
		limit = maxLiveLimit
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	records, err := s.store.LatestPositions(ctx, store.LatestFilter{
		RouteID:   q.RouteID,
		Status:    q.Status,
		Bounds:    q.Bounds,
		Freshness: s.cfg.FreshnessWindow,
		Limit:     limit,
	})
	if err != nil {
		// Transient store trouble degrades to an empty result.
		log.Printf("query: live locations failed: %v", err)
		return resp, nil
	}

	resp.Vehicles = records
	resp.Count = len(records)
	return resp, nil
}

// GetRouteVehicles returns the latest record per vehicle on one route
// plus route-level aggregates. A route with no fresh records yields an
// empty vehicle list and zeroed stats, not an error.
func (s *Service) GetRouteVehicles(ctx context.Context, routeID string) (models.RouteVehiclesResponse, error) {
	resp := models.RouteVehiclesResponse{
		RouteID:   routeID,
		Vehicles:  []models.TrackingRecord{},
		Timestamp: time.Now().UTC(),
	}

	r, ok := s.catalog.Route(routeID)
	if !ok {
		return resp, fmt.Errorf("%w: route %s", models.ErrNotFound, routeID)
	}
	resp.RouteName = r.Name

	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	records, err := s.store.LatestPositions(ctx, store.LatestFilter{
		RouteID:   routeID,
		Freshness: s.cfg.FreshnessWindow,
	})
	if err != nil {
		log.Printf("query: route vehicles failed for %s: %v", routeID, err)
		return resp, nil
	}

	resp.Vehicles = records
	resp.Count = len(records)
	resp.Stats = routeStats(records, s.cfg.DelayThresholdMinutes)
	return resp, nil
}

func routeStats(records []models.TrackingRecord, delayThreshold float64) models.RouteStats {
	stats := models.RouteStats{TotalVehicles: len(records)}
	if len(records) == 0 {
		return stats
	}

	var delaySum, loadSum float64
	for _, rec := range records {
		delay := rec.Operational.Delay.Minutes
		if delay <= delayThreshold {
			stats.OnTimeCount++
		} else {
			stats.DelayedCount++
		}
		delaySum += delay
		loadSum += rec.PassengerLoad.LoadPercentage
	}
	stats.AvgDelayMinutes = delaySum / float64(len(records))
	stats.AvgLoadPercent = loadSum / float64(len(records))
	return stats
}

// GetETAForBooking estimates the departure for a booking from the live
// vehicle on its route with the least current delay (ties broken by
// first encountered). When no vehicle is live, the unadjusted schedule
// is returned with Tracked=false rather than an error.
func (s *Service) GetETAForBooking(ctx context.Context, booking models.Booking) (models.ETAEstimate, error) {
	scheduled, err := parseDeparture(booking.TravelDate, booking.DepartureTime)
	if err != nil {
		return models.ETAEstimate{}, err
	}
	if _, ok := s.catalog.Route(booking.RouteID); !ok {
		return models.ETAEstimate{}, fmt.Errorf("%w: route %s", models.ErrNotFound, booking.RouteID)
	}

	est := models.ETAEstimate{
		RouteID:            booking.RouteID,
		ScheduledDeparture: scheduled,
		EstimatedDeparture: scheduled,
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	records, err := s.store.LatestPositions(ctx, store.LatestFilter{
		RouteID:   booking.RouteID,
		Freshness: s.cfg.FreshnessWindow,
	})
	if err != nil {
		log.Printf("query: eta lookup failed for %s: %v", booking.RouteID, err)
		records = nil
	}

	if len(records) == 0 {
		est.Message = "no live tracking data for this route"
		return est, nil
	}

	best := records[0]
	for _, rec := range records[1:] {
		if rec.Operational.Delay.Minutes < best.Operational.Delay.Minutes {
			best = rec
		}
	}

	delay := best.Operational.Delay.Minutes
	est.Tracked = true
	est.VehicleID = best.VehicleID
	est.VehicleNumber = best.VehicleNumber
	est.DelayMinutes = delay
	est.EstimatedDeparture = scheduled.Add(time.Duration(delay * float64(time.Minute)))
	est.Bucket = etaBucket(delay)
	return est, nil
}

func etaBucket(delayMinutes float64) string {
	switch {
	case delayMinutes <= 5:
		return models.ETABucketOnTime
	case delayMinutes <= 15:
		return models.ETABucketSlightlyDelayed
	default:
		return models.ETABucketDelayed
	}
}

func parseDeparture(travelDate, departureTime string) (time.Time, error) {
	t, err := time.Parse("2006-01-02 15:04", travelDate+" "+departureTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad travel date/time: %v", models.ErrInvalidInput, err)
	}
	return t.UTC(), nil
}

// GetVehicleHistory returns a vehicle's ordered history within the
// range plus a summary.
func (s *Service) GetVehicleHistory(ctx context.Context, vehicleID string, from, to time.Time, limit int) (models.VehicleHistoryResponse, error) {
	resp := models.VehicleHistoryResponse{VehicleID: vehicleID, Records: []models.TrackingRecord{}}

	if vehicleID == "" {
		return resp, fmt.Errorf("%w: vehicle id is required", models.ErrInvalidInput)
	}
	if to.IsZero() {
		to = time.Now().UTC()
	}
	if from.IsZero() {
		from = to.Add(-24 * time.Hour)
	}
	if !from.Before(to) {
		return resp, fmt.Errorf("%w: history range start must precede end", models.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	resp.From = from.UTC()
	resp.To = to.UTC()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	records, err := s.store.VehicleHistory(ctx, vehicleID, from, to, limit)
	if err != nil {
		log.Printf("query: history failed for %s: %v", vehicleID, err)
		return resp, nil
	}

	resp.Records = records
	resp.Count = len(records)
	resp.Summary = historySummary(records)
	return resp, nil
}

// historySummary aggregates a history slice. Total distance sums the
// forward deltas of distance-covered between consecutive records, so an
// end-of-route wrap does not count as negative travel.
func historySummary(records []models.TrackingRecord) models.HistorySummary {
	sum := models.HistorySummary{RecordCount: len(records)}
	if len(records) == 0 {
		return sum
	}

	var speedSum, delaySum float64
	for i, rec := range records {
		speedSum += rec.Location.SpeedKmh
		delaySum += rec.Operational.Delay.Minutes
		if i > 0 {
			delta := rec.RouteProgress.DistanceCoveredKm - records[i-1].RouteProgress.DistanceCoveredKm
			if delta > 0 {
				sum.TotalDistanceKm += delta
			}
		}
	}
	sum.AvgSpeedKmh = speedSum / float64(len(records))
	sum.AvgDelayMinutes = delaySum / float64(len(records))
	return sum
}

// GetAnalytics returns time-bucketed aggregates for a period like "24h"
// or "7d", optionally restricted to one route.
func (s *Service) GetAnalytics(ctx context.Context, period string, routeID string) (models.AnalyticsReport, error) {
	hours, err := parsePeriodHours(period)
	if err != nil {
		return models.AnalyticsReport{}, err
	}
	if routeID != "" {
		if _, ok := s.catalog.Route(routeID); !ok {
			return models.AnalyticsReport{}, fmt.Errorf("%w: route %s", models.ErrNotFound, routeID)
		}
	}

	to := time.Now().UTC()
	from := to.Add(-time.Duration(hours) * time.Hour)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	report, err := s.store.Analytics(ctx, from, to, routeID)
	if err != nil {
		log.Printf("query: analytics failed: %v", err)
		return models.AnalyticsReport{From: from, To: to, RouteID: routeID}, nil
	}
	return report, nil
}

// parsePeriodHours accepts "24h", "7d", or a bare hour count.
func parsePeriodHours(period string) (int, error) {
	if period == "" {
		return 24, nil
	}

	multiplier := 1
	digits := period
	switch {
	case strings.HasSuffix(period, "h"):
		digits = strings.TrimSuffix(period, "h")
	case strings.HasSuffix(period, "d"):
		digits = strings.TrimSuffix(period, "d")
		multiplier = 24
	}

	n, err := strconv.Atoi(digits)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: bad period %q", models.ErrInvalidInput, period)
	}
	hours := n * multiplier
	if hours > maxAnalyticsHours {
		hours = maxAnalyticsHours
	}
	return hours, nil
}
