package query

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Sri-Express/Backend-sub002/internal/config"
	"github.com/Sri-Express/Backend-sub002/internal/models"
	"github.com/Sri-Express/Backend-sub002/internal/route"
	"github.com/Sri-Express/Backend-sub002/internal/store"
)

// stubStore returns canned results and captures the filters it was
// called with.
type stubStore struct {
	latest     []models.TrackingRecord
	history    []models.TrackingRecord
	analytics  models.AnalyticsReport
	err        error
	lastFilter store.LatestFilter
}

func (s *stubStore) Append(context.Context, models.TrackingRecord) error { return nil }

func (s *stubStore) LatestPositions(_ context.Context, f store.LatestFilter) ([]models.TrackingRecord, error) {
	s.lastFilter = f
	return s.latest, s.err
}

func (s *stubStore) VehicleHistory(context.Context, string, time.Time, time.Time, int) ([]models.TrackingRecord, error) {
	return s.history, s.err
}

func (s *stubStore) Analytics(context.Context, time.Time, time.Time, string) (models.AnalyticsReport, error) {
	return s.analytics, s.err
}

func (s *stubStore) Cleanup(context.Context, time.Duration) (int64, error) { return 0, nil }
func (s *stubStore) Ping(context.Context) error                           { return nil }
func (s *stubStore) Close() error                                         { return nil }

func testCatalog() *route.Catalog {
	return route.NewCatalog(&route.Route{
		ID:      "RT-CMB-KDY",
		Name:    "Colombo - Kandy",
		Vehicle: route.VehicleInfo{Type: "bus", Capacity: 50},
		Waypoints: []route.Waypoint{
			{Name: "Colombo Fort", Order: 0, Coordinates: [2]float64{79.85, 6.9344}},
			{Name: "Kandy", Order: 1, Coordinates: [2]float64{80.6337, 7.2906}},
		},
	})
}

func testService(st *stubStore) *Service {
	cfg := &config.Config{
		StoreTimeout:          time.Second,
		FreshnessWindow:       5 * time.Minute,
		DelayThresholdMinutes: 5,
	}
	return NewService(st, testCatalog(), cfg)
}

func record(vehicleID string, delay float64, load float64) models.TrackingRecord {
	return models.TrackingRecord{
		RecordID:      "rec-" + vehicleID,
		VehicleID:     vehicleID,
		VehicleNumber: vehicleID,
		RouteID:       "RT-CMB-KDY",
		RecordedAt:    time.Now().UTC(),
		Operational:   models.OperationalInfo{Status: models.StatusOnRoute, Delay: models.DelayInfo{Minutes: delay}},
		PassengerLoad: models.PassengerLoad{Current: int(load / 2), Max: 50, LoadPercentage: load},
	}
}

func TestGetLiveLocations(t *testing.T) {
	st := &stubStore{latest: []models.TrackingRecord{record("v1", 2, 40), record("v2", 8, 60)}}
	svc := testService(st)

	resp, err := svc.GetLiveLocations(context.Background(), LiveQuery{RouteID: "RT-CMB-KDY"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Count != 2 || len(resp.Vehicles) != 2 {
		t.Errorf("Count = %d, want 2", resp.Count)
	}
	if st.lastFilter.RouteID != "RT-CMB-KDY" {
		t.Errorf("filter route = %q", st.lastFilter.RouteID)
	}
	if st.lastFilter.Freshness != 5*time.Minute {
		t.Errorf("filter freshness = %v, want the configured window", st.lastFilter.Freshness)
	}
	if st.lastFilter.Limit != defaultLiveLimit {
		t.Errorf("filter limit = %d, want default %d", st.lastFilter.Limit, defaultLiveLimit)
	}
}

func TestGetLiveLocationsRepeatedCallsAgree(t *testing.T) {
	st := &stubStore{latest: []models.TrackingRecord{record("v1", 2, 40), record("v2", 8, 60), record("v3", 0, 10)}}
	svc := testService(st)
	q := LiveQuery{RouteID: "RT-CMB-KDY"}

	// No writes land between the two calls, so both must report the
	// same vehicle set in the same order.
	first, err := svc.GetLiveLocations(context.Background(), q)
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.GetLiveLocations(context.Background(), q)
	if err != nil {
		t.Fatal(err)
	}

	if first.Count != second.Count || len(first.Vehicles) != len(second.Vehicles) {
		t.Fatalf("counts differ: %d vs %d", first.Count, second.Count)
	}
	for i := range first.Vehicles {
		a, b := first.Vehicles[i], second.Vehicles[i]
		if a.VehicleID != b.VehicleID || a.Operational.Status != b.Operational.Status || !a.RecordedAt.Equal(b.RecordedAt) {
			t.Errorf("vehicle %d differs between calls:\n%+v\n%+v", i, a, b)
		}
	}
}

func TestGetLiveLocationsValidation(t *testing.T) {
	svc := testService(&stubStore{})

	_, err := svc.GetLiveLocations(context.Background(), LiveQuery{Status: "flying"})
	if !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("unknown status error = %v, want ErrInvalidInput", err)
	}

	bad := &models.Bounds{MinLat: 10, MinLon: 10, MaxLat: 5, MaxLon: 20}
	_, err = svc.GetLiveLocations(context.Background(), LiveQuery{Bounds: bad})
	if !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("inverted bounds error = %v, want ErrInvalidInput", err)
	}

	outOfRange := &models.Bounds{MinLat: -95, MinLon: 0, MaxLat: 5, MaxLon: 20}
	_, err = svc.GetLiveLocations(context.Background(), LiveQuery{Bounds: outOfRange})
	if !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("out-of-range bounds error = %v, want ErrInvalidInput", err)
	}
}

func TestGetLiveLocationsLimitClamped(t *testing.T) {
	st := &stubStore{}
	svc := testService(st)

	if _, err := svc.GetLiveLocations(context.Background(), LiveQuery{Limit: 100000}); err != nil {
		t.Fatal(err)
	}
	if st.lastFilter.Limit != maxLiveLimit {
		t.Errorf("limit = %d, want clamped to %d", st.lastFilter.Limit, maxLiveLimit)
	}
}

func TestGetLiveLocationsDegradesOnStoreFailure(t *testing.T) {
	svc := testService(&stubStore{err: fmt.Errorf("connection refused")})

	resp, err := svc.GetLiveLocations(context.Background(), LiveQuery{})
	if err != nil {
		t.Fatalf("store failure should degrade, not error: %v", err)
	}
	if resp.Count != 0 || len(resp.Vehicles) != 0 {
		t.Errorf("degraded response should be empty, got %d vehicles", resp.Count)
	}
}

func TestGetRouteVehiclesStats(t *testing.T) {
	st := &stubStore{latest: []models.TrackingRecord{
		record("v1", 2, 40),  // on time
		record("v2", 5, 60),  // exactly at threshold: still on time
		record("v3", 12, 80), // delayed
	}}
	svc := testService(st)

	resp, err := svc.GetRouteVehicles(context.Background(), "RT-CMB-KDY")
	if err != nil {
		t.Fatal(err)
	}
	if resp.RouteName != "Colombo - Kandy" {
		t.Errorf("RouteName = %q", resp.RouteName)
	}
	if resp.Stats.TotalVehicles != 3 {
		t.Errorf("TotalVehicles = %d, want 3", resp.Stats.TotalVehicles)
	}
	if resp.Stats.OnTimeCount != 2 || resp.Stats.DelayedCount != 1 {
		t.Errorf("on-time/delayed = %d/%d, want 2/1", resp.Stats.OnTimeCount, resp.Stats.DelayedCount)
	}
	wantAvgDelay := (2.0 + 5 + 12) / 3
	if resp.Stats.AvgDelayMinutes != wantAvgDelay {
		t.Errorf("AvgDelayMinutes = %f, want %f", resp.Stats.AvgDelayMinutes, wantAvgDelay)
	}
	wantAvgLoad := (40.0 + 60 + 80) / 3
	if resp.Stats.AvgLoadPercent != wantAvgLoad {
		t.Errorf("AvgLoadPercent = %f, want %f", resp.Stats.AvgLoadPercent, wantAvgLoad)
	}
}

func TestGetRouteVehiclesEmptyRoute(t *testing.T) {
	svc := testService(&stubStore{})

	resp, err := svc.GetRouteVehicles(context.Background(), "RT-CMB-KDY")
	if err != nil {
		t.Fatalf("empty route should not error: %v", err)
	}
	if len(resp.Vehicles) != 0 {
		t.Errorf("Vehicles = %v, want empty", resp.Vehicles)
	}
	if resp.Stats != (models.RouteStats{}) {
		t.Errorf("Stats = %+v, want zeroed", resp.Stats)
	}
}

func TestGetRouteVehiclesUnknownRoute(t *testing.T) {
	svc := testService(&stubStore{})

	_, err := svc.GetRouteVehicles(context.Background(), "RT-NOPE")
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("unknown route error = %v, want ErrNotFound", err)
	}
}

func TestGetETAForBookingPicksLeastDelayedVehicle(t *testing.T) {
	st := &stubStore{latest: []models.TrackingRecord{
		record("v1", 9, 40),
		record("v2", 3, 40), // least delayed wins
		record("v3", 3, 40), // tie: first encountered wins
	}}
	svc := testService(st)

	est, err := svc.GetETAForBooking(context.Background(), models.Booking{
		RouteID:       "RT-CMB-KDY",
		TravelDate:    "2026-09-01",
		DepartureTime: "08:30",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !est.Tracked {
		t.Fatal("Tracked = false, want true")
	}
	if est.VehicleID != "v2" {
		t.Errorf("VehicleID = %s, want v2", est.VehicleID)
	}
	if est.DelayMinutes != 3 {
		t.Errorf("DelayMinutes = %f, want 3", est.DelayMinutes)
	}
	if est.Bucket != models.ETABucketOnTime {
		t.Errorf("Bucket = %s, want on_time", est.Bucket)
	}
	wantScheduled := time.Date(2026, 9, 1, 8, 30, 0, 0, time.UTC)
	if !est.ScheduledDeparture.Equal(wantScheduled) {
		t.Errorf("ScheduledDeparture = %v, want %v", est.ScheduledDeparture, wantScheduled)
	}
	if !est.EstimatedDeparture.Equal(wantScheduled.Add(3 * time.Minute)) {
		t.Errorf("EstimatedDeparture = %v, want scheduled+3m", est.EstimatedDeparture)
	}
}

func TestGetETAForBookingNoLiveData(t *testing.T) {
	svc := testService(&stubStore{})

	est, err := svc.GetETAForBooking(context.Background(), models.Booking{
		RouteID:       "RT-CMB-KDY",
		TravelDate:    "2026-09-01",
		DepartureTime: "08:30",
	})
	if err != nil {
		t.Fatal(err)
	}
	if est.Tracked {
		t.Error("Tracked = true, want false with no live data")
	}
	if est.Message == "" {
		t.Error("expected an explanatory message")
	}
	if !est.EstimatedDeparture.Equal(est.ScheduledDeparture) {
		t.Error("estimate should fall back to the schedule")
	}
}

func TestGetETAForBookingBadInput(t *testing.T) {
	svc := testService(&stubStore{})

	_, err := svc.GetETAForBooking(context.Background(), models.Booking{
		RouteID: "RT-CMB-KDY", TravelDate: "yesterday", DepartureTime: "soon",
	})
	if !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("bad date error = %v, want ErrInvalidInput", err)
	}

	_, err = svc.GetETAForBooking(context.Background(), models.Booking{
		RouteID: "RT-NOPE", TravelDate: "2026-09-01", DepartureTime: "08:30",
	})
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("unknown route error = %v, want ErrNotFound", err)
	}
}

func TestETABuckets(t *testing.T) {
	tests := []struct {
		delay float64
		want  string
	}{
		{0, models.ETABucketOnTime},
		{5, models.ETABucketOnTime},
		{5.1, models.ETABucketSlightlyDelayed},
		{15, models.ETABucketSlightlyDelayed},
		{15.1, models.ETABucketDelayed},
		{60, models.ETABucketDelayed},
	}
	for _, tc := range tests {
		if got := etaBucket(tc.delay); got != tc.want {
			t.Errorf("etaBucket(%f) = %s, want %s", tc.delay, got, tc.want)
		}
	}
}

func TestGetVehicleHistory(t *testing.T) {
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	history := make([]models.TrackingRecord, 4)
	for i := range history {
		rec := record("v1", float64(i), 40)
		rec.RecordedAt = base.Add(time.Duration(i) * time.Minute)
		rec.Location.SpeedKmh = 40
		rec.RouteProgress.DistanceCoveredKm = float64(i) * 2
		history[i] = rec
	}
	// Simulate an end-of-route wrap: distance drops back toward zero.
	history[3].RouteProgress.DistanceCoveredKm = 1

	svc := testService(&stubStore{history: history})

	resp, err := svc.GetVehicleHistory(context.Background(), "v1", base, base.Add(time.Hour), 0)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Count != 4 {
		t.Fatalf("Count = %d, want 4", resp.Count)
	}
	if resp.Summary.AvgSpeedKmh != 40 {
		t.Errorf("AvgSpeedKmh = %f, want 40", resp.Summary.AvgSpeedKmh)
	}
	// Forward deltas only: 0->2->4 km, then the wrap is ignored.
	if resp.Summary.TotalDistanceKm != 4 {
		t.Errorf("TotalDistanceKm = %f, want 4 (wrap must not count negative)", resp.Summary.TotalDistanceKm)
	}
}

func TestGetVehicleHistoryValidation(t *testing.T) {
	svc := testService(&stubStore{})
	now := time.Now()

	if _, err := svc.GetVehicleHistory(context.Background(), "", now.Add(-time.Hour), now, 0); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("empty vehicle id error = %v, want ErrInvalidInput", err)
	}
	if _, err := svc.GetVehicleHistory(context.Background(), "v1", now, now.Add(-time.Hour), 0); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("inverted range error = %v, want ErrInvalidInput", err)
	}
}

func TestGetVehicleHistoryDefaultsRange(t *testing.T) {
	svc := testService(&stubStore{})

	resp, err := svc.GetVehicleHistory(context.Background(), "v1", time.Time{}, time.Time{}, 0)
	if err != nil {
		t.Fatal(err)
	}
	span := resp.To.Sub(resp.From)
	if span != 24*time.Hour {
		t.Errorf("default range = %v, want 24h", span)
	}
}

func TestGetAnalyticsValidation(t *testing.T) {
	svc := testService(&stubStore{})

	if _, err := svc.GetAnalytics(context.Background(), "soon", ""); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("bad period error = %v, want ErrInvalidInput", err)
	}
	if _, err := svc.GetAnalytics(context.Background(), "24h", "RT-NOPE"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("unknown route error = %v, want ErrNotFound", err)
	}
	if _, err := svc.GetAnalytics(context.Background(), "7d", "RT-CMB-KDY"); err != nil {
		t.Errorf("valid request error = %v", err)
	}
}

func TestParsePeriodHours(t *testing.T) {
	tests := []struct {
		period  string
		want    int
		wantErr bool
	}{
		{"", 24, false},
		{"24h", 24, false},
		{"48", 48, false},
		{"7d", 168, false},
		{"60d", maxAnalyticsHours, false}, // capped
		{"0h", 0, true},
		{"-3h", 0, true},
		{"sometime", 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.period, func(t *testing.T) {
			got, err := parsePeriodHours(tc.period)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("parsePeriodHours(%q) succeeded, want error", tc.period)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Errorf("parsePeriodHours(%q) = %d, want %d", tc.period, got, tc.want)
			}
		})
	}
}
