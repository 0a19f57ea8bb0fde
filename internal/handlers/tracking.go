package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Sri-Express/Backend-sub002/internal/models"
	"github.com/Sri-Express/Backend-sub002/internal/query"
)

// QueryService defines the read-side operations the tracking handler
// exposes over HTTP.
type QueryService interface {
	GetLiveLocations(ctx context.Context, q query.LiveQuery) (models.LiveLocationsResponse, error)
	GetRouteVehicles(ctx context.Context, routeID string) (models.RouteVehiclesResponse, error)
	GetETAForBooking(ctx context.Context, booking models.Booking) (models.ETAEstimate, error)
	GetVehicleHistory(ctx context.Context, vehicleID string, from, to time.Time, limit int) (models.VehicleHistoryResponse, error)
	GetAnalytics(ctx context.Context, period string, routeID string) (models.AnalyticsReport, error)
}

// TrackingHandler handles HTTP requests for live and historical
// tracking data.
type TrackingHandler struct {
	svc QueryService
}

// NewTrackingHandler creates a new handler over the given query service.
func NewTrackingHandler(svc QueryService) *TrackingHandler {
	return &TrackingHandler{svc: svc}
}

// GetLiveLocations handles GET /api/tracking/live.
// Query params: bounds (minLat,minLon,maxLat,maxLon), route_id, status, limit.
func (h *TrackingHandler) GetLiveLocations(w http.ResponseWriter, r *http.Request) {
	q := query.LiveQuery{
		RouteID: r.URL.Query().Get("route_id"),
		Status:  r.URL.Query().Get("status"),
	}

	if raw := r.URL.Query().Get("bounds"); raw != "" {
		bounds, err := parseBounds(raw)
		if err != nil {
			writeError(w, err)
			return
		}
		q.Bounds = bounds
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, fmt.Errorf("%w: limit must be a positive integer", models.ErrInvalidInput))
			return
		}
		q.Limit = n
	}

	resp, err := h.svc.GetLiveLocations(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}

	// Positions refresh every tick; let pollers cache briefly.
	w.Header().Set("Cache-Control", "public, max-age=2, stale-while-revalidate=2")
	writeJSON(w, http.StatusOK, resp)
}

// GetRouteVehicles handles GET /api/tracking/routes/{routeID}/vehicles.
func (h *TrackingHandler) GetRouteVehicles(w http.ResponseWriter, r *http.Request) {
	routeID := chi.URLParam(r, "routeID")
	if routeID == "" {
		writeError(w, fmt.Errorf("%w: routeID parameter is required", models.ErrInvalidInput))
		return
	}

	resp, err := h.svc.GetRouteVehicles(r.Context(), routeID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetVehicleHistory handles GET /api/tracking/vehicles/{vehicleID}/history.
// Query params: from, to (RFC3339), limit.
func (h *TrackingHandler) GetVehicleHistory(w http.ResponseWriter, r *http.Request) {
	vehicleID := chi.URLParam(r, "vehicleID")

	var from, to time.Time
	if raw := r.URL.Query().Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, fmt.Errorf("%w: from must be RFC3339", models.ErrInvalidInput))
			return
		}
		from = t
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, fmt.Errorf("%w: to must be RFC3339", models.ErrInvalidInput))
			return
		}
		to = t
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, fmt.Errorf("%w: limit must be a positive integer", models.ErrInvalidInput))
			return
		}
		limit = n
	}

	resp, err := h.svc.GetVehicleHistory(r.Context(), vehicleID, from, to, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetAnalytics handles GET /api/tracking/analytics.
// Query params: period ("24h", "7d", default "24h"), route_id.
func (h *TrackingHandler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.GetAnalytics(r.Context(), r.URL.Query().Get("period"), r.URL.Query().Get("route_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetBookingETA handles POST /api/tracking/eta with a booking body.
func (h *TrackingHandler) GetBookingETA(w http.ResponseWriter, r *http.Request) {
	var booking models.Booking
	if err := json.NewDecoder(r.Body).Decode(&booking); err != nil {
		writeError(w, fmt.Errorf("%w: bad booking body: %v", models.ErrInvalidInput, err))
		return
	}
	if booking.RouteID == "" || booking.TravelDate == "" || booking.DepartureTime == "" {
		writeError(w, fmt.Errorf("%w: routeId, travelDate and departureTime are required", models.ErrInvalidInput))
		return
	}

	resp, err := h.svc.GetETAForBooking(r.Context(), booking)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// parseBounds parses "minLat,minLon,maxLat,maxLon".
func parseBounds(raw string) (*models.Bounds, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("%w: bounds must be minLat,minLon,maxLat,maxLon", models.ErrInvalidInput)
	}

	vals := make([]float64, 4)
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad bounds coordinate %q", models.ErrInvalidInput, p)
		}
		vals[i] = f
	}

	b := &models.Bounds{MinLat: vals[0], MinLon: vals[1], MaxLat: vals[2], MaxLon: vals[3]}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}
