package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"google.golang.org/protobuf/proto"

	"github.com/Sri-Express/Backend-sub002/internal/config"
	"github.com/Sri-Express/Backend-sub002/internal/models"
	"github.com/Sri-Express/Backend-sub002/internal/route"
	"github.com/Sri-Express/Backend-sub002/internal/store"
)

const maxIngestBody = 4 << 20

// IngestHandler accepts location updates from real hardware feeds,
// bypassing the simulator: a single JSON ping, or a whole GTFS-RT
// vehicle-positions feed.
type IngestHandler struct {
	store    store.Store
	catalog  *route.Catalog
	cfg      *config.Config
	validate *validator.Validate
}

// NewIngestHandler creates a new ingestion handler.
func NewIngestHandler(st store.Store, catalog *route.Catalog, cfg *config.Config) *IngestHandler {
	return &IngestHandler{store: st, catalog: catalog, cfg: cfg, validate: validator.New()}
}

// IngestResponse reports what was appended.
type IngestResponse struct {
	Appended  int       `json:"appended"`
	Skipped   int       `json:"skipped,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// IngestPing handles POST /api/tracking/updates with one JSON location
// update.
func (h *IngestHandler) IngestPing(w http.ResponseWriter, r *http.Request) {
	var ping models.LocationPing
	if err := json.NewDecoder(io.LimitReader(r.Body, maxIngestBody)).Decode(&ping); err != nil {
		writeError(w, fmt.Errorf("%w: bad location update body: %v", models.ErrInvalidInput, err))
		return
	}
	if err := h.validate.Struct(ping); err != nil {
		writeError(w, fmt.Errorf("%w: %v", models.ErrInvalidInput, err))
		return
	}
	if ping.Status != "" && !models.KnownStatus(ping.Status) {
		writeError(w, fmt.Errorf("%w: unknown status %q", models.ErrInvalidInput, ping.Status))
		return
	}
	if _, ok := h.catalog.Route(ping.RouteID); !ok {
		writeError(w, fmt.Errorf("%w: route %s", models.ErrNotFound, ping.RouteID))
		return
	}

	rec := h.recordFromPing(ping)
	if err := h.append(r.Context(), rec); err != nil {
		writeError(w, fmt.Errorf("failed to persist location update: %w", err))
		return
	}

	writeJSON(w, http.StatusCreated, IngestResponse{Appended: 1, Timestamp: time.Now().UTC()})
}

// IngestGTFSRT handles POST /api/tracking/updates/gtfsrt with a binary
// GTFS-RT FeedMessage. Entities without a usable vehicle position or
// with a route outside the catalog are skipped, not fatal.
func (h *IngestHandler) IngestGTFSRT(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxIngestBody))
	if err != nil {
		writeError(w, fmt.Errorf("%w: failed to read feed body: %v", models.ErrInvalidInput, err))
		return
	}

	feed := &gtfs.FeedMessage{}
	if err := proto.Unmarshal(body, feed); err != nil {
		writeError(w, fmt.Errorf("%w: bad GTFS-RT feed: %v", models.ErrInvalidInput, err))
		return
	}

	appended, skipped := 0, 0
	for _, entity := range feed.GetEntity() {
		rec, ok := h.recordFromEntity(entity)
		if !ok {
			skipped++
			continue
		}
		if err := h.append(r.Context(), rec); err != nil {
			// A transient store failure drops the entity; the feed
			// will resend fresher data on its next push.
			skipped++
			continue
		}
		appended++
	}

	writeJSON(w, http.StatusCreated, IngestResponse{
		Appended:  appended,
		Skipped:   skipped,
		Timestamp: time.Now().UTC(),
	})
}

func (h *IngestHandler) append(ctx context.Context, rec models.TrackingRecord) error {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.StoreTimeout)
	defer cancel()
	return h.store.Append(ctx, rec)
}

func (h *IngestHandler) recordFromPing(ping models.LocationPing) models.TrackingRecord {
	ts := time.Now().UTC()
	if ping.Timestamp != nil {
		ts = ping.Timestamp.UTC()
	}

	status := ping.Status
	if status == "" {
		status = models.StatusOnRoute
	}

	capacity := 0
	if r, ok := h.catalog.Route(ping.RouteID); ok {
		capacity = r.Vehicle.Capacity
	}
	if ping.Capacity != nil {
		capacity = *ping.Capacity
	}
	passengers := 0
	if ping.Passengers != nil {
		passengers = *ping.Passengers
	}
	loadPct := 0.0
	if capacity > 0 {
		loadPct = 100 * float64(passengers) / float64(capacity)
	}

	vehicleNumber := ping.VehicleNumber
	if vehicleNumber == "" {
		vehicleNumber = ping.VehicleID
	}

	return models.TrackingRecord{
		RecordID:      uuid.New().String(),
		DeviceID:      ping.DeviceID,
		RouteID:       ping.RouteID,
		VehicleID:     ping.VehicleID,
		VehicleNumber: vehicleNumber,
		RecordedAt:    ts,
		Location: models.VehicleLocation{
			Latitude:  ping.Latitude,
			Longitude: ping.Longitude,
			SpeedKmh:  ping.SpeedKmh,
			Heading:   ping.Heading,
		},
		PassengerLoad: models.PassengerLoad{
			Current:        passengers,
			Max:            capacity,
			LoadPercentage: loadPct,
		},
		Operational: models.OperationalInfo{
			Status: status,
			Delay:  models.DelayInfo{Minutes: ping.DelayMinutes},
		},
	}
}

func (h *IngestHandler) recordFromEntity(entity *gtfs.FeedEntity) (models.TrackingRecord, bool) {
	vp := entity.GetVehicle()
	if vp == nil || vp.GetPosition() == nil {
		return models.TrackingRecord{}, false
	}

	routeID := vp.GetTrip().GetRouteId()
	r, ok := h.catalog.Route(routeID)
	if !ok {
		return models.TrackingRecord{}, false
	}

	deviceID := vp.GetVehicle().GetId()
	if deviceID == "" {
		deviceID = entity.GetId()
	}
	label := vp.GetVehicle().GetLabel()
	if label == "" {
		label = deviceID
	}

	ts := time.Now().UTC()
	if vp.GetTimestamp() > 0 {
		ts = time.Unix(int64(vp.GetTimestamp()), 0).UTC()
	}

	pos := vp.GetPosition()
	return models.TrackingRecord{
		RecordID:      uuid.New().String(),
		DeviceID:      deviceID,
		RouteID:       routeID,
		VehicleID:     fmt.Sprintf("%s-%s", routeID, label),
		VehicleNumber: label,
		RecordedAt:    ts,
		Location: models.VehicleLocation{
			Latitude:  float64(pos.GetLatitude()),
			Longitude: float64(pos.GetLongitude()),
			SpeedKmh:  float64(pos.GetSpeed()) * 3.6, // GTFS-RT speed is m/s
			Heading:   float64(pos.GetBearing()),
		},
		PassengerLoad: models.PassengerLoad{Max: r.Vehicle.Capacity},
		Operational:   models.OperationalInfo{Status: models.StatusOnRoute},
	}, true
}
