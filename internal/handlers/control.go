package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Sri-Express/Backend-sub002/internal/models"
)

// SimulationEngine defines the control-plane operations exposed by the
// admin endpoints.
type SimulationEngine interface {
	Start() models.EngineStatus
	Stop() models.EngineStatus
	Reset() models.EngineStatus
	SetSpeed(m float64) (models.EngineStatus, error)
	Status() models.EngineStatus

	Vehicles() []models.VehicleStatus
	Vehicle(vehicleID string) (models.VehicleStatus, error)
	PauseVehicle(vehicleID string) (models.VehicleStatus, error)
	ResumeVehicle(vehicleID string) (models.VehicleStatus, error)
	SetVehicleSpeed(vehicleID string, speedKmh float64) (models.VehicleStatus, error)
	SetPassengers(vehicleID string, passengers int) (models.VehicleStatus, error)
	SetDelay(vehicleID string, minutes float64, reason string) (models.VehicleStatus, error)
	ForceBreakdown(vehicleID string, reason string) (models.VehicleStatus, error)
}

// ControlHandler handles admin requests against the simulation engine.
type ControlHandler struct {
	engine SimulationEngine
}

// NewControlHandler creates a new handler over the given engine.
func NewControlHandler(engine SimulationEngine) *ControlHandler {
	return &ControlHandler{engine: engine}
}

// EngineControlResponse wraps an engine status with an outcome message.
type EngineControlResponse struct {
	Message string              `json:"message"`
	Engine  models.EngineStatus `json:"engine"`
}

// VehicleControlResponse wraps a vehicle status with an outcome message.
type VehicleControlResponse struct {
	Message string               `json:"message"`
	Vehicle models.VehicleStatus `json:"vehicle"`
}

// StartEngine handles POST /api/admin/simulation/start.
func (h *ControlHandler) StartEngine(w http.ResponseWriter, r *http.Request) {
	st := h.engine.Start()
	writeJSON(w, http.StatusOK, EngineControlResponse{Message: "simulation running", Engine: st})
}

// StopEngine handles POST /api/admin/simulation/stop.
func (h *ControlHandler) StopEngine(w http.ResponseWriter, r *http.Request) {
	st := h.engine.Stop()
	writeJSON(w, http.StatusOK, EngineControlResponse{Message: "simulation stopped", Engine: st})
}

// ResetEngine handles POST /api/admin/simulation/reset.
func (h *ControlHandler) ResetEngine(w http.ResponseWriter, r *http.Request) {
	st := h.engine.Reset()
	writeJSON(w, http.StatusOK, EngineControlResponse{Message: "simulation reset", Engine: st})
}

// EngineStatus handles GET /api/admin/simulation/status.
func (h *ControlHandler) EngineStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Status())
}

// SetEngineSpeed handles PUT /api/admin/simulation/speed.
func (h *ControlHandler) SetEngineSpeed(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Multiplier float64 `json:"multiplier"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, fmt.Errorf("%w: bad speed body: %v", models.ErrInvalidInput, err))
		return
	}

	st, err := h.engine.SetSpeed(body.Multiplier)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, EngineControlResponse{
		Message: fmt.Sprintf("speed multiplier set to %.2f", body.Multiplier),
		Engine:  st,
	})
}

// ListVehicles handles GET /api/admin/vehicles.
func (h *ControlHandler) ListVehicles(w http.ResponseWriter, r *http.Request) {
	vehicles := h.engine.Vehicles()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"vehicles": vehicles,
		"count":    len(vehicles),
	})
}

// GetVehicle handles GET /api/admin/vehicles/{vehicleID}.
func (h *ControlHandler) GetVehicle(w http.ResponseWriter, r *http.Request) {
	st, err := h.engine.Vehicle(chi.URLParam(r, "vehicleID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// PauseVehicle handles POST /api/admin/vehicles/{vehicleID}/pause.
func (h *ControlHandler) PauseVehicle(w http.ResponseWriter, r *http.Request) {
	h.vehicleAction(w, r, "vehicle paused", func(id string) (models.VehicleStatus, error) {
		return h.engine.PauseVehicle(id)
	})
}

// ResumeVehicle handles POST /api/admin/vehicles/{vehicleID}/resume.
func (h *ControlHandler) ResumeVehicle(w http.ResponseWriter, r *http.Request) {
	h.vehicleAction(w, r, "vehicle resumed", func(id string) (models.VehicleStatus, error) {
		return h.engine.ResumeVehicle(id)
	})
}

// ForceBreakdown handles POST /api/admin/vehicles/{vehicleID}/breakdown.
func (h *ControlHandler) ForceBreakdown(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	// Body is optional for breakdowns.
	_ = json.NewDecoder(r.Body).Decode(&body)

	h.vehicleAction(w, r, "vehicle breakdown reported", func(id string) (models.VehicleStatus, error) {
		return h.engine.ForceBreakdown(id, body.Reason)
	})
}

// SetVehicleSpeed handles PUT /api/admin/vehicles/{vehicleID}/speed.
func (h *ControlHandler) SetVehicleSpeed(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SpeedKmh float64 `json:"speedKmh"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, fmt.Errorf("%w: bad speed body: %v", models.ErrInvalidInput, err))
		return
	}

	h.vehicleAction(w, r, "vehicle speed updated", func(id string) (models.VehicleStatus, error) {
		return h.engine.SetVehicleSpeed(id, body.SpeedKmh)
	})
}

// SetPassengers handles PUT /api/admin/vehicles/{vehicleID}/passengers.
func (h *ControlHandler) SetPassengers(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Passengers int `json:"passengers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, fmt.Errorf("%w: bad passengers body: %v", models.ErrInvalidInput, err))
		return
	}

	h.vehicleAction(w, r, "passenger count updated", func(id string) (models.VehicleStatus, error) {
		return h.engine.SetPassengers(id, body.Passengers)
	})
}

// SetDelay handles PUT /api/admin/vehicles/{vehicleID}/delay.
func (h *ControlHandler) SetDelay(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Minutes float64 `json:"minutes"`
		Reason  string  `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, fmt.Errorf("%w: bad delay body: %v", models.ErrInvalidInput, err))
		return
	}

	h.vehicleAction(w, r, "vehicle delay updated", func(id string) (models.VehicleStatus, error) {
		return h.engine.SetDelay(id, body.Minutes, body.Reason)
	})
}

func (h *ControlHandler) vehicleAction(w http.ResponseWriter, r *http.Request, message string, fn func(string) (models.VehicleStatus, error)) {
	vehicleID := chi.URLParam(r, "vehicleID")
	if vehicleID == "" {
		writeError(w, fmt.Errorf("%w: vehicleID parameter is required", models.ErrInvalidInput))
		return
	}

	st, err := fn(vehicleID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, VehicleControlResponse{Message: message, Vehicle: st})
}
