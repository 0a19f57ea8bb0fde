package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

// pingFailStore wraps captureStore with a failing Ping.
type pingFailStore struct {
	captureStore
}

func (p *pingFailStore) Ping(context.Context) error {
	return fmt.Errorf("database is locked")
}

func TestHealthOK(t *testing.T) {
	h := NewHealthHandler(&captureStore{})

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "ok" || resp.Database != "ok" {
		t.Errorf("response = %+v", resp)
	}
}

func TestHealthDegradedOnStoreFailure(t *testing.T) {
	h := NewHealthHandler(&pingFailStore{})

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "degraded" {
		t.Errorf("status = %q, want degraded", resp.Status)
	}
}
