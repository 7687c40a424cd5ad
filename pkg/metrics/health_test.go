package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func resetHealth(t *testing.T) {
	t.Helper()
	healthChecker = newHealthChecker()
}

func TestRegisterComponent(t *testing.T) {
	resetHealth(t)

	RegisterComponent(ComponentStorage, true, "bolt")

	if len(healthChecker.components) != 1 {
		t.Errorf("expected 1 component, got %d", len(healthChecker.components))
	}

	comp := healthChecker.components[ComponentStorage]
	if !comp.Healthy {
		t.Error("component should be healthy")
	}
	if comp.Message != "bolt" {
		t.Errorf("expected message 'bolt', got '%s'", comp.Message)
	}
}

func TestUpdateComponent(t *testing.T) {
	resetHealth(t)

	RegisterComponent(ComponentReconciler, true, "")
	UpdateComponent(ComponentReconciler, false, "tick failed")

	comp := healthChecker.components[ComponentReconciler]
	if comp.Healthy {
		t.Error("component should be unhealthy after update")
	}
	if comp.Message != "tick failed" {
		t.Errorf("expected message 'tick failed', got '%s'", comp.Message)
	}
}

func TestGetHealth(t *testing.T) {
	tests := []struct {
		name       string
		reconciler bool
		wantStatus string
		wantEntry  string
	}{
		{"all healthy", true, "healthy", "healthy"},
		{"reconciler failing", false, "unhealthy", "unhealthy: database is locked"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetHealth(t)
			SetVersion("1.0.0")
			RegisterComponent(ComponentStorage, true, "")
			RegisterComponent(ComponentReconciler, tt.reconciler, "database is locked")

			health := GetHealth()
			if health.Status != tt.wantStatus {
				t.Errorf("expected status '%s', got '%s'", tt.wantStatus, health.Status)
			}
			if health.Components[ComponentReconciler] != tt.wantEntry {
				t.Errorf("unexpected reconciler entry: %s", health.Components[ComponentReconciler])
			}
			if health.Version != "1.0.0" {
				t.Errorf("expected version '1.0.0', got '%s'", health.Version)
			}
		})
	}
}

func TestGetReadiness(t *testing.T) {
	tests := []struct {
		name       string
		register   map[string]bool
		wantStatus string
		wantMsg    string
	}{
		{
			name:       "all critical ready",
			register:   map[string]bool{ComponentStorage: true, ComponentReconciler: true},
			wantStatus: "ready",
		},
		{
			name:       "reconciler not registered",
			register:   map[string]bool{ComponentStorage: true, ComponentAPI: true},
			wantStatus: "not_ready",
			wantMsg:    "waiting for reconciler",
		},
		{
			name:       "storage unhealthy",
			register:   map[string]bool{ComponentStorage: false, ComponentReconciler: true},
			wantStatus: "not_ready",
			wantMsg:    "waiting for storage",
		},
		{
			name:       "api is not critical",
			register:   map[string]bool{ComponentStorage: true, ComponentReconciler: true, ComponentAPI: false},
			wantStatus: "ready",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetHealth(t)
			for name, healthy := range tt.register {
				RegisterComponent(name, healthy, "")
			}

			readiness := GetReadiness()
			if readiness.Status != tt.wantStatus {
				t.Errorf("expected status '%s', got '%s'", tt.wantStatus, readiness.Status)
			}
			if readiness.Message != tt.wantMsg {
				t.Errorf("expected message '%s', got '%s'", tt.wantMsg, readiness.Message)
			}
		})
	}
}

func TestHandlers(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		healthy  bool
		wantCode int
		wantBody string
	}{
		{"health ok", HealthHandler(), true, http.StatusOK, "healthy"},
		{"health failing", HealthHandler(), false, http.StatusServiceUnavailable, "unhealthy"},
		{"ready ok", ReadyHandler(), true, http.StatusOK, "ready"},
		{"ready failing", ReadyHandler(), false, http.StatusServiceUnavailable, "not_ready"},
		{"live", LivenessHandler(), false, http.StatusOK, "alive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetHealth(t)
			RegisterComponent(ComponentStorage, true, "")
			RegisterComponent(ComponentReconciler, tt.healthy, "stopped")

			w := httptest.NewRecorder()
			tt.handler(w, httptest.NewRequest(http.MethodGet, "/", nil))

			if w.Code != tt.wantCode {
				t.Errorf("expected status %d, got %d", tt.wantCode, w.Code)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("expected JSON content type, got %s", ct)
			}

			var body map[string]any
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if body["status"] != tt.wantBody {
				t.Errorf("expected status '%s', got '%v'", tt.wantBody, body["status"])
			}
		})
	}
}
