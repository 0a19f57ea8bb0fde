package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8082" {
		t.Errorf("Port = %s, want 8082", cfg.Port)
	}
	if cfg.TickInterval != 5*time.Second {
		t.Errorf("TickInterval = %v, want 5s", cfg.TickInterval)
	}
	if cfg.SpeedMultiplier != 1.0 {
		t.Errorf("SpeedMultiplier = %f, want 1.0", cfg.SpeedMultiplier)
	}
	if cfg.EndOfRoutePolicy != EndPolicyLoop {
		t.Errorf("EndOfRoutePolicy = %s, want loop", cfg.EndOfRoutePolicy)
	}
	if cfg.RetentionDuration != 72*time.Hour {
		t.Errorf("RetentionDuration = %v, want 72h", cfg.RetentionDuration)
	}
	if !cfg.AutoStart {
		t.Error("AutoStart should default to true")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("TICK_INTERVAL_SECONDS", "2")
	t.Setenv("SPEED_MULTIPLIER", "4.5")
	t.Setenv("ROUTE_END_POLICY", "reverse")
	t.Setenv("SIMULATION_AUTOSTART", "false")
	t.Setenv("DATABASE_URL", "postgres://localhost/tracking")

	cfg := Load()

	if cfg.Port != "9000" {
		t.Errorf("Port = %s, want 9000", cfg.Port)
	}
	if cfg.TickInterval != 2*time.Second {
		t.Errorf("TickInterval = %v, want 2s", cfg.TickInterval)
	}
	if cfg.SpeedMultiplier != 4.5 {
		t.Errorf("SpeedMultiplier = %f, want 4.5", cfg.SpeedMultiplier)
	}
	if cfg.EndOfRoutePolicy != EndPolicyReverse {
		t.Errorf("EndOfRoutePolicy = %s, want reverse", cfg.EndOfRoutePolicy)
	}
	if cfg.AutoStart {
		t.Error("AutoStart should be false")
	}
	if cfg.DatabaseURL != "postgres://localhost/tracking" {
		t.Errorf("DatabaseURL = %s", cfg.DatabaseURL)
	}
}

func TestLoadUnknownEndPolicyFallsBack(t *testing.T) {
	t.Setenv("ROUTE_END_POLICY", "teleport")

	cfg := Load()
	if cfg.EndOfRoutePolicy != EndPolicyLoop {
		t.Errorf("EndOfRoutePolicy = %s, want fallback to loop", cfg.EndOfRoutePolicy)
	}
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("TICK_INTERVAL_SECONDS", "not-a-number")
	t.Setenv("SPEED_MULTIPLIER", "fast")

	cfg := Load()
	if cfg.TickInterval != 5*time.Second {
		t.Errorf("TickInterval = %v, want default 5s", cfg.TickInterval)
	}
	if cfg.SpeedMultiplier != 1.0 {
		t.Errorf("SpeedMultiplier = %f, want default 1.0", cfg.SpeedMultiplier)
	}
}
