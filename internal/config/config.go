package config

import (
	"os"
	"strconv"
	"time"
)

// End-of-route policies. Loop sends a vehicle back to the first waypoint
// once it passes the last one; reverse turns it around and runs the
// polyline backwards.
const (
	EndPolicyLoop    = "loop"
	EndPolicyReverse = "reverse"
)

// Speed multiplier bounds accepted by the engine.
const (
	MinSpeedMultiplier = 0.1
	MaxSpeedMultiplier = 10.0
)

// Config holds all configuration for the tracking service.
type Config struct {
	// HTTP
	Port       string
	CORSOrigin string

	// Store. DatabaseURL selects the Postgres backend when set;
	// otherwise the SQLite backend at DatabasePath is used.
	DatabaseURL  string
	DatabasePath string
	StoreTimeout time.Duration

	// Fixtures
	RoutesFile string
	FleetFile  string

	// Simulation
	TickInterval          time.Duration
	SpeedMultiplier       float64
	EndOfRoutePolicy      string
	DefaultSpeedKmh       float64
	StopRadiusKm          float64
	DelayThresholdMinutes float64
	DelayJitterMinutes    float64
	MaxDelayMinutes       float64
	BreakdownDelayMinutes float64
	RandomSeed            int64
	AutoStart             bool

	// Read side
	FreshnessWindow time.Duration

	// History retention
	RetentionDuration time.Duration
	CleanupInterval   time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	cfg := &Config{
		Port:       getEnv("PORT", "8082"),
		CORSOrigin: getEnv("CORS_ORIGIN", "http://localhost:5173"),

		DatabaseURL:  getEnv("DATABASE_URL", ""),
		DatabasePath: getEnv("SQLITE_DATABASE", "/data/tracking.db"),
		StoreTimeout: time.Duration(getEnvInt("STORE_TIMEOUT_SECONDS", 5)) * time.Second,

		RoutesFile: getEnv("ROUTES_FILE", ""),
		FleetFile:  getEnv("FLEET_FILE", ""),

		TickInterval:          time.Duration(getEnvInt("TICK_INTERVAL_SECONDS", 5)) * time.Second,
		SpeedMultiplier:       getEnvFloat("SPEED_MULTIPLIER", 1.0),
		EndOfRoutePolicy:      getEnv("ROUTE_END_POLICY", EndPolicyLoop),
		DefaultSpeedKmh:       getEnvFloat("DEFAULT_SPEED_KMH", 40),
		StopRadiusKm:          getEnvFloat("STOP_RADIUS_KM", 0.25),
		DelayThresholdMinutes: getEnvFloat("DELAY_THRESHOLD_MINUTES", 5),
		DelayJitterMinutes:    getEnvFloat("DELAY_JITTER_MINUTES", 0.5),
		MaxDelayMinutes:       getEnvFloat("MAX_DELAY_MINUTES", 30),
		BreakdownDelayMinutes: getEnvFloat("BREAKDOWN_DELAY_MINUTES", 60),
		RandomSeed:            int64(getEnvInt("RANDOM_SEED", 0)),
		AutoStart:             getEnvBool("SIMULATION_AUTOSTART", true),

		FreshnessWindow: time.Duration(getEnvInt("FRESHNESS_WINDOW_MINUTES", 5)) * time.Minute,

		RetentionDuration: time.Duration(getEnvInt("RETENTION_HOURS", 72)) * time.Hour,
		CleanupInterval:   time.Duration(getEnvInt("CLEANUP_INTERVAL_MINUTES", 60)) * time.Minute,
	}

	if cfg.EndOfRoutePolicy != EndPolicyLoop && cfg.EndOfRoutePolicy != EndPolicyReverse {
		cfg.EndOfRoutePolicy = EndPolicyLoop
	}

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
