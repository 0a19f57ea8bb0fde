package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	"github.com/Sri-Express/Backend-sub002/internal/config"
	"github.com/Sri-Express/Backend-sub002/internal/fleet"
	"github.com/Sri-Express/Backend-sub002/internal/handlers"
	"github.com/Sri-Express/Backend-sub002/internal/query"
	"github.com/Sri-Express/Backend-sub002/internal/route"
	"github.com/Sri-Express/Backend-sub002/internal/simulation"
	"github.com/Sri-Express/Backend-sub002/internal/store"
)

func main() {
	log.Println("Starting vehicle tracking service...")

	// Load .env first, then .env.local (which overrides for local development)
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")

	cfg := config.Load()
	log.Printf("Config loaded: tick=%v, speed=%.1fx, end_policy=%s, retention=%v",
		cfg.TickInterval, cfg.SpeedMultiplier, cfg.EndOfRoutePolicy, cfg.RetentionDuration)

	// ═══════════════════════════════════════════════════════
	// PHASE 1: Tracking Store
	// ═══════════════════════════════════════════════════════
	var (
		trackingStore store.Store
		err           error
	)
	if cfg.DatabaseURL != "" {
		log.Println("Connecting to Postgres tracking store")
		trackingStore, err = store.NewPostgres(context.Background(), cfg.DatabaseURL)
	} else {
		log.Printf("Connecting to SQLite tracking store: %s", cfg.DatabasePath)
		trackingStore, err = store.NewSQLite(cfg.DatabasePath)
	}
	if err != nil {
		log.Fatalf("Failed to initialize tracking store: %v", err)
	}
	defer trackingStore.Close()
	log.Println("Tracking store initialized")

	// ═══════════════════════════════════════════════════════
	// PHASE 2: Routes and Fleet
	// ═══════════════════════════════════════════════════════
	catalog, err := route.LoadCatalog(cfg.RoutesFile)
	if err != nil {
		log.Fatalf("Failed to load route catalog: %v", err)
	}
	assignments, err := fleet.LoadAssignments(cfg.FleetFile)
	if err != nil {
		log.Fatalf("Failed to load fleet assignments: %v", err)
	}
	log.Printf("Loaded %d routes, %d fleet assignments", catalog.Len(), len(assignments))

	// ═══════════════════════════════════════════════════════
	// PHASE 3: Simulation Engine
	// ═══════════════════════════════════════════════════════
	engine := simulation.New(cfg, catalog, assignments, trackingStore)
	if cfg.AutoStart {
		status := engine.Start()
		log.Printf("Simulation started: %d vehicles, tick %v", status.VehicleCount, status.TickInterval)
	} else {
		log.Println("Simulation autostart disabled; start via POST /api/admin/simulation/start")
	}
	defer engine.Stop()

	// ═══════════════════════════════════════════════════════
	// PHASE 4: History Retention
	// ═══════════════════════════════════════════════════════
	cleanupCtx, cancelCleanup := context.WithCancel(context.Background())
	defer cancelCleanup()
	go func() {
		ticker := time.NewTicker(cfg.CleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(cleanupCtx, cfg.StoreTimeout)
				removed, err := trackingStore.Cleanup(ctx, cfg.RetentionDuration)
				cancel()
				if err != nil {
					log.Printf("History cleanup error: %v", err)
				} else if removed > 0 {
					log.Printf("History cleanup removed %d records older than %v", removed, cfg.RetentionDuration)
				}
			case <-cleanupCtx.Done():
				log.Println("Cleanup loop stopped")
				return
			}
		}
	}()

	// ═══════════════════════════════════════════════════════
	// PHASE 5: HTTP API
	// ═══════════════════════════════════════════════════════
	queryService := query.NewService(trackingStore, catalog, cfg)
	trackingHandler := handlers.NewTrackingHandler(queryService)
	controlHandler := handlers.NewControlHandler(engine)
	ingestHandler := handlers.NewIngestHandler(trackingStore, catalog, cfg)
	healthHandler := handlers.NewHealthHandler(trackingStore)

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.CORSOrigin},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	r.Get("/health", healthHandler.Health)

	// Read side
	r.Get("/api/tracking/live", trackingHandler.GetLiveLocations)
	r.Get("/api/tracking/routes/{routeID}/vehicles", trackingHandler.GetRouteVehicles)
	r.Get("/api/tracking/vehicles/{vehicleID}/history", trackingHandler.GetVehicleHistory)
	r.Get("/api/tracking/analytics", trackingHandler.GetAnalytics)
	r.Post("/api/tracking/eta", trackingHandler.GetBookingETA)

	// Hardware feed ingestion
	r.Post("/api/tracking/updates", ingestHandler.IngestPing)
	r.Post("/api/tracking/updates/gtfsrt", ingestHandler.IngestGTFSRT)

	// Simulation control
	r.Route("/api/admin/simulation", func(r chi.Router) {
		r.Post("/start", controlHandler.StartEngine)
		r.Post("/stop", controlHandler.StopEngine)
		r.Post("/reset", controlHandler.ResetEngine)
		r.Get("/status", controlHandler.EngineStatus)
		r.Put("/speed", controlHandler.SetEngineSpeed)
	})
	r.Route("/api/admin/vehicles", func(r chi.Router) {
		r.Get("/", controlHandler.ListVehicles)
		r.Get("/{vehicleID}", controlHandler.GetVehicle)
		r.Post("/{vehicleID}/pause", controlHandler.PauseVehicle)
		r.Post("/{vehicleID}/resume", controlHandler.ResumeVehicle)
		r.Post("/{vehicleID}/breakdown", controlHandler.ForceBreakdown)
		r.Put("/{vehicleID}/speed", controlHandler.SetVehicleSpeed)
		r.Put("/{vehicleID}/passengers", controlHandler.SetPassengers)
		r.Put("/{vehicleID}/delay", controlHandler.SetDelay)
	})

	server := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		log.Printf("API server starting on :%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// ═══════════════════════════════════════════════════════
	// PHASE 6: Graceful Shutdown
	// ═══════════════════════════════════════════════════════
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}
	engine.Stop()
	cancelCleanup()

	// Give the last write batch time to land
	time.Sleep(100 * time.Millisecond)
	log.Println("Goodbye!")
}
