package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudterm/console/internal/bridge"
	"github.com/cloudterm/console/internal/config"
	"github.com/cloudterm/console/internal/crypto"
	"github.com/cloudterm/console/internal/database"
	"github.com/cloudterm/console/internal/directory"
	"github.com/cloudterm/console/internal/handlers"
	"github.com/cloudterm/console/internal/logging"
	"github.com/cloudterm/console/internal/middleware"
	"github.com/cloudterm/console/internal/remote"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/robfig/cron/v3"
)

// auditRecorder persists bridge open/close events to the database.
type auditRecorder struct{}

func (auditRecorder) Record(sessionID, event string, target remote.Target, reason string) {
	ev := &database.SessionEvent{
		SessionID:  sessionID,
		Event:      event,
		TargetKind: string(target.Kind),
		Target:     target.String(),
		Reason:     reason,
	}
	if err := database.RecordSessionEvent(ev); err != nil {
		log.Printf("Failed to record session event: %v", err)
	}
}

func main() {
	config.Load()
	logging.Init()

	if err := database.Init(); err != nil {
		log.Fatalf("Database init: %v", err)
	}
	defer database.Close()

	dir, err := directory.Load(config.Cfg.DirectoryPath, crypto.Decrypt)
	if err != nil {
		log.Fatalf("Directory load: %v", err)
	}
	log.Printf("Directory loaded: %d hosts, %d clusters", len(dir.Hosts()), len(dir.ClusterIDs()))

	connectTimeout, err := time.ParseDuration(config.Cfg.ConnectTimeout)
	if err != nil || connectTimeout <= 0 {
		connectTimeout = remote.DefaultConnectTimeout
	}

	est := remote.NewEstablisher(dir, connectTimeout)
	br := bridge.New(est, auditRecorder{})

	handlers.SessionBridge = br
	handlers.Dir = dir

	idleTimeout, err := time.ParseDuration(config.Cfg.SessionIdleTimeout)
	if err != nil {
		idleTimeout = 0
	}

	jobs := cron.New()
	if idleTimeout > 0 {
		jobs.AddFunc("@every 1m", func() {
			if n := br.ReapIdle(idleTimeout); n > 0 {
				log.Printf("Reaped %d idle sessions", n)
			}
		})
	}
	if config.Cfg.AuditRetentionDays > 0 {
		retention := time.Duration(config.Cfg.AuditRetentionDays) * 24 * time.Hour
		jobs.AddFunc("@daily", func() {
			n, err := database.PruneSessionEvents(retention)
			if err != nil {
				log.Printf("Audit prune failed: %v", err)
				return
			}
			if n > 0 {
				log.Printf("Pruned %d audit rows", n)
			}
		})
	}
	jobs.Start()
	defer jobs.Stop()

	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	// Health (no auth)
	r.Get("/health", handlers.HealthCheck)

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireAuth)

		r.Get("/hosts", handlers.ListHosts)
		r.Post("/secrets/encrypt", handlers.EncryptSecret)
		r.Get("/clusters", handlers.ListClusters)
		r.Get("/clusters/{cluster}/pods", handlers.ListClusterPods)

		r.Get("/sessions", handlers.ListSessions)
		r.Delete("/sessions/{sessionId}", handlers.CloseSession)

		r.Get("/audit", handlers.ListSessionAudit)
		r.Get("/server/logs", handlers.GetServerLogs)

		// Terminal WebSocket
		r.Get("/terminal", handlers.TerminalWS)
	})

	srv := &http.Server{
		Addr:    config.Cfg.ListenAddr,
		Handler: r,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Server starting on %s", config.Cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-sigCtx.Done()
	log.Println("Shutting down...")

	br.TerminateAll(bridge.ReasonShutdown)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Shutdown error: %v", err)
	}
	log.Println("Server stopped")
}
