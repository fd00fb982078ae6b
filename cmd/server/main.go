package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arnavshah/referee-assigner-go/internal/app"
	"github.com/arnavshah/referee-assigner-go/pkg/config"
	"github.com/arnavshah/referee-assigner-go/pkg/telemetry"
)

func main() {
	config.LoadEnvFiles()

	cfg, err := config.Load(os.Getenv("ASSIGNER_CONFIG"))
	if err != nil {
		log.Fatalf("could not load config: %v", err)
	}

	if os.Getenv("GIN_MODE") == "" && cfg.Server.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, app.ServiceName, cfg.Server.OTelEndpoint)
	if err != nil {
		log.Printf("tracing disabled: %v", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("could not start: %v", err)
	}
	if err := a.Auth.EnsureAdminExists(a.DB, cfg.Server); err != nil {
		log.Printf("could not create admin user: %v", err)
	}

	if err := a.Scheduler.Start(ctx); err != nil {
		log.Fatalf("could not start scheduler: %v", err)
	}
	defer a.Scheduler.Stop()

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: a.Router(),
	}
	go func() {
		log.Printf("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("could not run server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
}
