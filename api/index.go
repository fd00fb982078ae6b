package handler

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arnavshah/referee-assigner-go/internal/app"
	"github.com/arnavshah/referee-assigner-go/pkg/config"
)

var r *gin.Engine

func init() {
	// Load .env if it exists (for local testing with vercel dev)
	config.LoadEnvFiles(".env", "../.env")

	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("could not load config: %v", err)
	}

	a, err := app.Build(context.Background(), cfg)
	if err != nil {
		log.Fatalf("could not start: %v", err)
	}
	if err := a.Auth.EnsureAdminExists(a.DB, cfg.Server); err != nil {
		log.Printf("could not create admin user: %v", err)
	}

	gin.SetMode(gin.ReleaseMode)
	// scheduled rules are fired by the long-running server, not per request
	r = a.Router()
}

// Handler is the entry point for the Vercel Go runtime
func Handler(w http.ResponseWriter, req *http.Request) {
	r.ServeHTTP(w, req)
}
