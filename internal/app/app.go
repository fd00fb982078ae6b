// Package app wires storage, the engine and the HTTP surface shared by the binaries
package app

import (
	"context"
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/arnavshah/referee-assigner-go/pkg/auth"
	"github.com/arnavshah/referee-assigner-go/pkg/config"
	"github.com/arnavshah/referee-assigner-go/pkg/database"
	"github.com/arnavshah/referee-assigner-go/pkg/engine"
	"github.com/arnavshah/referee-assigner-go/pkg/handlers"
	"github.com/arnavshah/referee-assigner-go/pkg/llm"
	"github.com/arnavshah/referee-assigner-go/pkg/monitoring"
	"github.com/arnavshah/referee-assigner-go/pkg/schedule"
)

// ServiceName identifies the assigner in traces
const ServiceName = "referee-assigner"

// App holds the wired components
type App struct {
	Config    config.Config
	DB        *gorm.DB
	Repo      *database.Repository
	Auth      *auth.Authenticator
	Monitor   *monitoring.Monitor
	Cache     *llm.Cache
	Engine    *engine.Engine
	Scheduler *schedule.Scheduler
	LLMReady  bool
}

// Build opens the database and wires every component. It fails when enabled llm
// rules exist but no provider is configured
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := database.Open(cfg.Server)
	if err != nil {
		return nil, err
	}
	return Wire(ctx, cfg, db)
}

// Wire builds the components around an already open database
func Wire(ctx context.Context, cfg config.Config, db *gorm.DB) (*App, error) {
	a := &App{
		Config:  cfg,
		DB:      db,
		Repo:    database.NewRepository(db),
		Auth:    auth.New(cfg.Server),
		Monitor: monitoring.New(cfg.Monitoring),
	}

	opts := []engine.Option{engine.WithMonitor(a.Monitor)}
	if cfg.LLM.Configured() {
		client, err := llm.NewOpenAIClient(cfg.LLM)
		if err != nil {
			return nil, err
		}
		a.Cache = llm.NewCache(cfg.Cache)
		opts = append(opts, engine.WithLLM(llm.WithCache(client, a.Cache)))
		a.LLMReady = true
		log.Printf("[LLM] Provider %s ready, model %s", cfg.LLM.Provider, cfg.LLM.Model)
	} else {
		n, err := a.Repo.CountEnabledLLMRules(ctx)
		if err != nil {
			return nil, fmt.Errorf("count llm rules: %w", err)
		}
		if n > 0 {
			return nil, fmt.Errorf("%d enabled llm rules: %w", n, config.ErrLLMNotConfigured)
		}
	}

	a.Engine = engine.New(cfg, a.Repo, opts...)
	a.Scheduler = schedule.New(a.Repo, a.Engine, cfg)
	return a, nil
}

// Handler returns the HTTP handler set backed by this app
func (a *App) Handler() *handlers.Handler {
	h := handlers.New(a.DB, a.Auth, a.Engine, a.Config)
	h.Monitor = a.Monitor
	h.Cache = a.Cache
	h.LLMReady = a.LLMReady
	return h
}

// Router builds a gin engine with logging, recovery and every route
func (a *App) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	a.Handler().Routes(r)
	return r
}
