package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/arnavshah/referee-assigner-go/internal/app"
	"github.com/arnavshah/referee-assigner-go/pkg/config"
	"github.com/arnavshah/referee-assigner-go/pkg/models"
	"github.com/arnavshah/referee-assigner-go/pkg/telemetry"
)

type commentList []string

func (c *commentList) String() string { return strings.Join(*c, "; ") }

func (c *commentList) Set(v string) error {
	*c = append(*c, v)
	return nil
}

func main() {
	var comments commentList
	configPath := flag.String("config", os.Getenv("ASSIGNER_CONFIG"), "path to the JSON config file")
	flag.Var(&comments, "comment", "context comment passed to the scorer (repeatable)")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: trigger [-config file] [-comment text]... <ruleID>")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	config.LoadEnvFiles()
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("could not load config: %v", err)
	}

	ctx := context.Background()
	shutdown, err := telemetry.Setup(ctx, app.ServiceName, cfg.Server.OTelEndpoint)
	if err != nil {
		log.Printf("tracing disabled: %v", err)
	}
	defer shutdown(ctx)

	a, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("could not start: %v", err)
	}

	result := a.Engine.TriggerRule(ctx, flag.Arg(0), comments)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		log.Fatalf("encode result: %v", err)
	}
	if result.Status == models.RunError {
		os.Exit(1)
	}
}
