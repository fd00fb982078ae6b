package main

import (
	"fmt"
	"log"
	"os"

	"github.com/caarlos0/env/v11"

	"github.com/arnavshah/referee-assigner-go/pkg/auth"
	"github.com/arnavshah/referee-assigner-go/pkg/config"
)

func main() {
	config.LoadEnvFiles()

	if len(os.Args) < 2 {
		fmt.Println("Usage: keygen <userID>")
		os.Exit(1)
	}

	var server config.Server
	if err := env.Parse(&server); err != nil {
		log.Fatalf("parse env: %v", err)
	}
	if server.APIMasterSecret == "" {
		fmt.Println("Error: API_MASTER_SECRET is not set")
		os.Exit(1)
	}

	userID := os.Args[1]
	apiKey := auth.New(server).GenerateHMACKey(userID)
	fmt.Printf("Generated Key for %s:\n%s\n", userID, apiKey)
}
