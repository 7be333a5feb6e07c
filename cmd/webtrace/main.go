package main

import (
	"context"
	"log"

	"github.com/boychina/web-tracing-analysis/internal/app"
)

func main() {
	cfg := app.LoadConfig()

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}

	if err := application.Run(context.Background()); err != nil {
		log.Fatalf("probe error: %v", err)
	}
}
