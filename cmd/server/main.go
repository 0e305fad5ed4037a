package main

import (
	"context"
	"log"
	"os"

	"github.com/spounge-ai/auditvault/internal/infra/config"
	"github.com/spounge-ai/auditvault/internal/server"
	"github.com/spounge-ai/auditvault/internal/wiring"
)

func main() {
	cfg, err := config.Load(os.Getenv("AUDITVAULT_CONFIG_PATH"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := wiring.NewLogger(cfg.Server.LogLevel)

	ctx := context.Background()
	deps, err := wiring.Provide(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("failed to wire dependencies: %v", err)
	}

	srv := server.New(deps)
	srv.Start(ctx)
	server.WaitForSignal()
	srv.Stop()
}
