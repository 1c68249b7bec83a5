package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/akarpov91/chainanchor/internal/buildinfo"
	"github.com/akarpov91/chainanchor/internal/client/cli"
	"github.com/akarpov91/chainanchor/internal/client/config"
	"github.com/akarpov91/chainanchor/internal/logging"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx := context.Background()
	cfg := config.LoadConfig()

	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	app, err := cli.NewApp(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
	}

	app.Run(ctx)
}
