package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/carlmjohnson/versioninfo"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/puzzlefed/puzzlefed/internal/config"
	"github.com/puzzlefed/puzzlefed/internal/federation"
	"github.com/puzzlefed/puzzlefed/internal/store"
)

func main() {
	app := &cli.App{
		Name:    "puzzlefed",
		Usage:   "federated multi-tenant puzzle platform server",
		Version: versioninfo.Short(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Value:   "config.yaml",
				EnvVars: []string{"PUZZLEFED_CONFIG"},
			},
		},
		Action: run,
	}

	app.RunAndExitOnError()
}

func run(cmd *cli.Context) error {
	// .env is optional; env vars override the yaml config either way.
	godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return fmt.Errorf("could not load config: %w", err)
	}

	st, err := store.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("could not open store: %w", err)
	}

	srv := federation.NewServer(cfg, st, logger)

	return srv.Run()
}
