package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	cmd := &cli.Command{
		Name:                  "composer-api",
		Usage:                 "Run document flows and manage their definitions",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			RunAPICommand(),
			NewValidateCommand(),
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}

func databaseURLFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "database-url",
		Usage:   "Database connection URL for persistence (file://<dir> or postgres://...)",
		Value:   "file://./data",
		Sources: cli.EnvVars("DATABASE_URL"),
	}
}

func seedFileFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "seed-file",
		Usage:   "YAML or JSON file with flow definitions and documents to load at startup",
		Sources: cli.EnvVars("SEED_FILE"),
	}
}

func logLevelFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "log-level",
		Usage:   "Log level (debug, info, warn, error)",
		Value:   "info",
		Sources: cli.EnvVars("LOG_LEVEL"),
	}
}
