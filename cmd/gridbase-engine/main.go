package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/gridbase/gridbase/pkg/log"
)

func main() {
	cmd := &cli.Command{
		Name:                  "gridbase-engine",
		Usage:                 "Start the Gridbase automation engine",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			NewValidateCommand(),
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence (file or postgres)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (memory, kafka)",
				Value:   "memory",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the delivery retry queue (in-memory queue if empty)",
				Value:   "",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:     "records-url",
				Usage:    "Base URL of the internal record API",
				Required: true,
				Sources:  cli.EnvVars("RECORDS_API_URL"),
			},
			&cli.StringFlag{
				Name:    "records-token",
				Usage:   "Service token for the record API",
				Value:   "",
				Sources: cli.EnvVars("RECORDS_API_TOKEN"),
			},
			&cli.IntFlag{
				Name:    "webhook-port",
				Usage:   "Port for the inbound webhook HTTP listener",
				Value:   8085,
				Sources: cli.EnvVars("WEBHOOK_PORT"),
			},
			&cli.IntFlag{
				Name:    "workers",
				Usage:   "Concurrent workflow run slots",
				Value:   4,
				Sources: cli.EnvVars("ENGINE_WORKERS"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			return runEngine(ctx, command)
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
