package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/go-playground/validator/v10"
	cli "github.com/urfave/cli/v3"

	"github.com/gridbase/gridbase/pkg/engine"
	"github.com/gridbase/gridbase/pkg/log"
	"github.com/gridbase/gridbase/pkg/protocol"
)

var ErrInvalidWorkflows = errors.New("invalid workflows found")

// NewValidateCommand checks every published workflow: struct-level
// field validation, trigger config against the factory schema, and a
// dry-run evaluator construction.
func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Validate published workflow definitions and trigger configurations",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence (file or postgres)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "error",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := slog.With("module", "gridbase-engine", "action", "validate")

			store, err := newPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return fmt.Errorf("failed to open persistence: %w", err)
			}

			defer func() {
				if err := store.Close(ctx); err != nil {
					logger.Error("failed to close persistence", "error", err)
				}
			}()

			workflows, err := store.PublishedWorkflows(ctx)
			if err != nil {
				return fmt.Errorf("failed to fetch workflows: %w", err)
			}

			validate := validator.New(validator.WithRequiredStructEnabled())
			factories := engine.EvaluatorFactories()
			deps := protocol.Dependencies{Logger: logger}

			invalid := 0

			for _, workflow := range workflows {
				_, _ = fmt.Fprintf(os.Stdout, "Workflow: %s (%s)\n", workflow.Name, workflow.ID)

				if err := validate.Struct(workflow); err != nil {
					_, _ = fmt.Fprintf(os.Stdout, "  INVALID: %v\n", err)
					invalid++

					continue
				}

				trigger, err := workflow.TriggerNode()
				if err != nil {
					_, _ = fmt.Fprintf(os.Stdout, "  INVALID: %v\n", err)
					invalid++

					continue
				}

				factory, ok := factories[trigger.Type]
				if !ok {
					_, _ = fmt.Fprintf(os.Stdout, "  INVALID: unknown trigger type %q\n", trigger.Type)
					invalid++

					continue
				}

				if err := protocol.ValidateConfig(trigger.Config, factory.Schema()); err != nil {
					_, _ = fmt.Fprintf(os.Stdout, "  INVALID: %v\n", err)
					invalid++

					continue
				}

				if _, err := factory.Create(trigger.Config, deps); err != nil {
					_, _ = fmt.Fprintf(os.Stdout, "  INVALID: %v\n", err)
					invalid++

					continue
				}

				_, _ = fmt.Fprintln(os.Stdout, "  VALID")
			}

			_, _ = fmt.Fprintf(os.Stdout, "\nChecked %d workflows, %d invalid\n", len(workflows), invalid)

			if invalid > 0 {
				return fmt.Errorf("%w: %d", ErrInvalidWorkflows, invalid)
			}

			return nil
		},
	}
}
