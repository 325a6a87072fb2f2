package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/cmd"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/log"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/models"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/seed"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/services"
	"github.com/urfave/cli/v3"
)

// ErrInvalidFlows is returned when at least one flow definition failed validation.
var ErrInvalidFlows = errors.New("invalid flow definitions found")

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Validate stored and seeded flow definitions",
		Flags: []cli.Flag{
			databaseURLFlag(),
			seedFileFlag(),
			logLevelFlag(),
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := slog.With(
				"module", "composer-api",
				"action", "validate",
			)

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.Error("Failed to close persistence", "error", err)
				}
			}()

			definitions, err := persistence.FlowRepository().GetAll(ctx)
			if err != nil {
				return fmt.Errorf("failed to fetch flows: %w", err)
			}

			if seedFile := command.String("seed-file"); seedFile != "" {
				file, err := seed.Load(seedFile)
				if err != nil {
					return err
				}

				definitions = append(definitions, file.Flows...)
			}

			logger.Info("Validating flow definitions", "flows", len(definitions))

			return report(os.Stdout, definitions)
		},
	}
}

// report prints one block per flow and fails when any flow is invalid.
func report(w io.Writer, definitions []*models.FlowDefinition) error {
	_, _ = fmt.Fprintln(w, "Flow Validation Results:")
	_, _ = fmt.Fprintln(w, "========================")

	invalid := 0

	for _, definition := range definitions {
		result := services.ValidateDefinition(definition)

		_, _ = fmt.Fprintf(w, "\nFlow: %s [%s] (%s)\n", definition.Name, definition.Code, definition.ID)

		if result.Valid {
			_, _ = fmt.Fprintln(w, "    ✅ VALID")

			continue
		}

		invalid++

		for _, issue := range result.Issues {
			_, _ = fmt.Fprintf(w, "    ❌ INVALID: %s\n", issue)
		}
	}

	_, _ = fmt.Fprintf(w, "\nSummary: %d valid, %d invalid\n", len(definitions)-invalid, invalid)

	if invalid > 0 {
		return fmt.Errorf("%w: %d of %d", ErrInvalidFlows, invalid, len(definitions))
	}

	return nil
}
