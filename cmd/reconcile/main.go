// cmd/reconcile is the operator CLI for auditing and repairing capacity
// counters. Exit codes: 0 clean or fully fixed, 1 issues found and not
// fixed, 2 completed with partial errors, 3 invocation/config failure.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/compevent/registration/internal/cli"
	"github.com/compevent/registration/internal/clock"
	"github.com/compevent/registration/internal/database"
	"github.com/compevent/registration/internal/model"
	"github.com/compevent/registration/internal/reconcile"
	"github.com/compevent/registration/internal/repository"
)

func main() {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cmd := cli.NewReconcileCommand(runAgainstDatabase, log)
	if err := cmd.Execute(); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			if exitErr.Code == cli.ExitConfigError {
				fmt.Fprintln(os.Stderr, "error:", exitErr.Message)
			}
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(cli.ExitConfigError)
	}
}

func runAgainstDatabase(ctx context.Context, databaseURL string, opts model.ReconcileOptions, log *slog.Logger) (*model.ReconciliationReport, error) {
	pool, err := database.NewPoolURL(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	defer pool.Close()

	ledgerRepo := repository.NewLedgerRepository(pool)
	eventRepo := repository.NewEventRepository(pool)
	engine := reconcile.NewEngine(ledgerRepo, eventRepo, clock.NewSystem(), log)
	return engine.Run(ctx, opts)
}
