package storage

import (
	"context"
	"errors"
	"log/slog"

	"github.com/h2integrate/h2integrate/pkg/log"
	"github.com/h2integrate/h2integrate/pkg/types"
)

var (
	ErrNotFound = errors.New("not found")
	ErrNoRunID  = errors.New("run id cannot be empty")
)

// Database records driver runs and the cases they evaluate.
type Database interface {
	// CreateRun stores run, replacing any run with the same ID. Drivers call
	// it again when the run completes.
	CreateRun(ctx context.Context, run types.Run) error
	// RecordCase stores one evaluated case of a run.
	RecordCase(ctx context.Context, c types.Case) error

	GetRun(ctx context.Context, runID string) (types.Run, error)
	// ListRuns returns every run, most recently started first.
	ListRuns(ctx context.Context) ([]types.Run, error)
	// ListCases returns the cases of a run ordered by iteration. Cases stored
	// by older versions are migrated.
	ListCases(ctx context.Context, runID string) ([]types.Case, error)

	// Lifecycle
	Close() error
}

// migrate upgrades a stored case. It is shared by every provider.
func migrate(ctx context.Context, c types.Case, version int) (types.Case, error) {
	mc, changed, err := types.MigrateCase(c, version)
	if err != nil {
		return c, err
	}
	if changed {
		log.Ctx(ctx).DebugContext(
			ctx,
			"migrated stored case",
			slog.String("runID", c.RunID),
			slog.Int("iteration", c.Iteration),
			slog.Int("fromVersion", version),
		)
	}
	return mc, nil
}
