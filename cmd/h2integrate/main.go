package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/h2integrate/h2integrate/pkg/common"
	"github.com/h2integrate/h2integrate/pkg/config"
	"github.com/h2integrate/h2integrate/pkg/driver"
	"github.com/h2integrate/h2integrate/pkg/finance"
	"github.com/h2integrate/h2integrate/pkg/log"
	"github.com/h2integrate/h2integrate/pkg/models"
	"github.com/h2integrate/h2integrate/pkg/server"
	"github.com/h2integrate/h2integrate/pkg/storage"
	"github.com/h2integrate/h2integrate/pkg/technology"
	"github.com/h2integrate/h2integrate/pkg/types"

	"github.com/levenlabs/go-lflag"
	"github.com/levenlabs/go-llog"
)

type summary struct {
	RunID         string             `json:"runID"`
	Name          string             `json:"name"`
	Driver        string             `json:"driver"`
	Cases         int                `json:"cases"`
	BestIteration int                `json:"bestIteration"`
	Objective     *float64           `json:"objective,omitempty"`
	Metrics       map[string]float64 `json:"metrics"`
}

func main() {
	// init packages
	loader := config.Configured()
	st := storage.Configured()
	opts := driver.Configured()
	srv := server.Configured()
	serve := lflag.Bool("serve", false, "Serve the HTTP API after the driver finishes")

	// parse flags
	lflag.Configure()

	var level slog.Level
	// lflag automatically sets llog's level, but we need to set the slog level
	switch llog.GetLevel() {
	case llog.DebugLevel:
		level = slog.LevelDebug
	case llog.InfoLevel:
		level = slog.LevelInfo
	case llog.WarnLevel:
		level = slog.LevelWarn
	case llog.ErrorLevel:
		level = slog.LevelError
	default:
		panic(fmt.Errorf("unknown log level: %s", llog.GetLevel().String()))
	}
	log.SetDefaultLogLevel(level)
	slog.SetDefault(log.Ctx(context.Background()))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, loader, st, opts, srv, *serve); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "h2integrate failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, loader *config.Loader, st *storage.Config, opts *driver.Options, srv *server.Server, serve bool) error {
	cfg, err := loader.Load(ctx)
	if err != nil {
		return err
	}

	reg := technology.NewMap()
	models.RegisterAll(reg)
	finance.RegisterAll(reg)
	opts.Plant.Client = common.HTTPClient(time.Minute)

	var db storage.Database = storage.None{}
	if rec := cfg.Driver.Recorder; (rec != nil && rec.Flag) || serve {
		db, err = st.Open(ctx, rec, outputDir(cfg))
		if err != nil {
			return err
		}
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", slog.Any("error", err))
		}
	}()

	d, err := driver.New(cfg, reg, db, *opts)
	if err != nil {
		return err
	}
	res, err := d.Run(ctx)
	if err != nil {
		return err
	}

	out := summary{
		RunID:         res.Run.ID,
		Name:          res.Run.Name,
		Driver:        res.Run.Driver,
		Cases:         res.Run.Cases,
		BestIteration: res.Run.BestIteration,
		Metrics:       map[string]float64{},
	}
	if res.Best != nil {
		out.Objective = &res.Objective
	}
	if res.Model != nil {
		res.Model.PostProcess(ctx)
		out.Metrics = res.Model.Metrics()
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}

	if !serve {
		return nil
	}
	// Run will block until context is canceled or error happens
	if err := srv.Attach(db, d).Run(ctx); err != nil {
		return err
	}
	log.Ctx(ctx).InfoContext(ctx, "server exited cleanly")
	return nil
}

func outputDir(cfg *types.Config) string {
	dir := cfg.Driver.General.FolderOutput
	switch {
	case dir == "":
		return cfg.BaseDir
	case filepath.IsAbs(dir):
		return dir
	}
	return filepath.Join(cfg.BaseDir, dir)
}
