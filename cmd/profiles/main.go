package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/levenlabs/go-lflag"

	"github.com/h2integrate/h2integrate/pkg/log"
	"github.com/h2integrate/h2integrate/pkg/resource"
)

func main() {
	outDir := lflag.String("out-dir", ".", "Directory the profile CSVs are written to")
	lat := lflag.Float64("latitude", 35.2, "Site latitude")
	lon := lflag.Float64("longitude", -101.9, "Site longitude")
	startStr := lflag.String("start", "2023-01-01", "First hour of the profiles as YYYY-MM-DD in UTC")
	hours := lflag.Int("hours", 8760, "Number of hourly values per profile")
	windMean := lflag.Float64("wind-mean", 7.5, "Mean hub height wind speed in m/s")
	windShape := lflag.Float64("wind-shape", 2, "Weibull shape of the wind speeds")
	clearSky := lflag.Float64("clear-sky-ghi", 1000, "Clear sky irradiance at zenith in W/m**2")
	cloud := lflag.Float64("cloud-fraction", 0.2, "Fraction of irradiance lost to clouds")
	demand := lflag.Float64("demand-kw", 1000, "Average demand in kW")
	lflag.Configure()

	ctx := context.Background()

	start, err := time.Parse(time.DateOnly, *startStr)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "invalid start date", slog.String("start", *startStr), slog.Any("error", err))
		os.Exit(1)
	}
	if *hours <= 0 {
		log.Ctx(ctx).ErrorContext(ctx, "hours must be positive", slog.Int("hours", *hours))
		os.Exit(1)
	}

	profiles := []struct {
		file   string
		column string
		values []float64
	}{
		{"wind.csv", "wind_speed", resource.SyntheticWind(start, *hours, *windMean, *windShape)},
		{"solar.csv", "ghi", resource.SyntheticSolar(start, *hours, *lat, *lon, *clearSky, *cloud)},
		{"demand.csv", "demand", resource.SyntheticDemand(start, *hours, *demand)},
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to create output directory", slog.Any("error", err))
		os.Exit(1)
	}
	for _, p := range profiles {
		path := filepath.Join(*outDir, p.file)
		if err := writeProfile(path, p.column, p.values); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to write profile", slog.String("path", path), slog.Any("error", err))
			os.Exit(1)
		}
		log.Ctx(ctx).InfoContext(ctx, "wrote profile", slog.String("path", path), slog.Int("hours", len(p.values)))
	}
}

// writeProfile writes a single column CSV with a header row.
func writeProfile(path, column string, values []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write([]string{column}); err != nil {
		f.Close()
		return err
	}
	for _, v := range values {
		if err := w.Write([]string{strconv.FormatFloat(v, 'f', 4, 64)}); err != nil {
			f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
