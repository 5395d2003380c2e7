// Package resource provides the site and the weather resources that drive the
// technology models. A resource is read from a CSV file, fetched from a URL
// or generated for the site location when neither is given.
package resource

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/h2integrate/h2integrate/pkg/common"
	"github.com/h2integrate/h2integrate/pkg/component"
	"github.com/h2integrate/h2integrate/pkg/config"
	"github.com/h2integrate/h2integrate/pkg/log"
	"github.com/h2integrate/h2integrate/pkg/types"
)

const (
	Wind  = "wind_resource"
	Solar = "solar_resource"
)

// Site publishes the site location to the problem.
type Site struct {
	cfg types.SiteConfig
}

// NewSite returns the site component.
func NewSite(cfg types.SiteConfig) *Site {
	return &Site{cfg: cfg}
}

// Inputs implements component.Component.
func (s *Site) Inputs() []component.Port {
	return nil
}

// Outputs implements component.Component.
func (s *Site) Outputs() []component.Port {
	return []component.Port{
		component.Scalar("latitude", "deg", 0, ""),
		component.Scalar("longitude", "deg", 0, ""),
		component.Scalar("elevation_m", "m", 0, ""),
		component.Scalar("time_zone", "unitless", 0, "Offset from UTC in hours"),
	}
}

// Compute implements component.Component.
func (s *Site) Compute(ctx context.Context, in, out component.Vector) error {
	out.SetScalar("latitude", s.cfg.Latitude)
	out.SetScalar("longitude", s.cfg.Longitude)
	out.SetScalar("elevation_m", s.cfg.ElevationM)
	out.SetScalar("time_zone", float64(s.cfg.TimeZone))
	return nil
}

// params are the generator settings a resource may carry.
type params struct {
	MeanWindSpeed float64 `yaml:"mean_wind_speed"`
	WeibullShape  float64 `yaml:"weibull_shape"`
	ClearSkyGHI   float64 `yaml:"clear_sky_ghi"`
	CloudFraction float64 `yaml:"cloud_fraction"`
}

// Resource is a fixed hourly series published on one output.
type Resource struct {
	output string
	units  string
	vals   []float64
}

// Options for loading resources.
type Options struct {
	// Dir is where a relative filename is resolved from.
	Dir    string
	Client *http.Client
}

// New loads the resource called name for the plant.
func New(ctx context.Context, name string, rc types.ResourceConfig, plant types.PlantConfig, opts Options) (*Resource, error) {
	r := &Resource{}
	switch name {
	case Wind:
		r.output, r.units = "wind_speed", "m/s"
	case Solar:
		r.output, r.units = "ghi", "W/m**2"
	default:
		return nil, fmt.Errorf("unknown resource %q, must be %s or %s", name, Wind, Solar)
	}
	var p params
	if err := config.Decode(rc.Parameters, &p); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	n := plant.Plant.Simulation.NTimesteps
	if n <= 0 {
		n = types.DefaultTimesteps
	}
	source := "synthetic"
	var err error
	switch {
	case rc.Filename != "":
		source = rc.Filename
		path := rc.Filename
		if !filepath.IsAbs(path) {
			path = filepath.Join(opts.Dir, path)
		}
		r.vals, err = common.ReadProfile(path)
	case rc.URL != "":
		source = rc.URL
		r.vals, err = fetch(ctx, opts.Client, rc.URL)
	default:
		var start time.Time
		if start, err = plant.Plant.Simulation.Start(); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if name == Wind {
			r.vals = SyntheticWind(start, n, p.MeanWindSpeed, p.WeibullShape)
		} else {
			r.vals = SyntheticSolar(start, n, plant.Site.Latitude, plant.Site.Longitude, p.ClearSkyGHI, p.CloudFraction)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s from %s: %w", name, source, err)
	}
	if len(r.vals) != n {
		return nil, fmt.Errorf("%s from %s has %d values but the simulation has %d timesteps", name, source, len(r.vals), n)
	}
	log.Ctx(ctx).DebugContext(ctx, "loaded resource",
		slog.String("resource", name),
		slog.String("source", source),
	)
	return r, nil
}

func fetch(ctx context.Context, client *http.Client, url string) ([]float64, error) {
	if client == nil {
		client = common.HTTPClient(time.Minute)
	}
	body, err := common.Download(ctx, client, url)
	if err != nil {
		return nil, err
	}
	return common.ParseProfile(bytes.NewReader(body))
}

// Values returns the loaded series.
func (r *Resource) Values() []float64 {
	return r.vals
}

// Inputs implements component.Component.
func (r *Resource) Inputs() []component.Port {
	return nil
}

// Outputs implements component.Component.
func (r *Resource) Outputs() []component.Port {
	return []component.Port{component.Series(r.output, r.units, len(r.vals), "")}
}

// Compute implements component.Component.
func (r *Resource) Compute(ctx context.Context, in, out component.Vector) error {
	out.Set(r.output, r.vals)
	return nil
}
