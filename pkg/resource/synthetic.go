package resource

import (
	"math"
	"time"

	"github.com/sixdouglas/suncalc"
	"gonum.org/v1/gonum/stat/distuv"
)

// SyntheticWind returns n hourly hub height wind speeds starting at start.
// Speeds follow a Weibull distribution around mean, sampled in a fixed low
// discrepancy order, with windier winters and afternoons. The result is the
// same for the same arguments.
func SyntheticWind(start time.Time, n int, mean, shape float64) []float64 {
	if mean <= 0 {
		mean = 7
	}
	if shape <= 0 {
		shape = 2
	}
	w := distuv.Weibull{K: shape, Lambda: mean / math.Gamma(1+1/shape)}
	// golden ratio conjugate
	const phi = 0.6180339887498949

	out := make([]float64, n)
	for i := range out {
		t := start.Add(time.Duration(i) * time.Hour)
		seasonal := 1 + 0.15*math.Cos(2*math.Pi*float64(t.YearDay()-15)/365)
		diurnal := 1 + 0.1*math.Sin(2*math.Pi*float64(t.Hour()-9)/24)
		_, p := math.Modf(float64(i+1) * phi)
		out[i] = w.Quantile(p) * seasonal * diurnal
	}
	return out
}

// SyntheticSolar returns n hourly global horizontal irradiance values in
// W/m**2 from the sun position at the site. Cloud cover scales the whole
// series down.
func SyntheticSolar(start time.Time, n int, lat, lon, clearSky, cloudFraction float64) []float64 {
	if clearSky <= 0 {
		clearSky = 1000
	}
	cloud := min(max(cloudFraction, 0), 1)

	out := make([]float64, n)
	for i := range out {
		// mid-hour position
		t := start.Add(time.Duration(i)*time.Hour + 30*time.Minute)
		alt := suncalc.GetPosition(t, lat, lon).Altitude
		if alt <= 0 {
			continue
		}
		out[i] = clearSky * math.Sin(alt) * (1 - cloud)
	}
	return out
}

// demandShape is the relative load in each hour of the day.
var demandShape = [24]float64{
	0.80, 0.75, 0.72, 0.70, 0.72, 0.80,
	0.95, 1.15, 1.20, 1.05, 0.98, 0.96,
	0.95, 0.95, 0.97, 1.02, 1.12, 1.28,
	1.35, 1.30, 1.20, 1.08, 0.97, 0.93,
}

// SyntheticDemand returns n hourly loads averaging base with morning and
// evening peaks and a small summer cooling bump.
func SyntheticDemand(start time.Time, n int, base float64) []float64 {
	var sum float64
	for _, v := range demandShape {
		sum += v
	}
	out := make([]float64, n)
	for i := range out {
		t := start.Add(time.Duration(i) * time.Hour)
		seasonal := 1 + 0.1*math.Cos(2*math.Pi*float64(t.YearDay()-200)/365)
		out[i] = base * demandShape[t.Hour()] * 24 / sum * seasonal
	}
	return out
}
