// Package features derives the model input vector from raw paired rows.
// The schema is fixed and versioned: the trained bundle records the
// version it was fit against, and inference refuses a mismatch.
package features

import (
	"math"
	"time"

	"github.com/ruretse/mosweather/internal/models"
)

// SchemaVersion changes whenever the feature set or its ordering changes.
const SchemaVersion = "v1"

var (
	tendencyWindows = []int{3, 6, 12, 24}
	windChangeHours = []int{3, 6}
	lagHours        = []int{1, 2, 3, 6, 12, 24}
	rollWindows     = []int{6, 12, 24}
)

var names = buildNames()

func buildNames() []string {
	n := []string{
		"fcst_temp", "fcst_dewpoint", "fcst_humidity", "fcst_pressure",
		"fcst_surface_pressure", "fcst_wind_speed", "fcst_wind_dir",
		"fcst_wind_gust", "fcst_precip", "fcst_precip_prob", "fcst_cloud",
		"fcst_cape", "fcst_visibility", "lead_hours",
		"hour_sin", "hour_cos", "doy_sin", "doy_cos", "month",
		"dewpoint_depression", "wind_u", "wind_v", "gust_ratio",
	}
	for _, base := range []string{"pressure", "temp", "humidity"} {
		for _, w := range tendencyWindows {
			n = append(n, tendName(base, w))
		}
	}
	for _, comp := range []string{"wind_u", "wind_v"} {
		for _, w := range windChangeHours {
			n = append(n, tendName(comp+"_change", w))
		}
	}
	for _, lag := range lagHours {
		n = append(n, tendName("obs_precip_lag", lag))
	}
	for _, lag := range lagHours {
		n = append(n, tendName("obs_temp_lag", lag))
	}
	for _, w := range rollWindows {
		n = append(n, tendName("obs_precip_roll", w)+"_sum")
	}
	for _, w := range rollWindows {
		n = append(n, tendName("obs_precip_roll", w)+"_max")
	}
	n = append(n, "nwp_temp_bias_24h", "nwp_temp_bias_72h", "nwp_precip_bias_24h")
	return n
}

func tendName(base string, hours int) string {
	switch hours {
	case 1:
		return base + "_1h"
	case 2:
		return base + "_2h"
	case 3:
		return base + "_3h"
	case 6:
		return base + "_6h"
	case 12:
		return base + "_12h"
	case 24:
		return base + "_24h"
	case 72:
		return base + "_72h"
	}
	return base
}

// Names returns the feature names in vector order. Callers must not
// modify the returned slice.
func Names() []string { return names }

// Count is the fixed length of every feature vector.
func Count() int { return len(names) }

// Vector computes the feature vector for rows[i]. Lag, tendency, rolling
// and bias features look back through rows[0:i]; any lookback that cannot
// be filled from exactly-aligned hourly history yields NaN, never a
// fabricated default. Rows must be ordered by time ascending.
func Vector(rows []models.PairedRecord, i int) []float64 {
	r := rows[i]
	v := make([]float64, 0, len(names))

	v = append(v,
		r.FcstTemp, r.FcstDewpoint, r.FcstHumidity, r.FcstPressure,
		r.FcstSurfacePres, r.FcstWindSpeed, r.FcstWindDir, r.FcstWindGust,
		r.FcstPrecip, r.FcstPrecipProb, r.FcstCloud, r.FcstCAPE,
		r.FcstVisibility, float64(r.LeadHours),
	)

	hour := float64(r.Time.UTC().Hour())
	doy := float64(r.Time.UTC().YearDay())
	v = append(v,
		math.Sin(2*math.Pi*hour/24), math.Cos(2*math.Pi*hour/24),
		math.Sin(2*math.Pi*doy/365.25), math.Cos(2*math.Pi*doy/365.25),
		float64(r.Time.UTC().Month()),
	)

	u, w := windComponents(r.FcstWindSpeed, r.FcstWindDir)
	v = append(v, r.FcstTemp-r.FcstDewpoint, u, w, gustRatio(r.FcstWindGust, r.FcstWindSpeed))

	// Tendencies: current minus the value N hours prior.
	for _, get := range []func(models.PairedRecord) float64{
		func(p models.PairedRecord) float64 { return p.FcstPressure },
		func(p models.PairedRecord) float64 { return p.FcstTemp },
		func(p models.PairedRecord) float64 { return p.FcstHumidity },
	} {
		for _, wnd := range tendencyWindows {
			v = append(v, get(r)-lookback(rows, i, wnd, get))
		}
	}
	for _, comp := range []func(models.PairedRecord) float64{
		func(p models.PairedRecord) float64 { u, _ := windComponents(p.FcstWindSpeed, p.FcstWindDir); return u },
		func(p models.PairedRecord) float64 { _, w := windComponents(p.FcstWindSpeed, p.FcstWindDir); return w },
	} {
		for _, wnd := range windChangeHours {
			v = append(v, comp(r)-lookback(rows, i, wnd, comp))
		}
	}

	obsPrecip := func(p models.PairedRecord) float64 { return p.ObsPrecip }
	obsTemp := func(p models.PairedRecord) float64 { return p.ObsTemp }
	for _, lag := range lagHours {
		v = append(v, lookback(rows, i, lag, obsPrecip))
	}
	for _, lag := range lagHours {
		v = append(v, lookback(rows, i, lag, obsTemp))
	}

	// Rolling windows cover (t-w, t-1]: the current hour's observation is
	// the target at training time and must not feed its own features.
	for _, wnd := range rollWindows {
		sum, _, n := rollStats(rows, i, wnd, obsPrecip)
		v = append(v, naNIfEmpty(sum, n))
	}
	for _, wnd := range rollWindows {
		_, max, n := rollStats(rows, i, wnd, obsPrecip)
		v = append(v, naNIfEmpty(max, n))
	}

	tempErr := func(p models.PairedRecord) float64 { return p.ObsTemp - p.FcstTemp }
	precipErr := func(p models.PairedRecord) float64 { return p.ObsPrecip - p.FcstPrecip }
	v = append(v, rollMean(rows, i, 24, tempErr))
	v = append(v, rollMean(rows, i, 72, tempErr))
	v = append(v, rollMean(rows, i, 24, precipErr))

	return v
}

// Matrix computes feature vectors for every row of the series.
func Matrix(rows []models.PairedRecord) [][]float64 {
	out := make([][]float64, len(rows))
	for i := range rows {
		out[i] = Vector(rows, i)
	}
	return out
}

func windComponents(speed, dir float64) (u, v float64) {
	rad := dir * math.Pi / 180
	return -speed * math.Sin(rad), -speed * math.Cos(rad)
}

func gustRatio(gust, speed float64) float64 {
	if speed == 0 {
		return 1.0
	}
	return gust / speed
}

// lookback returns get(row at t-hours) when such a row exists at the
// exact hourly offset, NaN otherwise. Series gaps never fabricate values.
func lookback(rows []models.PairedRecord, i, hours int, get func(models.PairedRecord) float64) float64 {
	want := rows[i].Time.Add(-time.Duration(hours) * time.Hour)
	for j := i - 1; j >= 0; j-- {
		switch {
		case rows[j].Time.Equal(want):
			return get(rows[j])
		case rows[j].Time.Before(want):
			return math.NaN()
		}
	}
	return math.NaN()
}

// rollStats sums and maxes get() over rows in (t-window, t-1].
func rollStats(rows []models.PairedRecord, i, window int, get func(models.PairedRecord) float64) (sum, max float64, n int) {
	cutoff := rows[i].Time.Add(-time.Duration(window) * time.Hour)
	max = math.Inf(-1)
	for j := i - 1; j >= 0 && rows[j].Time.After(cutoff); j-- {
		val := get(rows[j])
		if math.IsNaN(val) {
			continue
		}
		sum += val
		if val > max {
			max = val
		}
		n++
	}
	return sum, max, n
}

func rollMean(rows []models.PairedRecord, i, window int, get func(models.PairedRecord) float64) float64 {
	sum, _, n := rollStats(rows, i, window, get)
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

func naNIfEmpty(val float64, n int) float64 {
	if n == 0 {
		return math.NaN()
	}
	return val
}
