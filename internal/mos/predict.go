package mos

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/ruretse/mosweather/internal/features"
	"github.com/ruretse/mosweather/internal/metrics"
	"github.com/ruretse/mosweather/internal/models"
)

// Predict applies a trained bundle to the latest raw forecast rows and
// assembles the serving artifact. history carries recent matched pairs
// (real observations) so lag and bias features have something to look
// back through; future rows have no observations yet and their obs
// fields are proxied from the forecast values, as training-time features
// stay defined further into the horizon.
func Predict(b *Bundle, history, future []models.PairedRecord, loc models.Location, generatedAt time.Time, tz *time.Location) (*models.ForecastArtifact, error) {
	if b.SchemaVersion != features.SchemaVersion {
		return nil, fmt.Errorf("bundle schema %q, binary schema %q: %w",
			b.SchemaVersion, features.SchemaVersion, ErrSchemaMismatch)
	}
	if len(future) == 0 {
		return nil, fmt.Errorf("no forecast rows to correct")
	}

	series := make([]models.PairedRecord, 0, len(history)+len(future))
	series = append(series, history...)
	for _, r := range future {
		series = append(series, proxyObservations(r))
	}
	sort.Slice(series, func(a, b int) bool { return series[a].Time.Before(series[b].Time) })

	start := len(series) - len(future)
	artifact := &models.ForecastArtifact{
		GeneratedAt:  generatedAt.UTC(),
		Location:     loc,
		ModelTrained: b.TrainedAt,
		Calibrated:   b.Calibrated,
	}

	for i := start; i < len(series); i++ {
		x := features.Vector(series, i)
		r := series[i]

		h := models.HourlyForecast{
			Time:      r.Time,
			LeadHours: r.LeadHours,
		}

		temp := b.Targets["temperature"].Point.Predict(x)
		humidity := clamp(b.Targets["humidity"].Point.Predict(x), 0, 100)
		wind := math.Max(b.Targets["wind_speed"].Point.Predict(x), 0)

		h.TemperatureC = round1(temp)
		h.HumidityPct = int(math.Round(humidity))
		h.WindSpeedKmh = round1(wind)

		h.TemperatureRangeC = interval(b.Targets["temperature"], x, math.Inf(-1), math.Inf(1), round1)
		h.HumidityRangePct = interval(b.Targets["humidity"], x, 0, 100, round1)
		h.WindSpeedRangeKmh = interval(b.Targets["wind_speed"], x, 0, math.Inf(1), round1)

		prob := b.Precip.Probability(x)
		amount := math.Max(b.Precip.Amount.Predict(x), 0)

		h.PrecipProbPct = int(math.Round(clamp(prob, 0, 1) * 100))
		// Reported expectation is the documented two-stage product:
		// calibrated occurrence probability times conditional amount.
		h.PrecipExpectedMm = round2(prob * amount)
		h.PrecipIfRainMm = round2(amount)

		q10 := math.Max(b.Precip.Quantiles[quantileKey(0.1)].Predict(x), 0) * prob
		q90 := math.Max(b.Precip.Quantiles[quantileKey(0.9)].Predict(x), 0) * prob
		lo, hi := sortPair(q10, q90)
		if q10 > q90 {
			metrics.QuantileCrossingsCorrected.Inc()
		}
		h.PrecipRangeMm = [2]float64{round2(lo), round2(hi)}

		artifact.Hourly = append(artifact.Hourly, h)
	}

	artifact.Daily = dailySummaries(artifact.Hourly, tz)
	return artifact, nil
}

// interval evaluates a target's quantile pair, corrects crossings by
// sorting, and clips to physical bounds.
func interval(tm *TargetModels, x []float64, floor, ceil float64, round func(float64) float64) [2]float64 {
	q10 := tm.Q10.Predict(x)
	q90 := tm.Q90.Predict(x)
	if q10 > q90 {
		metrics.QuantileCrossingsCorrected.Inc()
	}
	lo, hi := sortPair(q10, q90)
	return [2]float64{round(clamp(lo, floor, ceil)), round(clamp(hi, floor, ceil))}
}

// proxyObservations fills the obs fields of a future row from its
// forecast values. Real observations do not exist yet by definition;
// the proxy keeps lag and tendency features defined across the horizon
// and converges to truth as stored history dominates the window.
func proxyObservations(r models.PairedRecord) models.PairedRecord {
	r.ObsTemp = r.FcstTemp
	r.ObsDewpoint = r.FcstDewpoint
	r.ObsHumidity = r.FcstHumidity
	r.ObsPressure = r.FcstPressure
	r.ObsWindSpeed = r.FcstWindSpeed
	r.ObsWindDir = r.FcstWindDir
	r.ObsPrecip = r.FcstPrecip
	r.ObsCloud = r.FcstCloud
	return r
}

func dailySummaries(hourly []models.HourlyForecast, tz *time.Location) []models.DailySummary {
	type agg struct {
		tempMin, tempMax float64
		precip, windMax  float64
		humiditySum      float64
		n                int
	}
	byDay := make(map[string]*agg)
	var order []string

	for _, h := range hourly {
		day := h.Time.In(tz).Format("2006-01-02")
		a, exists := byDay[day]
		if !exists {
			a = &agg{tempMin: math.Inf(1), tempMax: math.Inf(-1)}
			byDay[day] = a
			order = append(order, day)
		}
		a.tempMin = math.Min(a.tempMin, h.TemperatureC)
		a.tempMax = math.Max(a.tempMax, h.TemperatureC)
		a.precip += h.PrecipExpectedMm
		a.windMax = math.Max(a.windMax, h.WindSpeedKmh)
		a.humiditySum += float64(h.HumidityPct)
		a.n++
	}

	out := make([]models.DailySummary, 0, len(order))
	for _, day := range order {
		a := byDay[day]
		out = append(out, models.DailySummary{
			Date:            day,
			TempMin:         round1(a.tempMin),
			TempMax:         round1(a.tempMax),
			PrecipTotalMm:   round2(a.precip),
			WindMaxKmh:      round1(a.windMax),
			HumidityMeanPct: int(math.Round(a.humiditySum / float64(a.n))),
		})
	}
	return out
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
