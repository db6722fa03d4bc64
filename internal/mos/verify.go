package mos

import (
	"math"

	"github.com/ruretse/mosweather/internal/models"
)

// VerifyReport holds realized accuracy for previously served forecasts
// once their observations arrived. It never feeds back into training.
type VerifyReport struct {
	Hours int `json:"hours"`

	TempMAE   float64 `json:"temp_mae"`
	TempBias  float64 `json:"temp_bias"`
	HumMAE    float64 `json:"humidity_mae"`
	WindMAE   float64 `json:"wind_mae"`
	WindBias  float64 `json:"wind_bias"`
	PrecipMAE float64 `json:"precip_mae"`

	Brier        float64          `json:"brier"`
	POD          float64          `json:"pod"`
	FAR          float64          `json:"far"`
	Reliability  []ReliabilityBin `json:"reliability"`
	TempCoverage float64          `json:"temp_coverage"`
}

// ReliabilityBin is one bin of the precipitation calibration curve:
// mean predicted probability against observed rain frequency.
type ReliabilityBin struct {
	MeanForecast float64 `json:"mean_forecast"`
	ObservedFreq float64 `json:"observed_freq"`
	N            int     `json:"n"`
}

// Verify scores logged predictions against the observations that have
// since arrived for the same hours.
func Verify(pairs []models.VerificationPair) *VerifyReport {
	r := &VerifyReport{}
	if len(pairs) == 0 {
		return r
	}

	var tempN, humN, windN, precipN int
	var hits, misses, falseAlarms int
	var brierSum float64
	var brierN int
	var covered, coverN int

	const bins = 10
	binProb := make([]float64, bins)
	binObs := make([]float64, bins)
	binN := make([]int, bins)

	for _, p := range pairs {
		r.Hours++
		pred := p.Prediction

		if !math.IsNaN(p.ObsTemp) {
			r.TempMAE += math.Abs(pred.Temp - p.ObsTemp)
			r.TempBias += pred.Temp - p.ObsTemp
			tempN++
			if p.ObsTemp >= pred.TempLow && p.ObsTemp <= pred.TempHigh {
				covered++
			}
			coverN++
		}
		if !math.IsNaN(p.ObsHumidity) {
			r.HumMAE += math.Abs(pred.Humidity - p.ObsHumidity)
			humN++
		}
		if !math.IsNaN(p.ObsWind) {
			r.WindMAE += math.Abs(pred.WindSpeed - p.ObsWind)
			r.WindBias += pred.WindSpeed - p.ObsWind
			windN++
		}
		if !math.IsNaN(p.ObsPrecip) {
			r.PrecipMAE += math.Abs(pred.PrecipMm - p.ObsPrecip)
			precipN++

			rained := p.ObsPrecip >= PrecipThresholdMm
			predicted := pred.PrecipProb >= 0.5
			switch {
			case rained && predicted:
				hits++
			case rained && !predicted:
				misses++
			case !rained && predicted:
				falseAlarms++
			}

			label := 0.0
			if rained {
				label = 1
			}
			d := pred.PrecipProb - label
			brierSum += d * d
			brierN++

			bin := int(pred.PrecipProb * bins)
			if bin >= bins {
				bin = bins - 1
			}
			binProb[bin] += pred.PrecipProb
			binObs[bin] += label
			binN[bin]++
		}
	}

	if tempN > 0 {
		r.TempMAE /= float64(tempN)
		r.TempBias /= float64(tempN)
	}
	if humN > 0 {
		r.HumMAE /= float64(humN)
	}
	if windN > 0 {
		r.WindMAE /= float64(windN)
		r.WindBias /= float64(windN)
	}
	if precipN > 0 {
		r.PrecipMAE /= float64(precipN)
	}
	if brierN > 0 {
		r.Brier = brierSum / float64(brierN)
	}
	if coverN > 0 {
		r.TempCoverage = float64(covered) / float64(coverN)
	}
	if hits+misses > 0 {
		r.POD = float64(hits) / float64(hits+misses)
	}
	if hits+falseAlarms > 0 {
		r.FAR = float64(falseAlarms) / float64(hits+falseAlarms)
	}

	for b := 0; b < bins; b++ {
		if binN[b] == 0 {
			continue
		}
		r.Reliability = append(r.Reliability, ReliabilityBin{
			MeanForecast: binProb[b] / float64(binN[b]),
			ObservedFreq: binObs[b] / float64(binN[b]),
			N:            binN[b],
		})
	}
	return r
}
