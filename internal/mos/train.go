package mos

import (
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"github.com/ruretse/mosweather/internal/features"
	"github.com/ruretse/mosweather/internal/models"
)

const (
	// Below this corpus size model skill is doubtful; training still
	// proceeds so a fresh deployment can publish its first bundle.
	minAdvisedRows = 500

	// Calibration fallback threshold: fewer positive or negative rain
	// rows than this in the calibration segment and the raw classifier
	// probability is served instead, flagged on the bundle.
	minCalibrationClass = 10

	// Below this many rainy rows the amount regressor falls back to
	// fitting on all rows under the zero-inflated Tweedie loss.
	minRainRows = 20
)

var leadBuckets = []int{1, 3, 6, 12, 24, 48, 72}

// Train runs a full batch retrain over the paired corpus and returns a
// new bundle. It never publishes partially: any estimator failure aborts
// the run with an error and no bundle.
func Train(rows []models.PairedRecord, now time.Time) (*Bundle, error) {
	if len(rows) == 0 {
		return nil, ErrTrainingDataEmpty
	}

	X := features.Matrix(rows)

	// Drop rows where more than half the features are missing (the
	// leading edge of the corpus, before lag windows fill).
	var keep []int
	for i, v := range X {
		missing := 0
		for _, f := range v {
			if math.IsNaN(f) {
				missing++
			}
		}
		if missing <= len(v)/2 {
			keep = append(keep, i)
		}
	}
	if len(keep) == 0 {
		return nil, ErrTrainingDataEmpty
	}
	if len(keep) < minAdvisedRows {
		log.Printf("train: only %d usable rows (advised >= %d); expect weak skill", len(keep), minAdvisedRows)
	}

	kept := make([]models.PairedRecord, len(keep))
	feats := make([][]float64, len(keep))
	for k, i := range keep {
		kept[k] = rows[i]
		feats[k] = X[i]
	}

	// Chronological split. Random splits leak future information
	// through the lag and rolling features.
	n := len(kept)
	trainEnd := n * 70 / 100
	if trainEnd < 1 {
		trainEnd = 1
	}
	calEnd := trainEnd + n*15/100
	if calEnd > n {
		calEnd = n
	}
	trainIdx := indexRange(0, trainEnd)
	calIdx := indexRange(trainEnd, calEnd)
	valIdx := indexRange(calEnd, n)
	log.Printf("train: %d rows split train=%d calibration=%d validation=%d",
		n, len(trainIdx), len(calIdx), len(valIdx))

	b := &Bundle{
		SchemaVersion: features.SchemaVersion,
		TrainedAt:     now.UTC(),
		Targets:       make(map[string]*TargetModels),
		Scores: Scores{
			MAE:       make(map[string]float64),
			Coverage:  make(map[string]float64),
			TrainRows: len(trainIdx),
			CalRows:   len(calIdx),
			ValRows:   len(valIdx),
		},
	}

	for _, target := range Targets {
		tm, mae, cov, err := fitTarget(target, kept, feats, trainIdx, valIdx)
		if err != nil {
			return nil, err
		}
		b.Targets[target] = tm
		b.Scores.MAE[target] = mae
		b.Scores.Coverage[target] = cov
		log.Printf("train: %s val MAE=%.3f interval coverage=%.2f", target, mae, cov)
	}

	if err := fitPrecip(b, kept, feats, trainIdx, calIdx, valIdx); err != nil {
		return nil, err
	}

	b.Scores.LeadTimeMAE = leadTimeReport(b, kept, feats, valIdx)
	for _, ls := range b.Scores.LeadTimeMAE {
		log.Printf("train: lead %2dh (n=%d) temp MAE corrected=%.2f nwp=%.2f",
			ls.LeadHours, ls.N, ls.MAE, ls.NWPMAE)
	}

	return b, nil
}

func fitTarget(target string, rows []models.PairedRecord, feats [][]float64, trainIdx, valIdx []int) (*TargetModels, float64, float64, error) {
	var X [][]float64
	var y []float64
	for _, i := range trainIdx {
		obs := observedTarget(rows[i], target)
		if math.IsNaN(obs) {
			continue
		}
		X = append(X, feats[i])
		y = append(y, obs)
	}
	if len(X) == 0 {
		return nil, 0, 0, &FitError{Target: target, Err: fmt.Errorf("no rows with observed %s", target)}
	}

	tm := &TargetModels{
		Point: NewGBDT(ObjectiveMAE),
		Q10:   NewQuantileGBDT(0.1),
		Q90:   NewQuantileGBDT(0.9),
	}
	if err := tm.Point.Fit(X, y); err != nil {
		return nil, 0, 0, &FitError{Target: target, Err: err}
	}
	if err := tm.Q10.Fit(X, y); err != nil {
		return nil, 0, 0, &FitError{Target: target + " q10", Err: err}
	}
	if err := tm.Q90.Fit(X, y); err != nil {
		return nil, 0, 0, &FitError{Target: target + " q90", Err: err}
	}

	var absErr float64
	var covered, scored int
	for _, i := range valIdx {
		obs := observedTarget(rows[i], target)
		if math.IsNaN(obs) {
			continue
		}
		pred := tm.Point.Predict(feats[i])
		absErr += math.Abs(pred - obs)
		lo, hi := sortPair(tm.Q10.Predict(feats[i]), tm.Q90.Predict(feats[i]))
		if obs >= lo && obs <= hi {
			covered++
		}
		scored++
	}
	if scored == 0 {
		return tm, 0, 0, nil
	}
	return tm, absErr / float64(scored), float64(covered) / float64(scored), nil
}

func fitPrecip(b *Bundle, rows []models.PairedRecord, feats [][]float64, trainIdx, calIdx, valIdx []int) error {
	var X [][]float64
	var amounts []float64
	var labels []float64
	for _, i := range trainIdx {
		if math.IsNaN(rows[i].ObsPrecip) {
			continue
		}
		X = append(X, feats[i])
		amounts = append(amounts, rows[i].ObsPrecip)
		labels = append(labels, rainLabel(rows[i].ObsPrecip))
	}
	if len(X) == 0 {
		return &FitError{Target: "precip_occurrence", Err: fmt.Errorf("no rows with observed precipitation")}
	}

	p := &PrecipModels{
		Classifier: NewGBDT(ObjectiveLogLoss),
		Amount:     NewGBDT(ObjectiveTweedie),
		Quantiles:  make(map[string]*GBDT),
	}
	if err := p.Classifier.Fit(X, labels); err != nil {
		return &FitError{Target: "precip_occurrence", Err: err}
	}

	// Calibrator is fit on its own chronological segment, never on the
	// rows the classifier saw.
	var calProbs, calLabels []float64
	pos, neg := 0, 0
	for _, i := range calIdx {
		if math.IsNaN(rows[i].ObsPrecip) {
			continue
		}
		label := rainLabel(rows[i].ObsPrecip)
		calProbs = append(calProbs, p.Classifier.Predict(feats[i]))
		calLabels = append(calLabels, label)
		if label > 0 {
			pos++
		} else {
			neg++
		}
	}
	if pos >= minCalibrationClass && neg >= minCalibrationClass {
		iso, err := FitIsotonic(calProbs, calLabels)
		if err != nil {
			return &FitError{Target: "precip_calibration", Err: err}
		}
		p.Calibrator = iso
		b.Calibrated = true
	} else {
		log.Printf("train: calibration segment has %d positive / %d negative rain rows, serving uncalibrated probabilities", pos, neg)
	}

	// Amount regressor conditions on rain; with too few rainy rows the
	// Tweedie loss handles the zero mass itself across all rows.
	var rainX [][]float64
	var rainY []float64
	for k := range amounts {
		if amounts[k] >= PrecipThresholdMm {
			rainX = append(rainX, X[k])
			rainY = append(rainY, amounts[k])
		}
	}
	if len(rainX) < minRainRows {
		rainX, rainY = X, amounts
		b.AmountFallback = true
		log.Printf("train: only %d rainy rows, fitting amount model on all rows", len(rainY))
	}
	if err := p.Amount.Fit(rainX, rainY); err != nil {
		return &FitError{Target: "precip_amount", Err: err}
	}
	for _, alpha := range PrecipQuantiles {
		q := NewQuantileGBDT(alpha)
		if err := q.Fit(rainX, rainY); err != nil {
			return &FitError{Target: "precip_" + quantileKey(alpha), Err: err}
		}
		p.Quantiles[quantileKey(alpha)] = q
	}

	b.Precip = p
	b.Scores.Brier, b.Scores.AUC = precipValidation(p, rows, feats, valIdx)
	log.Printf("train: precip val Brier=%.4f AUC=%.3f", b.Scores.Brier, b.Scores.AUC)
	return nil
}

func precipValidation(p *PrecipModels, rows []models.PairedRecord, feats [][]float64, valIdx []int) (brier, auc float64) {
	var probs, labels []float64
	for _, i := range valIdx {
		if math.IsNaN(rows[i].ObsPrecip) {
			continue
		}
		probs = append(probs, p.Probability(feats[i]))
		labels = append(labels, rainLabel(rows[i].ObsPrecip))
	}
	if len(probs) == 0 {
		return 0, 0
	}
	var sum float64
	for k := range probs {
		d := probs[k] - labels[k]
		sum += d * d
	}
	return sum / float64(len(probs)), rankAUC(probs, labels)
}

// rankAUC is the Mann-Whitney AUC; 0 when only one class is present.
func rankAUC(probs, labels []float64) float64 {
	order := make([]int, len(probs))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return probs[order[a]] < probs[order[b]] })

	var rankSumPos float64
	var nPos, nNeg float64
	rank := 1.0
	for k := 0; k < len(order); {
		// Average ranks across tied scores.
		j := k
		for j < len(order) && probs[order[j]] == probs[order[k]] {
			j++
		}
		avgRank := (rank + rank + float64(j-k) - 1) / 2
		for m := k; m < j; m++ {
			if labels[order[m]] > 0 {
				rankSumPos += avgRank
			}
		}
		rank += float64(j - k)
		k = j
	}
	for k := range labels {
		if labels[k] > 0 {
			nPos++
		} else {
			nNeg++
		}
	}
	if nPos == 0 || nNeg == 0 {
		return 0
	}
	return (rankSumPos - nPos*(nPos+1)/2) / (nPos * nNeg)
}

func leadTimeReport(b *Bundle, rows []models.PairedRecord, feats [][]float64, valIdx []int) []LeadScore {
	tm := b.Targets["temperature"]
	var out []LeadScore
	for _, lead := range leadBuckets {
		var corrected, raw float64
		n := 0
		for _, i := range valIdx {
			if rows[i].LeadHours != lead || math.IsNaN(rows[i].ObsTemp) {
				continue
			}
			corrected += math.Abs(tm.Point.Predict(feats[i]) - rows[i].ObsTemp)
			raw += math.Abs(rows[i].FcstTemp - rows[i].ObsTemp)
			n++
		}
		if n < 10 {
			continue
		}
		out = append(out, LeadScore{
			LeadHours: lead,
			N:         n,
			MAE:       corrected / float64(n),
			NWPMAE:    raw / float64(n),
		})
	}
	return out
}

func rainLabel(precip float64) float64 {
	if precip >= PrecipThresholdMm {
		return 1
	}
	return 0
}

func sortPair(a, b float64) (float64, float64) {
	if a > b {
		return b, a
	}
	return a, b
}

func indexRange(start, end int) []int {
	if end <= start {
		return nil
	}
	out := make([]int, 0, end-start)
	for i := start; i < end; i++ {
		out = append(out, i)
	}
	return out
}
