package mos

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/ruretse/mosweather/internal/models"
)

// Targets corrected by independent point regressors. Each also carries
// q10/q90 quantile models for the reported interval.
var Targets = []string{"temperature", "humidity", "wind_speed"}

// PrecipQuantiles are the quantile levels fitted for precipitation amount.
var PrecipQuantiles = []float64{0.1, 0.25, 0.5, 0.75, 0.9}

// PrecipThresholdMm is the minimum hourly total counted as rain.
const PrecipThresholdMm = 0.1

// TargetModels holds the fitted estimators for one continuous target.
type TargetModels struct {
	Point *GBDT `json:"point"`
	Q10   *GBDT `json:"q10"`
	Q90   *GBDT `json:"q90"`
}

// PrecipModels is the two-stage precipitation model: occurrence
// classifier, optional isotonic calibrator, conditional amount regressor
// (Tweedie), and amount quantile models.
type PrecipModels struct {
	Classifier *GBDT            `json:"classifier"`
	Calibrator *Isotonic        `json:"calibrator,omitempty"`
	Amount     *GBDT            `json:"amount"`
	Quantiles  map[string]*GBDT `json:"quantiles"`
}

// Probability returns the calibrated rain probability, or the raw
// classifier output when the bundle was published uncalibrated.
func (p *PrecipModels) Probability(x []float64) float64 {
	raw := p.Classifier.Predict(x)
	if p.Calibrator == nil {
		return clamp(raw, 0, 1)
	}
	return clamp(p.Calibrator.Calibrate(raw), 0, 1)
}

// Scores are the validation metrics recorded at training time.
type Scores struct {
	MAE         map[string]float64 `json:"mae"`
	Brier       float64            `json:"brier"`
	AUC         float64            `json:"auc"`
	Coverage    map[string]float64 `json:"coverage"`
	TrainRows   int                `json:"train_rows"`
	CalRows     int                `json:"calibration_rows"`
	ValRows     int                `json:"validation_rows"`
	LeadTimeMAE []LeadScore        `json:"lead_time_mae,omitempty"`
}

// LeadScore is validation temperature MAE for one lead-time bucket,
// alongside the uncorrected NWP error for the same rows.
type LeadScore struct {
	LeadHours int     `json:"lead_hours"`
	N         int     `json:"n"`
	MAE       float64 `json:"mae"`
	NWPMAE    float64 `json:"nwp_mae"`
}

// Bundle is one immutable trained snapshot. A training run builds it
// wholesale; inference and verification load it read-only.
type Bundle struct {
	SchemaVersion  string                   `json:"schema_version"`
	TrainedAt      time.Time                `json:"trained_at"`
	Calibrated     bool                     `json:"calibrated"`
	AmountFallback bool                     `json:"amount_fallback"`
	Targets        map[string]*TargetModels `json:"targets"`
	Precip         *PrecipModels            `json:"precip"`
	Scores         Scores                   `json:"scores"`
}

// Encode serializes the bundle. encoding/json emits shortest round-trip
// float64 forms, so a decoded bundle predicts bit-identically.
func (b *Bundle) Encode() ([]byte, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("encode bundle: %w", err)
	}
	return data, nil
}

func DecodeBundle(data []byte) (*Bundle, error) {
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}
	if b.Targets == nil || b.Precip == nil {
		return nil, fmt.Errorf("decode bundle: missing estimators")
	}
	return &b, nil
}

// observedTarget extracts the observed value for a named target.
func observedTarget(r models.PairedRecord, target string) float64 {
	switch target {
	case "temperature":
		return r.ObsTemp
	case "humidity":
		return r.ObsHumidity
	case "wind_speed":
		return r.ObsWindSpeed
	}
	return math.NaN()
}

// forecastTarget extracts the raw NWP value for a named target.
func forecastTarget(r models.PairedRecord, target string) float64 {
	switch target {
	case "temperature":
		return r.FcstTemp
	case "humidity":
		return r.FcstHumidity
	case "wind_speed":
		return r.FcstWindSpeed
	}
	return math.NaN()
}

func quantileKey(alpha float64) string {
	return fmt.Sprintf("q%02d", int(math.Round(alpha*100)))
}
