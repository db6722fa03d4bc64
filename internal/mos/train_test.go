package mos

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/ruretse/mosweather/internal/features"
	"github.com/ruretse/mosweather/internal/models"
)

var corpusStart = time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)

// makeCorpus builds a deterministic paired series with a systematic
// -2C NWP temperature bias and rain roughly every ninth hour.
func makeCorpus(n int) []models.PairedRecord {
	rows := make([]models.PairedRecord, n)
	for i := range rows {
		fi := float64(i)
		rainy := i%9 < 2

		r := models.PairedRecord{
			Time:            corpusStart.Add(time.Duration(i) * time.Hour),
			LeadHours:       i % 48,
			FcstTemp:        20 + 8*math.Sin(2*math.Pi*fi/24),
			FcstDewpoint:    10 + 2*math.Sin(fi/30),
			FcstHumidity:    60 + 20*math.Sin(2*math.Pi*fi/24+3),
			FcstPressure:    1015 + 4*math.Sin(fi/40),
			FcstSurfacePres: 940,
			FcstWindSpeed:   10 + 5*math.Sin(fi/13),
			FcstWindDir:     math.Mod(fi*17, 360),
			FcstWindGust:    16 + 5*math.Sin(fi/13),
			FcstCloud:       40,
			FcstCAPE:        150 + 50*math.Sin(fi/19),
			FcstVisibility:  20000,
		}
		if rainy {
			r.FcstPrecip = 1.2
			r.FcstPrecipProb = 70
		}

		r.ObsTemp = r.FcstTemp - 2 + 0.4*math.Sin(fi/5)
		r.ObsDewpoint = r.FcstDewpoint - 0.5
		r.ObsHumidity = clamp(r.FcstHumidity+5, 0, 100)
		r.ObsPressure = r.FcstPressure - 1
		r.ObsWindSpeed = math.Max(r.FcstWindSpeed*0.8, 0)
		r.ObsWindDir = r.FcstWindDir
		r.ObsCloud = 45
		if rainy {
			r.ObsPrecip = 2 + float64(i%3)
		}
		rows[i] = r
	}
	return rows
}

func TestTrainEmptyCorpus(t *testing.T) {
	_, err := Train(nil, time.Now())
	if !errors.Is(err, ErrTrainingDataEmpty) {
		t.Fatalf("Train(nil) = %v, want ErrTrainingDataEmpty", err)
	}
}

func TestTrainFullCorpus(t *testing.T) {
	rows := makeCorpus(360)
	b, err := Train(rows, time.Date(2026, 1, 1, 2, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Train: %v", err)
	}

	if b.SchemaVersion != features.SchemaVersion {
		t.Errorf("SchemaVersion = %q, want %q", b.SchemaVersion, features.SchemaVersion)
	}
	if !b.Calibrated {
		t.Error("bundle not calibrated despite ample rain rows in calibration segment")
	}
	for _, target := range Targets {
		if b.Targets[target] == nil {
			t.Fatalf("target %s missing from bundle", target)
		}
	}
	if b.Precip == nil || b.Precip.Classifier == nil || b.Precip.Amount == nil {
		t.Fatal("precipitation models missing from bundle")
	}

	// The corrector must beat the raw NWP's systematic -2C bias.
	if mae := b.Scores.MAE["temperature"]; mae > 1.5 {
		t.Errorf("temperature val MAE = %.3f, want < 1.5 (raw NWP is ~2.0)", mae)
	}
	if b.Scores.AUC < 0.7 {
		t.Errorf("precip AUC = %.3f, want discrimination > 0.7", b.Scores.AUC)
	}
}

func TestTrainTinyNoRainCorpus(t *testing.T) {
	// Three consecutive hours, no precipitation: data exists, so the run
	// must publish, but with calibration fallen back to raw probability.
	rows := makeCorpus(3)
	for i := range rows {
		rows[i].FcstPrecip = 0
		rows[i].FcstPrecipProb = 0
		rows[i].ObsPrecip = 0
	}

	b, err := Train(rows, time.Now())
	if err != nil {
		t.Fatalf("Train on tiny corpus: %v", err)
	}
	if b.Calibrated {
		t.Error("Calibrated = true, want fallback with no calibration rows")
	}
	for _, target := range Targets {
		if b.Targets[target] == nil {
			t.Fatalf("target %s missing: correctors must still fit", target)
		}
	}
	if b.Precip == nil {
		t.Fatal("precipitation model missing")
	}
	if !b.AmountFallback {
		t.Error("AmountFallback = false, want true with zero rainy rows")
	}
}

func TestTrainMissingTargetFails(t *testing.T) {
	rows := makeCorpus(120)
	for i := range rows {
		rows[i].ObsWindSpeed = math.NaN()
	}
	_, err := Train(rows, time.Now())
	var fe *FitError
	if !errors.As(err, &fe) {
		t.Fatalf("Train = %v, want FitError", err)
	}
	if fe.Target != "wind_speed" {
		t.Errorf("FitError.Target = %q, want wind_speed", fe.Target)
	}
}

func TestTrainIdempotent(t *testing.T) {
	rows := makeCorpus(120)
	now := time.Date(2026, 1, 1, 2, 0, 0, 0, time.UTC)
	a, err := Train(rows, now)
	if err != nil {
		t.Fatalf("Train a: %v", err)
	}
	b, err := Train(rows, now)
	if err != nil {
		t.Fatalf("Train b: %v", err)
	}

	probe := features.Matrix(rows)
	for _, i := range []int{40, 80, 119} {
		pa := a.Targets["temperature"].Point.Predict(probe[i])
		pb := b.Targets["temperature"].Point.Predict(probe[i])
		if pa != pb {
			t.Errorf("row %d: identical retrains disagree: %v vs %v", i, pa, pb)
		}
	}
}

func TestBundleRoundTripBitIdentical(t *testing.T) {
	rows := makeCorpus(160)
	b, err := Train(rows, time.Date(2026, 1, 1, 2, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Train: %v", err)
	}

	data, err := b.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	loaded, err := DecodeBundle(data)
	if err != nil {
		t.Fatalf("DecodeBundle: %v", err)
	}

	X := features.Matrix(rows)
	for i := 0; i < len(X); i += 13 {
		for _, target := range Targets {
			orig := b.Targets[target].Point.Predict(X[i])
			got := loaded.Targets[target].Point.Predict(X[i])
			if orig != got {
				t.Fatalf("%s row %d: %v != %v after round trip", target, i, orig, got)
			}
		}
		if b.Precip.Probability(X[i]) != loaded.Precip.Probability(X[i]) {
			t.Fatalf("precip probability differs after round trip at row %d", i)
		}
		if b.Precip.Amount.Predict(X[i]) != loaded.Precip.Amount.Predict(X[i]) {
			t.Fatalf("precip amount differs after round trip at row %d", i)
		}
	}
}

func TestDecodeBundleRejectsGarbage(t *testing.T) {
	if _, err := DecodeBundle([]byte(`{"schema_version":"v1"}`)); err == nil {
		t.Error("DecodeBundle without estimators succeeded, want error")
	}
	if _, err := DecodeBundle([]byte(`not json`)); err == nil {
		t.Error("DecodeBundle of garbage succeeded, want error")
	}
}
