package main

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/ruretse/mosweather/internal/ingest"
	"github.com/ruretse/mosweather/internal/metrics"
	"github.com/ruretse/mosweather/internal/models"
	"github.com/ruretse/mosweather/internal/mos"
	"github.com/ruretse/mosweather/internal/store"
)

// historyHours is how much matched history inference loads so lag and
// rolling features have a full window behind the first forecast hour.
const historyHours = 72

func runTrain(a *app) error {
	rows, err := a.store.LoadPairedData(ingest.ForecastSource)
	if err != nil {
		return fmt.Errorf("train: %w", err)
	}
	log.Printf("train: %d paired rows loaded", len(rows))

	bundle, err := mos.Train(rows, time.Now().UTC())
	if err != nil {
		metrics.TrainingRunsTotal.WithLabelValues("failure").Inc()
		return fmt.Errorf("train: %w", err)
	}

	payload, err := bundle.Encode()
	if err != nil {
		metrics.TrainingRunsTotal.WithLabelValues("failure").Inc()
		return fmt.Errorf("train: %w", err)
	}
	scoresJSON, err := json.Marshal(bundle.Scores)
	if err != nil {
		metrics.TrainingRunsTotal.WithLabelValues("failure").Inc()
		return fmt.Errorf("train: encode scores: %w", err)
	}

	id, err := a.store.PublishBundle(bundle.TrainedAt, bundle.SchemaVersion,
		bundle.Calibrated, string(scoresJSON), payload)
	if err != nil {
		metrics.TrainingRunsTotal.WithLabelValues("failure").Inc()
		return fmt.Errorf("train: %w", err)
	}

	for target, mae := range bundle.Scores.MAE {
		metrics.ValidationMAE.WithLabelValues(target).Set(mae)
	}
	metrics.TrainingRunsTotal.WithLabelValues("success").Inc()

	log.Printf("train: published bundle %d (calibrated=%v, train=%d cal=%d val=%d)",
		id, bundle.Calibrated, bundle.Scores.TrainRows, bundle.Scores.CalRows, bundle.Scores.ValRows)
	return nil
}

func runPredict(a *app) error {
	meta, payload, err := a.store.ActiveBundle()
	if err != nil {
		return fmt.Errorf("predict: %w", err)
	}
	bundle, err := mos.DecodeBundle(payload)
	if err != nil {
		return fmt.Errorf("predict: bundle %d: %w", meta.ID, err)
	}

	future, err := a.store.LatestForecastRows(ingest.ForecastSource)
	if err != nil {
		return fmt.Errorf("predict: %w", err)
	}
	if len(future) == 0 {
		return fmt.Errorf("predict: no forecast rows stored yet")
	}

	now := time.Now().UTC()
	history, err := a.store.RecentPairs(ingest.ForecastSource, now, historyHours)
	if err != nil {
		return fmt.Errorf("predict: %w", err)
	}

	artifact, err := mos.Predict(bundle, history, future, a.cfg.Location(), now, a.loc)
	if err != nil {
		return fmt.Errorf("predict: %w", err)
	}

	if err := store.WriteArtifact(a.cfg.ArtifactPath, artifact); err != nil {
		return fmt.Errorf("predict: %w", err)
	}

	preds := make([]models.PredictionRow, 0, len(artifact.Hourly))
	for _, h := range artifact.Hourly {
		preds = append(preds, models.PredictionRow{
			GeneratedAt: artifact.GeneratedAt,
			ValidTime:   h.Time,
			LeadHours:   h.LeadHours,
			Temp:        h.TemperatureC,
			Humidity:    float64(h.HumidityPct),
			WindSpeed:   h.WindSpeedKmh,
			PrecipProb:  float64(h.PrecipProbPct) / 100,
			PrecipMm:    h.PrecipExpectedMm,
			TempLow:     h.TemperatureRangeC[0],
			TempHigh:    h.TemperatureRangeC[1],
		})
	}
	if err := a.store.InsertPredictions(preds); err != nil {
		return fmt.Errorf("predict: log predictions: %w", err)
	}

	metrics.ForecastsGenerated.Inc()
	log.Printf("predict: wrote %d hourly records to %s", len(artifact.Hourly), a.cfg.ArtifactPath)
	return nil
}

func runVerify(a *app, day time.Time) error {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, a.loc)
	end := start.AddDate(0, 0, 1)

	pairs, err := a.store.VerificationPairs(start, end)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	if len(pairs) == 0 {
		log.Printf("verify: no scored pairs for %s yet", start.Format("2006-01-02"))
		return nil
	}

	report := mos.Verify(pairs)
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("verify: encode report: %w", err)
	}

	date := start.Format("2006-01-02")
	if err := a.store.SaveVerificationReport(date, string(data)); err != nil {
		return fmt.Errorf("verify: %w", err)
	}

	log.Printf("verify: %s scored %d hours (temp MAE %.2f)", date, len(pairs), report.TempMAE)
	return nil
}
