package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ruretse/mosweather/internal/models"
)

// InsertPredictions logs the hourly rows of one inference run. Re-logging
// the same run is a no-op, so inference stays idempotent.
func (s *Store) InsertPredictions(preds []models.PredictionRow) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("insert predictions: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO predictions (generated_at, valid_time, lead_hours,
			temp, humidity, wind_speed, precip_prob, precip_mm, temp_low, temp_high)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(generated_at, valid_time) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("insert predictions: %w", err)
	}
	defer stmt.Close()

	for _, p := range preds {
		if _, err := stmt.Exec(p.GeneratedAt.UTC(), p.ValidTime.UTC(), p.LeadHours,
			p.Temp, p.Humidity, p.WindSpeed, p.PrecipProb, p.PrecipMm,
			p.TempLow, p.TempHigh); err != nil {
			return fmt.Errorf("insert prediction for %s: %w", p.ValidTime, err)
		}
	}
	return tx.Commit()
}

// VerificationPairs joins logged predictions against the observations that
// later arrived for the same hours. Only the latest prediction per valid
// time is scored, and only hours inside the window. Observation columns
// that are NULL come back as NaN; the scorer skips them.
func (s *Store) VerificationPairs(start, end time.Time) ([]models.VerificationPair, error) {
	rows, err := s.db.Query(`
		WITH latest_pred AS (
			SELECT *,
				ROW_NUMBER() OVER (
					PARTITION BY valid_time
					ORDER BY generated_at DESC
				) AS rn
			FROM predictions
		)
		SELECT p.generated_at, p.valid_time, p.lead_hours,
			p.temp, p.humidity, p.wind_speed, p.precip_prob, p.precip_mm,
			p.temp_low, p.temp_high,
			o.temp, o.humidity, o.wind_speed, o.precip
		FROM latest_pred p
		INNER JOIN observations o ON o.time = p.valid_time
		WHERE p.rn = 1 AND p.valid_time >= ? AND p.valid_time < ?
		ORDER BY p.valid_time ASC
	`, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("verification pairs: %w", err)
	}
	defer rows.Close()

	var out []models.VerificationPair
	for rows.Next() {
		var v models.VerificationPair
		var obsTemp, obsHumidity, obsWind, obsPrecip sql.NullFloat64
		if err := rows.Scan(&v.Prediction.GeneratedAt, &v.Prediction.ValidTime,
			&v.Prediction.LeadHours, &v.Prediction.Temp, &v.Prediction.Humidity,
			&v.Prediction.WindSpeed, &v.Prediction.PrecipProb, &v.Prediction.PrecipMm,
			&v.Prediction.TempLow, &v.Prediction.TempHigh,
			&obsTemp, &obsHumidity, &obsWind, &obsPrecip); err != nil {
			return nil, err
		}
		v.Prediction.GeneratedAt = v.Prediction.GeneratedAt.UTC()
		v.Prediction.ValidTime = v.Prediction.ValidTime.UTC()
		v.ObsTemp = nf(obsTemp)
		v.ObsHumidity = nf(obsHumidity)
		v.ObsWind = nf(obsWind)
		v.ObsPrecip = nf(obsPrecip)
		out = append(out, v)
	}
	return out, rows.Err()
}

// SaveVerificationReport stores the JSON report for one verification day,
// replacing any previous report for the same date.
func (s *Store) SaveVerificationReport(date string, reportJSON string) error {
	_, err := s.db.Exec(`
		INSERT INTO verification_summaries (date, report_json)
		VALUES (?, ?)
		ON CONFLICT(date) DO UPDATE SET report_json = excluded.report_json
	`, date, reportJSON)
	return err
}

// VerificationReport is one stored daily report.
type VerificationReport struct {
	Date string `json:"date"`
	JSON string `json:"-"`
}

// RecentVerificationReports returns the most recent stored reports,
// newest first.
func (s *Store) RecentVerificationReports(limit int) ([]VerificationReport, error) {
	rows, err := s.db.Query(`
		SELECT date, report_json
		FROM verification_summaries
		ORDER BY date DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent verification reports: %w", err)
	}
	defer rows.Close()

	var out []VerificationReport
	for rows.Next() {
		var r VerificationReport
		if err := rows.Scan(&r.Date, &r.JSON); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
