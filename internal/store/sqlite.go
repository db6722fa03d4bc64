package store

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/ruretse/mosweather/internal/models"
)

type Store struct {
	db  *sql.DB
	loc *time.Location
}

func New(db *sql.DB, loc *time.Location) *Store {
	return &Store{db: db, loc: loc}
}

func (s *Store) UpsertObservation(obs models.ObservationRow) error {
	_, err := s.db.Exec(`
		INSERT INTO observations (time, temp, dewpoint, humidity, pressure, surface_pressure, wind_speed, wind_dir, precip, cloud)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(time) DO UPDATE SET
			temp = excluded.temp,
			dewpoint = excluded.dewpoint,
			humidity = excluded.humidity,
			pressure = excluded.pressure,
			surface_pressure = excluded.surface_pressure,
			wind_speed = excluded.wind_speed,
			wind_dir = excluded.wind_dir,
			precip = excluded.precip,
			cloud = excluded.cloud
	`, obs.Time.UTC(), obs.Temp, obs.Dewpoint, obs.Humidity, obs.Pressure, obs.SurfacePres,
		obs.WindSpeed, obs.WindDir, obs.Precip, obs.Cloud)
	return err
}

func (s *Store) UpsertForecastRow(f models.ForecastRow) error {
	_, err := s.db.Exec(`
		INSERT INTO forecasts (fetched_at, valid_time, source, lead_hours,
			temp, dewpoint, humidity, pressure, surface_pressure,
			wind_speed, wind_dir, wind_gust, precip, precip_prob,
			cloud, cape, visibility)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source, fetched_at, valid_time) DO NOTHING
	`, f.FetchedAt.UTC(), f.ValidTime.UTC(), f.Source, f.LeadHours,
		f.Temp, f.Dewpoint, f.Humidity, f.Pressure, f.SurfacePres,
		f.WindSpeed, f.WindDir, f.WindGust, f.Precip, f.PrecipProb,
		f.Cloud, f.CAPE, f.Visibility)
	return err
}

func (s *Store) CountObservations() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM observations").Scan(&n)
	return n, err
}

const pairedColumns = `
	o.time,
	f.lead_hours,
	f.temp, f.dewpoint, f.humidity, f.pressure, f.surface_pressure,
	f.wind_speed, f.wind_dir, f.wind_gust, f.precip, f.precip_prob,
	f.cloud, f.cape, f.visibility,
	o.temp, o.dewpoint, o.humidity, o.pressure,
	o.wind_speed, o.wind_dir, o.precip, o.cloud`

// LoadPairedData joins the most recently fetched forecast per valid time
// against observations, ordered by time. This is the training corpus.
func (s *Store) LoadPairedData(source string) ([]models.PairedRecord, error) {
	rows, err := s.db.Query(`
		WITH latest_fcst AS (
			SELECT *,
				ROW_NUMBER() OVER (
					PARTITION BY valid_time
					ORDER BY fetched_at DESC
				) AS rn
			FROM forecasts
			WHERE source = ?
		)
		SELECT `+pairedColumns+`
		FROM observations o
		INNER JOIN latest_fcst f
			ON f.valid_time = o.time AND f.rn = 1
		ORDER BY o.time ASC
	`, source)
	if err != nil {
		return nil, fmt.Errorf("load paired data: %w", err)
	}
	defer rows.Close()
	return scanPairedRows(rows)
}

// RecentPairs returns the matched pairs of the trailing window ending at
// end, used as feature history for inference.
func (s *Store) RecentPairs(source string, end time.Time, hours int) ([]models.PairedRecord, error) {
	start := end.Add(-time.Duration(hours) * time.Hour)
	rows, err := s.db.Query(`
		WITH latest_fcst AS (
			SELECT *,
				ROW_NUMBER() OVER (
					PARTITION BY valid_time
					ORDER BY fetched_at DESC
				) AS rn
			FROM forecasts
			WHERE source = ?
		)
		SELECT `+pairedColumns+`
		FROM observations o
		INNER JOIN latest_fcst f
			ON f.valid_time = o.time AND f.rn = 1
		WHERE o.time >= ? AND o.time < ?
		ORDER BY o.time ASC
	`, source, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("recent pairs: %w", err)
	}
	defer rows.Close()
	return scanPairedRows(rows)
}

// LatestForecastRows returns every hour of the most recent fetch for the
// source, ordered by valid time. These are the rows inference corrects.
func (s *Store) LatestForecastRows(source string) ([]models.PairedRecord, error) {
	rows, err := s.db.Query(`
		SELECT valid_time, lead_hours,
			temp, dewpoint, humidity, pressure, surface_pressure,
			wind_speed, wind_dir, wind_gust, precip, precip_prob,
			cloud, cape, visibility
		FROM forecasts
		WHERE source = ?
			AND fetched_at = (SELECT MAX(fetched_at) FROM forecasts WHERE source = ?)
		ORDER BY valid_time ASC
	`, source, source)
	if err != nil {
		return nil, fmt.Errorf("latest forecast rows: %w", err)
	}
	defer rows.Close()

	var out []models.PairedRecord
	for rows.Next() {
		var r models.PairedRecord
		var lead sql.NullInt64
		var temp, dewpoint, humidity, pressure, surfacePres sql.NullFloat64
		var windSpeed, windDir, windGust, precip, precipProb sql.NullFloat64
		var cloud, cape, visibility sql.NullFloat64
		if err := rows.Scan(&r.Time, &lead, &temp, &dewpoint, &humidity, &pressure,
			&surfacePres, &windSpeed, &windDir, &windGust, &precip, &precipProb,
			&cloud, &cape, &visibility); err != nil {
			return nil, err
		}
		r.Time = r.Time.UTC()
		if lead.Valid {
			r.LeadHours = int(lead.Int64)
		}
		r.FcstTemp = nf(temp)
		r.FcstDewpoint = nf(dewpoint)
		r.FcstHumidity = nf(humidity)
		r.FcstPressure = nf(pressure)
		r.FcstSurfacePres = nf(surfacePres)
		r.FcstWindSpeed = nf(windSpeed)
		r.FcstWindDir = nf(windDir)
		r.FcstWindGust = nf(windGust)
		r.FcstPrecip = nf(precip)
		r.FcstPrecipProb = nf(precipProb)
		r.FcstCloud = nf(cloud)
		r.FcstCAPE = nf(cape)
		r.FcstVisibility = nf(visibility)
		r.ObsTemp = math.NaN()
		r.ObsDewpoint = math.NaN()
		r.ObsHumidity = math.NaN()
		r.ObsPressure = math.NaN()
		r.ObsWindSpeed = math.NaN()
		r.ObsWindDir = math.NaN()
		r.ObsPrecip = math.NaN()
		r.ObsCloud = math.NaN()
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanPairedRows(rows *sql.Rows) ([]models.PairedRecord, error) {
	var out []models.PairedRecord
	for rows.Next() {
		var r models.PairedRecord
		var lead sql.NullInt64
		var f [13]sql.NullFloat64
		var o [8]sql.NullFloat64
		if err := rows.Scan(&r.Time, &lead,
			&f[0], &f[1], &f[2], &f[3], &f[4], &f[5], &f[6], &f[7], &f[8], &f[9], &f[10], &f[11], &f[12],
			&o[0], &o[1], &o[2], &o[3], &o[4], &o[5], &o[6], &o[7]); err != nil {
			return nil, err
		}
		r.Time = r.Time.UTC()
		if lead.Valid {
			r.LeadHours = int(lead.Int64)
		}
		r.FcstTemp = nf(f[0])
		r.FcstDewpoint = nf(f[1])
		r.FcstHumidity = nf(f[2])
		r.FcstPressure = nf(f[3])
		r.FcstSurfacePres = nf(f[4])
		r.FcstWindSpeed = nf(f[5])
		r.FcstWindDir = nf(f[6])
		r.FcstWindGust = nf(f[7])
		r.FcstPrecip = nf(f[8])
		r.FcstPrecipProb = nf(f[9])
		r.FcstCloud = nf(f[10])
		r.FcstCAPE = nf(f[11])
		r.FcstVisibility = nf(f[12])
		r.ObsTemp = nf(o[0])
		r.ObsDewpoint = nf(o[1])
		r.ObsHumidity = nf(o[2])
		r.ObsPressure = nf(o[3])
		r.ObsWindSpeed = nf(o[4])
		r.ObsWindDir = nf(o[5])
		r.ObsPrecip = nf(o[6])
		r.ObsCloud = nf(o[7])
		out = append(out, r)
	}
	return out, rows.Err()
}

// nf converts a nullable column to the engine's NaN sentinel.
func nf(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
