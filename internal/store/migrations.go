package store

import (
	"database/sql"
	"fmt"
	"log"
	"time"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "Initial schema",
		SQL: `
CREATE TABLE IF NOT EXISTS observations (
    time DATETIME PRIMARY KEY,
    temp REAL,
    dewpoint REAL,
    humidity REAL,
    pressure REAL,
    surface_pressure REAL,
    wind_speed REAL,
    wind_dir REAL,
    precip REAL,
    cloud REAL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS forecasts (
    fetched_at DATETIME NOT NULL,
    valid_time DATETIME NOT NULL,
    source TEXT NOT NULL,
    lead_hours INTEGER,
    temp REAL,
    dewpoint REAL,
    humidity REAL,
    pressure REAL,
    surface_pressure REAL,
    wind_speed REAL,
    wind_dir REAL,
    wind_gust REAL,
    precip REAL,
    precip_prob REAL,
    cloud REAL,
    cape REAL,
    visibility REAL,
    PRIMARY KEY (source, fetched_at, valid_time)
);

CREATE INDEX IF NOT EXISTS idx_fcst_valid ON forecasts(valid_time);
CREATE INDEX IF NOT EXISTS idx_fcst_source ON forecasts(source, valid_time);
`,
	},
	{
		Version:     2,
		Description: "Model bundle registry with active pointer",
		SQL: `
CREATE TABLE IF NOT EXISTS model_bundles (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    trained_at DATETIME NOT NULL,
    schema_version TEXT NOT NULL,
    calibrated BOOLEAN NOT NULL,
    scores_json TEXT,
    artifact BLOB NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS active_bundle (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    bundle_id INTEGER NOT NULL REFERENCES model_bundles(id),
    updated_at DATETIME NOT NULL
);
`,
	},
	{
		Version:     3,
		Description: "Prediction log and verification summaries",
		SQL: `
CREATE TABLE IF NOT EXISTS predictions (
    generated_at DATETIME NOT NULL,
    valid_time DATETIME NOT NULL,
    lead_hours INTEGER,
    temp REAL,
    humidity REAL,
    wind_speed REAL,
    precip_prob REAL,
    precip_mm REAL,
    temp_low REAL,
    temp_high REAL,
    PRIMARY KEY (generated_at, valid_time)
);

CREATE INDEX IF NOT EXISTS idx_pred_valid ON predictions(valid_time);

CREATE TABLE IF NOT EXISTS verification_summaries (
    date DATE PRIMARY KEY,
    report_json TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`,
	},
}

func (s *Store) Migrate() error {
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("ensure migrations table: %w", err)
	}

	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("get applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

		log.Printf("migrations: applying %d - %s", m.Version, m.Description)

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Description, time.Now().UTC(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

func (s *Store) ensureMigrationsTable() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME
		)
	`)
	return err
}

func (s *Store) getAppliedMigrations() (map[int]bool, error) {
	rows, err := s.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (s *Store) MigrationVersion() (int, error) {
	var version sql.NullInt64
	err := s.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}
