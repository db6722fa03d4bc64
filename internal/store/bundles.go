package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ruretse/mosweather/internal/models"
)

// ErrNoActiveBundle is returned when no model has been published yet.
var ErrNoActiveBundle = errors.New("store: no active model bundle")

// PublishBundle stores a serialized model bundle and flips the active
// pointer to it in the same transaction, so readers never observe a
// half-published state.
func (s *Store) PublishBundle(trainedAt time.Time, schemaVersion string, calibrated bool, scoresJSON string, artifact []byte) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("publish bundle: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		INSERT INTO model_bundles (trained_at, schema_version, calibrated, scores_json, artifact)
		VALUES (?, ?, ?, ?, ?)
	`, trainedAt.UTC(), schemaVersion, calibrated, scoresJSON, artifact)
	if err != nil {
		return 0, fmt.Errorf("insert bundle: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("bundle id: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT INTO active_bundle (id, bundle_id, updated_at)
		VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			bundle_id = excluded.bundle_id,
			updated_at = excluded.updated_at
	`, id, time.Now().UTC()); err != nil {
		return 0, fmt.Errorf("activate bundle: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("publish bundle: %w", err)
	}
	return id, nil
}

// ActiveBundle returns the currently published bundle payload and its
// metadata.
func (s *Store) ActiveBundle() (models.BundleMeta, []byte, error) {
	var meta models.BundleMeta
	var artifact []byte
	var scores sql.NullString
	err := s.db.QueryRow(`
		SELECT b.id, b.trained_at, b.schema_version, b.calibrated, b.scores_json, b.artifact, b.created_at
		FROM active_bundle a
		INNER JOIN model_bundles b ON b.id = a.bundle_id
		WHERE a.id = 1
	`).Scan(&meta.ID, &meta.TrainedAt, &meta.SchemaVersion, &meta.Calibrated, &scores, &artifact, &meta.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.BundleMeta{}, nil, ErrNoActiveBundle
	}
	if err != nil {
		return models.BundleMeta{}, nil, fmt.Errorf("active bundle: %w", err)
	}
	meta.TrainedAt = meta.TrainedAt.UTC()
	meta.ScoresJSON = scores.String
	return meta, artifact, nil
}

// ListBundles returns metadata for the most recent bundles, newest first.
func (s *Store) ListBundles(limit int) ([]models.BundleMeta, error) {
	rows, err := s.db.Query(`
		SELECT id, trained_at, schema_version, calibrated, scores_json, created_at
		FROM model_bundles
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list bundles: %w", err)
	}
	defer rows.Close()

	var out []models.BundleMeta
	for rows.Next() {
		var m models.BundleMeta
		var scores sql.NullString
		if err := rows.Scan(&m.ID, &m.TrainedAt, &m.SchemaVersion, &m.Calibrated, &scores, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.TrainedAt = m.TrainedAt.UTC()
		m.ScoresJSON = scores.String
		out = append(out, m)
	}
	return out, rows.Err()
}
