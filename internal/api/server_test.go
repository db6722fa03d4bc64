package api_test

import (
	"database/sql"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ruretse/mosweather/internal/api"
	"github.com/ruretse/mosweather/internal/models"
	"github.com/ruretse/mosweather/internal/store"

	_ "modernc.org/sqlite"
)

func setupTestServer(t *testing.T) (*api.Server, *store.Store, string) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	s := store.New(db, time.UTC)
	if err := s.Migrate(); err != nil {
		t.Fatal(err)
	}

	artifactPath := filepath.Join(t.TempDir(), "forecast.json")
	return api.NewServer(s, "8080", artifactPath), s, artifactPath
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()
	srv, _, _ := setupTestServer(t)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `"status":"ok"`) {
		t.Errorf("expected ok status in response, got %s", body)
	}
	if !strings.Contains(body, `"observations"`) {
		t.Errorf("expected observation count in response, got %s", body)
	}
}

func TestForecastEndpoint_NoArtifact(t *testing.T) {
	t.Parallel()
	srv, _, _ := setupTestServer(t)

	req := httptest.NewRequest("GET", "/api/forecast", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != 404 {
		t.Fatalf("expected 404 before first inference run, got %d", w.Code)
	}
}

func TestForecastEndpoint_ServesArtifact(t *testing.T) {
	t.Parallel()
	srv, _, artifactPath := setupTestServer(t)

	artifact := &models.ForecastArtifact{
		GeneratedAt: time.Date(2025, 11, 1, 6, 0, 0, 0, time.UTC),
		Location:    models.Location{Lat: -24.601389, Lon: 26.0675, Name: "Ruretse"},
		Calibrated:  true,
		Hourly: []models.HourlyForecast{
			{
				Time:              time.Date(2025, 11, 1, 7, 0, 0, 0, time.UTC),
				LeadHours:         1,
				TemperatureC:      24.5,
				HumidityPct:       48,
				PrecipProbPct:     10,
				TemperatureRangeC: [2]float64{21.0, 28.0},
			},
		},
	}
	if err := store.WriteArtifact(artifactPath, artifact); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("GET", "/api/forecast", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var got models.ForecastArtifact
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if len(got.Hourly) != 1 {
		t.Fatalf("len(Hourly) = %d, want 1", len(got.Hourly))
	}
	if got.Hourly[0].TemperatureC != 24.5 {
		t.Errorf("TemperatureC = %v, want 24.5", got.Hourly[0].TemperatureC)
	}
	if got.Location.Name != "Ruretse" {
		t.Errorf("Location.Name = %q, want Ruretse", got.Location.Name)
	}
}

func TestModelEndpoint(t *testing.T) {
	t.Parallel()
	srv, s, _ := setupTestServer(t)

	req := httptest.NewRequest("GET", "/api/model", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != 404 {
		t.Fatalf("expected 404 before training, got %d", w.Code)
	}

	trainedAt := time.Date(2025, 11, 1, 3, 0, 0, 0, time.UTC)
	if _, err := s.PublishBundle(trainedAt, "v1", true, `{"brier":0.09}`, []byte(`{}`)); err != nil {
		t.Fatal(err)
	}

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != 200 {
		t.Fatalf("expected 200 after publish, got %d", w.Code)
	}

	var got struct {
		TrainedAt     string          `json:"trained_at"`
		SchemaVersion string          `json:"schema_version"`
		Calibrated    bool            `json:"calibrated"`
		Scores        json.RawMessage `json:"scores"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if got.SchemaVersion != "v1" {
		t.Errorf("schema_version = %q, want v1", got.SchemaVersion)
	}
	if !got.Calibrated {
		t.Error("calibrated = false, want true")
	}
	if !strings.Contains(string(got.Scores), "brier") {
		t.Errorf("scores = %s, want embedded scores JSON", got.Scores)
	}
}

func TestVerificationEndpoint(t *testing.T) {
	t.Parallel()
	srv, s, _ := setupTestServer(t)

	if err := s.SaveVerificationReport("2025-11-01", `{"temp_mae":1.3}`); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveVerificationReport("2025-11-02", `{"temp_mae":1.2}`); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("GET", "/api/verification", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var got []struct {
		Date   string          `json:"date"`
		Report json.RawMessage `json:"report"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(reports) = %d, want 2", len(got))
	}
	if got[0].Date != "2025-11-02" {
		t.Errorf("reports[0].date = %q, want newest first", got[0].Date)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	srv, _, _ := setupTestServer(t)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Error("expected prometheus default collectors in output")
	}
}
