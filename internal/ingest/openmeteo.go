package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ruretse/mosweather/internal/httputil"
	"github.com/ruretse/mosweather/internal/metrics"
	"github.com/ruretse/mosweather/internal/models"
)

const (
	forecastURL   = "https://api.open-meteo.com/v1/forecast"
	archiveURL    = "https://archive-api.open-meteo.com/v1/archive"
	historicalURL = "https://historical-forecast-api.open-meteo.com/v1/forecast"

	// Source stored with every forecast row. Open-Meteo picks the best
	// model blend for the coordinates.
	ForecastSource = "best_match"

	forecastDays = 7

	// Open-Meteo hourly timestamps come back without a zone when
	// timezone=UTC is requested.
	hourlyTimeLayout = "2006-01-02T15:04"
)

var forecastVars = []string{
	"temperature_2m",
	"dewpoint_2m",
	"relative_humidity_2m",
	"pressure_msl",
	"surface_pressure",
	"wind_speed_10m",
	"wind_direction_10m",
	"wind_gusts_10m",
	"precipitation",
	"precipitation_probability",
	"cloud_cover",
	"cape",
	"visibility",
}

var historyVars = []string{
	"temperature_2m",
	"dewpoint_2m",
	"relative_humidity_2m",
	"pressure_msl",
	"surface_pressure",
	"wind_speed_10m",
	"wind_direction_10m",
	"precipitation",
	"cloud_cover",
}

// precipitation_probability and visibility are not served historically.
var historicalForecastVars = []string{
	"temperature_2m",
	"dewpoint_2m",
	"relative_humidity_2m",
	"pressure_msl",
	"surface_pressure",
	"wind_speed_10m",
	"wind_direction_10m",
	"wind_gusts_10m",
	"precipitation",
	"cloud_cover",
	"cape",
}

// backfillMarker is the fetched_at stored for backfilled forecast rows.
// It sorts before any live fetch, so live rows win the latest-fetch join.
var backfillMarker = time.Unix(0, 0).UTC()

// OpenMeteo fetches NWP forecasts and reanalysis observations for one
// fixed site from the Open-Meteo APIs.
type OpenMeteo struct {
	client *http.Client
	lat    float64
	lon    float64

	// Overridable in tests.
	forecastBase   string
	archiveBase    string
	historicalBase string
}

func NewOpenMeteo(lat, lon float64) *OpenMeteo {
	return &OpenMeteo{
		client:         httputil.NewClient(),
		lat:            lat,
		lon:            lon,
		forecastBase:   forecastURL,
		archiveBase:    archiveURL,
		historicalBase: historicalURL,
	}
}

// hourlyResponse is the shared shape of all three endpoints. Missing
// hours come back as JSON null, hence the pointer slices.
type hourlyResponse struct {
	Hourly struct {
		Time        []string   `json:"time"`
		Temp        []*float64 `json:"temperature_2m"`
		Dewpoint    []*float64 `json:"dewpoint_2m"`
		Humidity    []*float64 `json:"relative_humidity_2m"`
		Pressure    []*float64 `json:"pressure_msl"`
		SurfacePres []*float64 `json:"surface_pressure"`
		WindSpeed   []*float64 `json:"wind_speed_10m"`
		WindDir     []*float64 `json:"wind_direction_10m"`
		WindGust    []*float64 `json:"wind_gusts_10m"`
		Precip      []*float64 `json:"precipitation"`
		PrecipProb  []*float64 `json:"precipitation_probability"`
		Cloud       []*float64 `json:"cloud_cover"`
		CAPE        []*float64 `json:"cape"`
		Visibility  []*float64 `json:"visibility"`
	} `json:"hourly"`
}

func (o *OpenMeteo) get(ctx context.Context, endpoint, base string, params url.Values) (*hourlyResponse, error) {
	params.Set("latitude", strconv.FormatFloat(o.lat, 'f', 6, 64))
	params.Set("longitude", strconv.FormatFloat(o.lon, 'f', 6, 64))
	params.Set("timezone", "UTC")

	start := time.Now()
	body, status, err := httputil.GetWithRetry(ctx, o.client, base+"?"+params.Encode())
	metrics.OpenMeteoLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	metrics.OpenMeteoCallsTotal.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", endpoint, err)
	}

	var data hourlyResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("parse %s response: %w", endpoint, err)
	}
	return &data, nil
}

// FetchForecast fetches the current 7-day hourly forecast.
func (o *OpenMeteo) FetchForecast(ctx context.Context) ([]models.ForecastRow, error) {
	params := url.Values{}
	params.Set("hourly", join(forecastVars))
	params.Set("models", ForecastSource)
	params.Set("forecast_days", strconv.Itoa(forecastDays))

	data, err := o.get(ctx, "forecast", o.forecastBase, params)
	if err != nil {
		return nil, err
	}

	fetchedAt := time.Now().UTC().Truncate(time.Second)
	rows, err := forecastRows(data, fetchedAt)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].LeadHours = sql.NullInt64{Int64: int64(i), Valid: true}
	}
	return rows, nil
}

// FetchObservations fetches ERA5 reanalysis hours for [start, end] dates.
func (o *OpenMeteo) FetchObservations(ctx context.Context, start, end time.Time) ([]models.ObservationRow, error) {
	params := url.Values{}
	params.Set("hourly", join(historyVars))
	params.Set("start_date", start.UTC().Format("2006-01-02"))
	params.Set("end_date", end.UTC().Format("2006-01-02"))

	data, err := o.get(ctx, "archive", o.archiveBase, params)
	if err != nil {
		return nil, err
	}

	h := &data.Hourly
	out := make([]models.ObservationRow, 0, len(h.Time))
	for i := range h.Time {
		at, err := time.ParseInLocation(hourlyTimeLayout, h.Time[i], time.UTC)
		if err != nil {
			return nil, fmt.Errorf("parse archive time %q: %w", h.Time[i], err)
		}
		out = append(out, models.ObservationRow{
			Time:        at,
			Temp:        pf(h.Temp, i),
			Dewpoint:    pf(h.Dewpoint, i),
			Humidity:    pf(h.Humidity, i),
			Pressure:    pf(h.Pressure, i),
			SurfacePres: pf(h.SurfacePres, i),
			WindSpeed:   pf(h.WindSpeed, i),
			WindDir:     pf(h.WindDir, i),
			Precip:      pf(h.Precip, i),
			Cloud:       pf(h.Cloud, i),
		})
	}
	return out, nil
}

// FetchHistoricalForecast fetches what the NWP models predicted for past
// dates, used to seed the training corpus. Rows carry the backfill
// marker as fetched_at and no lead hours.
func (o *OpenMeteo) FetchHistoricalForecast(ctx context.Context, start, end time.Time) ([]models.ForecastRow, error) {
	params := url.Values{}
	params.Set("hourly", join(historicalForecastVars))
	params.Set("start_date", start.UTC().Format("2006-01-02"))
	params.Set("end_date", end.UTC().Format("2006-01-02"))

	data, err := o.get(ctx, "historical_forecast", o.historicalBase, params)
	if err != nil {
		return nil, err
	}
	return forecastRows(data, backfillMarker)
}

func forecastRows(data *hourlyResponse, fetchedAt time.Time) ([]models.ForecastRow, error) {
	h := &data.Hourly
	out := make([]models.ForecastRow, 0, len(h.Time))
	for i := range h.Time {
		at, err := time.ParseInLocation(hourlyTimeLayout, h.Time[i], time.UTC)
		if err != nil {
			return nil, fmt.Errorf("parse forecast time %q: %w", h.Time[i], err)
		}
		out = append(out, models.ForecastRow{
			FetchedAt:   fetchedAt,
			ValidTime:   at,
			Source:      ForecastSource,
			Temp:        pf(h.Temp, i),
			Dewpoint:    pf(h.Dewpoint, i),
			Humidity:    pf(h.Humidity, i),
			Pressure:    pf(h.Pressure, i),
			SurfacePres: pf(h.SurfacePres, i),
			WindSpeed:   pf(h.WindSpeed, i),
			WindDir:     pf(h.WindDir, i),
			WindGust:    pf(h.WindGust, i),
			Precip:      pf(h.Precip, i),
			PrecipProb:  pf(h.PrecipProb, i),
			Cloud:       pf(h.Cloud, i),
			CAPE:        pf(h.CAPE, i),
			Visibility:  pf(h.Visibility, i),
		})
	}
	return out, nil
}

// pf reads slot i of a nullable column that may be shorter than the
// time axis or absent from the response entirely.
func pf(col []*float64, i int) sql.NullFloat64 {
	if i >= len(col) || col[i] == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *col[i], Valid: true}
}

func join(vars []string) string {
	s := vars[0]
	for _, v := range vars[1:] {
		s += "," + v
	}
	return s
}
