package models

import (
	"database/sql"
	"time"
)

// ObservationRow is one stored hour of observed conditions from the
// Open-Meteo archive. Fields absent in the upstream payload stay NULL.
type ObservationRow struct {
	Time        time.Time
	Temp        sql.NullFloat64
	Dewpoint    sql.NullFloat64
	Humidity    sql.NullFloat64
	Pressure    sql.NullFloat64
	SurfacePres sql.NullFloat64
	WindSpeed   sql.NullFloat64
	WindDir     sql.NullFloat64
	Precip      sql.NullFloat64
	Cloud       sql.NullFloat64
	CreatedAt   time.Time
}

// ForecastRow is one stored hour of a fetched NWP forecast. The same
// valid time accumulates one row per fetch, distinguished by FetchedAt.
type ForecastRow struct {
	FetchedAt   time.Time
	ValidTime   time.Time
	Source      string
	LeadHours   sql.NullInt64
	Temp        sql.NullFloat64
	Dewpoint    sql.NullFloat64
	Humidity    sql.NullFloat64
	Pressure    sql.NullFloat64
	SurfacePres sql.NullFloat64
	WindSpeed   sql.NullFloat64
	WindDir     sql.NullFloat64
	WindGust    sql.NullFloat64
	Precip      sql.NullFloat64
	PrecipProb  sql.NullFloat64
	Cloud       sql.NullFloat64
	CAPE        sql.NullFloat64
	Visibility  sql.NullFloat64
}

// PairedRecord is one historical hour with the latest forecast for that
// hour joined against what was actually observed. Missing values are NaN
// throughout; the feature transform and the tree models route NaN
// natively, so nothing downstream imputes.
type PairedRecord struct {
	Time      time.Time
	LeadHours int

	FcstTemp        float64
	FcstDewpoint    float64
	FcstHumidity    float64
	FcstPressure    float64
	FcstSurfacePres float64
	FcstWindSpeed   float64
	FcstWindDir     float64
	FcstWindGust    float64
	FcstPrecip      float64
	FcstPrecipProb  float64
	FcstCloud       float64
	FcstCAPE        float64
	FcstVisibility  float64

	ObsTemp      float64
	ObsDewpoint  float64
	ObsHumidity  float64
	ObsPressure  float64
	ObsWindSpeed float64
	ObsWindDir   float64
	ObsPrecip    float64
	ObsCloud     float64
}

// Location identifies the single site this service corrects for.
type Location struct {
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Name string  `json:"name"`
}

// HourlyForecast is one corrected output hour.
type HourlyForecast struct {
	Time              time.Time  `json:"time"`
	LeadHours         int        `json:"lead_hours"`
	TemperatureC      float64    `json:"temperature_c"`
	HumidityPct       int        `json:"humidity_pct"`
	WindSpeedKmh      float64    `json:"wind_speed_kmh"`
	PrecipProbPct     int        `json:"precip_probability_pct"`
	PrecipExpectedMm  float64    `json:"precip_expected_mm"`
	PrecipIfRainMm    float64    `json:"precip_if_rain_mm"`
	TemperatureRangeC [2]float64 `json:"temperature_range_c"`
	HumidityRangePct  [2]float64 `json:"humidity_range_pct"`
	WindSpeedRangeKmh [2]float64 `json:"wind_speed_range_kmh"`
	PrecipRangeMm     [2]float64 `json:"precip_range_mm"`
}

// DailySummary aggregates the hourly records of one calendar day.
type DailySummary struct {
	Date            string  `json:"date"`
	TempMin         float64 `json:"temp_min"`
	TempMax         float64 `json:"temp_max"`
	PrecipTotalMm   float64 `json:"precip_total_mm"`
	WindMaxKmh      float64 `json:"wind_max_kmh"`
	HumidityMeanPct int     `json:"humidity_mean_pct"`
}

// ForecastArtifact is the full serving artifact written after each
// inference run, replacing the previous one wholesale.
type ForecastArtifact struct {
	GeneratedAt  time.Time        `json:"generated_at"`
	Location     Location         `json:"location"`
	ModelTrained time.Time        `json:"model_trained_at"`
	Calibrated   bool             `json:"calibrated"`
	Hourly       []HourlyForecast `json:"hourly"`
	Daily        []DailySummary   `json:"daily"`
}

// BundleMeta describes a stored model bundle without its payload.
type BundleMeta struct {
	ID            int64
	TrainedAt     time.Time
	SchemaVersion string
	Calibrated    bool
	ScoresJSON    string
	CreatedAt     time.Time
}

// PredictionRow is one logged hourly prediction, kept so verification can
// score it once the matching observation arrives.
type PredictionRow struct {
	GeneratedAt time.Time
	ValidTime   time.Time
	LeadHours   int
	Temp        float64
	Humidity    float64
	WindSpeed   float64
	PrecipProb  float64 // 0..1
	PrecipMm    float64
	TempLow     float64
	TempHigh    float64
}

// VerificationPair joins one logged prediction with the observation that
// later arrived for the same hour.
type VerificationPair struct {
	Prediction  PredictionRow
	ObsTemp     float64
	ObsHumidity float64
	ObsWind     float64
	ObsPrecip   float64
}
