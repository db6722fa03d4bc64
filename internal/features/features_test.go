package features

import (
	"math"
	"testing"
	"time"

	"github.com/ruretse/mosweather/internal/models"
)

func hourlyRows(n int, start time.Time) []models.PairedRecord {
	rows := make([]models.PairedRecord, n)
	for i := range rows {
		rows[i] = models.PairedRecord{
			Time:            start.Add(time.Duration(i) * time.Hour),
			LeadHours:       i,
			FcstTemp:        20 + float64(i),
			FcstDewpoint:    12,
			FcstHumidity:    60,
			FcstPressure:    1013 - float64(i),
			FcstSurfacePres: 940,
			FcstWindSpeed:   10,
			FcstWindDir:     90,
			FcstWindGust:    15,
			FcstPrecip:      0,
			FcstPrecipProb:  5,
			FcstCloud:       30,
			FcstCAPE:        100,
			FcstVisibility:  20000,
			ObsTemp:         19 + float64(i),
			ObsDewpoint:     11,
			ObsHumidity:     62,
			ObsPressure:     1012,
			ObsWindSpeed:    9,
			ObsWindDir:      85,
			ObsPrecip:       0.2,
			ObsCloud:        40,
		}
	}
	return rows
}

func idx(t *testing.T, name string) int {
	t.Helper()
	for i, n := range Names() {
		if n == name {
			return i
		}
	}
	t.Fatalf("feature %q not in schema", name)
	return -1
}

func TestVectorLengthMatchesNames(t *testing.T) {
	rows := hourlyRows(30, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	v := Vector(rows, 29)
	if len(v) != Count() {
		t.Fatalf("len(Vector) = %d, want %d", len(v), Count())
	}
	if len(Names()) != Count() {
		t.Fatalf("len(Names) = %d, want %d", len(Names()), Count())
	}
}

func TestVectorDeterministic(t *testing.T) {
	rows := hourlyRows(48, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	a := Vector(rows, 47)
	b := Vector(rows, 47)
	for i := range a {
		if a[i] != b[i] && !(math.IsNaN(a[i]) && math.IsNaN(b[i])) {
			t.Errorf("feature %s differs across invocations: %v vs %v", Names()[i], a[i], b[i])
		}
	}
}

func TestInsufficientHistoryYieldsNaN(t *testing.T) {
	rows := hourlyRows(2, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	v := Vector(rows, 0)

	for _, name := range []string{
		"pressure_3h", "pressure_24h", "temp_6h", "humidity_12h",
		"obs_precip_lag_1h", "obs_temp_lag_24h",
		"obs_precip_roll_6h_sum", "obs_precip_roll_24h_max",
		"nwp_temp_bias_24h", "nwp_precip_bias_24h",
	} {
		if got := v[idx(t, name)]; !math.IsNaN(got) {
			t.Errorf("%s = %v with no history, want NaN", name, got)
		}
	}

	// Same-row features still resolve.
	if got := v[idx(t, "fcst_temp")]; got != 20 {
		t.Errorf("fcst_temp = %v, want 20", got)
	}
	if got := v[idx(t, "dewpoint_depression")]; got != 8 {
		t.Errorf("dewpoint_depression = %v, want 8", got)
	}
}

func TestSeriesGapYieldsNaN(t *testing.T) {
	rows := hourlyRows(10, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	// Drop hours 7 and 8, leaving a hole just behind the last row.
	rows = append(rows[:7], rows[9])
	last := len(rows) - 1

	v := Vector(rows, last)
	if got := v[idx(t, "obs_precip_lag_1h")]; !math.IsNaN(got) {
		t.Errorf("obs_precip_lag_1h across a gap = %v, want NaN", got)
	}
	if got := v[idx(t, "obs_temp_lag_2h")]; !math.IsNaN(got) {
		t.Errorf("obs_temp_lag_2h across a gap = %v, want NaN", got)
	}
	// 3h lookback lands before the gap and still aligns exactly.
	if got := v[idx(t, "pressure_3h")]; math.IsNaN(got) {
		t.Error("pressure_3h = NaN, want value from aligned row")
	}
}

func TestCyclicalEncodings(t *testing.T) {
	rows := hourlyRows(1, time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC))
	v := Vector(rows, 0)

	if got := v[idx(t, "hour_sin")]; math.Abs(got-1) > 1e-12 {
		t.Errorf("hour_sin at 06:00 = %v, want 1", got)
	}
	if got := v[idx(t, "hour_cos")]; math.Abs(got) > 1e-12 {
		t.Errorf("hour_cos at 06:00 = %v, want 0", got)
	}

	// Midnight and 23:00 sit close together on the circle.
	late := hourlyRows(1, time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC))
	mid := hourlyRows(1, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))
	lv, mv := Vector(late, 0), Vector(mid, 0)
	ds := lv[idx(t, "hour_sin")] - mv[idx(t, "hour_sin")]
	dc := lv[idx(t, "hour_cos")] - mv[idx(t, "hour_cos")]
	if dist := math.Hypot(ds, dc); dist > 0.3 {
		t.Errorf("23:00 and 00:00 encode %v apart, want continuity", dist)
	}
}

func TestWindComponents(t *testing.T) {
	rows := hourlyRows(1, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	rows[0].FcstWindSpeed = 10
	rows[0].FcstWindDir = 90 // easterly: flow toward the west
	v := Vector(rows, 0)

	if got := v[idx(t, "wind_u")]; math.Abs(got-(-10)) > 1e-9 {
		t.Errorf("wind_u = %v, want -10", got)
	}
	if got := v[idx(t, "wind_v")]; math.Abs(got) > 1e-9 {
		t.Errorf("wind_v = %v, want 0", got)
	}
}

func TestGustRatioCalm(t *testing.T) {
	rows := hourlyRows(1, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	rows[0].FcstWindSpeed = 0
	rows[0].FcstWindGust = 5
	v := Vector(rows, 0)
	if got := v[idx(t, "gust_ratio")]; got != 1.0 {
		t.Errorf("gust_ratio with calm wind = %v, want 1.0", got)
	}
}

func TestNegativeDewpointDepressionKept(t *testing.T) {
	rows := hourlyRows(1, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	rows[0].FcstTemp = 10
	rows[0].FcstDewpoint = 10.4
	v := Vector(rows, 0)
	if got := v[idx(t, "dewpoint_depression")]; math.Abs(got-(-0.4)) > 1e-9 {
		t.Errorf("dewpoint_depression = %v, want -0.4 (no clamping)", got)
	}
}

func TestRollingExcludesCurrentHour(t *testing.T) {
	rows := hourlyRows(8, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	for i := range rows {
		rows[i].ObsPrecip = 0
	}
	last := len(rows) - 1
	rows[last].ObsPrecip = 5 // target hour itself

	v := Vector(rows, last)
	if got := v[idx(t, "obs_precip_roll_6h_sum")]; got != 0 {
		t.Errorf("obs_precip_roll_6h_sum = %v, want 0 (current hour excluded)", got)
	}
}

func TestRunningBias(t *testing.T) {
	rows := hourlyRows(30, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	for i := range rows {
		rows[i].FcstTemp = 20
		rows[i].ObsTemp = 22 // NWP running 2 degrees cold
	}
	v := Vector(rows, 29)
	if got := v[idx(t, "nwp_temp_bias_24h")]; math.Abs(got-2) > 1e-9 {
		t.Errorf("nwp_temp_bias_24h = %v, want 2", got)
	}
}
