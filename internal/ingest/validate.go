package ingest

import (
	"github.com/ruretse/mosweather/internal/models"
)

const (
	FlagTempOutOfRange     = "temp_out_of_range"
	FlagHumidityInvalid    = "humidity_invalid"
	FlagWindDirInvalid     = "wind_dir_invalid"
	FlagWindSpeedUnlikely  = "wind_speed_unlikely"
	FlagPressureOutOfRange = "pressure_out_of_range"
	FlagPrecipNegative     = "precip_negative"
)

// ValidateObservation flags physically implausible reanalysis values.
// Flagged hours are still stored; the flags only drive logging, since a
// reanalysis product occasionally produces a legitimate extreme.
func ValidateObservation(obs *models.ObservationRow) []string {
	var flags []string

	if obs.Temp.Valid {
		if obs.Temp.Float64 < -25 || obs.Temp.Float64 > 50 {
			flags = append(flags, FlagTempOutOfRange)
		}
	}

	if obs.Humidity.Valid {
		if obs.Humidity.Float64 < 0 || obs.Humidity.Float64 > 100 {
			flags = append(flags, FlagHumidityInvalid)
		}
	}

	if obs.WindDir.Valid {
		if obs.WindDir.Float64 < 0 || obs.WindDir.Float64 > 360 {
			flags = append(flags, FlagWindDirInvalid)
		}
	}

	if obs.WindSpeed.Valid {
		if obs.WindSpeed.Float64 < 0 || obs.WindSpeed.Float64 > 200 {
			flags = append(flags, FlagWindSpeedUnlikely)
		}
	}

	if obs.Pressure.Valid {
		if obs.Pressure.Float64 < 900 || obs.Pressure.Float64 > 1100 {
			flags = append(flags, FlagPressureOutOfRange)
		}
	}

	if obs.Precip.Valid && obs.Precip.Float64 < 0 {
		flags = append(flags, FlagPrecipNegative)
	}

	return flags
}
