package config

import (
	"fmt"
	"time"

	"github.com/ruretse/mosweather/internal/models"
)

// Config holds the site and path settings shared by every subcommand.
// Defaults describe the single site this deployment corrects for.
type Config struct {
	DBPath       string  `name:"db" env:"MOS_DB_PATH" default:"data/mosweather.db" help:"Path to the SQLite database."`
	ArtifactPath string  `name:"artifact" env:"MOS_ARTIFACT_PATH" default:"data/forecast.json" help:"Path of the published forecast artifact."`
	Latitude     float64 `env:"MOS_LATITUDE" default:"-24.601389" help:"Site latitude."`
	Longitude    float64 `env:"MOS_LONGITUDE" default:"26.0675" help:"Site longitude."`
	LocationName string  `env:"MOS_LOCATION_NAME" default:"Ruretse" help:"Site name reported in the artifact."`
	Timezone     string  `env:"MOS_TIMEZONE" default:"Africa/Gaborone" help:"Local timezone for daily summaries and job scheduling."`
}

func (c *Config) Location() models.Location {
	return models.Location{
		Lat:  c.Latitude,
		Lon:  c.Longitude,
		Name: c.LocationName,
	}
}

func (c *Config) LoadTimezone() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
