package ingest

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ruretse/mosweather/internal/metrics"
	"github.com/ruretse/mosweather/internal/store"
)

const (
	obsInterval  = 1 * time.Hour
	fcInterval   = 6 * time.Hour
	backfillPace = 1 * time.Second
	chunkDays    = 30
)

// Scheduler drives the periodic jobs: observations hourly, forecasts
// every six hours, verification daily and retraining weekly. The model
// jobs are injected so the pipeline wiring stays in the command layer.
type Scheduler struct {
	store   *store.Store
	om      *OpenMeteo
	loc     *time.Location
	verify  func(day time.Time) error
	train   func() error
	predict func() error

	lastVerifyDay string
	lastTrainWeek string
}

func NewScheduler(st *store.Store, om *OpenMeteo, loc *time.Location) *Scheduler {
	return &Scheduler{store: st, om: om, loc: loc}
}

// SetPredictJob runs fn after every successful forecast ingest.
func (s *Scheduler) SetPredictJob(fn func() error) { s.predict = fn }

// SetVerifyJob runs fn once per day for the previous local day.
func (s *Scheduler) SetVerifyJob(fn func(day time.Time) error) { s.verify = fn }

// SetTrainJob runs fn once per week, early Monday local time.
func (s *Scheduler) SetTrainJob(fn func() error) { s.train = fn }

func (s *Scheduler) Run(ctx context.Context) {
	s.ingestObservations(ctx)
	s.ingestForecasts(ctx)
	s.runScheduledJobs()

	obsTicker := time.NewTicker(obsInterval)
	fcTicker := time.NewTicker(fcInterval)
	jobTicker := time.NewTicker(1 * time.Hour)
	defer obsTicker.Stop()
	defer fcTicker.Stop()
	defer jobTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("scheduler: shutting down")
			return
		case <-obsTicker.C:
			s.ingestObservations(ctx)
		case <-fcTicker.C:
			s.ingestForecasts(ctx)
		case <-jobTicker.C:
			s.runScheduledJobs()
		}
	}
}

// IngestOnce performs one observation and forecast pull, for the
// collect command.
func (s *Scheduler) IngestOnce(ctx context.Context) error {
	s.ingestObservations(ctx)
	s.ingestForecasts(ctx)
	return nil
}

func (s *Scheduler) ingestObservations(ctx context.Context) {
	log.Println("scheduler: ingesting observations")

	// The archive lags real time; re-fetch the recent week to fill
	// whatever has landed since the last pull.
	end := time.Now().UTC().AddDate(0, 0, -1)
	start := end.AddDate(0, 0, -7)
	obs, err := s.om.FetchObservations(ctx, start, end)
	if err != nil {
		log.Printf("scheduler: fetch observations: %v", err)
		return
	}

	inserted := 0
	for _, o := range obs {
		if flags := ValidateObservation(&o); len(flags) > 0 {
			log.Printf("scheduler: observation %s flagged: %v", o.Time.Format(time.RFC3339), flags)
		}
		if err := s.store.UpsertObservation(o); err != nil {
			log.Printf("scheduler: upsert observation %s: %v", o.Time, err)
			continue
		}
		inserted++
	}
	metrics.RowsIngested.WithLabelValues("observation").Add(float64(inserted))
	log.Printf("scheduler: stored %d observation hours", inserted)
}

func (s *Scheduler) ingestForecasts(ctx context.Context) {
	log.Println("scheduler: ingesting forecast")

	rows, err := s.om.FetchForecast(ctx)
	if err != nil {
		log.Printf("scheduler: fetch forecast: %v", err)
		return
	}

	inserted := 0
	for _, r := range rows {
		if err := s.store.UpsertForecastRow(r); err != nil {
			log.Printf("scheduler: upsert forecast %s: %v", r.ValidTime, err)
			continue
		}
		inserted++
	}
	metrics.RowsIngested.WithLabelValues("forecast").Add(float64(inserted))
	log.Printf("scheduler: stored %d forecast hours", inserted)

	if s.predict != nil && inserted > 0 {
		if err := s.predict(); err != nil {
			log.Printf("scheduler: predict after ingest: %v", err)
		}
	}
}

func (s *Scheduler) runScheduledJobs() {
	now := time.Now().In(s.loc)

	if s.verify != nil && now.Hour() >= 6 {
		day := now.AddDate(0, 0, -1)
		key := day.Format("2006-01-02")
		if key != s.lastVerifyDay {
			s.lastVerifyDay = key
			if err := s.verify(day); err != nil {
				log.Printf("scheduler: verify %s: %v", key, err)
			}
		}
	}

	if s.train != nil && now.Weekday() == time.Monday && now.Hour() >= 3 {
		year, week := now.ISOWeek()
		key := fmt.Sprintf("%d-%02d", year, week)
		if key != s.lastTrainWeek {
			s.lastTrainWeek = key
			if err := s.train(); err != nil {
				log.Printf("scheduler: weekly retrain: %v", err)
			}
		}
	}
}

// Backfill seeds the corpus: historical observations and historical
// forecasts for the trailing days window, fetched in monthly chunks.
func (s *Scheduler) Backfill(ctx context.Context, days int) error {
	end := time.Now().UTC().AddDate(0, 0, -5)
	start := end.AddDate(0, 0, -days)

	for chunkStart := start; chunkStart.Before(end); {
		chunkEnd := chunkStart.AddDate(0, 0, chunkDays)
		if chunkEnd.After(end) {
			chunkEnd = end
		}
		log.Printf("scheduler: backfill %s to %s",
			chunkStart.Format("2006-01-02"), chunkEnd.Format("2006-01-02"))

		obs, err := s.om.FetchObservations(ctx, chunkStart, chunkEnd)
		if err != nil {
			log.Printf("scheduler: backfill observations %s: %v", chunkStart.Format("2006-01-02"), err)
		} else {
			n := 0
			for _, o := range obs {
				if err := s.store.UpsertObservation(o); err == nil {
					n++
				}
			}
			metrics.RowsIngested.WithLabelValues("observation").Add(float64(n))
		}

		fcst, err := s.om.FetchHistoricalForecast(ctx, chunkStart, chunkEnd)
		if err != nil {
			log.Printf("scheduler: backfill forecasts %s: %v", chunkStart.Format("2006-01-02"), err)
		} else {
			n := 0
			for _, r := range fcst {
				if err := s.store.UpsertForecastRow(r); err == nil {
					n++
				}
			}
			metrics.RowsIngested.WithLabelValues("forecast").Add(float64(n))
		}

		chunkStart = chunkEnd.AddDate(0, 0, 1)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backfillPace):
		}
	}

	total, err := s.store.CountObservations()
	if err != nil {
		return err
	}
	log.Printf("scheduler: backfill complete, %d observation hours stored", total)
	return nil
}
