package main

import (
	"context"
	"database/sql"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	_ "modernc.org/sqlite"

	"github.com/ruretse/mosweather/internal/api"
	"github.com/ruretse/mosweather/internal/config"
	"github.com/ruretse/mosweather/internal/ingest"
	"github.com/ruretse/mosweather/internal/store"
)

type cli struct {
	config.Config `embed:""`

	Collect  collectCmd  `cmd:"" help:"Fetch the current forecast and recent observations once."`
	Backfill backfillCmd `cmd:"" help:"Seed the corpus with historical observations and forecasts."`
	Train    trainCmd    `cmd:"" help:"Train a model bundle from the paired corpus and publish it."`
	Predict  predictCmd  `cmd:"" help:"Correct the latest forecast with the active bundle."`
	Verify   verifyCmd   `cmd:"" help:"Score yesterday's predictions against observations."`
	Serve    serveCmd    `cmd:"" help:"Run the HTTP server and background jobs."`
}

// app carries the wired dependencies into command Run methods.
type app struct {
	cfg       *config.Config
	store     *store.Store
	scheduler *ingest.Scheduler
	loc       *time.Location
}

type collectCmd struct{}

func (c *collectCmd) Run(a *app) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return a.scheduler.IngestOnce(ctx)
}

type backfillCmd struct {
	Days int `default:"365" help:"How many trailing days of history to seed."`
}

func (c *backfillCmd) Run(a *app) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return a.scheduler.Backfill(ctx, c.Days)
}

type trainCmd struct{}

func (c *trainCmd) Run(a *app) error {
	return runTrain(a)
}

type predictCmd struct{}

func (c *predictCmd) Run(a *app) error {
	return runPredict(a)
}

type verifyCmd struct{}

func (c *verifyCmd) Run(a *app) error {
	yesterday := time.Now().In(a.loc).AddDate(0, 0, -1)
	return runVerify(a, yesterday)
}

type serveCmd struct {
	Port   string `default:"8080" help:"HTTP listen port."`
	NoPoll bool   `help:"Disable background jobs (server only, for local dev)."`
}

func (c *serveCmd) Run(a *app) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if !c.NoPoll {
		a.scheduler.SetPredictJob(func() error { return runPredict(a) })
		a.scheduler.SetVerifyJob(func(day time.Time) error { return runVerify(a, day) })
		a.scheduler.SetTrainJob(func() error { return runTrain(a) })
		go a.scheduler.Run(ctx)
	} else {
		log.Println("polling disabled (--no-poll)")
	}

	server := api.NewServer(a.store, c.Port, a.cfg.ArtifactPath)
	log.Printf("starting server on :%s", c.Port)
	return server.Run(ctx)
}

func main() {
	var flags cli
	kctx := kong.Parse(&flags,
		kong.Name("mosweather"),
		kong.Description("Statistical bias correction for a single site's NWP forecasts."),
		kong.Configuration(kongdotenv.ENVFileReader, ".env"),
	)

	loc, err := flags.LoadTimezone()
	if err != nil {
		log.Printf("warning: %v, using UTC", err)
		loc = time.UTC
	}

	db, err := sql.Open("sqlite", flags.DBPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	st := store.New(db, loc)
	if err := st.Migrate(); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	om := ingest.NewOpenMeteo(flags.Latitude, flags.Longitude)
	scheduler := ingest.NewScheduler(st, om, loc)

	err = kctx.Run(&app{
		cfg:       &flags.Config,
		store:     st,
		scheduler: scheduler,
		loc:       loc,
	})
	kctx.FatalIfErrorf(err)
}
