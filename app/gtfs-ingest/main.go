package main

import (
	"fmt"
	logger "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/UBC-Live/Translink/app/gtfs-ingest/ingest"
	"github.com/UBC-Live/Translink/foundation/database"
	"github.com/ardanlabs/conf"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
)

var build = "develop"

func main() {
	log := logger.New(os.Stdout, "GTFS_INGEST : ", logger.LstdFlags|logger.Lmicroseconds|logger.Lshortfile)
	if err := run(log); err != nil {
		log.Printf("main: error: %v", err)
		os.Exit(1)
	}
}

func run(log *logger.Logger) error {

	// a .env file is optional, the api key usually lives there
	_ = godotenv.Load()

	var cfg struct {
		conf.Version
		Args conf.Args
		DB   struct {
			User       string `conf:"default:postgres"`
			Password   string `conf:"default:postgres,noprint"`
			Host       string `conf:"default:0.0.0.0"`
			Name       string `conf:"default:postgres"`
			DisableTLS bool   `conf:"default:true"`
		}
		Translink struct {
			BaseUrl string `conf:"default:https://gtfsapi.translink.ca/v3"`
			ApiKey  string `conf:"noprint"`
		}
		Ingest struct {
			OutputDir           string `conf:"default:data/raw"`
			HttpPort            int    `conf:"default:4000"`
			LoopEverySeconds    int    `conf:"default:120"`
			FetchTimeoutSeconds int    `conf:"default:30"`
			DailyCallCeiling    int    `conf:"default:1000"`
			MinPollSeconds      int    `conf:"default:60"`
			IdleEvictionMinutes int    `conf:"default:30"`
			RefreshEveryMinutes int    `conf:"default:60"`
			SaveRawPayloads     bool   `conf:"default:false"`
			PositionsFeedWeight int    `conf:"default:1"`
			TripUpdatesWeight   int    `conf:"default:1"`
			ServiceAlertsWeight int    `conf:"default:1"`
		}
		NATS struct {
			Url     string `conf:"default:nats://127.0.0.1:4222"`
			Publish bool   `conf:"default:false"`
		}
	}
	cfg.Version.SVN = build
	cfg.Version.Desc = "Poll TransLink realtime feeds and emit enriched vehicle observations"
	const prefix = "INGEST"
	if err := conf.Parse(os.Args[1:], prefix, &cfg); err != nil {
		switch err {
		case conf.ErrHelpWanted:
			usage, err := conf.Usage(prefix, &cfg)
			if err != nil {
				return fmt.Errorf("generating config usage: %w", err)
			}
			fmt.Println(usage)
			return nil
		case conf.ErrVersionWanted:
			version, err := conf.VersionString(prefix, &cfg)
			if err != nil {
				return fmt.Errorf("generating config version: %w", err)
			}
			fmt.Println(version)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	if cfg.Translink.ApiKey == "" {
		return fmt.Errorf("no api key configured, set %s_TRANSLINK_API_KEY", prefix)
	}

	// =========================================================================
	// App Starting

	log.Printf("main : Started : Application initializing : version %s", build)
	defer log.Println("main: Completed")

	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Printf("main: Config :\n%v\n", out)

	// =========================================================================
	// Start Database

	log.Println("main: Initializing database support")

	db, err := database.Open(database.Config{
		User:       cfg.DB.User,
		Password:   cfg.DB.Password,
		Host:       cfg.DB.Host,
		Name:       cfg.DB.Name,
		DisableTLS: cfg.DB.DisableTLS,
	})
	if err != nil {
		return fmt.Errorf("connecting to db: %w", err)
	}
	defer func() {
		log.Printf("main: Database Stopping : %s", cfg.DB.Host)
		err = db.Close()
		if err != nil {
			log.Printf("main: error closing database: %v", err)
		}
	}()

	// =========================================================================
	// Start NATS when publishing is on

	var natsConn *nats.Conn
	if cfg.NATS.Publish {
		log.Printf("main: Connecting to nats at %s", cfg.NATS.Url)
		natsConn, err = nats.Connect(cfg.NATS.Url)
		if err != nil {
			return fmt.Errorf("connecting to nats: %w", err)
		}
		defer natsConn.Close()
	}

	// Make a channel to listen for an interrupt or terminate signal from the OS.
	// Use a buffered channel because the signal package requires it.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	return ingest.Run(log, db, natsConn, ingest.Config{
		BaseURL:         cfg.Translink.BaseUrl,
		APIKey:          cfg.Translink.ApiKey,
		OutputDir:       cfg.Ingest.OutputDir,
		HTTPPort:        cfg.Ingest.HttpPort,
		LoopEvery:       time.Duration(cfg.Ingest.LoopEverySeconds) * time.Second,
		FetchTimeout:    time.Duration(cfg.Ingest.FetchTimeoutSeconds) * time.Second,
		DailyCeiling:    cfg.Ingest.DailyCallCeiling,
		FeedWeights: map[string]int{
			"position_updates": cfg.Ingest.PositionsFeedWeight,
			"trip_updates":     cfg.Ingest.TripUpdatesWeight,
			"service_alerts":   cfg.Ingest.ServiceAlertsWeight,
		},
		MinPollInterval: time.Duration(cfg.Ingest.MinPollSeconds) * time.Second,
		IdleEviction:    time.Duration(cfg.Ingest.IdleEvictionMinutes) * time.Minute,
		RefreshEvery:    time.Duration(cfg.Ingest.RefreshEveryMinutes) * time.Minute,
		SaveRawPayloads: cfg.Ingest.SaveRawPayloads,
		PublishOverNats: cfg.NATS.Publish,
	}, shutdown)
}
