package ingest

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/UBC-Live/Translink/business/data/gtfs"
	"github.com/UBC-Live/Translink/business/data/quota"
	"github.com/UBC-Live/Translink/foundation/filesaver"
	"github.com/UBC-Live/Translink/foundation/httpclient"
	"github.com/jmoiron/sqlx"
	"github.com/nats-io/nats.go"
)

// Config carries the runtime settings for the ingest pipelines
type Config struct {
	BaseURL         string
	APIKey          string
	OutputDir       string
	HTTPPort        int
	LoopEvery       time.Duration
	FetchTimeout    time.Duration
	DailyCeiling    int
	FeedWeights     map[string]int
	MinPollInterval time.Duration
	IdleEviction    time.Duration
	RefreshEvery    time.Duration
	SaveRawPayloads bool
	PublishOverNats bool
}

// Run wires up the quota scheduler, reference snapshot, pipelines and status
// web service, then blocks until a shutdown signal arrives.
// natsConn may be nil when cfg.PublishOverNats is false
func Run(log *log.Logger,
	db *sqlx.DB,
	natsConn *nats.Conn,
	cfg Config,
	shutdownSignal chan os.Signal) error {

	location, err := time.LoadLocation(gtfs.AgencyTimeZone)
	if err != nil {
		return fmt.Errorf("unable to load agency time zone: %w", err)
	}

	weights := cfg.FeedWeights
	if len(weights) == 0 {
		weights = make(map[string]int)
		for _, kind := range allFeedKinds {
			weights[kind.String()] = 1
		}
	}
	scheduler, err := quota.NewScheduler(log, quota.Config{
		DailyCeiling: cfg.DailyCeiling,
		Weights:      weights,
		MinInterval:  cfg.MinPollInterval,
		Location:     location,
	}, quota.NewDBUsageStore(db))
	if err != nil {
		return fmt.Errorf("unable to create quota scheduler: %w", err)
	}

	store, err := gtfs.LoadReferenceStore(log, db)
	if err != nil {
		return fmt.Errorf("unable to load reference data: %w", err)
	}
	stores := gtfs.NewStoreHandle(store)

	serviceCalendar, err := loadServiceCalendar(db, store.DataSetId)
	if err != nil {
		return fmt.Errorf("unable to load service calendar: %w", err)
	}

	enricher, err := newEnricher()
	if err != nil {
		return err
	}

	timestamp := time.Now().Format(filesaver.TimestampLayout)
	rawSaver, err := filesaver.NewFileSaver(cfg.OutputDir, timestamp)
	if err != nil {
		return fmt.Errorf("unable to create raw file saver: %w", err)
	}
	cleanSaver, err := filesaver.NewFileSaver(filepath.Join(cfg.OutputDir, "clean"), timestamp)
	if err != nil {
		return fmt.Errorf("unable to create clean file saver: %w", err)
	}
	publisher := makeFeedPublisher(log, rawSaver, cleanSaver, natsConn,
		cfg.SaveRawPayloads, cfg.PublishOverNats)
	defer publisher.close()

	metrics := newMetricsCollector(cfg.DailyCeiling)

	pipelines := make([]*pipeline, 0, len(allFeedKinds))
	for _, kind := range allFeedKinds {
		url := kind.endpointURL(cfg.BaseURL, cfg.APIKey)
		log.Printf("polling %v at %s", kind, httpclient.ObfuscateURL(url))
		pipelines = append(pipelines, makePipeline(log,
			kind,
			url,
			cfg.FetchTimeout,
			scheduler,
			stores,
			enricher,
			newDeduper(cfg.IdleEviction),
			publisher,
			metrics))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown := make(chan struct{})
	var wg sync.WaitGroup
	for _, p := range pipelines {
		wg.Add(1)
		go func(p *pipeline) {
			defer wg.Done()
			p.runLoop(ctx, cfg.LoopEvery, shutdown)
		}(p)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		runStoreRefreshLoop(log, db, stores, cfg.RefreshEvery, shutdown)
	}()

	status := &statusHandler{
		log:             log,
		scheduler:       scheduler,
		stores:          stores,
		serviceCalendar: serviceCalendar,
		pipelines:       pipelines,
		startedAt:       time.Now(),
	}
	go runWebService(log, &wg, status, metrics, cfg.HTTPPort, shutdown)

	sig := <-shutdownSignal
	log.Printf("received %v signal, shutting down", sig)
	cancel()
	close(shutdown)
	wg.Wait()
	return nil
}

// runStoreRefreshLoop periodically reloads the reference snapshot and swaps it
// into the handle, so a static dataset recorded by the loader is picked up
// without a restart
func runStoreRefreshLoop(log *log.Logger,
	db *sqlx.DB,
	stores *gtfs.StoreHandle,
	refreshEvery time.Duration,
	shutdown <-chan struct{}) {

	if refreshEvery <= 0 {
		return
	}
	ticker := time.NewTicker(refreshEvery)
	defer ticker.Stop()
	for {
		select {
		case <-shutdown:
			return
		case <-ticker.C:
			current := stores.Current()
			fresh, err := gtfs.LoadReferenceStore(log, db)
			if err != nil {
				log.Printf("reference refresh failed, keeping DataSet %d, error:%v",
					current.DataSetId, err)
				continue
			}
			if fresh.DataSetId == current.DataSetId {
				continue
			}
			stores.Swap(fresh)
			log.Printf("swapped reference data from DataSet %d to %d",
				current.DataSetId, fresh.DataSetId)
		}
	}
}

// loadServiceCalendar loads calendar rows for the data set and builds the
// service calendar with the provincial holiday list
func loadServiceCalendar(db *sqlx.DB, dataSetId int64) (*gtfs.ServiceCalendar, error) {
	calendars, err := gtfs.GetCalendars(db, dataSetId)
	if err != nil {
		return nil, fmt.Errorf("loading calendars for DataSet %d: %w", dataSetId, err)
	}
	calendarDates, err := gtfs.GetCalendarDates(db, dataSetId)
	if err != nil {
		return nil, fmt.Errorf("loading calendar dates for DataSet %d: %w", dataSetId, err)
	}
	return gtfs.NewServiceCalendar(calendars, calendarDates), nil
}
