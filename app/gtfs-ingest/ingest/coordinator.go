package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/UBC-Live/Translink/business/data/gtfs"
	"github.com/UBC-Live/Translink/business/data/quota"
	"github.com/UBC-Live/Translink/foundation/httpclient"
)

//feedCounters accumulates per-feed cycle results for the status endpoint
type feedCounters struct {
	mu              sync.Mutex
	polls           int
	pollErrors      int
	permitsDenied   int
	entitiesDecoded int
	entitiesSkipped int
	rowsEmitted     int
	rowsSuppressed  int
	lastSuccess     time.Time
	lastError       string
}

//FeedCountersSnapshot is a copy of one feed's counters safe to serialize
type FeedCountersSnapshot struct {
	Polls           int       `json:"polls"`
	PollErrors      int       `json:"poll_errors"`
	PermitsDenied   int       `json:"permits_denied"`
	EntitiesDecoded int       `json:"entities_decoded"`
	EntitiesSkipped int       `json:"entities_skipped"`
	RowsEmitted     int       `json:"rows_emitted"`
	RowsSuppressed  int       `json:"rows_suppressed"`
	LastSuccess     time.Time `json:"last_success"`
	LastError       string    `json:"last_error,omitempty"`
}

func (c *feedCounters) snapshot() FeedCountersSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return FeedCountersSnapshot{
		Polls:           c.polls,
		PollErrors:      c.pollErrors,
		PermitsDenied:   c.permitsDenied,
		EntitiesDecoded: c.entitiesDecoded,
		EntitiesSkipped: c.entitiesSkipped,
		RowsEmitted:     c.rowsEmitted,
		RowsSuppressed:  c.rowsSuppressed,
		LastSuccess:     c.lastSuccess,
		LastError:       c.lastError,
	}
}

//pipeline runs the fetch, decode, enrich and publish steps for one feed
type pipeline struct {
	log          *log.Logger
	kind         feedKind
	url          string
	fetchTimeout time.Duration
	scheduler    *quota.Scheduler
	stores       *gtfs.StoreHandle
	enricher     *enricher
	deduper      *deduper
	publisher    *feedPublisher
	metrics      *metricsCollector
	counters     *feedCounters
}

func makePipeline(log *log.Logger,
	kind feedKind,
	url string,
	fetchTimeout time.Duration,
	scheduler *quota.Scheduler,
	stores *gtfs.StoreHandle,
	enricher *enricher,
	deduper *deduper,
	publisher *feedPublisher,
	metrics *metricsCollector) *pipeline {
	return &pipeline{
		log:          log,
		kind:         kind,
		url:          url,
		fetchTimeout: fetchTimeout,
		scheduler:    scheduler,
		stores:       stores,
		enricher:     enricher,
		deduper:      deduper,
		publisher:    publisher,
		metrics:      metrics,
		counters:     &feedCounters{},
	}
}

//runLoop polls the feed until shutdown. Each cycle asks the quota scheduler
//for a permit first, a denied permit skips the cycle without touching the api.
//The loop targets loopEvery by subtracting the time the work took
func (p *pipeline) runLoop(ctx context.Context, loopEvery time.Duration, shutdown <-chan struct{}) {
	feedLabel := p.kind.String()

	sleepChan := make(chan bool)
	sleep := time.Duration(0) //run the first cycle immediately

	for {
		go func() {
			time.Sleep(sleep)
			sleepChan <- true
		}()

		select {
		case <-shutdown:
			p.log.Printf("%v: exiting on shutdown signal", p.kind)
			return
		case <-sleepChan:
			break
		}

		//set default sleep for next loop in the event of an error after continue statements
		sleep = loopEvery

		// mark the time we start working
		start := time.Now()

		err := p.runCycle(ctx)
		if err != nil {
			if errors.Is(err, quota.ErrQuotaExhausted) || errors.Is(err, quota.ErrMinIntervalNotElapsed) {
				p.metrics.PermitsDenied.WithLabelValues(feedLabel).Inc()
				p.counters.mu.Lock()
				p.counters.permitsDenied++
				p.counters.mu.Unlock()
			} else {
				p.log.Printf("%v: cycle failed, error:%v", p.kind, err)
				p.metrics.PollErrors.WithLabelValues(feedLabel).Inc()
				p.counters.mu.Lock()
				p.counters.pollErrors++
				p.counters.lastError = err.Error()
				p.counters.mu.Unlock()
			}
			continue
		}

		// if the work took longer than loopEvery don't sleep at all on the next loop
		workTook := time.Since(start)
		if workTook >= loopEvery {
			sleep = time.Duration(0)
		} else {
			sleep = loopEvery - workTook
		}
	}
}

//runCycle performs one poll of the feed. The quota permit is spent before the
//fetch, a fetch that later fails still consumed its api call
func (p *pipeline) runCycle(ctx context.Context) error {
	feedLabel := p.kind.String()

	if err := p.scheduler.RequestPermit(feedLabel); err != nil {
		return err
	}

	p.metrics.PollsTotal.WithLabelValues(feedLabel).Inc()
	p.counters.mu.Lock()
	p.counters.polls++
	p.counters.mu.Unlock()

	start := time.Now()
	payload, err := httpclient.FetchBytes(ctx, p.url, p.fetchTimeout)
	if err != nil {
		return fmt.Errorf("fetch %v: %w", p.kind, err)
	}
	p.publisher.saveRaw(p.kind, payload)

	feed, err := decodeFeed(payload, p.kind)
	if err != nil {
		return fmt.Errorf("decode %v: %w", p.kind, err)
	}
	if feed.SkippedEntities > 0 {
		p.log.Printf("%v: skipped %d entities missing required fields", p.kind, feed.SkippedEntities)
		p.metrics.EntitiesSkipped.WithLabelValues(feedLabel).Add(float64(feed.SkippedEntities))
	}

	decoded := 0
	switch p.kind {
	case positionsFeed:
		decoded = len(feed.Positions)
		p.processPositions(feed, start)
	case tripUpdatesFeed:
		decoded = len(feed.TripUpdates)
		p.publisher.publishTripUpdates(feed.TripUpdates)
	case alertsFeed:
		decoded = len(feed.Alerts)
		p.publisher.publishAlerts(feed.Alerts)
	}
	p.metrics.EntitiesDecoded.WithLabelValues(feedLabel).Add(float64(decoded))
	p.metrics.CycleDuration.Observe(time.Since(start).Seconds())

	quotaState := p.scheduler.Snapshot()
	p.metrics.QuotaCallsUsed.Set(float64(quotaState.CallsUsed))

	p.counters.mu.Lock()
	p.counters.entitiesDecoded += decoded
	p.counters.entitiesSkipped += feed.SkippedEntities
	p.counters.lastSuccess = time.Now()
	p.counters.mu.Unlock()
	return nil
}

//processPositions enriches decoded positions against the current reference
//snapshot, drops duplicates and publishes the remainder
func (p *pipeline) processPositions(feed *decodedFeed, at time.Time) {
	store := p.stores.Current()

	emitted := make([]EnrichedRow, 0, len(feed.Positions))
	suppressed := 0
	for i := range feed.Positions {
		position := &feed.Positions[i]
		if !p.deduper.accept(position, at) {
			suppressed++
			continue
		}
		emitted = append(emitted, p.enricher.enrich(store, position))
	}
	evicted := p.deduper.evictIdle(at)
	if evicted > 0 {
		p.log.Printf("%v: evicted %d idle vehicles", p.kind, evicted)
	}

	p.publisher.publishEnriched(emitted)

	p.log.Printf("%v: %d positions, %d emitted, %d suppressed", p.kind,
		len(feed.Positions), len(emitted), suppressed)
	p.metrics.RowsEmitted.Add(float64(len(emitted)))
	p.metrics.RowsSuppressed.Add(float64(suppressed))
	p.metrics.TrackedVehicles.Set(float64(p.deduper.size()))

	p.counters.mu.Lock()
	p.counters.rowsEmitted += len(emitted)
	p.counters.rowsSuppressed += suppressed
	p.counters.mu.Unlock()
}
