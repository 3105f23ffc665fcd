package quota

import (
	"errors"
	"log"
	"os"
	"testing"
	"time"

	"github.com/matryer/is"
)

const (
	positionsEndpoint   = "positions"
	tripUpdatesEndpoint = "tripupdates"
	alertsEndpoint      = "alerts"
)

func testLogger() *log.Logger {
	return log.New(os.Stdout, "TEST : ", log.LstdFlags)
}

func testConfig(ceiling int) Config {
	return Config{
		DailyCeiling: ceiling,
		Weights: map[string]int{
			positionsEndpoint:   1,
			tripUpdatesEndpoint: 1,
			alertsEndpoint:      1,
		},
		Location: time.UTC,
	}
}

// testClock lets tests advance time between permits so spacing checks pass
type testClock struct {
	at time.Time
}

func (c *testClock) now() time.Time {
	return c.at
}

func (c *testClock) advance(d time.Duration) {
	c.at = c.at.Add(d)
}

func newTestScheduler(t *testing.T, cfg Config, store UsageStore, clock *testClock) *Scheduler {
	t.Helper()
	s, err := NewScheduler(testLogger(), cfg, store)
	if err != nil {
		t.Fatalf("unable to create scheduler: %v", err)
	}
	s.now = clock.now
	return s
}

func TestScheduler_CeilingNeverExceeded(t *testing.T) {
	is := is.New(t)
	clock := &testClock{at: time.Date(2025, 11, 15, 0, 0, 0, 0, time.UTC)}
	store := NewMemoryUsageStore()
	s := newTestScheduler(t, testConfig(9), store, clock)

	granted := 0
	endpoints := []string{positionsEndpoint, tripUpdatesEndpoint, alertsEndpoint}
	// hammer the scheduler far past the ceiling over the course of the day
	for i := 0; i < 500; i++ {
		for _, endpoint := range endpoints {
			if err := s.RequestPermit(endpoint); err == nil {
				granted++
			}
		}
		clock.advance(2 * time.Minute)
	}
	is.True(granted <= 9)
	is.Equal(9, granted) // generous spacing over a full day should spend the whole budget

	state := s.Snapshot()
	is.Equal(9, state.CallsUsed)
	is.Equal(3, state.CallsByTarget[positionsEndpoint])
}

func TestScheduler_DayBoundaryResets(t *testing.T) {
	is := is.New(t)
	clock := &testClock{at: time.Date(2025, 11, 15, 23, 0, 0, 0, time.UTC)}
	s := newTestScheduler(t, testConfig(3), NewMemoryUsageStore(), clock)

	is.NoErr(s.RequestPermit(positionsEndpoint))
	is.NoErr(s.RequestPermit(tripUpdatesEndpoint))
	is.NoErr(s.RequestPermit(alertsEndpoint))
	is.True(errors.Is(s.RequestPermit(positionsEndpoint), ErrQuotaExhausted))

	// crossing utc midnight restores the full ceiling
	clock.advance(10 * time.Hour)
	is.NoErr(s.RequestPermit(positionsEndpoint))
	state := s.Snapshot()
	is.Equal("2025-11-16", state.Day)
	is.Equal(1, state.CallsUsed)
}

func TestScheduler_MinIntervalDenied(t *testing.T) {
	is := is.New(t)
	clock := &testClock{at: time.Date(2025, 11, 15, 8, 0, 0, 0, time.UTC)}
	s := newTestScheduler(t, testConfig(1000), NewMemoryUsageStore(), clock)

	is.NoErr(s.RequestPermit(positionsEndpoint))
	// endpoint budget is 333, spacing just over four minutes
	clock.advance(time.Minute)
	is.True(errors.Is(s.RequestPermit(positionsEndpoint), ErrMinIntervalNotElapsed))
	// a different endpoint is not affected by positions' spacing
	is.NoErr(s.RequestPermit(alertsEndpoint))

	clock.advance(5 * time.Minute)
	is.NoErr(s.RequestPermit(positionsEndpoint))
}

func TestScheduler_ConfiguredMinIntervalFloor(t *testing.T) {
	is := is.New(t)
	clock := &testClock{at: time.Date(2025, 11, 15, 8, 0, 0, 0, time.UTC)}
	cfg := testConfig(100000) // derived spacing would be around a second
	cfg.MinInterval = 10 * time.Minute
	s := newTestScheduler(t, cfg, NewMemoryUsageStore(), clock)

	is.NoErr(s.RequestPermit(positionsEndpoint))
	clock.advance(5 * time.Minute)
	is.True(errors.Is(s.RequestPermit(positionsEndpoint), ErrMinIntervalNotElapsed))
	clock.advance(6 * time.Minute)
	is.NoErr(s.RequestPermit(positionsEndpoint))
}

func TestScheduler_RecoversUsageAfterRestart(t *testing.T) {
	is := is.New(t)
	clock := &testClock{at: time.Date(2025, 11, 15, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryUsageStore()
	for i := 0; i < 2; i++ {
		is.NoErr(store.RecordCall("2025-11-15", positionsEndpoint))
	}

	s := newTestScheduler(t, testConfig(6), store, clock)
	state := s.Snapshot()
	is.Equal(2, state.CallsUsed)

	// the positions endpoint budget of 2 is already spent from before the restart
	is.True(errors.Is(s.RequestPermit(positionsEndpoint), ErrQuotaExhausted))
	is.NoErr(s.RequestPermit(alertsEndpoint))
}

func TestScheduler_PermitSpentBeforeFetch(t *testing.T) {
	is := is.New(t)
	clock := &testClock{at: time.Date(2025, 11, 15, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryUsageStore()
	s := newTestScheduler(t, testConfig(30), store, clock)

	is.NoErr(s.RequestPermit(positionsEndpoint))

	// the grant is durable immediately, whether or not the fetch that follows succeeds
	recorded, err := store.LoadDay("2025-11-15")
	is.NoErr(err)
	is.Equal(1, recorded[positionsEndpoint])
}

func TestScheduler_WeightedBudgets(t *testing.T) {
	is := is.New(t)
	clock := &testClock{at: time.Date(2025, 11, 15, 0, 0, 0, 0, time.UTC)}
	cfg := Config{
		DailyCeiling: 10,
		Weights: map[string]int{
			positionsEndpoint:   8,
			tripUpdatesEndpoint: 1,
			alertsEndpoint:      1,
		},
		Location: time.UTC,
	}
	s := newTestScheduler(t, cfg, NewMemoryUsageStore(), clock)

	// alerts holds 1 of 10 weight shares, a single call spends its budget
	is.NoErr(s.RequestPermit(alertsEndpoint))
	clock.advance(time.Minute)
	is.True(errors.Is(s.RequestPermit(alertsEndpoint), ErrQuotaExhausted))

	// positions holds 8 shares and keeps polling
	is.NoErr(s.RequestPermit(positionsEndpoint))
	clock.advance(4 * time.Hour)
	is.NoErr(s.RequestPermit(positionsEndpoint))
}
