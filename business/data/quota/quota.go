// Package quota enforces the daily ceiling on TransLink API calls across the feed endpoints
package quota

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// ErrQuotaExhausted indicates the daily ceiling, or an endpoint's share of it, has been spent
var ErrQuotaExhausted = errors.New("quota exhausted")

// ErrMinIntervalNotElapsed indicates the endpoint was polled too recently.
// Spacing permits across the day keeps the budget from being burned early
var ErrMinIntervalNotElapsed = errors.New("minimum poll interval not elapsed")

// Config controls how the daily budget is split and spaced
type Config struct {
	// DailyCeiling is the total number of api calls permitted per day across all endpoints
	DailyCeiling int
	// Weights determines each endpoint's share of the ceiling. A missing endpoint gets weight 1
	Weights map[string]int
	// MinInterval is a floor on the spacing between polls of one endpoint, the
	// spacing derived from the endpoint budget applies when it is longer
	MinInterval time.Duration
	// Location is the timezone whose calendar date defines the quota day
	Location *time.Location
}

// UsageStore durably records granted permits so a restart mid-day resumes from the
// true count instead of zero
type UsageStore interface {
	// RecordCall durably adds one granted call for endpoint on day
	RecordCall(day string, endpoint string) error
	// LoadDay retrieves calls recorded per endpoint for day
	LoadDay(day string) (map[string]int, error)
}

// Scheduler allocates the daily call budget across endpoints.
// It is the one piece of mutable state shared by all polling loops and
// serializes all permit decisions behind a mutex
type Scheduler struct {
	mu       sync.Mutex
	log      *log.Logger
	cfg      Config
	store    UsageStore
	now      func() time.Time
	day      string
	used     map[string]int
	lastPoll map[string]time.Time
}

// NewScheduler creates a Scheduler, recovering today's usage from store
func NewScheduler(log *log.Logger, cfg Config, store UsageStore) (*Scheduler, error) {
	if cfg.DailyCeiling <= 0 {
		return nil, fmt.Errorf("daily ceiling must be positive, got %d", cfg.DailyCeiling)
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	s := &Scheduler{
		log:      log,
		cfg:      cfg,
		store:    store,
		now:      time.Now,
		lastPoll: make(map[string]time.Time),
	}
	s.day = s.dayKey(s.now())
	used, err := store.LoadDay(s.day)
	if err != nil {
		return nil, fmt.Errorf("unable to recover quota usage for %s: %w", s.day, err)
	}
	s.used = used
	if total := s.totalUsed(); total > 0 {
		log.Printf("recovered quota usage for %s: %d of %d calls already used", s.day, total, cfg.DailyCeiling)
	}
	return s, nil
}

// dayKey is a pure function of wall clock date in the api timezone
func (s *Scheduler) dayKey(at time.Time) string {
	return at.In(s.cfg.Location).Format("2006-01-02")
}

func (s *Scheduler) totalUsed() int {
	total := 0
	for _, calls := range s.used {
		total += calls
	}
	return total
}

func (s *Scheduler) weight(endpoint string) int {
	if w, present := s.cfg.Weights[endpoint]; present && w > 0 {
		return w
	}
	return 1
}

func (s *Scheduler) totalWeight() int {
	total := 0
	seen := false
	for _, w := range s.cfg.Weights {
		if w > 0 {
			total += w
			seen = true
		}
	}
	if !seen {
		return 1
	}
	return total
}

// endpointBudget is the endpoint's proportional share of the daily ceiling
func (s *Scheduler) endpointBudget(endpoint string) int {
	budget := s.cfg.DailyCeiling * s.weight(endpoint) / s.totalWeight()
	if budget < 1 {
		budget = 1
	}
	return budget
}

// rollDayIfNeeded resets counters when the wall clock date changes.
// Safe to call any number of times per second, only the first call after the
// boundary does anything
func (s *Scheduler) rollDayIfNeeded(at time.Time) {
	day := s.dayKey(at)
	if day == s.day {
		return
	}
	used, err := s.store.LoadDay(day)
	if err != nil {
		// failing open here could overspend, start the day from zero in memory
		// and keep recording, the store is only consulted again on restart
		s.log.Printf("unable to load quota usage for new day %s, assuming zero: %v", day, err)
		used = make(map[string]int)
	}
	s.log.Printf("quota day rolled over from %s to %s, %d of %d calls used yesterday",
		s.day, day, s.totalUsed(), s.cfg.DailyCeiling)
	s.day = day
	s.used = used
	s.lastPoll = make(map[string]time.Time)
}

// RequestPermit grants or denies one api call for endpoint.
// A nil return means granted and the call has already been counted and durably
// recorded, before any fetch is attempted. A failed fetch still costs the permit,
// matching how the provider bills calls.
// Denials are ErrQuotaExhausted or ErrMinIntervalNotElapsed, both expected flow
func (s *Scheduler) RequestPermit(endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.rollDayIfNeeded(now)

	if s.totalUsed() >= s.cfg.DailyCeiling {
		return fmt.Errorf("daily ceiling %d reached: %w", s.cfg.DailyCeiling, ErrQuotaExhausted)
	}
	budget := s.endpointBudget(endpoint)
	if s.used[endpoint] >= budget {
		return fmt.Errorf("endpoint %s budget %d reached: %w", endpoint, budget, ErrQuotaExhausted)
	}

	spacing := s.pollSpacing(endpoint)
	if last, present := s.lastPoll[endpoint]; present {
		if elapsed := now.Sub(last); elapsed < spacing {
			return fmt.Errorf("endpoint %s polled %s ago, spacing is %s: %w",
				endpoint, elapsed.Round(time.Second), spacing.Round(time.Second), ErrMinIntervalNotElapsed)
		}
	}

	s.used[endpoint]++
	s.lastPoll[endpoint] = now
	if err := s.store.RecordCall(s.day, endpoint); err != nil {
		// the permit is spent either way, surface the durability problem to the caller
		return fmt.Errorf("permit granted but not durably recorded: %w", err)
	}
	return nil
}

// pollSpacing spreads the endpoint's budget across a full day, never dropping
// below the configured floor
func (s *Scheduler) pollSpacing(endpoint string) time.Duration {
	spacing := 24 * time.Hour / time.Duration(s.endpointBudget(endpoint))
	if spacing < s.cfg.MinInterval {
		spacing = s.cfg.MinInterval
	}
	return spacing
}

// State is a point-in-time snapshot of quota accounting for the status endpoint
type State struct {
	Day           string         `json:"day"`
	DailyCeiling  int            `json:"daily_ceiling"`
	CallsUsed     int            `json:"calls_used"`
	CallsByTarget map[string]int `json:"calls_by_endpoint"`
}

// Snapshot reports current usage
func (s *Scheduler) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollDayIfNeeded(s.now())
	byTarget := make(map[string]int, len(s.used))
	for endpoint, calls := range s.used {
		byTarget[endpoint] = calls
	}
	return State{
		Day:           s.day,
		DailyCeiling:  s.cfg.DailyCeiling,
		CallsUsed:     s.totalUsed(),
		CallsByTarget: byTarget,
	}
}
