package gtfs

import (
	"fmt"
	"log"
	"sort"
	"sync/atomic"

	"github.com/jmoiron/sqlx"
)

// StaticTables holds parsed gtfs static tables before indexing
type StaticTables struct {
	Routes        []*Route
	Stops         []*Stop
	Trips         []*Trip
	StopTimes     []*StopTime
	Calendars     []*Calendar
	CalendarDates []*CalendarDate
}

// LoadError indicates the static tables referential integrity is broken beyond tolerance.
// Small numbers of dangling references are expected in agency feeds and only logged
type LoadError struct {
	TripsMissingRoute    int
	StopTimesMissingTrip int
	BrokenFraction       float64
	Tolerance            float64
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("static data integrity broken beyond tolerance %.2f: "+
		"%d trips reference missing routes, %d stop times reference missing trips (%.2f broken)",
		e.Tolerance, e.TripsMissingRoute, e.StopTimesMissingTrip, e.BrokenFraction)
}

// DefaultIntegrityTolerance is the fraction of dangling references tolerated before a load fails
const DefaultIntegrityTolerance = 0.1

// ReferenceStore holds indexed gtfs static tables for O(1) lookup during enrichment.
// Read-only after build, safe for concurrent readers without locking
type ReferenceStore struct {
	DataSetId         int64
	routesById        map[string]*Route
	stopsById         map[string]*Stop
	tripsById         map[string]*Trip
	stopTimesByTripId map[string][]*StopTime
}

// BuildReferenceStore builds indexes from parsed static tables.
// Trips referencing nonexistent routes and stop times referencing nonexistent trips
// are logged as warnings and kept, the data they do carry is still usable for joins.
// Returns *LoadError when the broken fraction exceeds tolerance
func BuildReferenceStore(log *log.Logger, tables *StaticTables, tolerance float64) (*ReferenceStore, error) {
	store := &ReferenceStore{
		routesById:        make(map[string]*Route, len(tables.Routes)),
		stopsById:         make(map[string]*Stop, len(tables.Stops)),
		tripsById:         make(map[string]*Trip, len(tables.Trips)),
		stopTimesByTripId: make(map[string][]*StopTime),
	}
	for _, route := range tables.Routes {
		store.routesById[route.RouteId] = route
	}
	for _, stop := range tables.Stops {
		store.stopsById[stop.StopId] = stop
	}

	tripsMissingRoute := 0
	for _, trip := range tables.Trips {
		if _, present := store.routesById[trip.RouteId]; !present {
			tripsMissingRoute++
		}
		store.tripsById[trip.TripId] = trip
	}

	stopTimesMissingTrip := 0
	for _, stopTime := range tables.StopTimes {
		if _, present := store.tripsById[stopTime.TripId]; !present {
			stopTimesMissingTrip++
		}
		store.stopTimesByTripId[stopTime.TripId] = append(store.stopTimesByTripId[stopTime.TripId], stopTime)
	}
	for _, stopTimes := range store.stopTimesByTripId {
		sort.Slice(stopTimes, func(i, j int) bool {
			return stopTimes[i].StopSequence < stopTimes[j].StopSequence
		})
	}

	if tripsMissingRoute > 0 {
		log.Printf("warning: %d of %d trips reference routes not present in routes table",
			tripsMissingRoute, len(tables.Trips))
	}
	if stopTimesMissingTrip > 0 {
		log.Printf("warning: %d of %d stop times reference trips not present in trips table",
			stopTimesMissingTrip, len(tables.StopTimes))
	}

	brokenFraction := 0.0
	total := len(tables.Trips) + len(tables.StopTimes)
	if total > 0 {
		brokenFraction = float64(tripsMissingRoute+stopTimesMissingTrip) / float64(total)
	}
	if brokenFraction > tolerance {
		return nil, &LoadError{
			TripsMissingRoute:    tripsMissingRoute,
			StopTimesMissingTrip: stopTimesMissingTrip,
			BrokenFraction:       brokenFraction,
			Tolerance:            tolerance,
		}
	}
	return store, nil
}

// LookupRoute retrieves the Route with routeId, false when absent
func (s *ReferenceStore) LookupRoute(routeId string) (*Route, bool) {
	route, present := s.routesById[routeId]
	return route, present
}

// LookupStop retrieves the Stop with stopId, false when absent
func (s *ReferenceStore) LookupStop(stopId string) (*Stop, bool) {
	stop, present := s.stopsById[stopId]
	return stop, present
}

// LookupTrip retrieves the Trip with tripId, false when absent
func (s *ReferenceStore) LookupTrip(tripId string) (*Trip, bool) {
	trip, present := s.tripsById[tripId]
	return trip, present
}

// LookupTripRoute resolves tripId to the short name of the route the trip runs on,
// false when the trip or its route is absent
func (s *ReferenceStore) LookupTripRoute(tripId string) (string, bool) {
	trip, present := s.tripsById[tripId]
	if !present {
		return "", false
	}
	route, present := s.routesById[trip.RouteId]
	if !present {
		return "", false
	}
	return route.RouteShortName, true
}

// StopTimesForTrip retrieves the trip's scheduled stops ordered by stop sequence,
// nil when the trip has no schedule entries
func (s *ReferenceStore) StopTimesForTrip(tripId string) []*StopTime {
	return s.stopTimesByTripId[tripId]
}

// Counts reports table sizes for logging after a load
func (s *ReferenceStore) Counts() (routes, stops, trips, stopTimeTrips int) {
	return len(s.routesById), len(s.stopsById), len(s.tripsById), len(s.stopTimesByTripId)
}

// LoadReferenceStore loads the latest saved DataSet from the database and indexes it
func LoadReferenceStore(log *log.Logger, db *sqlx.DB) (*ReferenceStore, error) {
	ds, err := GetLatestSavedDataSet(db)
	if err != nil {
		return nil, fmt.Errorf("unable to find a saved DataSet to load: %w", err)
	}
	tables := StaticTables{}
	if tables.Routes, err = GetRoutes(db, ds.Id); err != nil {
		return nil, fmt.Errorf("loading routes for DataSet %d: %w", ds.Id, err)
	}
	if tables.Stops, err = GetStops(db, ds.Id); err != nil {
		return nil, fmt.Errorf("loading stops for DataSet %d: %w", ds.Id, err)
	}
	if tables.Trips, err = GetTrips(db, ds.Id); err != nil {
		return nil, fmt.Errorf("loading trips for DataSet %d: %w", ds.Id, err)
	}
	if tables.StopTimes, err = GetStopTimes(db, ds.Id); err != nil {
		return nil, fmt.Errorf("loading stop times for DataSet %d: %w", ds.Id, err)
	}

	store, err := BuildReferenceStore(log, &tables, DefaultIntegrityTolerance)
	if err != nil {
		return nil, err
	}
	store.DataSetId = ds.Id
	routes, stops, trips, stopTimeTrips := store.Counts()
	log.Printf("loaded DataSet %d: %d routes, %d stops, %d trips, stop times for %d trips",
		ds.Id, routes, stops, trips, stopTimeTrips)
	return store, nil
}

// StoreHandle holds the active ReferenceStore behind an atomically swappable reference.
// A refresh installs a complete new snapshot, in-flight enrichments keep the one they started with
type StoreHandle struct {
	current atomic.Pointer[ReferenceStore]
}

// NewStoreHandle creates a StoreHandle serving store
func NewStoreHandle(store *ReferenceStore) *StoreHandle {
	handle := &StoreHandle{}
	handle.current.Store(store)
	return handle
}

// Current returns the active snapshot
func (h *StoreHandle) Current() *ReferenceStore {
	return h.current.Load()
}

// Swap atomically installs a new snapshot
func (h *StoreHandle) Swap(store *ReferenceStore) {
	h.current.Store(store)
}
