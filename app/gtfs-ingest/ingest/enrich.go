package ingest

import (
	"fmt"
	"strconv"
	"time"

	"github.com/UBC-Live/Translink/business/data/gtfs"
)

// occupancy labels emitted in enriched rows
const (
	occupancyEmpty           = "EMPTY"
	occupancyManySeats       = "MANY_SEATS_AVAILABLE"
	occupancyFewSeats        = "FEW_SEATS_AVAILABLE"
	occupancyStandingRoom    = "STANDING_ROOM_ONLY"
	occupancyCrushedStanding = "CRUSHED_STANDING_ROOM_ONLY"
	occupancyFull            = "FULL"
	occupancyNotAccepting    = "NOT_ACCEPTING_PASSENGERS"
)

// enrichedCSVHeader is the column order of enriched row output
var enrichedCSVHeader = []string{
	"route_number",
	"vehicle_id",
	"latitude",
	"longitude",
	"timestamp",
	"stop_id",
	"current_stop_sequence",
	"arrival_estimate",
	"occupancy",
}

// EnrichedRow is one vehicle position joined against the static tables.
// RouteNumber is the rider-facing short name, empty when the trip could not be
// resolved. ArrivalEstimateMinutes and Occupancy are nil when they cannot be derived
type EnrichedRow struct {
	RouteNumber            string  `json:"route_number"`
	VehicleId              string  `json:"vehicle_id"`
	TripId                 string  `json:"trip_id"`
	Latitude               float32 `json:"latitude"`
	Longitude              float32 `json:"longitude"`
	Timestamp              string  `json:"timestamp"`
	StopId                 string  `json:"stop_id"`
	CurrentStopSequence    *uint32 `json:"current_stop_sequence"`
	ArrivalEstimateMinutes *int    `json:"arrival_estimate_minutes"`
	Occupancy              *string `json:"occupancy"`
}

// csvRecord formats the row in enrichedCSVHeader column order.
// Nil fields become empty strings
func (r *EnrichedRow) csvRecord() []string {
	sequence := ""
	if r.CurrentStopSequence != nil {
		sequence = strconv.FormatUint(uint64(*r.CurrentStopSequence), 10)
	}
	arrival := ""
	if r.ArrivalEstimateMinutes != nil {
		arrival = strconv.Itoa(*r.ArrivalEstimateMinutes)
	}
	occupancy := ""
	if r.Occupancy != nil {
		occupancy = *r.Occupancy
	}
	return []string{
		r.RouteNumber,
		r.VehicleId,
		strconv.FormatFloat(float64(r.Latitude), 'f', -1, 32),
		strconv.FormatFloat(float64(r.Longitude), 'f', -1, 32),
		r.Timestamp,
		r.StopId,
		sequence,
		arrival,
		occupancy,
	}
}

// enricher joins decoded vehicle positions against a reference snapshot
type enricher struct {
	location *time.Location
}

func newEnricher() (*enricher, error) {
	location, err := time.LoadLocation(gtfs.AgencyTimeZone)
	if err != nil {
		return nil, fmt.Errorf("unable to load agency time zone: %w", err)
	}
	return &enricher{location: location}, nil
}

// enrich builds an EnrichedRow from one position entity and the snapshot.
// Joins that fail leave the derived fields empty or nil rather than dropping
// the row, a vehicle with an unknown trip is still a vehicle on the map
func (e *enricher) enrich(store *gtfs.ReferenceStore, position *vehiclePositionEntity) EnrichedRow {
	row := EnrichedRow{
		VehicleId:           position.VehicleId,
		TripId:              position.TripId,
		Latitude:            position.Latitude,
		Longitude:           position.Longitude,
		Timestamp:           time.Unix(position.Timestamp, 0).UTC().Format(time.RFC3339),
		StopId:              position.StopId,
		CurrentStopSequence: position.CurrentStopSequence,
	}

	row.RouteNumber = e.routeNumber(store, position)
	row.ArrivalEstimateMinutes = e.arrivalEstimate(store, position)
	row.Occupancy = occupancyLabel(position)
	return row
}

// routeNumber resolves the rider-facing route short name, preferring the trip
// join and falling back to the feed's route id
func (e *enricher) routeNumber(store *gtfs.ReferenceStore, position *vehiclePositionEntity) string {
	if name, present := store.LookupTripRoute(position.TripId); present {
		return name
	}
	if route, present := store.LookupRoute(position.RouteId); present {
		return route.RouteShortName
	}
	return ""
}

// arrivalEstimate derives minutes until the scheduled arrival at the vehicle's
// current target stop. The schedule entry is matched by stop sequence when the
// feed provides one, otherwise by stop id. Estimates for vehicles running
// behind schedule clamp at zero. Returns nil when no schedule entry matches
func (e *enricher) arrivalEstimate(store *gtfs.ReferenceStore, position *vehiclePositionEntity) *int {
	stopTimes := store.StopTimesForTrip(position.TripId)
	if len(stopTimes) == 0 {
		return nil
	}
	var target *gtfs.StopTime
	if position.CurrentStopSequence != nil {
		for _, stopTime := range stopTimes {
			if stopTime.StopSequence == *position.CurrentStopSequence {
				target = stopTime
				break
			}
		}
	} else if position.StopId != "" {
		for _, stopTime := range stopTimes {
			if stopTime.StopId == position.StopId {
				target = stopTime
				break
			}
		}
	}
	if target == nil {
		return nil
	}
	observedAt := time.Unix(position.Timestamp, 0)
	secondsUntil := target.ArrivalTime - gtfs.ScheduleSeconds(observedAt.In(e.location))
	if secondsUntil < 0 {
		secondsUntil = 0
	}
	estimate := secondsUntil / 60
	return &estimate
}

// occupancyLabel maps the feed's crowding signals to an occupancy label.
// OccupancyStatus wins when present, otherwise congestion level approximates
// crowding. Returns nil when neither field is present
func occupancyLabel(position *vehiclePositionEntity) *string {
	if position.OccupancyStatus != nil {
		label := *position.OccupancyStatus
		return &label
	}
	if position.CongestionLevel == nil {
		return nil
	}
	var label string
	switch *position.CongestionLevel {
	case congestionRunningSmoothly:
		label = occupancyManySeats
	case congestionStopAndGo:
		label = occupancyFewSeats
	case congestionCongestion:
		label = occupancyStandingRoom
	case congestionSevere:
		label = occupancyFull
	default:
		return nil
	}
	return &label
}
