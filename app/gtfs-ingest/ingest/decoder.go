package ingest

import (
	"fmt"
	"strings"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"
)

// DecodeErrorKind classifies feed decoding failures
type DecodeErrorKind int

const (
	MalformedPayload DecodeErrorKind = iota
	UnsupportedVersion
)

// String - Stringer interface for DecodeErrorKind
func (k DecodeErrorKind) String() string {
	if k == UnsupportedVersion {
		return "UnsupportedVersion"
	}
	return "MalformedPayload"
}

// DecodeError describes a FeedMessage payload the decoder could not use
type DecodeError struct {
	Kind DecodeErrorKind
	Err  error
}

func (d *DecodeError) Error() string {
	return fmt.Sprintf("decode failed: %s: %v", d.Kind, d.Err)
}

func (d *DecodeError) Unwrap() error {
	return d.Err
}

// vehicleStopStatus is the vehicle's relationship to its current stop, isolated
// from the generated protocol buffer types
type vehicleStopStatus int

const (
	statusUnknown vehicleStopStatus = iota
	statusIncomingAt
	statusStoppedAt
	statusInTransitTo
)

// String - Stringer interface for vehicleStopStatus
func (s vehicleStopStatus) String() string {
	switch s {
	case statusIncomingAt:
		return "INCOMING_AT"
	case statusStoppedAt:
		return "STOPPED_AT"
	case statusInTransitTo:
		return "IN_TRANSIT_TO"
	}
	return "UNKNOWN"
}

// congestionLevel mirrors the feed's congestion enum, isolated from generated code
type congestionLevel int

const (
	congestionUnknown congestionLevel = iota
	congestionRunningSmoothly
	congestionStopAndGo
	congestionCongestion
	congestionSevere
)

// vehiclePositionEntity contains fields read from one vehicle entity in a
// gtfs-realtime position feed. Optional fields are pointers and nil when absent
type vehiclePositionEntity struct {
	EntityId             string
	TripId               string
	RouteId              string
	StartDate            string
	ScheduleRelationship string
	DirectionId          *uint32
	Latitude             float32
	Longitude            float32
	CurrentStopSequence  *uint32
	CurrentStatus        vehicleStopStatus
	Timestamp            int64
	StopId               string
	VehicleId            string
	VehicleLabel         string
	CongestionLevel      *congestionLevel
	OccupancyStatus      *string
}

// stopTimeUpdateEntity is one stop's predicted arrival and departure in a trip update
type stopTimeUpdateEntity struct {
	StopId         string `json:"stop_id"`
	Arrival        *int64 `json:"arrival"`
	Departure      *int64 `json:"departure"`
	ArrivalDelay   *int32 `json:"arrival_delay"`
	DepartureDelay *int32 `json:"departure_delay"`
}

// tripUpdateEntity contains the cleaned fields of one trip update
type tripUpdateEntity struct {
	TripId          string                 `json:"trip_id"`
	RouteId         string                 `json:"route_id"`
	StopTimeUpdates []stopTimeUpdateEntity `json:"stop_time_updates"`
}

// informedEntity names one route, trip or stop an alert applies to
type informedEntity struct {
	TripId  *string `json:"trip_id"`
	RouteId *string `json:"route_id"`
	StopId  *string `json:"stop_id"`
}

// alertEntity contains the cleaned fields of one service alert
type alertEntity struct {
	Cause            string           `json:"cause"`
	Effect           string           `json:"effect"`
	Header           string           `json:"header"`
	Description      string           `json:"description"`
	InformedEntities []informedEntity `json:"informed_entities"`
}

// feedHeader carries the FeedMessage envelope fields
type feedHeader struct {
	Version        string
	Incrementality string
	Timestamp      uint64
}

// decodedFeed holds the typed entity collections produced from one payload.
// Only the collection matching the feed kind is populated
type decodedFeed struct {
	Header          feedHeader
	Positions       []vehiclePositionEntity
	TripUpdates     []tripUpdateEntity
	Alerts          []alertEntity
	SkippedEntities int
}

// decodeFeed parses a binary FeedMessage payload into typed entities for kind.
// Entities missing required sub-messages are skipped and counted, the feeds are
// FULL_DATASET so a dropped entity reappears intact on the next poll.
// Errors are *DecodeError distinguishing malformed payloads from version mismatches
func decodeFeed(raw []byte, kind feedKind) (*decodedFeed, error) {
	feedMessage := gtfsrt.FeedMessage{}
	if err := proto.Unmarshal(raw, &feedMessage); err != nil {
		return nil, &DecodeError{Kind: MalformedPayload, Err: err}
	}
	if feedMessage.Header == nil {
		return nil, &DecodeError{Kind: MalformedPayload, Err: fmt.Errorf("feed message has no header")}
	}
	version := feedMessage.Header.GetGtfsRealtimeVersion()
	if !strings.HasPrefix(version, "1.") && !strings.HasPrefix(version, "2.") {
		return nil, &DecodeError{Kind: UnsupportedVersion, Err: fmt.Errorf("gtfs realtime version %q", version)}
	}

	result := decodedFeed{
		Header: feedHeader{
			Version:        version,
			Incrementality: feedMessage.Header.GetIncrementality().String(),
			Timestamp:      feedMessage.Header.GetTimestamp(),
		},
	}

	for _, entity := range feedMessage.Entity {
		switch kind {
		case positionsFeed:
			position, ok := readVehiclePosition(entity)
			if !ok {
				result.SkippedEntities++
				continue
			}
			result.Positions = append(result.Positions, position)
		case tripUpdatesFeed:
			tripUpdate, ok := readTripUpdate(entity)
			if !ok {
				result.SkippedEntities++
				continue
			}
			result.TripUpdates = append(result.TripUpdates, tripUpdate)
		case alertsFeed:
			alert, ok := readAlert(entity)
			if !ok {
				result.SkippedEntities++
				continue
			}
			result.Alerts = append(result.Alerts, alert)
		}
	}
	return &result, nil
}

// readVehiclePosition extracts one position entity.
// Requires the vehicle sub-message with trip, position and a vehicle identity
func readVehiclePosition(entity *gtfsrt.FeedEntity) (vehiclePositionEntity, bool) {
	vehicle := entity.GetVehicle()
	if vehicle == nil {
		return vehiclePositionEntity{}, false
	}
	descriptor := vehicle.GetVehicle()
	if descriptor == nil || descriptor.Id == nil {
		return vehiclePositionEntity{}, false
	}
	trip := vehicle.GetTrip()
	position := vehicle.GetPosition()
	if trip == nil || position == nil {
		return vehiclePositionEntity{}, false
	}

	result := vehiclePositionEntity{
		EntityId:             entity.GetId(),
		TripId:               trip.GetTripId(),
		RouteId:              trip.GetRouteId(),
		StartDate:            trip.GetStartDate(),
		ScheduleRelationship: trip.GetScheduleRelationship().String(),
		DirectionId:          trip.DirectionId,
		Latitude:             position.GetLatitude(),
		Longitude:            position.GetLongitude(),
		CurrentStopSequence:  vehicle.CurrentStopSequence,
		CurrentStatus:        readStopStatus(vehicle.CurrentStatus),
		Timestamp:            int64(vehicle.GetTimestamp()),
		StopId:               vehicle.GetStopId(),
		VehicleId:            descriptor.GetId(),
		VehicleLabel:         descriptor.GetLabel(),
	}
	if vehicle.CongestionLevel != nil {
		level := readCongestionLevel(*vehicle.CongestionLevel)
		result.CongestionLevel = &level
	}
	if vehicle.OccupancyStatus != nil {
		status := vehicle.OccupancyStatus.String()
		result.OccupancyStatus = &status
	}
	return result, true
}

// readTripUpdate extracts one trip update with its per-stop predictions
func readTripUpdate(entity *gtfsrt.FeedEntity) (tripUpdateEntity, bool) {
	tripUpdate := entity.GetTripUpdate()
	if tripUpdate == nil || tripUpdate.GetTrip() == nil {
		return tripUpdateEntity{}, false
	}
	result := tripUpdateEntity{
		TripId:          tripUpdate.GetTrip().GetTripId(),
		RouteId:         tripUpdate.GetTrip().GetRouteId(),
		StopTimeUpdates: make([]stopTimeUpdateEntity, 0, len(tripUpdate.StopTimeUpdate)),
	}
	for _, update := range tripUpdate.StopTimeUpdate {
		stopUpdate := stopTimeUpdateEntity{
			StopId: update.GetStopId(),
		}
		if arrival := update.GetArrival(); arrival != nil {
			stopUpdate.Arrival = arrival.Time
			stopUpdate.ArrivalDelay = arrival.Delay
		}
		if departure := update.GetDeparture(); departure != nil {
			stopUpdate.Departure = departure.Time
			stopUpdate.DepartureDelay = departure.Delay
		}
		result.StopTimeUpdates = append(result.StopTimeUpdates, stopUpdate)
	}
	return result, true
}

// readAlert extracts one service alert with its informed entities
func readAlert(entity *gtfsrt.FeedEntity) (alertEntity, bool) {
	alert := entity.GetAlert()
	if alert == nil {
		return alertEntity{}, false
	}
	result := alertEntity{
		Cause:            alert.GetCause().String(),
		Effect:           alert.GetEffect().String(),
		Header:           firstTranslation(alert.GetHeaderText()),
		Description:      firstTranslation(alert.GetDescriptionText()),
		InformedEntities: make([]informedEntity, 0, len(alert.InformedEntity)),
	}
	for _, selector := range alert.InformedEntity {
		informed := informedEntity{
			RouteId: selector.RouteId,
			StopId:  selector.StopId,
		}
		if selector.GetTrip() != nil {
			informed.TripId = selector.GetTrip().TripId
		}
		result.InformedEntities = append(result.InformedEntities, informed)
	}
	return result, true
}

func firstTranslation(text *gtfsrt.TranslatedString) string {
	if text == nil || len(text.Translation) == 0 {
		return ""
	}
	return text.Translation[0].GetText()
}

func readStopStatus(status *gtfsrt.VehiclePosition_VehicleStopStatus) vehicleStopStatus {
	if status == nil {
		return statusUnknown
	}
	switch *status {
	case gtfsrt.VehiclePosition_INCOMING_AT:
		return statusIncomingAt
	case gtfsrt.VehiclePosition_STOPPED_AT:
		return statusStoppedAt
	case gtfsrt.VehiclePosition_IN_TRANSIT_TO:
		return statusInTransitTo
	}
	return statusUnknown
}

func readCongestionLevel(level gtfsrt.VehiclePosition_CongestionLevel) congestionLevel {
	switch level {
	case gtfsrt.VehiclePosition_RUNNING_SMOOTHLY:
		return congestionRunningSmoothly
	case gtfsrt.VehiclePosition_STOP_AND_GO:
		return congestionStopAndGo
	case gtfsrt.VehiclePosition_CONGESTION:
		return congestionCongestion
	case gtfsrt.VehiclePosition_SEVERE_CONGESTION:
		return congestionSevere
	}
	return congestionUnknown
}
