package ingest

import (
	"errors"
	"testing"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/matryer/is"
	"google.golang.org/protobuf/proto"
)

const (
	testTripId      = "14731511"
	testRouteId     = "6836"
	testStopId      = "59"
	testVehicleId   = "8137"
	testLatitude    = float32(49.2637)
	testLongitude   = float32(-123.16814)
	testVehicleTime = uint64(1763249019)
	testHeaderTime  = uint64(1763288261)
)

func testFeedHeader(version string) *gtfsrt.FeedHeader {
	incrementality := gtfsrt.FeedHeader_FULL_DATASET
	timestamp := testHeaderTime
	return &gtfsrt.FeedHeader{
		GtfsRealtimeVersion: proto.String(version),
		Incrementality:      &incrementality,
		Timestamp:           &timestamp,
	}
}

func testVehicleEntity() *gtfsrt.FeedEntity {
	status := gtfsrt.VehiclePosition_IN_TRANSIT_TO
	timestamp := testVehicleTime
	return &gtfsrt.FeedEntity{
		Id: proto.String("1"),
		Vehicle: &gtfsrt.VehiclePosition{
			Trip: &gtfsrt.TripDescriptor{
				TripId:  proto.String(testTripId),
				RouteId: proto.String(testRouteId),
			},
			Position: &gtfsrt.Position{
				Latitude:  proto.Float32(testLatitude),
				Longitude: proto.Float32(testLongitude),
			},
			CurrentStopSequence: proto.Uint32(15),
			CurrentStatus:       &status,
			Timestamp:           &timestamp,
			StopId:              proto.String(testStopId),
			Vehicle: &gtfsrt.VehicleDescriptor{
				Id:    proto.String(testVehicleId),
				Label: proto.String(testVehicleId),
			},
		},
	}
}

func marshalFeed(t *testing.T, feed *gtfsrt.FeedMessage) []byte {
	t.Helper()
	payload, err := proto.Marshal(feed)
	if err != nil {
		t.Fatalf("unable to marshal test feed: %v", err)
	}
	return payload
}

func Test_decodeFeed_positions(t *testing.T) {
	is := is.New(t)

	occupancy := gtfsrt.VehiclePosition_STANDING_ROOM_ONLY
	entity := testVehicleEntity()
	entity.Vehicle.OccupancyStatus = &occupancy

	payload := marshalFeed(t, &gtfsrt.FeedMessage{
		Header: testFeedHeader("2.0"),
		Entity: []*gtfsrt.FeedEntity{entity},
	})

	feed, err := decodeFeed(payload, positionsFeed)
	is.NoErr(err)
	is.Equal(feed.Header.Version, "2.0")
	is.Equal(feed.Header.Incrementality, "FULL_DATASET")
	is.Equal(feed.Header.Timestamp, testHeaderTime)
	is.Equal(len(feed.Positions), 1)
	is.Equal(feed.SkippedEntities, 0)

	position := feed.Positions[0]
	is.Equal(position.TripId, testTripId)
	is.Equal(position.RouteId, testRouteId)
	is.Equal(position.VehicleId, testVehicleId)
	is.Equal(position.Latitude, testLatitude)
	is.Equal(position.Longitude, testLongitude)
	is.Equal(position.StopId, testStopId)
	is.Equal(*position.CurrentStopSequence, uint32(15))
	is.Equal(position.CurrentStatus, statusInTransitTo)
	is.Equal(position.Timestamp, int64(testVehicleTime))
	is.Equal(*position.OccupancyStatus, "STANDING_ROOM_ONLY")
	is.Equal(position.CongestionLevel, (*congestionLevel)(nil))
}

func Test_decodeFeed_skipsEntitiesMissingRequiredFields(t *testing.T) {
	is := is.New(t)

	noPosition := testVehicleEntity()
	noPosition.Vehicle.Position = nil

	noVehicleDescriptor := testVehicleEntity()
	noVehicleDescriptor.Vehicle.Vehicle = nil

	payload := marshalFeed(t, &gtfsrt.FeedMessage{
		Header: testFeedHeader("2.0"),
		Entity: []*gtfsrt.FeedEntity{noPosition, noVehicleDescriptor, testVehicleEntity()},
	})

	feed, err := decodeFeed(payload, positionsFeed)
	is.NoErr(err)
	is.Equal(len(feed.Positions), 1)
	is.Equal(feed.SkippedEntities, 2)
}

func Test_decodeFeed_malformedPayload(t *testing.T) {
	is := is.New(t)

	_, err := decodeFeed([]byte("this is not a protocol buffer"), positionsFeed)
	var decodeErr *DecodeError
	is.True(errors.As(err, &decodeErr))
	is.Equal(decodeErr.Kind, MalformedPayload)
}

func Test_decodeFeed_unsupportedVersion(t *testing.T) {
	is := is.New(t)

	payload := marshalFeed(t, &gtfsrt.FeedMessage{
		Header: testFeedHeader("3.0"),
		Entity: []*gtfsrt.FeedEntity{testVehicleEntity()},
	})

	_, err := decodeFeed(payload, positionsFeed)
	var decodeErr *DecodeError
	is.True(errors.As(err, &decodeErr))
	is.Equal(decodeErr.Kind, UnsupportedVersion)
}

func Test_decodeFeed_tripUpdates(t *testing.T) {
	is := is.New(t)

	arrivalTime := int64(1763288500)
	payload := marshalFeed(t, &gtfsrt.FeedMessage{
		Header: testFeedHeader("2.0"),
		Entity: []*gtfsrt.FeedEntity{
			{
				Id: proto.String("1"),
				TripUpdate: &gtfsrt.TripUpdate{
					Trip: &gtfsrt.TripDescriptor{
						TripId:  proto.String(testTripId),
						RouteId: proto.String(testRouteId),
					},
					StopTimeUpdate: []*gtfsrt.TripUpdate_StopTimeUpdate{
						{
							StopId: proto.String(testStopId),
							Arrival: &gtfsrt.TripUpdate_StopTimeEvent{
								Time:  &arrivalTime,
								Delay: proto.Int32(120),
							},
						},
					},
				},
			},
			{
				// no trip update sub-message, should be skipped
				Id: proto.String("2"),
			},
		},
	})

	feed, err := decodeFeed(payload, tripUpdatesFeed)
	is.NoErr(err)
	is.Equal(len(feed.TripUpdates), 1)
	is.Equal(feed.SkippedEntities, 1)

	update := feed.TripUpdates[0]
	is.Equal(update.TripId, testTripId)
	is.Equal(update.RouteId, testRouteId)
	is.Equal(len(update.StopTimeUpdates), 1)
	is.Equal(update.StopTimeUpdates[0].StopId, testStopId)
	is.Equal(*update.StopTimeUpdates[0].Arrival, arrivalTime)
	is.Equal(*update.StopTimeUpdates[0].ArrivalDelay, int32(120))
	is.Equal(update.StopTimeUpdates[0].Departure, (*int64)(nil))
}

func Test_decodeFeed_alerts(t *testing.T) {
	is := is.New(t)

	cause := gtfsrt.Alert_CONSTRUCTION
	effect := gtfsrt.Alert_DETOUR
	payload := marshalFeed(t, &gtfsrt.FeedMessage{
		Header: testFeedHeader("2.0"),
		Entity: []*gtfsrt.FeedEntity{
			{
				Id: proto.String("1"),
				Alert: &gtfsrt.Alert{
					Cause:  &cause,
					Effect: &effect,
					HeaderText: &gtfsrt.TranslatedString{
						Translation: []*gtfsrt.TranslatedString_Translation{
							{Text: proto.String("Broadway detour")},
						},
					},
					DescriptionText: &gtfsrt.TranslatedString{
						Translation: []*gtfsrt.TranslatedString_Translation{
							{Text: proto.String("Buses rerouted via 4th Ave")},
						},
					},
					InformedEntity: []*gtfsrt.EntitySelector{
						{RouteId: proto.String(testRouteId)},
						{StopId: proto.String(testStopId)},
					},
				},
			},
		},
	})

	feed, err := decodeFeed(payload, alertsFeed)
	is.NoErr(err)
	is.Equal(len(feed.Alerts), 1)

	alert := feed.Alerts[0]
	is.Equal(alert.Cause, "CONSTRUCTION")
	is.Equal(alert.Effect, "DETOUR")
	is.Equal(alert.Header, "Broadway detour")
	is.Equal(alert.Description, "Buses rerouted via 4th Ave")
	is.Equal(len(alert.InformedEntities), 2)
	is.Equal(*alert.InformedEntities[0].RouteId, testRouteId)
	is.Equal(*alert.InformedEntities[1].StopId, testStopId)
}
