package ingest

import (
	"io"
	logger "log"
	"testing"

	"github.com/UBC-Live/Translink/business/data/gtfs"
	"github.com/matryer/is"
)

// schedule arrival at the target stop, 15:30:00 into the service day
const testScheduledArrival = (15 * 60 * 60) + (30 * 60)

func testReferenceStore(t *testing.T) *gtfs.ReferenceStore {
	t.Helper()
	log := logger.New(io.Discard, "", 0)
	store, err := gtfs.BuildReferenceStore(log, &gtfs.StaticTables{
		Routes: []*gtfs.Route{
			{RouteId: testRouteId, RouteShortName: "099", RouteLongName: "Commercial-Broadway/UBC (B-Line)", RouteType: 3},
		},
		Stops: []*gtfs.Stop{
			{StopId: testStopId, StopName: "UBC Exchange Bay 6", StopLat: 49.2637, StopLon: -123.16814},
		},
		Trips: []*gtfs.Trip{
			{TripId: testTripId, RouteId: testRouteId, ServiceId: "1"},
		},
		StopTimes: []*gtfs.StopTime{
			{TripId: testTripId, StopSequence: 14, StopId: "58", ArrivalTime: testScheduledArrival - 300, DepartureTime: testScheduledArrival - 300},
			{TripId: testTripId, StopSequence: 15, StopId: testStopId, ArrivalTime: testScheduledArrival, DepartureTime: testScheduledArrival},
		},
	}, gtfs.DefaultIntegrityTolerance)
	if err != nil {
		t.Fatalf("unable to build test reference store: %v", err)
	}
	return store
}

func testPosition() vehiclePositionEntity {
	sequence := uint32(15)
	return vehiclePositionEntity{
		TripId:              testTripId,
		RouteId:             testRouteId,
		VehicleId:           testVehicleId,
		Latitude:            testLatitude,
		Longitude:           testLongitude,
		CurrentStopSequence: &sequence,
		CurrentStatus:       statusInTransitTo,
		// 2025-11-15T23:23:39Z, 15:23:39 in Vancouver
		Timestamp: int64(testVehicleTime),
		StopId:    testStopId,
	}
}

func Test_enrich_joinsAndDerives(t *testing.T) {
	is := is.New(t)
	store := testReferenceStore(t)
	enricher, err := newEnricher()
	is.NoErr(err)

	position := testPosition()
	occupancy := "STANDING_ROOM_ONLY"
	position.OccupancyStatus = &occupancy

	row := enricher.enrich(store, &position)

	is.Equal(row.RouteNumber, "099")
	is.Equal(row.VehicleId, testVehicleId)
	is.Equal(row.Timestamp, "2025-11-15T23:23:39Z")
	is.Equal(row.StopId, testStopId)
	is.Equal(*row.CurrentStopSequence, uint32(15))
	// scheduled arrival 15:30:00, observed 15:23:39, 381 seconds out
	is.Equal(*row.ArrivalEstimateMinutes, 6)
	is.Equal(*row.Occupancy, "STANDING_ROOM_ONLY")
}

func Test_enrich_isPureGivenSnapshot(t *testing.T) {
	is := is.New(t)
	store := testReferenceStore(t)
	enricher, err := newEnricher()
	is.NoErr(err)

	position := testPosition()
	first := enricher.enrich(store, &position)
	second := enricher.enrich(store, &position)

	is.Equal(first.RouteNumber, second.RouteNumber)
	is.Equal(first.Timestamp, second.Timestamp)
	is.Equal(*first.ArrivalEstimateMinutes, *second.ArrivalEstimateMinutes)
}

func Test_enrich_unknownTripStillEmitsRow(t *testing.T) {
	is := is.New(t)
	store := testReferenceStore(t)
	enricher, err := newEnricher()
	is.NoErr(err)

	position := testPosition()
	position.TripId = "99999999"
	position.RouteId = "88888"

	row := enricher.enrich(store, &position)

	is.Equal(row.RouteNumber, "")
	is.Equal(row.VehicleId, testVehicleId)
	is.Equal(row.ArrivalEstimateMinutes, (*int)(nil))
}

func Test_enrich_routeFallbackWhenTripUnknown(t *testing.T) {
	is := is.New(t)
	store := testReferenceStore(t)
	enricher, err := newEnricher()
	is.NoErr(err)

	position := testPosition()
	position.TripId = "99999999"

	row := enricher.enrich(store, &position)

	is.Equal(row.RouteNumber, "099")
	is.Equal(row.ArrivalEstimateMinutes, (*int)(nil))
}

func Test_enrich_estimateNeverNegative(t *testing.T) {
	is := is.New(t)
	store := testReferenceStore(t)
	enricher, err := newEnricher()
	is.NoErr(err)

	position := testPosition()
	// vehicle is behind schedule, observed after the scheduled arrival
	position.Timestamp = int64(testVehicleTime) + 3600

	row := enricher.enrich(store, &position)

	is.Equal(*row.ArrivalEstimateMinutes, 0)
}

func Test_enrich_matchesByStopIdWithoutSequence(t *testing.T) {
	is := is.New(t)
	store := testReferenceStore(t)
	enricher, err := newEnricher()
	is.NoErr(err)

	position := testPosition()
	position.CurrentStopSequence = nil

	row := enricher.enrich(store, &position)

	is.Equal(*row.ArrivalEstimateMinutes, 6)
}

func Test_occupancyLabel(t *testing.T) {
	congestion := func(level congestionLevel) *congestionLevel { return &level }
	status := "FEW_SEATS_AVAILABLE"

	tests := []struct {
		name     string
		position vehiclePositionEntity
		want     *string
	}{
		{
			name:     "absent stays nil",
			position: vehiclePositionEntity{},
			want:     nil,
		},
		{
			name:     "occupancy status wins",
			position: vehiclePositionEntity{OccupancyStatus: &status, CongestionLevel: congestion(congestionSevere)},
			want:     &status,
		},
		{
			name:     "running smoothly maps to many seats",
			position: vehiclePositionEntity{CongestionLevel: congestion(congestionRunningSmoothly)},
			want:     testOccupancy(occupancyManySeats),
		},
		{
			name:     "stop and go maps to few seats",
			position: vehiclePositionEntity{CongestionLevel: congestion(congestionStopAndGo)},
			want:     testOccupancy(occupancyFewSeats),
		},
		{
			name:     "congestion maps to standing room",
			position: vehiclePositionEntity{CongestionLevel: congestion(congestionCongestion)},
			want:     testOccupancy(occupancyStandingRoom),
		},
		{
			name:     "severe congestion maps to full",
			position: vehiclePositionEntity{CongestionLevel: congestion(congestionSevere)},
			want:     testOccupancy(occupancyFull),
		},
		{
			name:     "unknown congestion stays nil",
			position: vehiclePositionEntity{CongestionLevel: congestion(congestionUnknown)},
			want:     nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := occupancyLabel(&tt.position)
			if (got == nil) != (tt.want == nil) {
				t.Errorf("occupancyLabel() = %v, want %v", got, tt.want)
				return
			}
			if got != nil && *got != *tt.want {
				t.Errorf("occupancyLabel() = %v, want %v", *got, *tt.want)
			}
		})
	}
}

func testOccupancy(label string) *string {
	return &label
}

func Test_csvRecord(t *testing.T) {
	is := is.New(t)
	store := testReferenceStore(t)
	enricher, err := newEnricher()
	is.NoErr(err)

	position := testPosition()
	occupancy := "STANDING_ROOM_ONLY"
	position.OccupancyStatus = &occupancy

	row := enricher.enrich(store, &position)
	record := row.csvRecord()

	is.Equal(record, []string{
		"099",
		"8137",
		"49.2637",
		"-123.16814",
		"2025-11-15T23:23:39Z",
		"59",
		"15",
		"6",
		"STANDING_ROOM_ONLY",
	})

	// nullable fields render as empty columns
	bare := enricher.enrich(store, &vehiclePositionEntity{
		VehicleId: testVehicleId,
		Timestamp: int64(testVehicleTime),
	})
	is.Equal(bare.csvRecord()[7], "")
	is.Equal(bare.csvRecord()[8], "")
}
