package ingest

import (
	"encoding/json"
	"io"
	logger "log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/UBC-Live/Translink/foundation/filesaver"
	"github.com/matryer/is"
)

func testPublisher(t *testing.T, saveRaw bool) (*feedPublisher, string, string) {
	t.Helper()
	rawDir := t.TempDir()
	cleanDir := filepath.Join(rawDir, "clean")
	rawSaver, err := filesaver.NewFileSaver(rawDir, "2025-11-15T15-23")
	if err != nil {
		t.Fatalf("unable to create raw saver: %v", err)
	}
	cleanSaver, err := filesaver.NewFileSaver(cleanDir, "2025-11-15T15-23")
	if err != nil {
		t.Fatalf("unable to create clean saver: %v", err)
	}
	log := logger.New(io.Discard, "", 0)
	return makeFeedPublisher(log, rawSaver, cleanSaver, nil, saveRaw, false), rawDir, cleanDir
}

func Test_feedPublisher_publishEnriched(t *testing.T) {
	is := is.New(t)
	publisher, _, cleanDir := testPublisher(t, false)

	estimate := 6
	publisher.publishEnriched([]EnrichedRow{
		{
			RouteNumber:            "099",
			VehicleId:              testVehicleId,
			Latitude:               testLatitude,
			Longitude:              testLongitude,
			Timestamp:              "2025-11-15T23:23:39Z",
			StopId:                 testStopId,
			ArrivalEstimateMinutes: &estimate,
		},
	})
	publisher.close()

	content, err := os.ReadFile(filepath.Join(cleanDir, "position_updates_2025-11-15T15-23.csv"))
	is.NoErr(err)
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	is.Equal(len(lines), 2)
	is.Equal(lines[0], strings.Join(enrichedCSVHeader, ","))
	is.True(strings.HasPrefix(lines[1], "099,8137,"))
}

func Test_feedPublisher_publishTripUpdatesWritesCleanJSON(t *testing.T) {
	is := is.New(t)
	publisher, _, cleanDir := testPublisher(t, false)

	publisher.publishTripUpdates([]tripUpdateEntity{
		{TripId: testTripId, RouteId: testRouteId, StopTimeUpdates: []stopTimeUpdateEntity{}},
	})

	content, err := os.ReadFile(filepath.Join(cleanDir, "trip_updates_2025-11-15T15-23.json"))
	is.NoErr(err)

	var updates []tripUpdateEntity
	is.NoErr(json.Unmarshal(content, &updates))
	is.Equal(len(updates), 1)
	is.Equal(updates[0].TripId, testTripId)
}

func Test_feedPublisher_saveRawHonorsToggle(t *testing.T) {
	is := is.New(t)

	publisher, rawDir, _ := testPublisher(t, false)
	publisher.saveRaw(positionsFeed, []byte{0x0a, 0x00})
	_, err := os.Stat(filepath.Join(rawDir, "position_updates_2025-11-15T15-23.pb"))
	is.True(os.IsNotExist(err))

	publisher, rawDir, _ = testPublisher(t, true)
	publisher.saveRaw(positionsFeed, []byte{0x0a, 0x00})
	content, err := os.ReadFile(filepath.Join(rawDir, "position_updates_2025-11-15T15-23.pb"))
	is.NoErr(err)
	is.Equal(content, []byte{0x0a, 0x00})
}
