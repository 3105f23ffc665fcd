package ingest

import (
	"testing"
	"time"

	"github.com/matryer/is"
)

func Test_deduper_suppressesUnchangedObservations(t *testing.T) {
	is := is.New(t)
	d := newDeduper(30 * time.Minute)

	now := time.Unix(int64(testHeaderTime), 0)
	position := testPosition()

	is.True(d.accept(&position, now))
	// identical observation from the next poll of a full dataset feed
	is.True(!d.accept(&position, now.Add(2*time.Minute)))
	is.Equal(d.size(), 1)
}

func Test_deduper_emitsOnMovement(t *testing.T) {
	is := is.New(t)
	d := newDeduper(30 * time.Minute)

	now := time.Unix(int64(testHeaderTime), 0)
	position := testPosition()
	is.True(d.accept(&position, now))

	// vehicle 8137 advances from stop sequence 15 to 16
	moved := testPosition()
	sequence := uint32(16)
	moved.CurrentStopSequence = &sequence
	moved.StopId = "60"
	moved.Timestamp = position.Timestamp + 120
	is.True(d.accept(&moved, now.Add(2*time.Minute)))

	// a fresh feed timestamp alone counts as new information
	ticked := moved
	ticked.Timestamp += 120
	is.True(d.accept(&ticked, now.Add(4*time.Minute)))
}

func Test_deduper_tracksVehiclesIndependently(t *testing.T) {
	is := is.New(t)
	d := newDeduper(30 * time.Minute)

	now := time.Unix(int64(testHeaderTime), 0)
	first := testPosition()
	second := testPosition()
	second.VehicleId = "8138"

	is.True(d.accept(&first, now))
	is.True(d.accept(&second, now))
	is.Equal(d.size(), 2)

	// suppressing one vehicle does not affect the other
	is.True(!d.accept(&first, now.Add(time.Minute)))
	is.True(!d.accept(&second, now.Add(time.Minute)))
}

func Test_deduper_reassignedTripGetsFreshKey(t *testing.T) {
	is := is.New(t)
	d := newDeduper(30 * time.Minute)

	now := time.Unix(int64(testHeaderTime), 0)
	position := testPosition()
	is.True(d.accept(&position, now))

	reassigned := testPosition()
	reassigned.TripId = "14731512"
	is.True(d.accept(&reassigned, now))
	is.Equal(d.size(), 2)
}

func Test_deduper_evictsIdleVehicles(t *testing.T) {
	is := is.New(t)
	d := newDeduper(30 * time.Minute)

	now := time.Unix(int64(testHeaderTime), 0)
	idle := testPosition()
	active := testPosition()
	active.VehicleId = "8138"

	is.True(d.accept(&idle, now))
	is.True(d.accept(&active, now))

	// only the active vehicle keeps reporting
	refreshed := active
	refreshed.Timestamp += 1500
	is.True(d.accept(&refreshed, now.Add(25*time.Minute)))

	evicted := d.evictIdle(now.Add(31 * time.Minute))
	is.Equal(evicted, 1)
	is.Equal(d.size(), 1)

	// the evicted vehicle reappearing is new information again
	is.True(d.accept(&idle, now.Add(32*time.Minute)))
}
