package ingest

import (
	"fmt"
	"time"
)

// defaultIdleEviction is how long a vehicle's fingerprint survives without a
// fresh observation before it is discarded
const defaultIdleEviction = 30 * time.Minute

// deduper suppresses repeated observations of the same vehicle state across
// polls. The feeds are FULL_DATASET, so a parked vehicle reappears unchanged
// in every payload. Owned by a single pipeline loop, not safe for concurrent use
type deduper struct {
	idleEviction time.Duration
	seen         map[string]*observation
}

type observation struct {
	fingerprint string
	lastSeen    time.Time
}

func newDeduper(idleEviction time.Duration) *deduper {
	if idleEviction <= 0 {
		idleEviction = defaultIdleEviction
	}
	return &deduper{
		idleEviction: idleEviction,
		seen:         make(map[string]*observation),
	}
}

// accept reports whether the position represents new information for its
// vehicle and records it. A changed stop sequence, target stop or feed
// timestamp all count as movement
func (d *deduper) accept(position *vehiclePositionEntity, at time.Time) bool {
	key := dedupeKey(position.VehicleId, position.TripId)
	print := fingerprint(position)

	previous, present := d.seen[key]
	if present && previous.fingerprint == print {
		previous.lastSeen = at
		return false
	}
	d.seen[key] = &observation{fingerprint: print, lastSeen: at}
	return true
}

// evictIdle drops vehicles not observed within the idle window, returning the
// number evicted. Reassigned vehicle ids start fresh instead of comparing
// against a stale trip
func (d *deduper) evictIdle(at time.Time) int {
	evicted := 0
	for key, previous := range d.seen {
		if at.Sub(previous.lastSeen) > d.idleEviction {
			delete(d.seen, key)
			evicted++
		}
	}
	return evicted
}

// size returns the number of vehicles currently tracked
func (d *deduper) size() int {
	return len(d.seen)
}

func dedupeKey(vehicleId, tripId string) string {
	return vehicleId + "|" + tripId
}

func fingerprint(position *vehiclePositionEntity) string {
	sequence := int64(-1)
	if position.CurrentStopSequence != nil {
		sequence = int64(*position.CurrentStopSequence)
	}
	return fmt.Sprintf("%d|%s|%d", sequence, position.StopId, position.Timestamp)
}
