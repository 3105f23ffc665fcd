package gtfs

import (
	"time"
)

// AgencyTimeZone is the timezone TransLink schedules and quota days are expressed in
const AgencyTimeZone = "America/Vancouver"

// getDLSTransitionSeconds provides the number of seconds offset for a 12am date later in the day after day light saving time is done
func getDLSTransitionSeconds(timeAt12 time.Time) int {
	before := time.Date(timeAt12.Year(), timeAt12.Month(), timeAt12.Day(), 0, 0, 0, 0, timeAt12.Location())
	after := time.Date(timeAt12.Year(), timeAt12.Month(), timeAt12.Day(), 5, 0, 0, 0, timeAt12.Location())
	_, beforeOffset := before.Zone()
	_, afterOffset := after.Zone()
	return afterOffset - beforeOffset
}

// MakeScheduleTime produces a time by adding schedule seconds to a 12am date. Takes into account day light saving time
func MakeScheduleTime(timeAt12 time.Time, scheduleSeconds int) time.Time {
	offset := getDLSTransitionSeconds(timeAt12)
	scheduleSeconds = scheduleSeconds + (0 - offset)
	return timeAt12.Add(time.Duration(scheduleSeconds) * time.Second)
}

// ScheduleSeconds is the inverse of MakeScheduleTime, it converts a wall clock time into
// seconds from the start of its service day in at's location
func ScheduleSeconds(at time.Time) int {
	timeAt12 := Get12AmTime(at)
	offset := getDLSTransitionSeconds(timeAt12)
	return int(at.Unix()-timeAt12.Unix()) + offset
}

// Get12AmTime returns 12am on date's day in date's location
func Get12AmTime(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
}
