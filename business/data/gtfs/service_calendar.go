package gtfs

import (
	"time"

	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/ca"
)

// ServiceCalendar answers which service ids run on a service day, combining the
// weekly calendar.txt pattern with calendar_dates.txt exceptions.
// BC statutory holidays are tracked so callers can flag reduced service days
type ServiceCalendar struct {
	calendars        []*Calendar
	exceptionsByDate map[string][]*CalendarDate
	holidays         *cal.BusinessCalendar
}

// NewServiceCalendar builds a ServiceCalendar from calendar and calendar_dates records
func NewServiceCalendar(calendars []*Calendar, calendarDates []*CalendarDate) *ServiceCalendar {
	exceptions := make(map[string][]*CalendarDate)
	for _, calendarDate := range calendarDates {
		key := dateKey(calendarDate.Date)
		exceptions[key] = append(exceptions[key], calendarDate)
	}
	holidays := cal.NewBusinessCalendar()
	holidays.AddHoliday(
		ca.NewYear,
		ca.GoodFriday,
		ca.VictoriaDay,
		ca.CanadaDay,
		ca.LabourDay,
		ca.ThanksgivingDay,
		ca.RemembranceDay,
		ca.ChristmasDay,
	)
	return &ServiceCalendar{
		calendars:        calendars,
		exceptionsByDate: exceptions,
		holidays:         holidays,
	}
}

func dateKey(date time.Time) string {
	return date.Format("20060102")
}

// ActiveServiceIds returns the service ids running on serviceDay.
// The weekly pattern applies between a calendar's start and end dates,
// calendar_dates exceptions add or remove individual days on top of it
func (s *ServiceCalendar) ActiveServiceIds(serviceDay time.Time) []string {
	active := make(map[string]bool)
	day := Get12AmTime(serviceDay)
	for _, calendar := range s.calendars {
		if calendar.StartDate != nil && day.Before(Get12AmTime(*calendar.StartDate)) {
			continue
		}
		if calendar.EndDate != nil && day.After(Get12AmTime(*calendar.EndDate)) {
			continue
		}
		if calendarRunsOnWeekday(calendar, day.Weekday()) {
			active[calendar.ServiceId] = true
		}
	}
	for _, exception := range s.exceptionsByDate[dateKey(day)] {
		switch exception.ExceptionType {
		case ServiceAdded:
			active[exception.ServiceId] = true
		case ServiceRemoved:
			delete(active, exception.ServiceId)
		}
	}
	results := make([]string, 0, len(active))
	for serviceId := range active {
		results = append(results, serviceId)
	}
	return results
}

// IsStatHoliday returns true when serviceDay is an observed BC statutory holiday,
// days the agency typically runs a reduced schedule on
func (s *ServiceCalendar) IsStatHoliday(serviceDay time.Time) bool {
	_, observed, _ := s.holidays.IsHoliday(serviceDay)
	return observed
}

func calendarRunsOnWeekday(calendar *Calendar, weekday time.Weekday) bool {
	switch weekday {
	case time.Monday:
		return calendar.Monday == 1
	case time.Tuesday:
		return calendar.Tuesday == 1
	case time.Wednesday:
		return calendar.Wednesday == 1
	case time.Thursday:
		return calendar.Thursday == 1
	case time.Friday:
		return calendar.Friday == 1
	case time.Saturday:
		return calendar.Saturday == 1
	case time.Sunday:
		return calendar.Sunday == 1
	}
	return false
}
