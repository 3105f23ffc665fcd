package gtfs

import (
	"time"

	"github.com/jmoiron/sqlx"
)

// Calendar contains data from a record in a gtfs calendar.txt file
type Calendar struct {
	DataSetId int64  `db:"data_set_id"`
	ServiceId string `db:"service_id"`
	Monday    int
	Tuesday   int
	Wednesday int
	Thursday  int
	Friday    int
	Saturday  int
	Sunday    int
	StartDate *time.Time `db:"start_date"`
	EndDate   *time.Time `db:"end_date"`
}

// CalendarDate contains data from a record in a gtfs calendar_dates.txt file
type CalendarDate struct {
	DataSetId     int64  `db:"data_set_id"`
	ServiceId     string `db:"service_id"`
	Date          time.Time
	ExceptionType int `db:"exception_type"`
}

const (
	// ServiceAdded calendar_dates exception_type adding service on a date
	ServiceAdded = 1
	// ServiceRemoved calendar_dates exception_type removing service on a date
	ServiceRemoved = 2
)

// RecordCalendar saves a calendar record to database
func RecordCalendar(calendar *Calendar, dsTx *DataSetTransaction) error {
	calendar.DataSetId = dsTx.DS.Id
	statementString := "insert into calendar ( " +
		"data_set_id, " +
		"service_id, " +
		"monday, " +
		"tuesday, " +
		"wednesday, " +
		"thursday, " +
		"friday, " +
		"saturday, " +
		"sunday, " +
		"start_date, " +
		"end_date) " +
		"values (" +
		":data_set_id, " +
		":service_id, " +
		":monday, " +
		":tuesday, " +
		":wednesday, " +
		":thursday, " +
		":friday, " +
		":saturday, " +
		":sunday, " +
		":start_date, " +
		":end_date) "
	statementString = dsTx.Tx.Rebind(statementString)
	_, err := dsTx.Tx.NamedExec(statementString, calendar)
	return err
}

// RecordCalendarDate saves a calendar_dates record to database
func RecordCalendarDate(calendarDate *CalendarDate, dsTx *DataSetTransaction) error {
	calendarDate.DataSetId = dsTx.DS.Id
	statementString := "insert into calendar_date ( " +
		"data_set_id, " +
		"service_id, " +
		"date, " +
		"exception_type) " +
		"values (" +
		":data_set_id, " +
		":service_id, " +
		":date, " +
		":exception_type)"
	statementString = dsTx.Tx.Rebind(statementString)
	_, err := dsTx.Tx.NamedExec(statementString, calendarDate)
	return err
}

// GetCalendars retrieves all calendar records belonging to dataSetId
func GetCalendars(db *sqlx.DB, dataSetId int64) ([]*Calendar, error) {
	query := "select * from calendar where data_set_id = $1"
	var results []*Calendar
	err := db.Select(&results, db.Rebind(query), dataSetId)
	return results, err
}

// GetCalendarDates retrieves all calendar_dates records belonging to dataSetId
func GetCalendarDates(db *sqlx.DB, dataSetId int64) ([]*CalendarDate, error) {
	query := "select * from calendar_date where data_set_id = $1"
	var results []*CalendarDate
	err := db.Select(&results, db.Rebind(query), dataSetId)
	return results, err
}
