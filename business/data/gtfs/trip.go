package gtfs

import (
	"github.com/jmoiron/sqlx"
)

// Trip contains data from a gtfs trip definition in a trips.txt file
type Trip struct {
	DataSetId    int64   `db:"data_set_id" json:"data_set_id"`
	TripId       string  `db:"trip_id" json:"trip_id"`
	RouteId      string  `db:"route_id" json:"route_id"`
	ServiceId    string  `db:"service_id" json:"service_id"`
	TripHeadsign *string `db:"trip_headsign" json:"trip_headsign"`
	DirectionId  *int    `db:"direction_id" json:"direction_id"`
	BlockId      *string `db:"block_id" json:"block_id"`
}

// RecordTrips saves trips to database in batch
func RecordTrips(trips []*Trip, dsTx *DataSetTransaction) error {
	for _, trip := range trips {
		trip.DataSetId = dsTx.DS.Id
	}
	statementString := "insert into trip ( " +
		"data_set_id, " +
		"trip_id, " +
		"route_id, " +
		"service_id, " +
		"trip_headsign, " +
		"direction_id, " +
		"block_id) " +
		"values (" +
		":data_set_id, " +
		":trip_id, " +
		":route_id, " +
		":service_id, " +
		":trip_headsign, " +
		":direction_id, " +
		":block_id)"
	statementString = dsTx.Tx.Rebind(statementString)
	_, err := dsTx.Tx.NamedExec(statementString, trips)
	return err
}

// GetTrips retrieves all trips belonging to dataSetId
func GetTrips(db *sqlx.DB, dataSetId int64) ([]*Trip, error) {
	query := "select * from trip where data_set_id = $1"
	var results []*Trip
	err := db.Select(&results, db.Rebind(query), dataSetId)
	return results, err
}
