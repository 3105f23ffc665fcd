package gtfs

import (
	"github.com/jmoiron/sqlx"
)

// Stop contains data from a gtfs stop definition in a stops.txt file
type Stop struct {
	DataSetId int64   `db:"data_set_id" json:"data_set_id"`
	StopId    string  `db:"stop_id" json:"stop_id"`
	StopCode  *string `db:"stop_code" json:"stop_code"`
	StopName  string  `db:"stop_name" json:"stop_name"`
	StopLat   float64 `db:"stop_lat" json:"stop_lat"`
	StopLon   float64 `db:"stop_lon" json:"stop_lon"`
}

// RecordStops saves stops to database in batch
func RecordStops(stops []*Stop, dsTx *DataSetTransaction) error {
	for _, stop := range stops {
		stop.DataSetId = dsTx.DS.Id
	}
	statementString := "insert into stop ( " +
		"data_set_id, " +
		"stop_id, " +
		"stop_code, " +
		"stop_name, " +
		"stop_lat, " +
		"stop_lon) " +
		"values (" +
		":data_set_id, " +
		":stop_id, " +
		":stop_code, " +
		":stop_name, " +
		":stop_lat, " +
		":stop_lon)"
	statementString = dsTx.Tx.Rebind(statementString)
	_, err := dsTx.Tx.NamedExec(statementString, stops)
	return err
}

// GetStops retrieves all stops belonging to dataSetId
func GetStops(db *sqlx.DB, dataSetId int64) ([]*Stop, error) {
	query := "select * from stop where data_set_id = $1"
	var results []*Stop
	err := db.Select(&results, db.Rebind(query), dataSetId)
	return results, err
}
