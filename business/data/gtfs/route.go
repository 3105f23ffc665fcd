package gtfs

import (
	"github.com/jmoiron/sqlx"
)

// Route contains data from a gtfs route definition in a routes.txt file
type Route struct {
	DataSetId      int64  `db:"data_set_id" json:"data_set_id"`
	RouteId        string `db:"route_id" json:"route_id"`
	RouteShortName string `db:"route_short_name" json:"route_short_name"`
	RouteLongName  string `db:"route_long_name" json:"route_long_name"`
	RouteType      int    `db:"route_type" json:"route_type"`
}

// RecordRoutes saves routes to database in batch
func RecordRoutes(routes []*Route, dsTx *DataSetTransaction) error {
	for _, route := range routes {
		route.DataSetId = dsTx.DS.Id
	}
	statementString := "insert into route ( " +
		"data_set_id, " +
		"route_id, " +
		"route_short_name, " +
		"route_long_name, " +
		"route_type) " +
		"values (" +
		":data_set_id, " +
		":route_id, " +
		":route_short_name, " +
		":route_long_name, " +
		":route_type)"
	statementString = dsTx.Tx.Rebind(statementString)
	_, err := dsTx.Tx.NamedExec(statementString, routes)
	return err
}

// GetRoutes retrieves all routes belonging to dataSetId
func GetRoutes(db *sqlx.DB, dataSetId int64) ([]*Route, error) {
	query := "select * from route where data_set_id = $1"
	var results []*Route
	err := db.Select(&results, db.Rebind(query), dataSetId)
	return results, err
}
