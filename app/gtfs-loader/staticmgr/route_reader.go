package staticmgr

import (
	"github.com/UBC-Live/Translink/business/data/gtfs"
)

const batchedRouteCount = 250

// routeRowReader implements gtfsRowReader interface for gtfs.Route
// batches inserts
type routeRowReader struct {
	batchedRoutes []*gtfs.Route
}

func newRouteRowReader() *routeRowReader {
	return &routeRowReader{}
}

func (r *routeRowReader) addRow(parser *gtfsFileParser, dsTx *gtfs.DataSetTransaction) error {
	route, err := buildRoute(parser)
	if err != nil {
		return err
	}

	r.batchedRoutes = append(r.batchedRoutes, route)

	//check if its time to save the batch
	if len(r.batchedRoutes) == batchedRouteCount {
		return r.flush(dsTx)
	}
	return nil
}

func (r *routeRowReader) flush(dsTx *gtfs.DataSetTransaction) error {
	//check if there's something to do
	if len(r.batchedRoutes) == 0 {
		return nil
	}

	err := gtfs.RecordRoutes(r.batchedRoutes, dsTx)
	if err != nil {
		return err
	}
	//truncate batch
	r.batchedRoutes = make([]*gtfs.Route, 0)
	return nil
}

func buildRoute(parser *gtfsFileParser) (*gtfs.Route, error) {
	route := gtfs.Route{
		RouteId:        parser.getString("route_id", false),
		RouteShortName: parser.getString("route_short_name", true),
		RouteLongName:  parser.getString("route_long_name", true),
		RouteType:      parser.getInt("route_type", false),
	}
	return &route, parser.getError()
}
