package staticmgr

import (
	"github.com/UBC-Live/Translink/business/data/gtfs"
)

const batchedStopCount = 250

// stopRowReader implements gtfsRowReader interface for gtfs.Stop
// batches inserts
type stopRowReader struct {
	batchedStops []*gtfs.Stop
}

func newStopRowReader() *stopRowReader {
	return &stopRowReader{}
}

func (s *stopRowReader) addRow(parser *gtfsFileParser, dsTx *gtfs.DataSetTransaction) error {
	stop, err := buildStop(parser)
	if err != nil {
		return err
	}

	s.batchedStops = append(s.batchedStops, stop)

	//check if its time to save the batch
	if len(s.batchedStops) == batchedStopCount {
		return s.flush(dsTx)
	}
	return nil
}

func (s *stopRowReader) flush(dsTx *gtfs.DataSetTransaction) error {
	//check if there's something to do
	if len(s.batchedStops) == 0 {
		return nil
	}

	err := gtfs.RecordStops(s.batchedStops, dsTx)
	if err != nil {
		return err
	}
	//truncate batch
	s.batchedStops = make([]*gtfs.Stop, 0)
	return nil
}

func buildStop(parser *gtfsFileParser) (*gtfs.Stop, error) {
	stop := gtfs.Stop{
		StopId:   parser.getString("stop_id", false),
		StopCode: parser.getStringPointer("stop_code", true),
		StopName: parser.getString("stop_name", true),
		StopLat:  parser.getFloat64("stop_lat", false),
		StopLon:  parser.getFloat64("stop_lon", false),
	}
	return &stop, parser.getError()
}
