package staticmgr

import (
	"reflect"
	"strings"
	"testing"

	"github.com/UBC-Live/Translink/business/data/gtfs"
)

func Test_buildStopTime(t *testing.T) {

	tests := []struct {
		name       string
		csvContent string
		want       *gtfs.StopTime
		wantErr    bool
	}{
		{
			name: "stop_time parsed",
			csvContent: "trip_id,arrival_time,departure_time,stop_id,stop_sequence,stop_headsign,pickup_type,drop_off_type,shape_dist_traveled,timepoint" +
				"\n14731511,23:25:00,23:25:00,59,15,UBC,0,0,5543.4,0",
			want: &gtfs.StopTime{
				TripId:        "14731511",
				StopSequence:  15,
				StopId:        "59",
				ArrivalTime:   (23 * 60 * 60) + (25 * 60),
				DepartureTime: (23 * 60 * 60) + (25 * 60),
			},
			wantErr: false,
		},
		{
			name: "after midnight times parsed past 24 hours",
			csvContent: "trip_id,arrival_time,departure_time,stop_id,stop_sequence" +
				"\n14731511,25:35:00,25:36:00,59,15",
			want: &gtfs.StopTime{
				TripId:        "14731511",
				StopSequence:  15,
				StopId:        "59",
				ArrivalTime:   (25 * 60 * 60) + (35 * 60),
				DepartureTime: (25 * 60 * 60) + (36 * 60),
			},
			wantErr: false,
		},
		{
			name: "error on missing required field (stop_sequence)",
			csvContent: "trip_id,arrival_time,departure_time,stop_id,stop_headsign,pickup_type,drop_off_type" +
				"\n14731511,23:25:00,23:25:00,59,UBC,0,0",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser, err := makeGTFSFileParser(strings.NewReader(tt.csvContent), "stop_times.txt")
			if err != nil {
				t.Errorf("Unable to make gtfsFileParser %s", err)
			}
			err = parser.nextLine()
			if err != nil {
				t.Errorf("Unable to move gtfsFileParser to first line %s", err)
			}
			got, err := buildStopTime(parser)
			if tt.wantErr {
				if err == nil {
					t.Errorf("%v: buildStopTime() produced no error, but we want one", tt.name)
					return
				}
				return
			} else if err != nil {
				t.Errorf("%v: buildStopTime() error = %v, wantErr %v", tt.name, err, tt.wantErr)
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("buildStopTime() got = %+v, want %+v", got, tt.want)
			}
		})
	}
}
