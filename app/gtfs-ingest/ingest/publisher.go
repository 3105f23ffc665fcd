package ingest

import (
	"encoding/json"
	"log"

	"github.com/UBC-Live/Translink/foundation/filesaver"
	"github.com/nats-io/nats.go"
)

// nats subjects the ingest publishes on
const (
	enrichedSubject    = "translink.enriched"
	tripUpdatesSubject = "translink.tripupdates"
	alertsSubject      = "translink.alerts"
)

//feedPublisher takes decoded and enriched feed results and sends them to their
// destinations (such as disk files and nats). Raw payloads land in rawSaver's
// directory, cleaned artifacts in cleanSaver's
type feedPublisher struct {
	log             *log.Logger
	rawSaver        *filesaver.FileSaver
	cleanSaver      *filesaver.FileSaver
	natsConnection  *nats.Conn
	saveRawPayloads bool
	publishOverNats bool

	enrichedCSV *filesaver.CSVFile
}

//makeFeedPublisher creates feedPublisher. natsConnection may be nil when
//publishOverNats is false
func makeFeedPublisher(log *log.Logger,
	rawSaver *filesaver.FileSaver,
	cleanSaver *filesaver.FileSaver,
	natsConnection *nats.Conn,
	saveRawPayloads bool,
	publishOverNats bool) *feedPublisher {
	return &feedPublisher{
		log:             log,
		rawSaver:        rawSaver,
		cleanSaver:      cleanSaver,
		natsConnection:  natsConnection,
		saveRawPayloads: saveRawPayloads,
		publishOverNats: publishOverNats,
	}
}

//publishEnriched appends enriched rows to the cycle's csv artifact and sends
//them over nats. The csv file is opened lazily on the first row
func (f *feedPublisher) publishEnriched(rows []EnrichedRow) {
	if len(rows) == 0 {
		return
	}
	if f.enrichedCSV == nil {
		csvFile, err := f.cleanSaver.OpenCSV(positionsFeed.String(), enrichedCSVHeader)
		if err != nil {
			f.log.Printf("failed to open enriched csv file, error:%v", err)
		} else {
			f.enrichedCSV = csvFile
		}
	}
	for _, row := range rows {
		if f.enrichedCSV != nil {
			if err := f.enrichedCSV.Append(row.csvRecord()); err != nil {
				f.log.Printf("failed to append enriched row for vehicle %s, error:%v",
					row.VehicleId, err)
			}
		}
	}
	if f.publishOverNats {
		f.sendOverNats(enrichedSubject, rows)
	}
}

//publishTripUpdates saves the cleaned trip updates as a json artifact and
//sends them over nats
func (f *feedPublisher) publishTripUpdates(updates []tripUpdateEntity) {
	if _, err := f.cleanSaver.SaveJSON(tripUpdatesFeed.String(), updates); err != nil {
		f.log.Printf("failed to save trip updates, error:%v", err)
	}
	if f.publishOverNats {
		f.sendOverNats(tripUpdatesSubject, updates)
	}
}

//publishAlerts saves the cleaned service alerts as a json artifact and sends
//them over nats
func (f *feedPublisher) publishAlerts(alerts []alertEntity) {
	if _, err := f.cleanSaver.SaveJSON(alertsFeed.String(), alerts); err != nil {
		f.log.Printf("failed to save service alerts, error:%v", err)
	}
	if f.publishOverNats {
		f.sendOverNats(alertsSubject, alerts)
	}
}

//saveRaw persists the undecoded protobuf payload when raw persistence is on
func (f *feedPublisher) saveRaw(kind feedKind, payload []byte) {
	if !f.saveRawPayloads {
		return
	}
	if _, err := f.rawSaver.SaveRaw(kind.String(), "pb", payload); err != nil {
		f.log.Printf("failed to save raw %v payload, error:%v", kind, err)
	}
}

func (f *feedPublisher) sendOverNats(subject string, payload interface{}) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		f.log.Printf("failed to marshal payload for subject %s in "+
			"feedPublisher.sendOverNats, error:%v", subject, err)
		return
	}
	err = f.natsConnection.Publish(subject, jsonData)
	if err != nil {
		f.log.Printf("failed to send payload on subject %s in "+
			"feedPublisher.sendOverNats, error:%v", subject, err)
	}
}

//close releases the csv artifact if one was opened
func (f *feedPublisher) close() {
	if f.enrichedCSV == nil {
		return
	}
	if err := f.enrichedCSV.Close(); err != nil {
		f.log.Printf("failed to close enriched csv file, error:%v", err)
	}
	f.enrichedCSV = nil
}
