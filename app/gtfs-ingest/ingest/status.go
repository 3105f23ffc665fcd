package ingest

import (
	"context"
	"encoding/json"
	logger "log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/UBC-Live/Translink/business/data/gtfs"
	"github.com/UBC-Live/Translink/business/data/quota"
	"github.com/gorilla/mux"
)

//defaultHttpHandler simple default http handler for default route
type defaultHttpHandler struct {
}

//ServeHTTP implements defaultHttpHandler http.Handler interface
func (h *defaultHttpHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Add("Application-Status", "OK")
}

//statusHandler holds data needed to respond to status requests
type statusHandler struct {
	log             *logger.Logger
	scheduler       *quota.Scheduler
	stores          *gtfs.StoreHandle
	serviceCalendar *gtfs.ServiceCalendar
	pipelines       []*pipeline
	startedAt       time.Time
}

//statusResponse is the json body of the status endpoint
type statusResponse struct {
	StartedAt        time.Time                       `json:"started_at"`
	Quota            quota.State                     `json:"quota"`
	DataSetId        int64                           `json:"data_set_id"`
	TableCounts      map[string]int                  `json:"table_counts"`
	ActiveServiceIds []string                        `json:"active_service_ids"`
	StatHoliday      bool                            `json:"stat_holiday"`
	Feeds            map[string]FeedCountersSnapshot `json:"feeds"`
}

//ServeHTTP implements statusHandler's http.Handler interface
func (s *statusHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	store := s.stores.Current()

	routes, stops, trips, stopTimeTrips := store.Counts()
	now := time.Now()
	response := statusResponse{
		StartedAt: s.startedAt,
		Quota:     s.scheduler.Snapshot(),
		DataSetId: store.DataSetId,
		TableCounts: map[string]int{
			"routes":          routes,
			"stops":           stops,
			"trips":           trips,
			"stop_time_trips": stopTimeTrips,
		},
		ActiveServiceIds: s.serviceCalendar.ActiveServiceIds(now),
		StatHoliday:      s.serviceCalendar.IsStatHoliday(now),
		Feeds:            make(map[string]FeedCountersSnapshot),
	}
	for _, p := range s.pipelines {
		response.Feeds[p.kind.String()] = p.counters.snapshot()
	}

	jsonData, err := json.Marshal(response)
	if err != nil {
		s.log.Printf("Error marshaling status to json: error:%v\n", err)
		http.Error(w, "Error serving request", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err = w.Write(jsonData); err != nil {
		s.log.Printf("Error writing json response: %s", err)
	}
}

//createServer creates configured http.Server for status and metrics requests
func createServer(log *logger.Logger,
	status *statusHandler,
	metrics *metricsCollector,
	httpPort int) *http.Server {

	r := mux.NewRouter()
	r.Handle("/", &defaultHttpHandler{})
	r.Handle("/status", status)
	r.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr: strings.Join([]string{"0.0.0.0", strconv.Itoa(httpPort)}, ":"),
		// Good practice to set timeouts to avoid Slowloris attacks.
		WriteTimeout: time.Second * 15,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
		Handler:      r,
	}
	return srv
}

//runWebService starts up the status web service, and terminates on shutdown signal
func runWebService(log *logger.Logger,
	wg *sync.WaitGroup,
	status *statusHandler,
	metrics *metricsCollector,
	httpPort int,
	shutdownSignal <-chan struct{},
) {
	wg.Add(1)
	defer wg.Done()
	srv := createServer(log, status, metrics, httpPort)
	log.Printf("Starting server on port %d", httpPort)
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			log.Printf("server ListenAndServe ended. %s", err)
		}
	}()

	<-shutdownSignal
	log.Printf("ending webservice on shutdown signal")
	shutdownCtx, serverCancelFunc := context.WithTimeout(context.Background(), time.Duration(5)*time.Second)
	defer serverCancelFunc()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("error shutting down webservice, error:%s", err)
	}
}
