package quota

import (
	"sync"

	"github.com/jmoiron/sqlx"
)

// DBUsageStore persists per-endpoint call counts in the api_quota_usage table,
// keyed by quota day and endpoint
type DBUsageStore struct {
	db *sqlx.DB
}

// NewDBUsageStore creates a DBUsageStore on db
func NewDBUsageStore(db *sqlx.DB) *DBUsageStore {
	return &DBUsageStore{db: db}
}

// RecordCall adds one call for endpoint on day
func (s *DBUsageStore) RecordCall(day string, endpoint string) error {
	statementString := "insert into api_quota_usage (day, endpoint, calls) " +
		"values ($1, $2, 1) " +
		"on conflict (day, endpoint) do update set calls = api_quota_usage.calls + 1"
	_, err := s.db.Exec(s.db.Rebind(statementString), day, endpoint)
	return err
}

// LoadDay retrieves calls recorded per endpoint for day
func (s *DBUsageStore) LoadDay(day string) (map[string]int, error) {
	rows := []struct {
		Endpoint string `db:"endpoint"`
		Calls    int    `db:"calls"`
	}{}
	query := "select endpoint, calls from api_quota_usage where day = $1"
	err := s.db.Select(&rows, s.db.Rebind(query), day)
	if err != nil {
		return nil, err
	}
	result := make(map[string]int, len(rows))
	for _, row := range rows {
		result[row.Endpoint] = row.Calls
	}
	return result, nil
}

// MemoryUsageStore keeps usage in memory, used in tests and when durability is disabled
type MemoryUsageStore struct {
	mu   sync.Mutex
	days map[string]map[string]int
}

// NewMemoryUsageStore creates an empty MemoryUsageStore
func NewMemoryUsageStore() *MemoryUsageStore {
	return &MemoryUsageStore{days: make(map[string]map[string]int)}
}

// RecordCall adds one call for endpoint on day
func (s *MemoryUsageStore) RecordCall(day string, endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.days[day] == nil {
		s.days[day] = make(map[string]int)
	}
	s.days[day][endpoint]++
	return nil
}

// LoadDay retrieves calls recorded per endpoint for day
func (s *MemoryUsageStore) LoadDay(day string) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make(map[string]int, len(s.days[day]))
	for endpoint, calls := range s.days[day] {
		result[endpoint] = calls
	}
	return result, nil
}
