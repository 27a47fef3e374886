package sqlite

import (
	"context"
	"database/sql"
	"log"
	"time"

	"sortly/internal/domain"
	"sortly/internal/metrics"
)

// Store is the best-effort log store used by the request path: write and
// list failures are logged and counted, never returned.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, l domain.EmailLog) (int64, error) {
	start := time.Now()
	id, err := InsertEmailLog(ctx, s.db, l)
	metrics.ObserveDBQuery("insert", time.Since(start))
	return id, err
}

func (s *Store) ListAll(ctx context.Context) ([]domain.EmailLog, error) {
	start := time.Now()
	logs, err := ListEmailLogs(ctx, s.db)
	metrics.ObserveDBQuery("list", time.Since(start))
	return logs, err
}

// Record appends l and reports whether it was persisted.
func (s *Store) Record(ctx context.Context, l domain.EmailLog) (int64, bool) {
	id, err := s.Append(ctx, l)
	if err != nil {
		metrics.PersistenceFailures.WithLabelValues("insert").Inc()
		log.Printf("store insert email_log failed category=%s err=%v", l.Category, err)
		return 0, false
	}
	return id, true
}

// History returns every log newest first, or an empty slice when storage is
// unavailable.
func (s *Store) History(ctx context.Context) []domain.EmailLog {
	logs, err := s.ListAll(ctx)
	if err != nil {
		metrics.PersistenceFailures.WithLabelValues("list").Inc()
		log.Printf("store list email_logs failed err=%v", err)
		return []domain.EmailLog{}
	}
	return logs
}

func (s *Store) CountByCategorySince(ctx context.Context, since time.Time) (map[string]int, error) {
	start := time.Now()
	counts, err := CountByCategorySince(ctx, s.db, since)
	metrics.ObserveDBQuery("count_by_category", time.Since(start))
	return counts, err
}
