package sqlite

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"sortly/internal/domain"
)

func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS email_logs (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		subject_snippet TEXT NOT NULL DEFAULT '',
		full_text       TEXT NOT NULL DEFAULT '',
		category        TEXT NOT NULL DEFAULT '',
		ai_response     TEXT NOT NULL DEFAULT '',
		created_at      DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_email_logs_created_at ON email_logs(created_at);
	CREATE INDEX IF NOT EXISTS idx_email_logs_category ON email_logs(category);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// InsertEmailLog stores l and returns its assigned id. CreatedAt is taken
// from l when set, otherwise from the current time.
func InsertEmailLog(ctx context.Context, db *sql.DB, l domain.EmailLog) (int64, error) {
	createdAt := l.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	res, err := db.ExecContext(ctx,
		`INSERT INTO email_logs (subject_snippet, full_text, category, ai_response, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		l.SubjectSnippet, l.FullText, l.Category, l.AIResponse, createdAt,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListEmailLogs returns every log, newest first.
func ListEmailLogs(ctx context.Context, db *sql.DB) ([]domain.EmailLog, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, subject_snippet, full_text, category, ai_response, created_at
		 FROM email_logs ORDER BY created_at DESC, id DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []domain.EmailLog{}
	for rows.Next() {
		var l domain.EmailLog
		if err := rows.Scan(&l.ID, &l.SubjectSnippet, &l.FullText, &l.Category, &l.AIResponse, &l.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func GetEmailLogByID(ctx context.Context, db *sql.DB, id int64) (domain.EmailLog, error) {
	var l domain.EmailLog
	err := db.QueryRowContext(ctx,
		`SELECT id, subject_snippet, full_text, category, ai_response, created_at
		 FROM email_logs WHERE id = ?`,
		id,
	).Scan(&l.ID, &l.SubjectSnippet, &l.FullText, &l.Category, &l.AIResponse, &l.CreatedAt)
	return l, err
}

// CountByCategorySince groups logs created at or after since by category.
func CountByCategorySince(ctx context.Context, db *sql.DB, since time.Time) (map[string]int, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT category, COUNT(*) FROM email_logs WHERE created_at >= ? GROUP BY category`,
		since.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var category string
		var n int
		if err := rows.Scan(&category, &n); err != nil {
			return nil, err
		}
		counts[category] = n
	}
	return counts, rows.Err()
}
