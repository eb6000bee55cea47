package interactions

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// SQLiteStore persists records in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrap(err, "create sqlite dir")
		}
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	// A single writer avoids SQLITE_BUSY under the recorder worker.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS interactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		customer_id TEXT,
		interaction_type TEXT NOT NULL,
		content TEXT NOT NULL,
		language TEXT NOT NULL,
		sentiment_score REAL,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_interactions_customer_created ON interactions (customer_id, created_at);`); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "init sqlite schema")
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Append(ctx context.Context, r Record) (int64, error) {
	r = stamp(r)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO interactions (customer_id, interaction_type, content, language, sentiment_score, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		nullString(r.CustomerID),
		string(r.Type),
		r.Content,
		r.Language,
		r.SentimentScore,
		r.CreatedAt,
	)
	if err != nil {
		return 0, errors.Wrap(err, "insert interaction")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "interaction id")
	}
	return id, nil
}

func (s *SQLiteStore) Recent(ctx context.Context, customerID string, limit int) ([]Record, error) {
	limit = normalizeLimit(limit)
	query := `SELECT id, customer_id, interaction_type, content, language, sentiment_score, created_at
		FROM interactions`
	args := []any{}
	if customerID != "" {
		query += ` WHERE customer_id = ?`
		args = append(args, customerID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query interactions")
	}
	defer rows.Close()

	out := make([]Record, 0, limit)
	for rows.Next() {
		var (
			r         Record
			customer  sql.NullString
			typ       string
			sentiment sql.NullFloat64
			created   time.Time
		)
		if err := rows.Scan(&r.ID, &customer, &typ, &r.Content, &r.Language, &sentiment, &created); err != nil {
			return nil, errors.Wrap(err, "scan interaction")
		}
		r.CustomerID = customer.String
		r.Type = Type(typ)
		if sentiment.Valid {
			r.SentimentScore = Score(sentiment.Float64)
		}
		r.CreatedAt = created.UTC()
		out = append(out, r)
	}
	return out, errors.Wrap(rows.Err(), "iterate interactions")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
