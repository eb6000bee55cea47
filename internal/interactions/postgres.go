package interactions

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// PostgresStore persists interaction records in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "connect postgres")
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS interactions (
			id BIGSERIAL PRIMARY KEY,
			customer_id TEXT,
			interaction_type TEXT NOT NULL,
			content TEXT NOT NULL,
			language TEXT NOT NULL,
			sentiment_score DOUBLE PRECISION,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_customer_created ON interactions (customer_id, created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return errors.Wrapf(err, "init schema failed on %q", stmt)
		}
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, r Record) (int64, error) {
	r = stamp(r)
	var customer *string
	if r.CustomerID != "" {
		customer = &r.CustomerID
	}

	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO interactions (customer_id, interaction_type, content, language, sentiment_score, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		customer,
		string(r.Type),
		r.Content,
		r.Language,
		r.SentimentScore,
		r.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, errors.Wrap(err, "insert interaction")
	}
	return id, nil
}

func (s *PostgresStore) Recent(ctx context.Context, customerID string, limit int) ([]Record, error) {
	limit = normalizeLimit(limit)

	rows, err := s.pool.Query(ctx,
		`SELECT id, customer_id, interaction_type, content, language, sentiment_score, created_at
		 FROM interactions
		 WHERE ($1 = '' OR customer_id = $1)
		 ORDER BY created_at DESC, id DESC LIMIT $2`,
		customerID,
		limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "query interactions")
	}
	defer rows.Close()

	out := make([]Record, 0, limit)
	for rows.Next() {
		var (
			r        Record
			customer *string
			typ      string
		)
		if err := rows.Scan(&r.ID, &customer, &typ, &r.Content, &r.Language, &r.SentimentScore, &r.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan interaction row")
		}
		if customer != nil {
			r.CustomerID = *customer
		}
		r.Type = Type(typ)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate interaction rows")
	}
	return out, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
