package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists collections in PostgreSQL. Each collection is a table
// of (id, doc, created_at); free-form row fields live in the doc JSONB column.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string, collections ...string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool, collections); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool, collections []string) error {
	for _, c := range collections {
		if err := validCollectionName(c); err != nil {
			return err
		}
		stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			doc JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`, c)
		if _, err := pool.Exec(ctx, stmt); err != nil {
			// Managed databases often deny DDL to the application role; the
			// collection-exists health check reports whether the table is
			// actually there.
			if errors.Is(classifyPgError(err), ErrPermissionDenied) {
				log.Printf("store: schema init for %s denied, assuming managed schema", c)
				continue
			}
			return fmt.Errorf("init schema for %s: %w", c, err)
		}
	}
	return nil
}

func (s *PostgresStore) Insert(ctx context.Context, collection string, row Row) error {
	if err := validCollectionName(collection); err != nil {
		return err
	}

	id, _ := row["id"].(string)
	if id == "" {
		id = uuid.NewString()
	}
	createdAt, _ := row["created_at"].(time.Time)
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	doc := make(map[string]any, len(row))
	for k, v := range row {
		if k == "id" || k == "created_at" {
			continue
		}
		doc[k] = v
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode row: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, doc, created_at) VALUES ($1, $2, $3)`, collection),
		id, payload, createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert into %s: %w", collection, classifyPgError(err))
	}
	return nil
}

func (s *PostgresStore) Select(ctx context.Context, collection string, q Query) ([]Row, error) {
	if err := validCollectionName(collection); err != nil {
		return nil, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `SELECT id, doc, created_at FROM %s`, collection)

	args := make([]any, 0, len(q.Filter))
	if len(q.Filter) > 0 {
		sb.WriteString(" WHERE ")
		first := true
		for k, v := range q.Filter {
			if err := validCollectionName(k); err != nil {
				return nil, fmt.Errorf("store: invalid filter field %q", k)
			}
			if !first {
				sb.WriteString(" AND ")
			}
			first = false
			args = append(args, fmt.Sprint(v))
			if k == "id" {
				fmt.Fprintf(&sb, `id = $%d`, len(args))
			} else {
				fmt.Fprintf(&sb, `doc->>'%s' = $%d`, k, len(args))
			}
		}
	}

	if q.OrderBy != "" {
		dir := "ASC"
		if q.Descending {
			dir = "DESC"
		}
		if q.OrderBy == "created_at" {
			fmt.Fprintf(&sb, " ORDER BY created_at %s", dir)
		} else {
			if err := validCollectionName(q.OrderBy); err != nil {
				return nil, fmt.Errorf("store: invalid order field %q", q.OrderBy)
			}
			fmt.Fprintf(&sb, ` ORDER BY doc->>'%s' %s`, q.OrderBy, dir)
		}
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("select from %s: %w", collection, classifyPgError(err))
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			id        string
			payload   []byte
			createdAt time.Time
		)
		if err := rows.Scan(&id, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := Row{}
		if err := json.Unmarshal(payload, &row); err != nil {
			return nil, fmt.Errorf("decode row %s: %w", id, err)
		}
		row["id"] = id
		row["created_at"] = createdAt
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", classifyPgError(err))
	}
	return out, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// classifyPgError maps PostgreSQL error codes to the shared store error kinds.
// 42501 is insufficient_privilege (the code Supabase RLS denials surface as);
// 42P01 is undefined_table.
func classifyPgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "42501":
		return fmt.Errorf("%w: %s", ErrPermissionDenied, pgErr.Message)
	case "42P01":
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, pgErr.Message)
	default:
		return err
	}
}
