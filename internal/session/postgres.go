package session

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx database/sql driver
	"github.com/pressly/goose/v3"

	"github.com/wilson-pinto/medical-agent-poc/pkg/api"
)

// PostgresStore keeps sessions as JSONB rows, one row per session
type PostgresStore struct {
	pool *pgxpool.Pool
}

//go:embed migrations/*.sql
var migrations embed.FS

const (
	selectState = `SELECT state FROM workflow_sessions WHERE session_id = $1`

	upsertState = `
INSERT INTO workflow_sessions (session_id, status, state, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (session_id) DO UPDATE
SET status = EXCLUDED.status, state = EXCLUDED.state, updated_at = now()`

	deleteState = `DELETE FROM workflow_sessions WHERE session_id = $1`
)

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects to the database, applies pending migrations,
// and returns a ready Store
func NewPostgresStore(
	ctx context.Context, connStr string,
) (*PostgresStore, error) {
	if err := Migrate(connStr); err != nil {
		return nil, err
	}

	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectStore, err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectStore, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectStore, err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Migrate applies the embedded schema migrations
func Migrate(connStr string) error {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMigrate, err)
	}
	defer func() { _ = db.Close() }()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("%w: %w", ErrMigrate, err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("%w: %w", ErrMigrate, err)
	}
	return nil
}

func (s *PostgresStore) Get(
	ctx context.Context, id api.SessionID,
) (*api.WorkflowState, bool, error) {
	if id == "" {
		return nil, false, ErrEmptyID
	}
	var data []byte
	err := s.pool.QueryRow(ctx, selectState, string(id)).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var st api.WorkflowState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrDecodeState, err)
	}
	return &st, true, nil
}

func (s *PostgresStore) Set(
	ctx context.Context, id api.SessionID, st *api.WorkflowState,
) error {
	if id == "" {
		return ErrEmptyID
	}
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncodeState, err)
	}
	_, err = s.pool.Exec(ctx, upsertState, string(id), string(st.Status), data)
	return err
}

func (s *PostgresStore) Delete(ctx context.Context, id api.SessionID) error {
	if id == "" {
		return ErrEmptyID
	}
	_, err := s.pool.Exec(ctx, deleteState, string(id))
	return err
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
