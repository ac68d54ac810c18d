package exception

import (
	"context"
	"errors"

	"github.com/Nystya/txgroup/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var schema = []string{`
CREATE TABLE IF NOT EXISTS tx_exception (
	id          TEXT PRIMARY KEY,
	group_id    TEXT NOT NULL,
	unit_id     TEXT NOT NULL,
	unit_type   TEXT NOT NULL,
	remote_key  TEXT NOT NULL,
	state       INTEGER NOT NULL,
	kind        TEXT NOT NULL,
	message     TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE INDEX IF NOT EXISTS tx_exception_group_idx ON tx_exception (group_id, created_at)`,
}

type pgxConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists exception records in the tx_exception table. The
// oldest terminal record of a group decides its state.
type PostgresStore struct {
	conn  pgxConn
	close func()
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{conn: pool, close: pool.Close}
}

func (p *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := p.conn.Exec(ctx, stmt); err != nil {
			return err
		}
	}

	return nil
}

func (p *PostgresStore) Record(ctx context.Context, record *domain.ExceptionRecord) error {
	_, err := p.conn.Exec(ctx,
		`INSERT INTO tx_exception(id, group_id, unit_id, unit_type, remote_key, state, kind, message, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		record.ID, record.GroupID, record.UnitID, record.UnitType, record.RemoteKey,
		int(record.State), string(record.Kind), record.Message, record.CreatedAt)

	return err
}

func (p *PostgresStore) TransactionState(ctx context.Context, groupID string) (domain.State, error) {
	var state int

	err := p.conn.QueryRow(ctx,
		`SELECT state FROM tx_exception WHERE group_id = $1 AND state IN (0, 1) ORDER BY created_at, id LIMIT 1`,
		groupID).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.StateUnknown, nil
	}

	if err != nil {
		return domain.StateUnknown, err
	}

	return domain.State(state), nil
}

func (p *PostgresStore) Exceptions(ctx context.Context, groupID string) ([]*domain.ExceptionRecord, error) {
	rows, err := p.conn.Query(ctx,
		`SELECT id, group_id, unit_id, unit_type, remote_key, state, kind, message, created_at
		 FROM tx_exception WHERE group_id = $1 ORDER BY created_at, id`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.ExceptionRecord
	for rows.Next() {
		var rec domain.ExceptionRecord
		var state int
		var kind string

		if err := rows.Scan(&rec.ID, &rec.GroupID, &rec.UnitID, &rec.UnitType, &rec.RemoteKey,
			&state, &kind, &rec.Message, &rec.CreatedAt); err != nil {
			return nil, err
		}

		rec.State = domain.State(state)
		rec.Kind = domain.ExceptionKind(kind)
		out = append(out, &rec)
	}

	return out, rows.Err()
}

func (p *PostgresStore) Close() error {
	if p.close != nil {
		p.close()
	}

	return nil
}
