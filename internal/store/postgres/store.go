package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/causeway-labs/causeway/internal/domain"
)

// querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx. Sub-stores
// run against it so the same query code serves pooled reads and transactional
// writes.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements domain.Store on PostgreSQL. Atomic opens a serializable
// transaction; every domain invariant that spans tables (ledger moves plus
// clause state, stake plus case tallies) relies on that isolation level.
type Store struct {
	pool *pgxpool.Pool
	q    querier
	inTx bool
}

var _ domain.Store = (*Store)(nil)

// NewStore creates a Store over the client's connection pool.
func NewStore(client *Client) *Store {
	return &Store{pool: client.Pool(), q: client.Pool()}
}

func (s *Store) Events() domain.EventStore       { return eventStore{s.q} }
func (s *Store) Clauses() domain.ClauseStore     { return clauseStore{s.q} }
func (s *Store) Oracle() domain.OracleStore      { return oracleStore{s.q} }
func (s *Store) Accounts() domain.AccountStore   { return accountStore{s.q} }
func (s *Store) Transfers() domain.TransferStore { return transferStore{s.q} }
func (s *Store) Audit() domain.AuditStore        { return auditStore{s.q} }

// Atomic runs fn inside a serializable transaction. A nested call joins the
// enclosing transaction instead of opening a second one.
func (s *Store) Atomic(ctx context.Context, fn func(domain.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}

	txStore := &Store{pool: s.pool, q: tx, inTx: true}
	if err := fn(txStore); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Join(err, fmt.Errorf("postgres: rollback: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

// limitClause appends LIMIT/OFFSET terms for ListOpts, continuing the
// positional argument numbering from args.
func limitClause(query string, args []any, opts domain.ListOpts) (string, []any) {
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return query, args
}
