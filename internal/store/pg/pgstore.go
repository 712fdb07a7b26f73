// Package pg implements the repositories on PostgreSQL through database/sql and pgx.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"extensao.org/internal/apperr"
	"extensao.org/internal/audit"
	"extensao.org/internal/auth"
	"extensao.org/internal/domain"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
	pgErrCheckViolation      = "23514"

	defaultTxTimeout = 5 * time.Second
)

var (
	_ domain.Store      = (*Store)(nil)
	_ audit.Store       = (*Store)(nil)
	_ auth.AccountStore = (*Store)(nil)
	_ auth.GrantSource  = (*Store)(nil)
)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the PostgreSQL implementation of domain.Store, audit.Store, auth.AccountStore
// and auth.GrantSource.
type Store struct {
	db        *sql.DB
	txTimeout time.Duration
}

// Option configures Store.
type Option func(*Store)

// WithTxTimeout bounds every RunInTx call.
func WithTxTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.txTimeout = d
		}
	}
}

// Open connects with the pgx driver and tuned pool defaults.
func Open(dsn string, maxOpen, maxIdle int, opts ...Option) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if maxOpen <= 0 {
		maxOpen = 50
	}
	if maxIdle <= 0 {
		maxIdle = maxOpen / 2
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return New(db, opts...), nil
}

// New wraps an existing handle.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, txTimeout: defaultTxTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Ping checks connectivity for readiness probes.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Users() domain.UserRepo             { return users{s.db} }
func (s *Store) Profiles() domain.ProfileRepo       { return profiles{s.db} }
func (s *Store) Activities() domain.ActivityRepo    { return activities{s.db} }
func (s *Store) Enrollments() domain.EnrollmentRepo { return enrollments{s.db} }
func (s *Store) Proofs() domain.ProofRepo           { return proofs{s.db} }

type txRepo struct{ tx *sql.Tx }

func (t txRepo) Users() domain.UserRepo             { return users{t.tx} }
func (t txRepo) Profiles() domain.ProfileRepo       { return profiles{t.tx} }
func (t txRepo) Activities() domain.ActivityRepo    { return activities{t.tx} }
func (t txRepo) Enrollments() domain.EnrollmentRepo { return enrollments{t.tx} }
func (t txRepo) Proofs() domain.ProofRepo           { return proofs{t.tx} }

// RunInTx runs fn in one transaction bounded by the configured timeout. Row locks taken by
// Lock* calls are held until commit or rollback.
func (s *Store) RunInTx(ctx context.Context, fn func(tx domain.Repository) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(txRepo{tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapErr(err, "transaction")
	}
	return nil
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// mapErr translates driver errors into the apperr taxonomy. entity names the row for
// not-found reporting.
func mapErr(err error, entity string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound(entity)
	}
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return apperr.Conflict("%s already exists (%s)", entity, pgErr.ConstraintName)
		case pgErrForeignKeyViolation:
			return apperr.NotFound(fmt.Sprintf("%s reference (%s)", entity, pgErr.ConstraintName))
		case pgErrCheckViolation:
			return apperr.Invalid("%s violates %s", entity, pgErr.ConstraintName)
		}
	}
	return fmt.Errorf("%s: %w", entity, err)
}

// affected turns a zero row count into not-found.
func affected(res sql.Result, entity string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound(entity)
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

type scanner interface {
	Scan(dest ...any) error
}
