package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when a looked-up row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate matches any unique-constraint violation.
	ErrDuplicate = errors.New("duplicate key value")
	// ErrInvalidData matches values the database refused for one row, such
	// as numeric overflow or a failed CHECK constraint.
	ErrInvalidData = errors.New("invalid row data")
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

var (
	_ DBTX = (*pgxpool.Pool)(nil)
	_ DBTX = (pgx.Tx)(nil)
)

// DuplicateError is a unique-constraint violation (SQLSTATE 23505).
type DuplicateError struct {
	Constraint string
	Detail     string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate key value violates unique constraint %q", e.Constraint)
}

// Is makes errors.Is(err, ErrDuplicate) true for every DuplicateError.
func (e *DuplicateError) Is(target error) bool { return target == ErrDuplicate }

// DataError is a per-row data exception (SQLSTATE class 22) or a CHECK
// violation (23514).
type DataError struct {
	Code    string
	Message string
}

func (e *DataError) Error() string {
	return fmt.Sprintf("invalid data (SQLSTATE %s): %s", e.Code, e.Message)
}

// Is makes errors.Is(err, ErrInvalidData) true for every DataError.
func (e *DataError) Is(target error) bool { return target == ErrInvalidData }

// mapPgError turns driver errors into repository sentinels.
func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505":
			return &DuplicateError{Constraint: pgErr.ConstraintName, Detail: pgErr.Detail}
		case pgErr.Code == "23514", strings.HasPrefix(pgErr.Code, "22"):
			return &DataError{Code: pgErr.Code, Message: pgErr.Message}
		}
	}
	return err
}

// InTx runs fn in a transaction that commits when fn returns nil and rolls
// back otherwise.
func InTx(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	return mapPgError(pgx.BeginFunc(ctx, pool, fn))
}
