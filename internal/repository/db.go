package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"geotech-lab-api/pkg/apierror"
)

// DBTX is satisfied by *pgxpool.Pool, pgx.Tx and pgxmock pools, so a
// repository method can run either standalone or inside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Pool interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// translatePgError maps constraint violations onto API errors and wraps
// everything else with the operation name.
func translatePgError(err error, op string) error {
	if err == nil {
		return nil
	}

	if _, ok := apierror.As(err); ok {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return apierror.Conflict("resource already exists", pgErr.ConstraintName)
		case pgForeignKeyViolation:
			return apierror.Validation("referenced resource does not exist", pgErr.ConstraintName)
		case pgCheckViolation:
			return apierror.Validation("value out of range", pgErr.ConstraintName)
		}
	}

	return fmt.Errorf("%s: %w", op, err)
}

// translateDeleteError reports a foreign-key violation on delete as a
// conflict: the row is still referenced.
func translateDeleteError(err error, op string, resource string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
		return apierror.Conflict(resource+" is still referenced", pgErr.ConstraintName)
	}
	return translatePgError(err, op)
}
