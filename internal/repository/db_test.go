package repository

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"

	"geotech-lab-api/pkg/apierror"
)

func TestTranslatePgError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"unique", &pgconn.PgError{Code: "23505"}, "CONFLICT"},
		{"foreign key", &pgconn.PgError{Code: "23503"}, "VALIDATION_ERROR"},
		{"check", &pgconn.PgError{Code: "23514"}, "VALIDATION_ERROR"},
		{"api error passes through", apierror.NotFound("apique", "1"), "NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, apierror.HasCode(translatePgError(tt.err, "op"), tt.code))
		})
	}

	plain := errors.New("boom")
	wrapped := translatePgError(plain, "insert thing")
	assert.ErrorIs(t, wrapped, plain)
	assert.Equal(t, "insert thing: boom", wrapped.Error())
	assert.Nil(t, translatePgError(nil, "op"))
}

func TestTranslateDeleteErrorReportsReferencedRow(t *testing.T) {
	err := translateDeleteError(&pgconn.PgError{Code: "23503", ConstraintName: "apiques_project_id_fkey"}, "delete project", "project")
	apiErr, ok := apierror.As(err)
	assert.True(t, ok)
	assert.Equal(t, "CONFLICT", apiErr.Code)
	assert.Equal(t, "project is still referenced", apiErr.Message)
}

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}
