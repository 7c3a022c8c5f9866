package repository

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geotech-lab-api/internal/model"
	"geotech-lab-api/pkg/apierror"
)

func expenseRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "month", "salaries", "rent", "utilities", "equipment",
		"other", "notes", "created_at", "updated_at"})
}

func TestExpenseCreateSecondMonthConflicts(t *testing.T) {
	mock := newMockPool(t)
	repo := NewExpenseRepository(mock)
	input := model.CompanyExpense{Month: "2024-01", Salaries: 1000, Rent: 200}

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("2024-01", int64(0)).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("INSERT INTO company_expenses").
		WithArgs("2024-01", 1000.0, 200.0, 0.0, 0.0, 0.0, "", pgxmock.AnyArg()).
		WillReturnRows(expenseRows().AddRow(int64(1), "2024-01", 1000.0, 200.0, 0.0, 0.0, 0.0, "", fixedTime, fixedTime))

	first, err := repo.Create(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, 1200.0, first.Total)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("2024-01", int64(0)).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	_, err = repo.Create(context.Background(), input)
	require.Error(t, err)
	assert.True(t, apierror.HasCode(err, "CONFLICT"))
	assert.NoError(t, mock.ExpectationsWereMet(), "the second create must not reach the insert")
}

func TestExpenseCreateRaceHitsUniqueIndex(t *testing.T) {
	mock := newMockPool(t)
	repo := NewExpenseRepository(mock)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("2024-01", int64(0)).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("INSERT INTO company_expenses").
		WithArgs("2024-01", 0.0, 0.0, 0.0, 0.0, 0.0, "", pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "company_expenses_month_key"})

	_, err := repo.Create(context.Background(), model.CompanyExpense{Month: "2024-01"})
	require.Error(t, err)
	apiErr, ok := apierror.As(err)
	require.True(t, ok)
	assert.Equal(t, "CONFLICT", apiErr.Code)
	assert.Equal(t, "company_expenses_month_key", apiErr.Details)
}

func TestExpenseUpdateMissingRow(t *testing.T) {
	mock := newMockPool(t)
	repo := NewExpenseRepository(mock)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("2024-02", int64(9)).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("UPDATE company_expenses").
		WithArgs(int64(9), "2024-02", 0.0, 0.0, 0.0, 0.0, 0.0, "", pgxmock.AnyArg()).
		WillReturnRows(expenseRows())

	_, err := repo.Update(context.Background(), model.CompanyExpense{ID: 9, Month: "2024-02"})
	assert.True(t, apierror.HasCode(err, "NOT_FOUND"))
}
