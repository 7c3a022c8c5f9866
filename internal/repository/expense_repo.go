package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"geotech-lab-api/internal/model"
	"geotech-lab-api/pkg/apierror"
)

const expenseColumns = `id, month, salaries, rent, utilities, equipment, other, notes, created_at, updated_at`

type ExpenseRepository struct {
	db DBTX
}

func NewExpenseRepository(db DBTX) *ExpenseRepository {
	return &ExpenseRepository{db: db}
}

func scanExpense(row pgx.Row) (model.CompanyExpense, error) {
	var e model.CompanyExpense
	err := row.Scan(&e.ID, &e.Month, &e.Salaries, &e.Rent, &e.Utilities, &e.Equipment, &e.Other,
		&e.Notes, &e.CreatedAt, &e.UpdatedAt)
	return e.WithDerived(), err
}

func (r *ExpenseRepository) FindByID(ctx context.Context, id int64) (model.CompanyExpense, error) {
	e, err := scanExpense(r.db.QueryRow(ctx, `SELECT `+expenseColumns+` FROM company_expenses WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.CompanyExpense{}, apierror.NotFound("expense", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return model.CompanyExpense{}, fmt.Errorf("find expense: %w", err)
	}
	return e, nil
}

func (r *ExpenseRepository) monthTaken(ctx context.Context, month string, excludeID int64) error {
	var taken bool
	if err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM company_expenses WHERE month = $1 AND id <> $2)`,
		month, excludeID).Scan(&taken); err != nil {
		return fmt.Errorf("check expense month: %w", err)
	}
	if taken {
		return apierror.Conflict("expenses for this month already exist", "month="+month)
	}
	return nil
}

// Create rejects a second record for the same month; the unique index
// backs the pre-check when two requests race.
func (r *ExpenseRepository) Create(ctx context.Context, e model.CompanyExpense) (model.CompanyExpense, error) {
	if err := r.monthTaken(ctx, e.Month, 0); err != nil {
		return model.CompanyExpense{}, err
	}

	created, err := scanExpense(r.db.QueryRow(ctx,
		`INSERT INTO company_expenses (month, salaries, rent, utilities, equipment, other, notes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		 RETURNING `+expenseColumns,
		e.Month, e.Salaries, e.Rent, e.Utilities, e.Equipment, e.Other, e.Notes, time.Now().UTC()))
	if err != nil {
		return model.CompanyExpense{}, translatePgError(err, "create expense")
	}
	return created, nil
}

func (r *ExpenseRepository) Update(ctx context.Context, e model.CompanyExpense) (model.CompanyExpense, error) {
	if err := r.monthTaken(ctx, e.Month, e.ID); err != nil {
		return model.CompanyExpense{}, err
	}

	updated, err := scanExpense(r.db.QueryRow(ctx,
		`UPDATE company_expenses
		 SET month = $2, salaries = $3, rent = $4, utilities = $5, equipment = $6, other = $7,
		     notes = $8, updated_at = $9
		 WHERE id = $1
		 RETURNING `+expenseColumns,
		e.ID, e.Month, e.Salaries, e.Rent, e.Utilities, e.Equipment, e.Other, e.Notes, time.Now().UTC()))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.CompanyExpense{}, apierror.NotFound("expense", strconv.FormatInt(e.ID, 10))
	}
	if err != nil {
		return model.CompanyExpense{}, translatePgError(err, "update expense")
	}
	return updated, nil
}

func (r *ExpenseRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM company_expenses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apierror.NotFound("expense", strconv.FormatInt(id, 10))
	}
	return nil
}

func (r *ExpenseRepository) List(ctx context.Context, filter model.ExpenseFilter, page model.Pagination) ([]model.CompanyExpense, int, error) {
	page = page.Normalize()

	whereClause := ""
	args := make([]any, 0)
	argIdx := 1
	if year := strings.TrimSpace(filter.Year); year != "" {
		whereClause = fmt.Sprintf("WHERE month LIKE $%d", argIdx)
		args = append(args, year+"-%")
		argIdx++
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM company_expenses "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count expenses: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM company_expenses %s ORDER BY month DESC LIMIT $%d OFFSET $%d`,
		expenseColumns, whereClause, argIdx, argIdx+1)
	args = append(args, page.Limit, page.Offset())

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	expenses := make([]model.CompanyExpense, 0)
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan expense: %w", err)
		}
		expenses = append(expenses, e)
	}
	return expenses, total, rows.Err()
}
