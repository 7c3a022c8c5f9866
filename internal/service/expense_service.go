package service

import (
	"context"
	"strconv"
	"strings"

	"geotech-lab-api/internal/model"
	"geotech-lab-api/pkg/apierror"
)

type ExpenseStore interface {
	FindByID(ctx context.Context, id int64) (model.CompanyExpense, error)
	Create(ctx context.Context, e model.CompanyExpense) (model.CompanyExpense, error)
	Update(ctx context.Context, e model.CompanyExpense) (model.CompanyExpense, error)
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, filter model.ExpenseFilter, page model.Pagination) ([]model.CompanyExpense, int, error)
}

type ExpenseService struct {
	expenses ExpenseStore
}

func NewExpenseService(expenses ExpenseStore) *ExpenseService {
	return &ExpenseService{expenses: expenses}
}

func (s *ExpenseService) List(ctx context.Context, filter model.ExpenseFilter, page model.Pagination) ([]model.CompanyExpense, *model.Meta, error) {
	page = page.Normalize()
	filter.Year = strings.TrimSpace(filter.Year)
	if filter.Year != "" {
		if y, err := strconv.Atoi(filter.Year); err != nil || len(filter.Year) != 4 || y < 1900 {
			return nil, nil, apierror.BadRequest("invalid year filter", filter.Year)
		}
	}

	expenses, total, err := s.expenses.List(ctx, filter, page)
	if err != nil {
		return nil, nil, err
	}
	return expenses, model.NewMeta(page, total), nil
}

func (s *ExpenseService) Get(ctx context.Context, id int64) (model.CompanyExpense, error) {
	return s.expenses.FindByID(ctx, id)
}

func (s *ExpenseService) Create(ctx context.Context, req model.CreateExpenseRequest) (model.CompanyExpense, error) {
	e := req.ToExpense()
	if err := e.Validate(); err != nil {
		return model.CompanyExpense{}, err
	}
	return s.expenses.Create(ctx, e)
}

func (s *ExpenseService) Update(ctx context.Context, id int64, req model.UpdateExpenseRequest) (model.CompanyExpense, error) {
	current, err := s.expenses.FindByID(ctx, id)
	if err != nil {
		return model.CompanyExpense{}, err
	}

	next := req.Apply(current)
	if err := next.Validate(); err != nil {
		return model.CompanyExpense{}, err
	}
	return s.expenses.Update(ctx, next)
}

func (s *ExpenseService) Delete(ctx context.Context, id int64) error {
	return s.expenses.Delete(ctx, id)
}
