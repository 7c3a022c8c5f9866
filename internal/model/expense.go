package model

import (
	"strings"
	"time"
)

type CompanyExpense struct {
	ID        int64     `json:"id"`
	Month     string    `json:"month"`
	Salaries  float64   `json:"salaries"`
	Rent      float64   `json:"rent"`
	Utilities float64   `json:"utilities"`
	Equipment float64   `json:"equipment"`
	Other     float64   `json:"other"`
	Notes     string    `json:"notes"`
	Total     float64   `json:"total"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func ExpenseTotal(e CompanyExpense) float64 {
	return e.Salaries + e.Rent + e.Utilities + e.Equipment + e.Other
}

func (e CompanyExpense) WithDerived() CompanyExpense {
	e.Total = ExpenseTotal(e)
	return e
}

func (e CompanyExpense) Validate() error {
	var errs fieldErrors
	if !validMonth(e.Month) {
		errs.add("month", "must be YYYY-MM")
	}
	amounts := map[string]float64{
		"salaries":  e.Salaries,
		"rent":      e.Rent,
		"utilities": e.Utilities,
		"equipment": e.Equipment,
		"other":     e.Other,
	}
	for _, name := range []string{"salaries", "rent", "utilities", "equipment", "other"} {
		if v := amounts[name]; !finite(v) || v < 0 {
			errs.add(name, "must be zero or positive")
		}
	}
	return errs.err()
}

type CreateExpenseRequest struct {
	Month     string  `json:"month"`
	Salaries  float64 `json:"salaries"`
	Rent      float64 `json:"rent"`
	Utilities float64 `json:"utilities"`
	Equipment float64 `json:"equipment"`
	Other     float64 `json:"other"`
	Notes     string  `json:"notes"`
}

func (r CreateExpenseRequest) ToExpense() CompanyExpense {
	return CompanyExpense{
		Month:     strings.TrimSpace(r.Month),
		Salaries:  r.Salaries,
		Rent:      r.Rent,
		Utilities: r.Utilities,
		Equipment: r.Equipment,
		Other:     r.Other,
		Notes:     r.Notes,
	}
}

type UpdateExpenseRequest struct {
	Month     *string  `json:"month"`
	Salaries  *float64 `json:"salaries"`
	Rent      *float64 `json:"rent"`
	Utilities *float64 `json:"utilities"`
	Equipment *float64 `json:"equipment"`
	Other     *float64 `json:"other"`
	Notes     *string  `json:"notes"`
}

func (r UpdateExpenseRequest) Apply(e CompanyExpense) CompanyExpense {
	if r.Month != nil {
		e.Month = strings.TrimSpace(*r.Month)
	}
	if r.Salaries != nil {
		e.Salaries = *r.Salaries
	}
	if r.Rent != nil {
		e.Rent = *r.Rent
	}
	if r.Utilities != nil {
		e.Utilities = *r.Utilities
	}
	if r.Equipment != nil {
		e.Equipment = *r.Equipment
	}
	if r.Other != nil {
		e.Other = *r.Other
	}
	if r.Notes != nil {
		e.Notes = *r.Notes
	}
	return e
}

type ExpenseFilter struct {
	Year string
}
