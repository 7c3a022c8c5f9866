package model

import (
	"strings"
	"time"
)

const (
	ProjectStatusActive    = "active"
	ProjectStatusOnHold    = "on_hold"
	ProjectStatusCompleted = "completed"
	ProjectStatusCancelled = "cancelled"
)

func ValidProjectStatus(status string) bool {
	switch status {
	case ProjectStatusActive, ProjectStatusOnHold, ProjectStatusCompleted, ProjectStatusCancelled:
		return true
	}
	return false
}

type Project struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	ClientName    string    `json:"clientName"`
	Location      string    `json:"location"`
	Description   string    `json:"description"`
	Status        string    `json:"status"`
	ContractValue float64   `json:"contractValue"`
	StartDate     string    `json:"startDate,omitempty"`
	EndDate       string    `json:"endDate,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (p Project) Validate() error {
	var errs fieldErrors
	if strings.TrimSpace(p.Name) == "" {
		errs.add("name", "is required")
	}
	if !ValidProjectStatus(p.Status) {
		errs.add("status", "must be one of active, on_hold, completed, cancelled")
	}
	if !finite(p.ContractValue) || p.ContractValue < 0 {
		errs.add("contractValue", "must be zero or positive")
	}
	if p.StartDate != "" && !validDate(p.StartDate) {
		errs.add("startDate", "must be YYYY-MM-DD")
	}
	if p.EndDate != "" && !validDate(p.EndDate) {
		errs.add("endDate", "must be YYYY-MM-DD")
	}
	if p.StartDate != "" && p.EndDate != "" && validDate(p.StartDate) && validDate(p.EndDate) && p.EndDate < p.StartDate {
		errs.add("endDate", "must not be before startDate")
	}
	return errs.err()
}

type CreateProjectRequest struct {
	Name          string  `json:"name"`
	ClientName    string  `json:"clientName"`
	Location      string  `json:"location"`
	Description   string  `json:"description"`
	Status        string  `json:"status"`
	ContractValue float64 `json:"contractValue"`
	StartDate     string  `json:"startDate"`
	EndDate       string  `json:"endDate"`
}

func (r CreateProjectRequest) ToProject() Project {
	status := strings.ToLower(strings.TrimSpace(r.Status))
	if status == "" {
		status = ProjectStatusActive
	}
	return Project{
		Name:          strings.TrimSpace(r.Name),
		ClientName:    strings.TrimSpace(r.ClientName),
		Location:      strings.TrimSpace(r.Location),
		Description:   r.Description,
		Status:        status,
		ContractValue: r.ContractValue,
		StartDate:     strings.TrimSpace(r.StartDate),
		EndDate:       strings.TrimSpace(r.EndDate),
	}
}

type UpdateProjectRequest struct {
	Name          *string  `json:"name"`
	ClientName    *string  `json:"clientName"`
	Location      *string  `json:"location"`
	Description   *string  `json:"description"`
	Status        *string  `json:"status"`
	ContractValue *float64 `json:"contractValue"`
	StartDate     *string  `json:"startDate"`
	EndDate       *string  `json:"endDate"`
}

func (r UpdateProjectRequest) Apply(p Project) Project {
	if r.Name != nil {
		p.Name = strings.TrimSpace(*r.Name)
	}
	if r.ClientName != nil {
		p.ClientName = strings.TrimSpace(*r.ClientName)
	}
	if r.Location != nil {
		p.Location = strings.TrimSpace(*r.Location)
	}
	if r.Description != nil {
		p.Description = *r.Description
	}
	if r.Status != nil {
		p.Status = strings.ToLower(strings.TrimSpace(*r.Status))
	}
	if r.ContractValue != nil {
		p.ContractValue = *r.ContractValue
	}
	if r.StartDate != nil {
		p.StartDate = strings.TrimSpace(*r.StartDate)
	}
	if r.EndDate != nil {
		p.EndDate = strings.TrimSpace(*r.EndDate)
	}
	return p
}

type ProjectFilter struct {
	Status string
	Search string
}
