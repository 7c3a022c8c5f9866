package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	RequestStatusPending    = "pending"
	RequestStatusInReview   = "in_review"
	RequestStatusApproved   = "approved"
	RequestStatusInProgress = "in_progress"
	RequestStatusCompleted  = "completed"
	RequestStatusRejected   = "rejected"
	RequestStatusCancelled  = "cancelled"
)

var requestTransitions = map[string][]string{
	RequestStatusPending:    {RequestStatusInReview, RequestStatusApproved, RequestStatusRejected, RequestStatusCancelled},
	RequestStatusInReview:   {RequestStatusApproved, RequestStatusRejected, RequestStatusCancelled},
	RequestStatusApproved:   {RequestStatusInProgress, RequestStatusCancelled},
	RequestStatusInProgress: {RequestStatusCompleted, RequestStatusCancelled},
}

func ValidRequestStatus(status string) bool {
	switch status {
	case RequestStatusPending, RequestStatusInReview, RequestStatusApproved, RequestStatusInProgress,
		RequestStatusCompleted, RequestStatusRejected, RequestStatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether a request may move from one status to
// another. Completed, rejected and cancelled are terminal.
func CanTransition(from string, to string) bool {
	for _, next := range requestTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NewRequestNumber formats SR-YYYYMMDD-xxxxxx from the creation date and a
// random hex suffix.
func NewRequestNumber(now time.Time, suffix string) string {
	suffix = strings.ToUpper(suffix)
	if len(suffix) > 6 {
		suffix = suffix[:6]
	}
	return fmt.Sprintf("SR-%s-%s", now.UTC().Format("20060102"), suffix)
}

type ServiceRequest struct {
	ID               int64             `json:"id"`
	RequestNumber    string            `json:"requestNumber"`
	ClientName       string            `json:"clientName"`
	ClientEmail      string            `json:"clientEmail"`
	ClientPhone      string            `json:"clientPhone"`
	Company          string            `json:"company"`
	ProjectName      string            `json:"projectName"`
	Location         string            `json:"location"`
	Description      string            `json:"description"`
	Status           string            `json:"status"`
	CreatedBy        *int64            `json:"createdBy,omitempty"`
	SelectedServices []SelectedService `json:"selectedServices"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

type SelectedService struct {
	ID          int64             `json:"id"`
	RequestID   int64             `json:"requestId"`
	ServiceID   int64             `json:"serviceId"`
	ServiceCode string            `json:"serviceCode,omitempty"`
	ServiceName string            `json:"serviceName,omitempty"`
	Quantity    int               `json:"quantity"`
	Instances   []ServiceInstance `json:"instances"`
}

type ServiceInstance struct {
	ID                int64                  `json:"id"`
	SelectedServiceID int64                  `json:"selectedServiceId"`
	InstanceNumber    int                    `json:"instanceNumber"`
	Notes             string                 `json:"notes"`
	Values            []ServiceInstanceValue `json:"values"`
}

type ServiceInstanceValue struct {
	ID         int64  `json:"id"`
	InstanceID int64  `json:"instanceId"`
	FieldName  string `json:"fieldName"`
	FieldValue string `json:"fieldValue"`
}

type SelectedServiceInput struct {
	ServiceID int64                  `json:"serviceId"`
	Quantity  int                    `json:"quantity"`
	Instances []ServiceInstanceInput `json:"instances"`
}

type ServiceInstanceInput struct {
	InstanceNumber int                 `json:"instanceNumber"`
	Notes          string              `json:"notes"`
	Values         []InstanceValueInput `json:"values"`
}

type InstanceValueInput struct {
	FieldName  string `json:"fieldName"`
	FieldValue string `json:"fieldValue"`
}

func (r ServiceRequest) Validate() error {
	var errs fieldErrors
	if strings.TrimSpace(r.ClientName) == "" {
		errs.add("clientName", "is required")
	}
	if !ValidEmail(r.ClientEmail) {
		errs.add("clientEmail", "must be a valid email")
	}
	if !ValidRequestStatus(r.Status) {
		errs.add("status", "is not a known status")
	}

	seenServices := make(map[int64]struct{}, len(r.SelectedServices))
	for i, sel := range r.SelectedServices {
		field := "selectedServices[" + strconv.Itoa(i) + "]"
		if sel.ServiceID < 1 {
			errs.add(field+".serviceId", "is required")
		}
		if _, dup := seenServices[sel.ServiceID]; dup {
			errs.add(field+".serviceId", "service %d selected twice", sel.ServiceID)
		}
		seenServices[sel.ServiceID] = struct{}{}
		if sel.Quantity < 1 {
			errs.add(field+".quantity", "must be at least 1")
		}
		if len(sel.Instances) > sel.Quantity {
			errs.add(field+".instances", "cannot exceed quantity %d", sel.Quantity)
		}

		seenInstances := make(map[int]struct{}, len(sel.Instances))
		for j, inst := range sel.Instances {
			instField := field + ".instances[" + strconv.Itoa(j) + "]"
			if inst.InstanceNumber < 1 || inst.InstanceNumber > sel.Quantity {
				errs.add(instField+".instanceNumber", "must be between 1 and %d", sel.Quantity)
			}
			if _, dup := seenInstances[inst.InstanceNumber]; dup {
				errs.add(instField+".instanceNumber", "duplicates instance %d", inst.InstanceNumber)
			}
			seenInstances[inst.InstanceNumber] = struct{}{}
			for k, v := range inst.Values {
				if strings.TrimSpace(v.FieldName) == "" {
					errs.add(instField+".values["+strconv.Itoa(k)+"].fieldName", "is required")
				}
			}
		}
	}
	return errs.err()
}

// toSelectedServices numbers instances that arrive without an explicit
// instanceNumber by their position.
func toSelectedServices(in []SelectedServiceInput) []SelectedService {
	out := make([]SelectedService, 0, len(in))
	for _, sel := range in {
		instances := make([]ServiceInstance, 0, len(sel.Instances))
		for i, inst := range sel.Instances {
			number := inst.InstanceNumber
			if number == 0 {
				number = i + 1
			}
			values := make([]ServiceInstanceValue, 0, len(inst.Values))
			for _, v := range inst.Values {
				values = append(values, ServiceInstanceValue{
					FieldName:  strings.TrimSpace(v.FieldName),
					FieldValue: v.FieldValue,
				})
			}
			instances = append(instances, ServiceInstance{
				InstanceNumber: number,
				Notes:          inst.Notes,
				Values:         values,
			})
		}
		out = append(out, SelectedService{
			ServiceID: sel.ServiceID,
			Quantity:  sel.Quantity,
			Instances: instances,
		})
	}
	return out
}

type CreateServiceRequestRequest struct {
	ClientName       string                 `json:"clientName"`
	ClientEmail      string                 `json:"clientEmail"`
	ClientPhone      string                 `json:"clientPhone"`
	Company          string                 `json:"company"`
	ProjectName      string                 `json:"projectName"`
	Location         string                 `json:"location"`
	Description      string                 `json:"description"`
	SelectedServices []SelectedServiceInput `json:"selectedServices"`
}

func (r CreateServiceRequestRequest) ToServiceRequest() ServiceRequest {
	return ServiceRequest{
		ClientName:       strings.TrimSpace(r.ClientName),
		ClientEmail:      NormalizeEmail(r.ClientEmail),
		ClientPhone:      strings.TrimSpace(r.ClientPhone),
		Company:          strings.TrimSpace(r.Company),
		ProjectName:      strings.TrimSpace(r.ProjectName),
		Location:         strings.TrimSpace(r.Location),
		Description:      r.Description,
		Status:           RequestStatusPending,
		SelectedServices: toSelectedServices(r.SelectedServices),
	}
}

type UpdateServiceRequestRequest struct {
	ClientName       *string                 `json:"clientName"`
	ClientEmail      *string                 `json:"clientEmail"`
	ClientPhone      *string                 `json:"clientPhone"`
	Company          *string                 `json:"company"`
	ProjectName      *string                 `json:"projectName"`
	Location         *string                 `json:"location"`
	Description      *string                 `json:"description"`
	SelectedServices *[]SelectedServiceInput `json:"selectedServices"`
}

func (r UpdateServiceRequestRequest) Apply(sr ServiceRequest) ServiceRequest {
	if r.ClientName != nil {
		sr.ClientName = strings.TrimSpace(*r.ClientName)
	}
	if r.ClientEmail != nil {
		sr.ClientEmail = NormalizeEmail(*r.ClientEmail)
	}
	if r.ClientPhone != nil {
		sr.ClientPhone = strings.TrimSpace(*r.ClientPhone)
	}
	if r.Company != nil {
		sr.Company = strings.TrimSpace(*r.Company)
	}
	if r.ProjectName != nil {
		sr.ProjectName = strings.TrimSpace(*r.ProjectName)
	}
	if r.Location != nil {
		sr.Location = strings.TrimSpace(*r.Location)
	}
	if r.Description != nil {
		sr.Description = *r.Description
	}
	if r.SelectedServices != nil {
		sr.SelectedServices = toSelectedServices(*r.SelectedServices)
	}
	return sr
}

func (r UpdateServiceRequestRequest) ReplacesServices() bool {
	return r.SelectedServices != nil
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type ServiceRequestFilter struct {
	Status    string
	CreatedBy *int64
	Search    string
}
