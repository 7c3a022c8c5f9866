package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"geotech-lab-api/internal/event"
	"geotech-lab-api/internal/model"
	"geotech-lab-api/pkg/apierror"
)

const requestNumberAttempts = 3

type ServiceRequestStore interface {
	FindByID(ctx context.Context, id int64) (model.ServiceRequest, error)
	List(ctx context.Context, filter model.ServiceRequestFilter, page model.Pagination) ([]model.ServiceRequest, int, error)
	Create(ctx context.Context, sr model.ServiceRequest) (model.ServiceRequest, error)
	Update(ctx context.Context, id int64, replaceServices bool, mutate func(model.ServiceRequest) (model.ServiceRequest, error)) (model.ServiceRequest, error)
	Delete(ctx context.Context, id int64) error
}

type CatalogStore interface {
	List(ctx context.Context, activeOnly bool) ([]model.CatalogService, error)
	FindByIDs(ctx context.Context, ids []int64) (map[int64]model.CatalogService, error)
}

type StatusChange struct {
	ID            int64  `json:"id"`
	RequestNumber string `json:"requestNumber"`
	From          string `json:"from"`
	To            string `json:"to"`
}

type ServiceRequestService struct {
	requests ServiceRequestStore
	catalog  CatalogStore
	bus      event.Bus
	now      func() time.Time
}

func NewServiceRequestService(requests ServiceRequestStore, catalog CatalogStore, bus event.Bus) *ServiceRequestService {
	return &ServiceRequestService{
		requests: requests,
		catalog:  catalog,
		bus:      bus,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// List scopes clients to the requests they created themselves.
func (s *ServiceRequestService) List(ctx context.Context, actor model.Identity, filter model.ServiceRequestFilter, page model.Pagination) ([]model.ServiceRequest, *model.Meta, error) {
	page = page.Normalize()
	filter.Status = strings.ToLower(strings.TrimSpace(filter.Status))
	if filter.Status != "" && !model.ValidRequestStatus(filter.Status) {
		return nil, nil, apierror.BadRequest("invalid status filter", filter.Status)
	}
	if actor.Role == model.RoleClient {
		filter.CreatedBy = &actor.UserID
	}

	requests, total, err := s.requests.List(ctx, filter, page)
	if err != nil {
		return nil, nil, err
	}
	return requests, model.NewMeta(page, total), nil
}

func (s *ServiceRequestService) Get(ctx context.Context, actor model.Identity, id int64) (model.ServiceRequest, error) {
	sr, err := s.requests.FindByID(ctx, id)
	if err != nil {
		return model.ServiceRequest{}, err
	}
	if !canSee(actor, sr) {
		return model.ServiceRequest{}, apierror.NotFound("service request", int64String(id))
	}
	return sr, nil
}

func (s *ServiceRequestService) Create(ctx context.Context, actor model.Identity, req model.CreateServiceRequestRequest) (model.ServiceRequest, error) {
	sr := req.ToServiceRequest()
	sr.CreatedBy = &actor.UserID
	if err := sr.Validate(); err != nil {
		return model.ServiceRequest{}, err
	}
	if err := s.checkCatalog(ctx, sr.SelectedServices); err != nil {
		return model.ServiceRequest{}, err
	}

	var created model.ServiceRequest
	for attempt := 1; ; attempt++ {
		suffix, err := randomToken(3)
		if err != nil {
			return model.ServiceRequest{}, err
		}
		sr.RequestNumber = model.NewRequestNumber(s.now(), suffix)

		created, err = s.requests.Create(ctx, sr)
		if err == nil {
			break
		}
		if attempt >= requestNumberAttempts || !isRequestNumberClash(err) {
			return model.ServiceRequest{}, err
		}
	}

	s.bus.Publish(event.New(event.TypeServiceRequestCreated, created, actor.UserID))
	return created, nil
}

// Update edits an open request. When selectedServices is present the
// whole service tree is replaced.
func (s *ServiceRequestService) Update(ctx context.Context, actor model.Identity, id int64, req model.UpdateServiceRequestRequest) (model.ServiceRequest, error) {
	if req.ReplacesServices() {
		candidate := req.Apply(model.ServiceRequest{})
		if err := s.checkCatalog(ctx, candidate.SelectedServices); err != nil {
			return model.ServiceRequest{}, err
		}
	}

	updated, err := s.requests.Update(ctx, id, req.ReplacesServices(), func(current model.ServiceRequest) (model.ServiceRequest, error) {
		if isClosed(current.Status) {
			return model.ServiceRequest{}, apierror.Conflict("service request is closed", current.Status)
		}
		next := req.Apply(current)
		if err := next.Validate(); err != nil {
			return model.ServiceRequest{}, err
		}
		return next, nil
	})
	if err != nil {
		return model.ServiceRequest{}, err
	}

	s.bus.Publish(event.New(event.TypeServiceRequestUpdated, updated, actor.UserID))
	return updated, nil
}

func (s *ServiceRequestService) UpdateStatus(ctx context.Context, actor model.Identity, id int64, req model.UpdateStatusRequest) (model.ServiceRequest, error) {
	to := strings.ToLower(strings.TrimSpace(req.Status))
	if !model.ValidRequestStatus(to) {
		return model.ServiceRequest{}, apierror.Validation("invalid status", to)
	}

	var from string
	updated, err := s.requests.Update(ctx, id, false, func(current model.ServiceRequest) (model.ServiceRequest, error) {
		from = current.Status
		if !model.CanTransition(from, to) {
			return model.ServiceRequest{}, apierror.Conflict("invalid status transition", fmt.Sprintf("%s -> %s", from, to))
		}
		current.Status = to
		return current, nil
	})
	if err != nil {
		return model.ServiceRequest{}, err
	}

	s.bus.Publish(event.New(event.TypeServiceRequestStatusChanged, StatusChange{
		ID:            updated.ID,
		RequestNumber: updated.RequestNumber,
		From:          from,
		To:            to,
	}, actor.UserID))
	return updated, nil
}

func (s *ServiceRequestService) Delete(ctx context.Context, actor model.Identity, id int64) error {
	if err := s.requests.Delete(ctx, id); err != nil {
		return err
	}

	s.bus.Publish(event.New(event.TypeServiceRequestDeleted, map[string]int64{"id": id}, actor.UserID))
	return nil
}

// checkCatalog rejects unknown or retired services and instances that
// leave a required additional field empty.
func (s *ServiceRequestService) checkCatalog(ctx context.Context, selected []model.SelectedService) error {
	if len(selected) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(selected))
	for _, sel := range selected {
		ids = append(ids, sel.ServiceID)
	}

	services, err := s.catalog.FindByIDs(ctx, ids)
	if err != nil {
		return err
	}

	var problems []string
	for i, sel := range selected {
		svc, ok := services[sel.ServiceID]
		switch {
		case !ok:
			problems = append(problems, fmt.Sprintf("selectedServices[%d].serviceId: unknown service %d", i, sel.ServiceID))
			continue
		case !svc.IsActive:
			problems = append(problems, fmt.Sprintf("selectedServices[%d].serviceId: service %s is not offered", i, svc.Code))
			continue
		}

		for j, inst := range sel.Instances {
			if missing := svc.MissingRequiredFields(inst.Values); len(missing) > 0 {
				problems = append(problems, fmt.Sprintf("selectedServices[%d].instances[%d]: missing %s",
					i, j, strings.Join(missing, ", ")))
			}
		}
	}

	if len(problems) > 0 {
		return apierror.Validation("invalid request body", strings.Join(problems, "; "))
	}
	return nil
}

func canSee(actor model.Identity, sr model.ServiceRequest) bool {
	if actor.Role != model.RoleClient {
		return true
	}
	return sr.CreatedBy != nil && *sr.CreatedBy == actor.UserID
}

func isClosed(status string) bool {
	switch status {
	case model.RequestStatusCompleted, model.RequestStatusRejected, model.RequestStatusCancelled:
		return true
	}
	return false
}

func isRequestNumberClash(err error) bool {
	apiErr, ok := apierror.As(err)
	return ok && apiErr.Code == "CONFLICT" && strings.Contains(apiErr.Details, "request_number")
}

type CatalogService struct {
	catalog CatalogStore
}

func NewCatalogService(catalog CatalogStore) *CatalogService {
	return &CatalogService{catalog: catalog}
}

func (s *CatalogService) List(ctx context.Context, includeInactive bool) ([]model.CatalogService, error) {
	return s.catalog.List(ctx, !includeInactive)
}
