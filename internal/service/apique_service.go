package service

import (
	"context"

	"geotech-lab-api/internal/event"
	"geotech-lab-api/internal/model"
)

type ApiqueStore interface {
	FindByID(ctx context.Context, id int64) (model.Apique, error)
	ListByProject(ctx context.Context, projectID int64) ([]model.Apique, error)
	Create(ctx context.Context, a model.Apique) (model.Apique, error)
	Update(ctx context.Context, id int64, replaceLayers bool, mutate func(model.Apique) (model.Apique, error)) (model.Apique, error)
	Delete(ctx context.Context, id int64) error
}

type ApiqueService struct {
	apiques  ApiqueStore
	projects ProjectStore
	bus      event.Bus
}

func NewApiqueService(apiques ApiqueStore, projects ProjectStore, bus event.Bus) *ApiqueService {
	return &ApiqueService{apiques: apiques, projects: projects, bus: bus}
}

func (s *ApiqueService) ListByProject(ctx context.Context, projectID int64) ([]model.Apique, error) {
	if err := requireProject(ctx, s.projects, projectID); err != nil {
		return nil, err
	}
	return s.apiques.ListByProject(ctx, projectID)
}

func (s *ApiqueService) Get(ctx context.Context, id int64) (model.Apique, error) {
	return s.apiques.FindByID(ctx, id)
}

func (s *ApiqueService) Create(ctx context.Context, actor model.Identity, projectID int64, req model.CreateApiqueRequest) (model.Apique, error) {
	a := req.ToApique(projectID)
	if err := a.Validate(); err != nil {
		return model.Apique{}, err
	}
	if err := requireProject(ctx, s.projects, projectID); err != nil {
		return model.Apique{}, err
	}

	created, err := s.apiques.Create(ctx, a)
	if err != nil {
		return model.Apique{}, err
	}

	s.bus.Publish(event.New(event.TypeApiqueCreated, created, actor.UserID))
	return created, nil
}

// Update patches scalars; layers are replaced only when the request
// carries a layers field, even an empty one.
func (s *ApiqueService) Update(ctx context.Context, actor model.Identity, id int64, req model.UpdateApiqueRequest) (model.Apique, error) {
	updated, err := s.apiques.Update(ctx, id, req.ReplacesLayers(), func(current model.Apique) (model.Apique, error) {
		next := req.Apply(current)
		if err := next.Validate(); err != nil {
			return model.Apique{}, err
		}
		return next, nil
	})
	if err != nil {
		return model.Apique{}, err
	}

	s.bus.Publish(event.New(event.TypeApiqueUpdated, updated, actor.UserID))
	return updated, nil
}

func (s *ApiqueService) Delete(ctx context.Context, actor model.Identity, id int64) error {
	if err := s.apiques.Delete(ctx, id); err != nil {
		return err
	}

	s.bus.Publish(event.New(event.TypeApiqueDeleted, map[string]int64{"id": id}, actor.UserID))
	return nil
}
