package service

import (
	"context"

	"geotech-lab-api/internal/event"
	"geotech-lab-api/internal/model"
)

type ProfileStore interface {
	FindByID(ctx context.Context, id int64) (model.Profile, error)
	ListByProject(ctx context.Context, projectID int64) ([]model.Profile, error)
	Create(ctx context.Context, p model.Profile) (model.Profile, error)
	Update(ctx context.Context, id int64, replaceBlows bool, mutate func(model.Profile) (model.Profile, error)) (model.Profile, error)
	Delete(ctx context.Context, id int64) error
}

type ProfileService struct {
	profiles ProfileStore
	projects ProjectStore
	bus      event.Bus
}

func NewProfileService(profiles ProfileStore, projects ProjectStore, bus event.Bus) *ProfileService {
	return &ProfileService{profiles: profiles, projects: projects, bus: bus}
}

func (s *ProfileService) ListByProject(ctx context.Context, projectID int64) ([]model.Profile, error) {
	if err := requireProject(ctx, s.projects, projectID); err != nil {
		return nil, err
	}
	return s.profiles.ListByProject(ctx, projectID)
}

func (s *ProfileService) Get(ctx context.Context, id int64) (model.Profile, error) {
	return s.profiles.FindByID(ctx, id)
}

func (s *ProfileService) Create(ctx context.Context, actor model.Identity, projectID int64, req model.CreateProfileRequest) (model.Profile, error) {
	p := req.ToProfile(projectID)
	if err := p.Validate(); err != nil {
		return model.Profile{}, err
	}
	if err := requireProject(ctx, s.projects, projectID); err != nil {
		return model.Profile{}, err
	}

	created, err := s.profiles.Create(ctx, p)
	if err != nil {
		return model.Profile{}, err
	}

	s.bus.Publish(event.New(event.TypeProfileCreated, created, actor.UserID))
	return created, nil
}

func (s *ProfileService) Update(ctx context.Context, actor model.Identity, id int64, req model.UpdateProfileRequest) (model.Profile, error) {
	updated, err := s.profiles.Update(ctx, id, req.ReplacesBlows(), func(current model.Profile) (model.Profile, error) {
		next := req.Apply(current)
		if err := next.Validate(); err != nil {
			return model.Profile{}, err
		}
		return next, nil
	})
	if err != nil {
		return model.Profile{}, err
	}

	s.bus.Publish(event.New(event.TypeProfileUpdated, updated, actor.UserID))
	return updated, nil
}

func (s *ProfileService) Delete(ctx context.Context, actor model.Identity, id int64) error {
	if err := s.profiles.Delete(ctx, id); err != nil {
		return err
	}

	s.bus.Publish(event.New(event.TypeProfileDeleted, map[string]int64{"id": id}, actor.UserID))
	return nil
}
