package service

import (
	"context"
	"strings"

	"geotech-lab-api/internal/event"
	"geotech-lab-api/internal/model"
	"geotech-lab-api/pkg/apierror"
)

type ProjectStore interface {
	FindByID(ctx context.Context, id int64) (model.Project, error)
	Exists(ctx context.Context, id int64) (bool, error)
	Create(ctx context.Context, p model.Project) (model.Project, error)
	Update(ctx context.Context, p model.Project) (model.Project, error)
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, filter model.ProjectFilter, page model.Pagination) ([]model.Project, int, error)
}

type ProjectService struct {
	projects ProjectStore
	bus      event.Bus
}

func NewProjectService(projects ProjectStore, bus event.Bus) *ProjectService {
	return &ProjectService{projects: projects, bus: bus}
}

func (s *ProjectService) List(ctx context.Context, filter model.ProjectFilter, page model.Pagination) ([]model.Project, *model.Meta, error) {
	page = page.Normalize()
	if status := strings.TrimSpace(filter.Status); status != "" && !model.ValidProjectStatus(status) {
		return nil, nil, apierror.BadRequest("invalid status filter", status)
	}

	projects, total, err := s.projects.List(ctx, filter, page)
	if err != nil {
		return nil, nil, err
	}
	return projects, model.NewMeta(page, total), nil
}

func (s *ProjectService) Get(ctx context.Context, id int64) (model.Project, error) {
	return s.projects.FindByID(ctx, id)
}

func (s *ProjectService) Create(ctx context.Context, actor model.Identity, req model.CreateProjectRequest) (model.Project, error) {
	p := req.ToProject()
	if err := p.Validate(); err != nil {
		return model.Project{}, err
	}

	created, err := s.projects.Create(ctx, p)
	if err != nil {
		return model.Project{}, err
	}

	s.bus.Publish(event.New(event.TypeProjectCreated, created, actor.UserID))
	return created, nil
}

func (s *ProjectService) Update(ctx context.Context, actor model.Identity, id int64, req model.UpdateProjectRequest) (model.Project, error) {
	current, err := s.projects.FindByID(ctx, id)
	if err != nil {
		return model.Project{}, err
	}

	next := req.Apply(current)
	if err := next.Validate(); err != nil {
		return model.Project{}, err
	}

	updated, err := s.projects.Update(ctx, next)
	if err != nil {
		return model.Project{}, err
	}

	s.bus.Publish(event.New(event.TypeProjectUpdated, updated, actor.UserID))
	return updated, nil
}

func (s *ProjectService) Delete(ctx context.Context, actor model.Identity, id int64) error {
	if err := s.projects.Delete(ctx, id); err != nil {
		return err
	}

	s.bus.Publish(event.New(event.TypeProjectDeleted, map[string]int64{"id": id}, actor.UserID))
	return nil
}

// requireProject turns a missing parent project into a 404 before any
// child write is attempted.
func requireProject(ctx context.Context, projects ProjectStore, projectID int64) error {
	ok, err := projects.Exists(ctx, projectID)
	if err != nil {
		return err
	}
	if !ok {
		return apierror.NotFound("project", int64String(projectID))
	}
	return nil
}
