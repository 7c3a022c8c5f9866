package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geotech-lab-api/internal/event"
	"geotech-lab-api/internal/model"
	"geotech-lab-api/pkg/apierror"
)

type fakeProjects struct {
	ids map[int64]bool
}

func (f *fakeProjects) FindByID(_ context.Context, id int64) (model.Project, error) {
	if !f.ids[id] {
		return model.Project{}, apierror.NotFound("project", int64String(id))
	}
	return model.Project{ID: id, Name: "P", Status: model.ProjectStatusActive}, nil
}

func (f *fakeProjects) Exists(_ context.Context, id int64) (bool, error) {
	return f.ids[id], nil
}

func (f *fakeProjects) Create(_ context.Context, p model.Project) (model.Project, error) {
	p.ID = 10
	return p, nil
}

func (f *fakeProjects) Update(_ context.Context, p model.Project) (model.Project, error) {
	return p, nil
}

func (f *fakeProjects) Delete(_ context.Context, id int64) error {
	if !f.ids[id] {
		return apierror.NotFound("project", int64String(id))
	}
	delete(f.ids, id)
	return nil
}

func (f *fakeProjects) List(_ context.Context, _ model.ProjectFilter, _ model.Pagination) ([]model.Project, int, error) {
	return []model.Project{}, 0, nil
}

// fakeApiques mimics the repository contract: mutate sees the scalar row
// only and layers change only when replace is set.
type fakeApiques struct {
	stored  map[int64]model.Apique
	creates int
}

func (f *fakeApiques) FindByID(_ context.Context, id int64) (model.Apique, error) {
	a, ok := f.stored[id]
	if !ok {
		return model.Apique{}, apierror.NotFound("apique", int64String(id))
	}
	return a, nil
}

func (f *fakeApiques) ListByProject(_ context.Context, projectID int64) ([]model.Apique, error) {
	out := make([]model.Apique, 0)
	for _, a := range f.stored {
		if a.ProjectID == projectID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeApiques) Create(_ context.Context, a model.Apique) (model.Apique, error) {
	f.creates++
	a.ID = int64(len(f.stored) + 1)
	f.stored[a.ID] = a
	return a, nil
}

func (f *fakeApiques) Update(_ context.Context, id int64, replace bool, mutate func(model.Apique) (model.Apique, error)) (model.Apique, error) {
	current, ok := f.stored[id]
	if !ok {
		return model.Apique{}, apierror.NotFound("apique", int64String(id))
	}
	row := current
	row.Layers = nil
	next, err := mutate(row)
	if err != nil {
		return model.Apique{}, err
	}
	if !replace {
		next.Layers = current.Layers
	}
	f.stored[id] = next
	return next, nil
}

func (f *fakeApiques) Delete(_ context.Context, id int64) error {
	delete(f.stored, id)
	return nil
}

func TestApiqueCreateRequiresExistingProject(t *testing.T) {
	apiques := &fakeApiques{stored: map[int64]model.Apique{}}
	bus := &recordingBus{}
	svc := NewApiqueService(apiques, &fakeProjects{ids: map[int64]bool{1: true}}, bus)
	ctx := context.Background()

	req := model.CreateApiqueRequest{ApiqueNumber: 1, Depth: 2.5, ExcavationDate: "2024-02-10", Layers: []model.ApiqueLayerInput{
		{LayerNumber: 1, Thickness: 0.4, SoilDescription: "organic topsoil"},
	}}

	_, err := svc.Create(ctx, labActor, 7, req)
	assert.True(t, apierror.HasCode(err, "NOT_FOUND"))
	assert.Zero(t, apiques.creates)

	created, err := svc.Create(ctx, labActor, 1, req)
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.ProjectID)
	assert.Equal(t, []event.Type{event.TypeApiqueCreated}, bus.types())
}

func TestApiqueCreateValidatesBeforeWriting(t *testing.T) {
	apiques := &fakeApiques{stored: map[int64]model.Apique{}}
	svc := NewApiqueService(apiques, &fakeProjects{ids: map[int64]bool{1: true}}, &recordingBus{})

	_, err := svc.Create(context.Background(), labActor, 1, model.CreateApiqueRequest{
		ApiqueNumber:   1,
		ExcavationDate: "2024-02-10",
		Layers:         []model.ApiqueLayerInput{{LayerNumber: 1, Thickness: 0}},
	})
	assert.True(t, apierror.HasCode(err, "VALIDATION_ERROR"))
	assert.Zero(t, apiques.creates)
}

func TestApiqueUpdateKeepsLayersWhenOmitted(t *testing.T) {
	layers := []model.ApiqueLayer{{ID: 1, LayerNumber: 1, Thickness: 0.5}}
	apiques := &fakeApiques{stored: map[int64]model.Apique{
		5: {ID: 5, ProjectID: 1, ApiqueNumber: 3, ExcavationDate: "2024-02-10", Layers: layers},
	}}
	bus := &recordingBus{}
	svc := NewApiqueService(apiques, &fakeProjects{ids: map[int64]bool{1: true}}, bus)
	ctx := context.Background()

	location := "north bank"
	updated, err := svc.Update(ctx, labActor, 5, model.UpdateApiqueRequest{Location: &location})
	require.NoError(t, err)
	assert.Equal(t, "north bank", updated.Location)
	assert.Equal(t, layers, updated.Layers)

	bad := []model.ApiqueLayerInput{{LayerNumber: 1, Thickness: 1}, {LayerNumber: 1, Thickness: 2}}
	_, err = svc.Update(ctx, labActor, 5, model.UpdateApiqueRequest{Layers: &bad})
	assert.True(t, apierror.HasCode(err, "VALIDATION_ERROR"))
	assert.Equal(t, layers, apiques.stored[5].Layers)

	_, err = svc.Update(ctx, labActor, 99, model.UpdateApiqueRequest{Location: &location})
	assert.True(t, apierror.HasCode(err, "NOT_FOUND"))

	assert.Equal(t, []event.Type{event.TypeApiqueUpdated}, bus.types())
}
