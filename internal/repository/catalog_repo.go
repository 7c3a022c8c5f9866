package repository

import (
	"context"
	"fmt"

	"geotech-lab-api/internal/model"
)

// CatalogRepository reads the seeded service catalog.
type CatalogRepository struct {
	db DBTX
}

func NewCatalogRepository(db DBTX) *CatalogRepository {
	return &CatalogRepository{db: db}
}

func (r *CatalogRepository) List(ctx context.Context, activeOnly bool) ([]model.CatalogService, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, code, name, category, description, is_active
		 FROM services
		 WHERE ($1 = FALSE OR is_active = TRUE)
		 ORDER BY category, name`, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}

	services := make([]model.CatalogService, 0)
	for rows.Next() {
		var s model.CatalogService
		if err := rows.Scan(&s.ID, &s.Code, &s.Name, &s.Category, &s.Description, &s.IsActive); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan service: %w", err)
		}
		s.AdditionalFields = []model.CatalogField{}
		services = append(services, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}

	return r.attachFields(ctx, services)
}

// FindByIDs returns the requested services keyed by id; unknown ids are
// simply absent from the map.
func (r *CatalogRepository) FindByIDs(ctx context.Context, ids []int64) (map[int64]model.CatalogService, error) {
	out := make(map[int64]model.CatalogService, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, code, name, category, description, is_active
		 FROM services WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("find services: %w", err)
	}

	services := make([]model.CatalogService, 0, len(ids))
	for rows.Next() {
		var s model.CatalogService
		if err := rows.Scan(&s.ID, &s.Code, &s.Name, &s.Category, &s.Description, &s.IsActive); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan service: %w", err)
		}
		s.AdditionalFields = []model.CatalogField{}
		services = append(services, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find services: %w", err)
	}

	services, err = r.attachFields(ctx, services)
	if err != nil {
		return nil, err
	}
	for _, s := range services {
		out[s.ID] = s
	}
	return out, nil
}

func (r *CatalogRepository) attachFields(ctx context.Context, services []model.CatalogService) ([]model.CatalogService, error) {
	if len(services) == 0 {
		return services, nil
	}

	ids := make([]int64, 0, len(services))
	index := make(map[int64]int, len(services))
	for i, s := range services {
		ids = append(ids, s.ID)
		index[s.ID] = i
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, service_id, field_name, label, field_type, required
		 FROM service_additional_fields
		 WHERE service_id = ANY($1)
		 ORDER BY service_id, id`, ids)
	if err != nil {
		return nil, fmt.Errorf("load additional fields: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var f model.CatalogField
		if err := rows.Scan(&f.ID, &f.ServiceID, &f.FieldName, &f.Label, &f.FieldType, &f.Required); err != nil {
			return nil, fmt.Errorf("scan additional field: %w", err)
		}
		if i, ok := index[f.ServiceID]; ok {
			services[i].AdditionalFields = append(services[i].AdditionalFields, f)
		}
	}
	return services, rows.Err()
}
