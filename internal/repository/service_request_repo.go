package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"geotech-lab-api/internal/database"
	"geotech-lab-api/internal/model"
	"geotech-lab-api/pkg/apierror"
)

const serviceRequestColumns = `id, request_number, client_name, client_email, client_phone, company,
	project_name, location, description, status, created_by, created_at, updated_at`

// ServiceRequestRepository persists the three-level tree
// request -> selected services -> instances -> values.
type ServiceRequestRepository struct {
	db Pool
}

func NewServiceRequestRepository(db Pool) *ServiceRequestRepository {
	return &ServiceRequestRepository{db: db}
}

func scanServiceRequest(row pgx.Row) (model.ServiceRequest, error) {
	var sr model.ServiceRequest
	err := row.Scan(&sr.ID, &sr.RequestNumber, &sr.ClientName, &sr.ClientEmail, &sr.ClientPhone,
		&sr.Company, &sr.ProjectName, &sr.Location, &sr.Description, &sr.Status, &sr.CreatedBy,
		&sr.CreatedAt, &sr.UpdatedAt)
	return sr, err
}

func (r *ServiceRequestRepository) FindByID(ctx context.Context, id int64) (model.ServiceRequest, error) {
	sr, err := scanServiceRequest(r.db.QueryRow(ctx,
		`SELECT `+serviceRequestColumns+` FROM service_requests WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ServiceRequest{}, apierror.NotFound("service request", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return model.ServiceRequest{}, fmt.Errorf("find service request: %w", err)
	}

	trees, err := r.loadTrees(ctx, []int64{id})
	if err != nil {
		return model.ServiceRequest{}, err
	}
	sr.SelectedServices = trees[id]
	if sr.SelectedServices == nil {
		sr.SelectedServices = []model.SelectedService{}
	}
	return sr, nil
}

func (r *ServiceRequestRepository) List(ctx context.Context, filter model.ServiceRequestFilter, page model.Pagination) ([]model.ServiceRequest, int, error) {
	page = page.Normalize()

	where := make([]string, 0)
	args := make([]any, 0)
	argIdx := 1

	if status := strings.TrimSpace(filter.Status); status != "" {
		where = append(where, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, strings.ToLower(status))
		argIdx++
	}
	if filter.CreatedBy != nil {
		where = append(where, fmt.Sprintf("created_by = $%d", argIdx))
		args = append(args, *filter.CreatedBy)
		argIdx++
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		where = append(where, fmt.Sprintf(
			"(lower(client_name) LIKE lower($%d) OR lower(request_number) LIKE lower($%d) OR lower(project_name) LIKE lower($%d))",
			argIdx, argIdx, argIdx))
		args = append(args, "%"+search+"%")
		argIdx++
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM service_requests "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count service requests: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM service_requests %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		serviceRequestColumns, whereClause, argIdx, argIdx+1)
	args = append(args, page.Limit, page.Offset())

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list service requests: %w", err)
	}

	requests := make([]model.ServiceRequest, 0)
	ids := make([]int64, 0)
	for rows.Next() {
		sr, err := scanServiceRequest(rows)
		if err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("scan service request: %w", err)
		}
		requests = append(requests, sr)
		ids = append(ids, sr.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list service requests: %w", err)
	}
	if len(ids) == 0 {
		return requests, total, nil
	}

	trees, err := r.loadTrees(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range requests {
		requests[i].SelectedServices = trees[requests[i].ID]
		if requests[i].SelectedServices == nil {
			requests[i].SelectedServices = []model.SelectedService{}
		}
	}
	return requests, total, nil
}

// loadTrees reads the children of every request in requestIDs with one
// query per level.
func (r *ServiceRequestRepository) loadTrees(ctx context.Context, requestIDs []int64) (map[int64][]model.SelectedService, error) {
	selRows, err := r.db.Query(ctx,
		`SELECT ss.id, ss.request_id, ss.service_id, s.code, s.name, ss.quantity
		 FROM selected_services ss
		 JOIN services s ON s.id = ss.service_id
		 WHERE ss.request_id = ANY($1)
		 ORDER BY ss.request_id, ss.id`, requestIDs)
	if err != nil {
		return nil, fmt.Errorf("load selected services: %w", err)
	}

	selected := make([]model.SelectedService, 0)
	selectedIDs := make([]int64, 0)
	for selRows.Next() {
		var s model.SelectedService
		if err := selRows.Scan(&s.ID, &s.RequestID, &s.ServiceID, &s.ServiceCode, &s.ServiceName, &s.Quantity); err != nil {
			selRows.Close()
			return nil, fmt.Errorf("scan selected service: %w", err)
		}
		s.Instances = []model.ServiceInstance{}
		selected = append(selected, s)
		selectedIDs = append(selectedIDs, s.ID)
	}
	selRows.Close()
	if err := selRows.Err(); err != nil {
		return nil, fmt.Errorf("load selected services: %w", err)
	}

	out := make(map[int64][]model.SelectedService, len(requestIDs))
	if len(selectedIDs) == 0 {
		return out, nil
	}

	instRows, err := r.db.Query(ctx,
		`SELECT id, selected_service_id, instance_number, notes
		 FROM service_instances
		 WHERE selected_service_id = ANY($1)
		 ORDER BY selected_service_id, instance_number, id`, selectedIDs)
	if err != nil {
		return nil, fmt.Errorf("load service instances: %w", err)
	}

	instances := make([]model.ServiceInstance, 0)
	instanceIDs := make([]int64, 0)
	for instRows.Next() {
		var inst model.ServiceInstance
		if err := instRows.Scan(&inst.ID, &inst.SelectedServiceID, &inst.InstanceNumber, &inst.Notes); err != nil {
			instRows.Close()
			return nil, fmt.Errorf("scan service instance: %w", err)
		}
		inst.Values = []model.ServiceInstanceValue{}
		instances = append(instances, inst)
		instanceIDs = append(instanceIDs, inst.ID)
	}
	instRows.Close()
	if err := instRows.Err(); err != nil {
		return nil, fmt.Errorf("load service instances: %w", err)
	}

	if len(instanceIDs) > 0 {
		valRows, err := r.db.Query(ctx,
			`SELECT id, instance_id, field_name, field_value
			 FROM service_instance_values
			 WHERE instance_id = ANY($1)
			 ORDER BY instance_id, id`, instanceIDs)
		if err != nil {
			return nil, fmt.Errorf("load instance values: %w", err)
		}

		valuesByInstance := make(map[int64][]model.ServiceInstanceValue)
		for valRows.Next() {
			var v model.ServiceInstanceValue
			if err := valRows.Scan(&v.ID, &v.InstanceID, &v.FieldName, &v.FieldValue); err != nil {
				valRows.Close()
				return nil, fmt.Errorf("scan instance value: %w", err)
			}
			valuesByInstance[v.InstanceID] = append(valuesByInstance[v.InstanceID], v)
		}
		valRows.Close()
		if err := valRows.Err(); err != nil {
			return nil, fmt.Errorf("load instance values: %w", err)
		}

		for i := range instances {
			if values, ok := valuesByInstance[instances[i].ID]; ok {
				instances[i].Values = values
			}
		}
	}

	instancesBySelected := make(map[int64][]model.ServiceInstance)
	for _, inst := range instances {
		instancesBySelected[inst.SelectedServiceID] = append(instancesBySelected[inst.SelectedServiceID], inst)
	}
	for _, s := range selected {
		if insts, ok := instancesBySelected[s.ID]; ok {
			s.Instances = insts
		}
		out[s.RequestID] = append(out[s.RequestID], s)
	}
	return out, nil
}

func (r *ServiceRequestRepository) Create(ctx context.Context, sr model.ServiceRequest) (model.ServiceRequest, error) {
	var id int64
	err := database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		now := time.Now().UTC()
		if err := tx.QueryRow(ctx,
			`INSERT INTO service_requests (request_number, client_name, client_email, client_phone, company,
			                               project_name, location, description, status, created_by,
			                               created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
			 RETURNING id`,
			sr.RequestNumber, sr.ClientName, sr.ClientEmail, sr.ClientPhone, sr.Company,
			sr.ProjectName, sr.Location, sr.Description, sr.Status, sr.CreatedBy, now).Scan(&id); err != nil {
			return translatePgError(err, "insert service request")
		}

		return insertSelectedServices(ctx, tx, id, sr.SelectedServices)
	})
	if err != nil {
		return model.ServiceRequest{}, err
	}
	return r.FindByID(ctx, id)
}

// Update follows the same lock, mutate, write sequence as the other
// nested writers; replaceServices swaps the whole tree.
func (r *ServiceRequestRepository) Update(ctx context.Context, id int64, replaceServices bool, mutate func(model.ServiceRequest) (model.ServiceRequest, error)) (model.ServiceRequest, error) {
	err := database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		current, err := scanServiceRequest(tx.QueryRow(ctx,
			`SELECT `+serviceRequestColumns+` FROM service_requests WHERE id = $1 FOR UPDATE`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return apierror.NotFound("service request", strconv.FormatInt(id, 10))
		}
		if err != nil {
			return fmt.Errorf("lock service request: %w", err)
		}

		next, err := mutate(current)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`UPDATE service_requests
			 SET client_name = $2, client_email = $3, client_phone = $4, company = $5,
			     project_name = $6, location = $7, description = $8, status = $9, updated_at = $10
			 WHERE id = $1`,
			id, next.ClientName, next.ClientEmail, next.ClientPhone, next.Company,
			next.ProjectName, next.Location, next.Description, next.Status, time.Now().UTC()); err != nil {
			return translatePgError(err, "update service request")
		}

		if !replaceServices {
			return nil
		}

		if err := deleteServiceTree(ctx, tx, id); err != nil {
			return err
		}
		return insertSelectedServices(ctx, tx, id, next.SelectedServices)
	})
	if err != nil {
		return model.ServiceRequest{}, err
	}
	return r.FindByID(ctx, id)
}

func (r *ServiceRequestRepository) Delete(ctx context.Context, id int64) error {
	return database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := deleteServiceTree(ctx, tx, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM service_requests WHERE id = $1`, id)
		if err != nil {
			return translateDeleteError(err, "delete service request", "service request")
		}
		if tag.RowsAffected() == 0 {
			return apierror.NotFound("service request", strconv.FormatInt(id, 10))
		}
		return nil
	})
}

// deleteServiceTree removes grandchildren before children so no foreign
// key is ever left dangling.
func deleteServiceTree(ctx context.Context, tx DBTX, requestID int64) error {
	if _, err := tx.Exec(ctx,
		`DELETE FROM service_instance_values WHERE instance_id IN (
		     SELECT si.id FROM service_instances si
		     JOIN selected_services ss ON ss.id = si.selected_service_id
		     WHERE ss.request_id = $1)`, requestID); err != nil {
		return fmt.Errorf("delete instance values: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM service_instances WHERE selected_service_id IN (
		     SELECT id FROM selected_services WHERE request_id = $1)`, requestID); err != nil {
		return fmt.Errorf("delete service instances: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM selected_services WHERE request_id = $1`, requestID); err != nil {
		return fmt.Errorf("delete selected services: %w", err)
	}
	return nil
}

func insertSelectedServices(ctx context.Context, tx DBTX, requestID int64, selected []model.SelectedService) error {
	for _, s := range selected {
		var selectedID int64
		if err := tx.QueryRow(ctx,
			`INSERT INTO selected_services (request_id, service_id, quantity)
			 VALUES ($1, $2, $3) RETURNING id`,
			requestID, s.ServiceID, s.Quantity).Scan(&selectedID); err != nil {
			return translatePgError(err, "insert selected service")
		}

		for _, inst := range s.Instances {
			var instanceID int64
			if err := tx.QueryRow(ctx,
				`INSERT INTO service_instances (selected_service_id, instance_number, notes)
				 VALUES ($1, $2, $3) RETURNING id`,
				selectedID, inst.InstanceNumber, inst.Notes).Scan(&instanceID); err != nil {
				return translatePgError(err, "insert service instance")
			}

			for _, v := range inst.Values {
				if _, err := tx.Exec(ctx,
					`INSERT INTO service_instance_values (instance_id, field_name, field_value)
					 VALUES ($1, $2, $3)`,
					instanceID, v.FieldName, v.FieldValue); err != nil {
					return translatePgError(err, "insert instance value")
				}
			}
		}
	}
	return nil
}
