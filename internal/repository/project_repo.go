package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"geotech-lab-api/internal/model"
	"geotech-lab-api/pkg/apierror"
)

const projectColumns = `id, name, client_name, location, description, status, contract_value,
	COALESCE(to_char(start_date, 'YYYY-MM-DD'), ''), COALESCE(to_char(end_date, 'YYYY-MM-DD'), ''),
	created_at, updated_at`

type ProjectRepository struct {
	db DBTX
}

func NewProjectRepository(db DBTX) *ProjectRepository {
	return &ProjectRepository{db: db}
}

func scanProject(row pgx.Row) (model.Project, error) {
	var p model.Project
	err := row.Scan(&p.ID, &p.Name, &p.ClientName, &p.Location, &p.Description, &p.Status,
		&p.ContractValue, &p.StartDate, &p.EndDate, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *ProjectRepository) FindByID(ctx context.Context, id int64) (model.Project, error) {
	p, err := scanProject(r.db.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Project{}, apierror.NotFound("project", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return model.Project{}, fmt.Errorf("find project: %w", err)
	}
	return p, nil
}

func (r *ProjectRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM projects WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check project exists: %w", err)
	}
	return exists, nil
}

func (r *ProjectRepository) Create(ctx context.Context, p model.Project) (model.Project, error) {
	now := time.Now().UTC()
	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO projects (name, client_name, location, description, status, contract_value,
		                       start_date, end_date, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, '')::date, NULLIF($8, '')::date, $9, $9)
		 RETURNING id`,
		p.Name, p.ClientName, p.Location, p.Description, p.Status, p.ContractValue,
		p.StartDate, p.EndDate, now).Scan(&id)
	if err != nil {
		return model.Project{}, translatePgError(err, "create project")
	}
	return r.FindByID(ctx, id)
}

func (r *ProjectRepository) Update(ctx context.Context, p model.Project) (model.Project, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE projects
		 SET name = $2, client_name = $3, location = $4, description = $5, status = $6,
		     contract_value = $7, start_date = NULLIF($8, '')::date, end_date = NULLIF($9, '')::date,
		     updated_at = $10
		 WHERE id = $1`,
		p.ID, p.Name, p.ClientName, p.Location, p.Description, p.Status, p.ContractValue,
		p.StartDate, p.EndDate, time.Now().UTC())
	if err != nil {
		return model.Project{}, translatePgError(err, "update project")
	}
	if tag.RowsAffected() == 0 {
		return model.Project{}, apierror.NotFound("project", strconv.FormatInt(p.ID, 10))
	}
	return r.FindByID(ctx, p.ID)
}

// Delete refuses while apiques or profiles still reference the project.
func (r *ProjectRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return translateDeleteError(err, "delete project", "project")
	}
	if tag.RowsAffected() == 0 {
		return apierror.NotFound("project", strconv.FormatInt(id, 10))
	}
	return nil
}

func (r *ProjectRepository) List(ctx context.Context, filter model.ProjectFilter, page model.Pagination) ([]model.Project, int, error) {
	page = page.Normalize()

	where := make([]string, 0)
	args := make([]any, 0)
	argIdx := 1

	if status := strings.TrimSpace(filter.Status); status != "" {
		where = append(where, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, strings.ToLower(status))
		argIdx++
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		where = append(where, fmt.Sprintf("(lower(name) LIKE lower($%d) OR lower(client_name) LIKE lower($%d))", argIdx, argIdx))
		args = append(args, "%"+search+"%")
		argIdx++
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM projects "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count projects: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM projects %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		projectColumns, whereClause, argIdx, argIdx+1)
	args = append(args, page.Limit, page.Offset())

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	projects := make([]model.Project, 0)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, total, rows.Err()
}
