package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"geotech-lab-api/internal/database"
	"geotech-lab-api/internal/model"
	"geotech-lab-api/pkg/apierror"
)

const apiqueColumns = `id, project_id, apique_number, location, depth,
	to_char(excavation_date, 'YYYY-MM-DD'), collapse, description, created_at, updated_at`

const apiqueLayerColumns = `id, apique_id, layer_number, thickness, soil_description, sample_id, observation`

// ApiqueRepository writes an apique and its layers as one unit.
type ApiqueRepository struct {
	db Pool
}

func NewApiqueRepository(db Pool) *ApiqueRepository {
	return &ApiqueRepository{db: db}
}

func scanApique(row pgx.Row) (model.Apique, error) {
	var a model.Apique
	err := row.Scan(&a.ID, &a.ProjectID, &a.ApiqueNumber, &a.Location, &a.Depth,
		&a.ExcavationDate, &a.Collapse, &a.Description, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (r *ApiqueRepository) FindByID(ctx context.Context, id int64) (model.Apique, error) {
	a, err := scanApique(r.db.QueryRow(ctx, `SELECT `+apiqueColumns+` FROM apiques WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Apique{}, apierror.NotFound("apique", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return model.Apique{}, fmt.Errorf("find apique: %w", err)
	}

	layers, err := r.layersFor(ctx, []int64{id})
	if err != nil {
		return model.Apique{}, err
	}
	a.Layers = layers[id]
	if a.Layers == nil {
		a.Layers = []model.ApiqueLayer{}
	}
	return a, nil
}

func (r *ApiqueRepository) ListByProject(ctx context.Context, projectID int64) ([]model.Apique, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+apiqueColumns+` FROM apiques WHERE project_id = $1 ORDER BY apique_number`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list apiques: %w", err)
	}

	apiques := make([]model.Apique, 0)
	ids := make([]int64, 0)
	for rows.Next() {
		a, err := scanApique(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan apique: %w", err)
		}
		apiques = append(apiques, a)
		ids = append(ids, a.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list apiques: %w", err)
	}
	if len(ids) == 0 {
		return apiques, nil
	}

	layers, err := r.layersFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range apiques {
		apiques[i].Layers = layers[apiques[i].ID]
		if apiques[i].Layers == nil {
			apiques[i].Layers = []model.ApiqueLayer{}
		}
	}
	return apiques, nil
}

func (r *ApiqueRepository) layersFor(ctx context.Context, apiqueIDs []int64) (map[int64][]model.ApiqueLayer, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+apiqueLayerColumns+` FROM apique_layers
		 WHERE apique_id = ANY($1) ORDER BY apique_id, layer_number, id`, apiqueIDs)
	if err != nil {
		return nil, fmt.Errorf("load apique layers: %w", err)
	}
	defer rows.Close()

	byApique := make(map[int64][]model.ApiqueLayer, len(apiqueIDs))
	for rows.Next() {
		var l model.ApiqueLayer
		if err := rows.Scan(&l.ID, &l.ApiqueID, &l.LayerNumber, &l.Thickness,
			&l.SoilDescription, &l.SampleID, &l.Observation); err != nil {
			return nil, fmt.Errorf("scan apique layer: %w", err)
		}
		byApique[l.ApiqueID] = append(byApique[l.ApiqueID], l)
	}
	return byApique, rows.Err()
}

// Create inserts the apique and its layers in one transaction and returns
// a fresh read of what was committed.
func (r *ApiqueRepository) Create(ctx context.Context, a model.Apique) (model.Apique, error) {
	var id int64
	err := database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := ensureApiqueNumberFree(ctx, tx, a.ProjectID, a.ApiqueNumber, 0); err != nil {
			return err
		}

		now := time.Now().UTC()
		if err := tx.QueryRow(ctx,
			`INSERT INTO apiques (project_id, apique_number, location, depth, excavation_date,
			                      collapse, description, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5::date, $6, $7, $8, $8)
			 RETURNING id`,
			a.ProjectID, a.ApiqueNumber, a.Location, a.Depth, a.ExcavationDate,
			a.Collapse, a.Description, now).Scan(&id); err != nil {
			return translatePgError(err, "insert apique")
		}

		return insertApiqueLayers(ctx, tx, id, a.Layers)
	})
	if err != nil {
		return model.Apique{}, err
	}
	return r.FindByID(ctx, id)
}

// Update locks the row, lets mutate merge and validate the patch against
// the current state, then writes scalars and, when replaceLayers is set,
// swaps the whole layer set.
func (r *ApiqueRepository) Update(ctx context.Context, id int64, replaceLayers bool, mutate func(model.Apique) (model.Apique, error)) (model.Apique, error) {
	err := database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		current, err := scanApique(tx.QueryRow(ctx,
			`SELECT `+apiqueColumns+` FROM apiques WHERE id = $1 FOR UPDATE`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return apierror.NotFound("apique", strconv.FormatInt(id, 10))
		}
		if err != nil {
			return fmt.Errorf("lock apique: %w", err)
		}

		next, err := mutate(current)
		if err != nil {
			return err
		}

		if err := ensureApiqueNumberFree(ctx, tx, current.ProjectID, next.ApiqueNumber, id); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`UPDATE apiques
			 SET apique_number = $2, location = $3, depth = $4, excavation_date = $5::date,
			     collapse = $6, description = $7, updated_at = $8
			 WHERE id = $1`,
			id, next.ApiqueNumber, next.Location, next.Depth, next.ExcavationDate,
			next.Collapse, next.Description, time.Now().UTC()); err != nil {
			return translatePgError(err, "update apique")
		}

		if !replaceLayers {
			return nil
		}

		if _, err := tx.Exec(ctx, `DELETE FROM apique_layers WHERE apique_id = $1`, id); err != nil {
			return fmt.Errorf("delete apique layers: %w", err)
		}
		return insertApiqueLayers(ctx, tx, id, next.Layers)
	})
	if err != nil {
		return model.Apique{}, err
	}
	return r.FindByID(ctx, id)
}

func (r *ApiqueRepository) Delete(ctx context.Context, id int64) error {
	return database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM apique_layers WHERE apique_id = $1`, id); err != nil {
			return fmt.Errorf("delete apique layers: %w", err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM apiques WHERE id = $1`, id)
		if err != nil {
			return translateDeleteError(err, "delete apique", "apique")
		}
		if tag.RowsAffected() == 0 {
			return apierror.NotFound("apique", strconv.FormatInt(id, 10))
		}
		return nil
	})
}

func ensureApiqueNumberFree(ctx context.Context, tx DBTX, projectID int64, number int, excludeID int64) error {
	var taken bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM apiques WHERE project_id = $1 AND apique_number = $2 AND id <> $3)`,
		projectID, number, excludeID).Scan(&taken); err != nil {
		return fmt.Errorf("check apique number: %w", err)
	}
	if taken {
		return apierror.Conflict("apique number already exists in this project", "apiqueNumber="+strconv.Itoa(number))
	}
	return nil
}

func insertApiqueLayers(ctx context.Context, tx DBTX, apiqueID int64, layers []model.ApiqueLayer) error {
	for _, l := range layers {
		if _, err := tx.Exec(ctx,
			`INSERT INTO apique_layers (apique_id, layer_number, thickness, soil_description, sample_id, observation)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			apiqueID, l.LayerNumber, l.Thickness, l.SoilDescription, l.SampleID, l.Observation); err != nil {
			return translatePgError(err, "insert apique layer")
		}
	}
	return nil
}
