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

const profileColumns = `id, project_id, sounding_number, location, to_char(profile_date, 'YYYY-MM-DD'),
	water_level, total_depth, description, created_at, updated_at`

const blowColumns = `id, profile_id, depth, fill, blows6, blows12, blows18, observation`

// ProfileRepository writes an SPT profile and its blows as one unit.
type ProfileRepository struct {
	db Pool
}

func NewProfileRepository(db Pool) *ProfileRepository {
	return &ProfileRepository{db: db}
}

func scanProfile(row pgx.Row) (model.Profile, error) {
	var p model.Profile
	err := row.Scan(&p.ID, &p.ProjectID, &p.SoundingNumber, &p.Location, &p.ProfileDate,
		&p.WaterLevel, &p.TotalDepth, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *ProfileRepository) FindByID(ctx context.Context, id int64) (model.Profile, error) {
	p, err := scanProfile(r.db.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Profile{}, apierror.NotFound("profile", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return model.Profile{}, fmt.Errorf("find profile: %w", err)
	}

	blows, err := r.blowsFor(ctx, []int64{id})
	if err != nil {
		return model.Profile{}, err
	}
	p.Blows = blows[id]
	if p.Blows == nil {
		p.Blows = []model.Blow{}
	}
	return p.WithDerived(), nil
}

func (r *ProfileRepository) ListByProject(ctx context.Context, projectID int64) ([]model.Profile, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE project_id = $1 ORDER BY sounding_number`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}

	profiles := make([]model.Profile, 0)
	ids := make([]int64, 0)
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, p)
		ids = append(ids, p.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	if len(ids) == 0 {
		return profiles, nil
	}

	blows, err := r.blowsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range profiles {
		profiles[i].Blows = blows[profiles[i].ID]
		if profiles[i].Blows == nil {
			profiles[i].Blows = []model.Blow{}
		}
		profiles[i] = profiles[i].WithDerived()
	}
	return profiles, nil
}

func (r *ProfileRepository) blowsFor(ctx context.Context, profileIDs []int64) (map[int64][]model.Blow, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+blowColumns+` FROM blows
		 WHERE profile_id = ANY($1) ORDER BY profile_id, depth, id`, profileIDs)
	if err != nil {
		return nil, fmt.Errorf("load blows: %w", err)
	}
	defer rows.Close()

	byProfile := make(map[int64][]model.Blow, len(profileIDs))
	for rows.Next() {
		var b model.Blow
		if err := rows.Scan(&b.ID, &b.ProfileID, &b.Depth, &b.Fill, &b.Blows6, &b.Blows12,
			&b.Blows18, &b.Observation); err != nil {
			return nil, fmt.Errorf("scan blow: %w", err)
		}
		byProfile[b.ProfileID] = append(byProfile[b.ProfileID], b)
	}
	return byProfile, rows.Err()
}

func (r *ProfileRepository) Create(ctx context.Context, p model.Profile) (model.Profile, error) {
	var id int64
	err := database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := ensureSoundingNumberFree(ctx, tx, p.ProjectID, p.SoundingNumber, 0); err != nil {
			return err
		}

		now := time.Now().UTC()
		if err := tx.QueryRow(ctx,
			`INSERT INTO profiles (project_id, sounding_number, location, profile_date, water_level,
			                       total_depth, description, created_at, updated_at)
			 VALUES ($1, $2, $3, $4::date, $5, $6, $7, $8, $8)
			 RETURNING id`,
			p.ProjectID, p.SoundingNumber, p.Location, p.ProfileDate, p.WaterLevel,
			p.TotalDepth, p.Description, now).Scan(&id); err != nil {
			return translatePgError(err, "insert profile")
		}

		return insertBlows(ctx, tx, id, p.Blows)
	})
	if err != nil {
		return model.Profile{}, err
	}
	return r.FindByID(ctx, id)
}

func (r *ProfileRepository) Update(ctx context.Context, id int64, replaceBlows bool, mutate func(model.Profile) (model.Profile, error)) (model.Profile, error) {
	err := database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		current, err := scanProfile(tx.QueryRow(ctx,
			`SELECT `+profileColumns+` FROM profiles WHERE id = $1 FOR UPDATE`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return apierror.NotFound("profile", strconv.FormatInt(id, 10))
		}
		if err != nil {
			return fmt.Errorf("lock profile: %w", err)
		}

		next, err := mutate(current)
		if err != nil {
			return err
		}

		if err := ensureSoundingNumberFree(ctx, tx, current.ProjectID, next.SoundingNumber, id); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`UPDATE profiles
			 SET sounding_number = $2, location = $3, profile_date = $4::date, water_level = $5,
			     total_depth = $6, description = $7, updated_at = $8
			 WHERE id = $1`,
			id, next.SoundingNumber, next.Location, next.ProfileDate, next.WaterLevel,
			next.TotalDepth, next.Description, time.Now().UTC()); err != nil {
			return translatePgError(err, "update profile")
		}

		if !replaceBlows {
			return nil
		}

		if _, err := tx.Exec(ctx, `DELETE FROM blows WHERE profile_id = $1`, id); err != nil {
			return fmt.Errorf("delete blows: %w", err)
		}
		return insertBlows(ctx, tx, id, next.Blows)
	})
	if err != nil {
		return model.Profile{}, err
	}
	return r.FindByID(ctx, id)
}

func (r *ProfileRepository) Delete(ctx context.Context, id int64) error {
	return database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM blows WHERE profile_id = $1`, id); err != nil {
			return fmt.Errorf("delete blows: %w", err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM profiles WHERE id = $1`, id)
		if err != nil {
			return translateDeleteError(err, "delete profile", "profile")
		}
		if tag.RowsAffected() == 0 {
			return apierror.NotFound("profile", strconv.FormatInt(id, 10))
		}
		return nil
	})
}

func ensureSoundingNumberFree(ctx context.Context, tx DBTX, projectID int64, number int, excludeID int64) error {
	var taken bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM profiles WHERE project_id = $1 AND sounding_number = $2 AND id <> $3)`,
		projectID, number, excludeID).Scan(&taken); err != nil {
		return fmt.Errorf("check sounding number: %w", err)
	}
	if taken {
		return apierror.Conflict("sounding number already exists in this project", "soundingNumber="+strconv.Itoa(number))
	}
	return nil
}

func insertBlows(ctx context.Context, tx DBTX, profileID int64, blows []model.Blow) error {
	for _, b := range blows {
		if _, err := tx.Exec(ctx,
			`INSERT INTO blows (profile_id, depth, fill, blows6, blows12, blows18, observation)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			profileID, b.Depth, b.Fill, b.Blows6, b.Blows12, b.Blows18, b.Observation); err != nil {
			return translatePgError(err, "insert blow")
		}
	}
	return nil
}
