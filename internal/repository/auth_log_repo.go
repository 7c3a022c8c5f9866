package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"geotech-lab-api/internal/model"
)

// AuthLogRepository is append-only apart from the retention purge.
type AuthLogRepository struct {
	db DBTX
}

func NewAuthLogRepository(db DBTX) *AuthLogRepository {
	return &AuthLogRepository{db: db}
}

func (r *AuthLogRepository) Append(ctx context.Context, entry model.AuthLog) error {
	var metadata []byte
	if len(entry.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("marshal auth log metadata: %w", err)
		}
	}

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO auth_logs (event_type, user_id, email, ip_address, user_agent, success, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.EventType, entry.UserID, entry.Email, entry.IPAddress, entry.UserAgent,
		entry.Success, metadata, createdAt)
	if err != nil {
		return fmt.Errorf("append auth log: %w", err)
	}
	return nil
}

func (r *AuthLogRepository) Query(ctx context.Context, filter model.AuthLogFilter, page model.Pagination) ([]model.AuthLog, int, error) {
	page = page.Normalize()

	where := make([]string, 0)
	args := make([]any, 0)
	argIdx := 1

	if eventType := strings.TrimSpace(filter.EventType); eventType != "" {
		where = append(where, fmt.Sprintf("event_type = $%d", argIdx))
		args = append(args, strings.ToLower(eventType))
		argIdx++
	}
	if filter.UserID != nil {
		where = append(where, fmt.Sprintf("user_id = $%d", argIdx))
		args = append(args, *filter.UserID)
		argIdx++
	}
	if email := strings.TrimSpace(filter.Email); email != "" {
		where = append(where, fmt.Sprintf("lower(email) = lower($%d)", argIdx))
		args = append(args, email)
		argIdx++
	}
	if filter.Success != nil {
		where = append(where, fmt.Sprintf("success = $%d", argIdx))
		args = append(args, *filter.Success)
		argIdx++
	}
	if filter.From != nil {
		where = append(where, fmt.Sprintf("created_at >= $%d", argIdx))
		args = append(args, *filter.From)
		argIdx++
	}
	if filter.To != nil {
		where = append(where, fmt.Sprintf("created_at <= $%d", argIdx))
		args = append(args, *filter.To)
		argIdx++
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM auth_logs "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count auth logs: %w", err)
	}

	dataQuery := fmt.Sprintf(
		`SELECT id, event_type, user_id, email, ip_address, user_agent, success, metadata, created_at
		 FROM auth_logs %s
		 ORDER BY created_at DESC, id DESC
		 LIMIT $%d OFFSET $%d`, whereClause, argIdx, argIdx+1)
	args = append(args, page.Limit, page.Offset())

	rows, err := r.db.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query auth logs: %w", err)
	}
	defer rows.Close()

	entries := make([]model.AuthLog, 0)
	for rows.Next() {
		var e model.AuthLog
		var metadata []byte
		if err := rows.Scan(&e.ID, &e.EventType, &e.UserID, &e.Email, &e.IPAddress, &e.UserAgent,
			&e.Success, &metadata, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan auth log: %w", err)
		}
		if len(metadata) > 0 {
			if jsonErr := json.Unmarshal(metadata, &e.Metadata); jsonErr != nil {
				e.Metadata = nil
			}
		}
		entries = append(entries, e)
	}

	return entries, total, rows.Err()
}

func (r *AuthLogRepository) PurgeBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM auth_logs WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("purge auth logs: %w", err)
	}
	return tag.RowsAffected(), nil
}
