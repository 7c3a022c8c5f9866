package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"geotech-lab-api/internal/model"
	"geotech-lab-api/pkg/apierror"
)

type AuthLogStore interface {
	Query(ctx context.Context, filter model.AuthLogFilter, page model.Pagination) ([]model.AuthLog, int, error)
	PurgeBefore(ctx context.Context, before time.Time) (int64, error)
}

type AuthLogService struct {
	store AuthLogStore
}

func NewAuthLogService(store AuthLogStore) *AuthLogService {
	return &AuthLogService{store: store}
}

func (s *AuthLogService) Query(ctx context.Context, query model.AuthLogQuery) ([]model.AuthLog, *model.Meta, error) {
	filter := model.AuthLogFilter{
		EventType: strings.ToLower(strings.TrimSpace(query.EventType)),
		Email:     strings.TrimSpace(query.Email),
	}

	if raw := strings.TrimSpace(query.UserID); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, nil, apierror.BadRequest("invalid 'userId' filter", raw)
		}
		filter.UserID = &id
	}

	if raw := strings.TrimSpace(query.Success); raw != "" {
		ok, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, nil, apierror.BadRequest("invalid 'success' filter", raw)
		}
		filter.Success = &ok
	}

	from, err := parseOptionalLogTime(query.From)
	if err != nil {
		return nil, nil, apierror.BadRequest("invalid 'from' datetime format", query.From)
	}
	to, err := parseOptionalLogTime(query.To)
	if err != nil {
		return nil, nil, apierror.BadRequest("invalid 'to' datetime format", query.To)
	}
	if !from.IsZero() {
		filter.From = &from
	}
	if !to.IsZero() {
		filter.To = &to
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, nil, apierror.BadRequest("'to' must not be before 'from'", "")
	}

	page := model.Pagination{Page: query.Page, Limit: query.Limit}.Normalize()
	entries, total, err := s.store.Query(ctx, filter, page)
	if err != nil {
		return nil, nil, err
	}

	return entries, model.NewMeta(page, total), nil
}

func (s *AuthLogService) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	return s.store.PurgeBefore(ctx, time.Now().UTC().Add(-retention))
}

func parseOptionalLogTime(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, nil
	}

	return parseLogTime(trimmed)
}

func parseLogTime(raw string) (time.Time, error) {
	if value, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return value.UTC(), nil
	}

	value, err := time.Parse(model.DateLayout, raw)
	if err != nil {
		return time.Time{}, err
	}

	return value.UTC(), nil
}
