package service

import (
	"context"
	"strings"

	"geotech-lab-api/internal/model"
	"geotech-lab-api/pkg/apierror"
)

type UserDirectory interface {
	FindByID(ctx context.Context, id int64) (model.User, error)
	Update(ctx context.Context, u model.User) error
	List(ctx context.Context, filter model.UserFilter, page model.Pagination) ([]model.User, int, error)
}

// UserRevoker ends every credential a user holds.
type UserRevoker interface {
	RevokeUser(ctx context.Context, userID int64, reason string)
}

type UserService struct {
	users   UserDirectory
	revoker UserRevoker
	lockout *LockoutTracker
	logs    AuthLogWriter
}

func NewUserService(users UserDirectory, revoker UserRevoker, lockout *LockoutTracker, logs AuthLogWriter) *UserService {
	return &UserService{users: users, revoker: revoker, lockout: lockout, logs: logs}
}

func (s *UserService) List(ctx context.Context, filter model.UserFilter, page model.Pagination) ([]model.User, *model.Meta, error) {
	page = page.Normalize()
	if role := strings.ToLower(strings.TrimSpace(filter.Role)); role != "" && !model.ValidRole(role) {
		return nil, nil, apierror.BadRequest("invalid role filter", role)
	}

	users, total, err := s.users.List(ctx, filter, page)
	if err != nil {
		return nil, nil, err
	}
	return users, model.NewMeta(page, total), nil
}

func (s *UserService) Get(ctx context.Context, id int64) (model.User, error) {
	return s.users.FindByID(ctx, id)
}

// Update applies an admin patch. Deactivating an account or changing its
// role ends all of its sessions.
func (s *UserService) Update(ctx context.Context, actor model.Identity, id int64, patch model.UserPatch) (model.User, error) {
	current, err := s.users.FindByID(ctx, id)
	if err != nil {
		return model.User{}, err
	}

	next := patch.Apply(current)
	if next.Name == "" {
		return model.User{}, apierror.Validation("name cannot be empty", "name")
	}
	if !model.ValidRole(next.Role) {
		return model.User{}, apierror.Validation("invalid role", next.Role)
	}
	if actor.UserID == id && (!next.IsActive || next.Role != current.Role) {
		return model.User{}, apierror.Forbidden("admins cannot deactivate or demote themselves")
	}

	if err := s.users.Update(ctx, next); err != nil {
		return model.User{}, err
	}

	switch {
	case current.IsActive && !next.IsActive:
		s.revoker.RevokeUser(ctx, id, model.LogoutReasonDeactivated)
	case current.Role != next.Role:
		s.revoker.RevokeUser(ctx, id, model.LogoutReasonRevoked)
	}

	return s.users.FindByID(ctx, id)
}

func (s *UserService) Unlock(ctx context.Context, actor model.Identity, id int64, meta model.ClientMeta) (model.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return model.User{}, err
	}

	if err := s.lockout.Reset(ctx, user.Email); err != nil {
		return model.User{}, err
	}

	if s.logs != nil {
		_ = s.logs.Append(ctx, model.AuthLog{
			EventType: model.AuthEventUserUnlocked,
			UserID:    &user.ID,
			Email:     user.Email,
			IPAddress: meta.IPAddress,
			UserAgent: meta.UserAgent,
			Success:   true,
			Metadata:  map[string]any{"unlockedBy": actor.UserID},
		})
	}

	return s.users.FindByID(ctx, id)
}
