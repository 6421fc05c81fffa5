package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/classtrack-api/internal/dto"
	"github.com/noah-isme/classtrack-api/internal/models"
	"github.com/noah-isme/classtrack-api/internal/repository"
	appErrors "github.com/noah-isme/classtrack-api/pkg/errors"
)

type userStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	Update(ctx context.Context, id string, expectedVersion int64, patch models.UserPatch) (*models.User, error)
	Delete(ctx context.Context, id string, expectedVersion int64) error
}

// UserService orchestrates versioned user CRUD. The password hash and reset
// token are system fields: create hashes the incoming password, and partial
// updates cannot touch either.
type UserService struct {
	repo      userStore
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService constructs the service.
func NewUserService(repo userStore, validate *validator.Validate, logger *zap.Logger) *UserService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{repo: repo, validator: validate, logger: logger}
}

// Create validates the request, hashes the password, and persists the user.
func (s *UserService) Create(ctx context.Context, req dto.CreateUserRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}
	role := models.UserRole(req.Role)
	if !role.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid role")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	user := &models.User{
		Email:        req.Email,
		PasswordHash: string(hash),
		FullName:     req.FullName,
		Role:         role,
		Active:       true,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}
	return user, nil
}

// Get returns a user by id.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// List returns users with pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	return users, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Update applies a partial payload under the compare-and-swap discipline.
func (s *UserService) Update(ctx context.Context, id string, expectedVersion int64, patch models.UserPatch) (*models.User, error) {
	if expectedVersion < 1 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "expected_version must be at least 1")
	}
	if patch.Role != nil && !patch.Role.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid role")
	}
	if patch.Email != nil {
		if err := s.validator.Var(*patch.Email, "required,email"); err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid email")
		}
	}
	user, err := s.repo.Update(ctx, id, expectedVersion, patch)
	if err != nil {
		return nil, s.mapWriteError(err, "failed to update user")
	}
	return user, nil
}

// Delete removes a user under the same versioned discipline.
func (s *UserService) Delete(ctx context.Context, id string, expectedVersion int64) error {
	if expectedVersion < 1 {
		return appErrors.Clone(appErrors.ErrValidation, "expected_version must be at least 1")
	}
	if err := s.repo.Delete(ctx, id, expectedVersion); err != nil {
		return s.mapWriteError(err, "failed to delete user")
	}
	return nil
}

func (s *UserService) mapWriteError(err error, message string) error {
	switch {
	case errors.Is(err, repository.ErrVersionConflict):
		return appErrors.Conflict("user")
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.ErrNotFound
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
	}
}
