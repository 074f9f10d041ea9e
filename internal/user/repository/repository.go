package repository

import (
	"context"

	"stocktrack/backend/internal/user/domain"
)

// Repository defines persistence for users. This is the user-record store the
// auth core consumes; missing rows are (nil, nil), errors are database
// failures only.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByPhone(ctx context.Context, phone string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error
}
