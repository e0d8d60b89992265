// Package users declares the server-side repository contract for account rows.
package users

import (
	"context"

	"github.com/akimychev/converse/internal/server/models"
)

type Repository interface {
	// Create inserts a new user. A username or email collision returns
	// common.ErrorAlreadyExists.
	Create(ctx context.Context, user *models.User) (*models.User, error)

	// GetByUsername looks a user up by username.
	GetByUsername(ctx context.Context, username string) (*models.User, error)

	// GetByEmail looks a user up by email.
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// GetByID looks a user up by id.
	GetByID(ctx context.Context, id string) (*models.User, error)

	// Delete removes the user row. Owned sessions and turns go with it via
	// foreign-key cascade.
	Delete(ctx context.Context, id string) error
}
