// Package sessions declares the repository contract for conversation threads.
package sessions

import (
	"context"

	"github.com/akimychev/converse/internal/server/models"
)

type Repository interface {
	// Create inserts a session row. Called only once the first turn of a new
	// conversation has been answered, inside the same transaction as the turn.
	Create(ctx context.Context, session *models.Session) error

	// Get returns the session row by id or common.ErrorNotFound.
	Get(ctx context.Context, id string) (*models.Session, error)

	// ListByOwner returns all sessions owned by the user, oldest first.
	ListByOwner(ctx context.Context, ownerID string) ([]*models.Session, error)

	// Delete removes the session row; its turns cascade.
	Delete(ctx context.Context, id string) error
}
