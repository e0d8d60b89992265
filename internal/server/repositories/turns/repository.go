// Package turns declares the repository contract for the append-only turn log.
package turns

import (
	"context"

	"github.com/akimychev/converse/internal/server/models"
)

type Repository interface {
	// Append adds a turn to the session's log, assigning the next seq value.
	// Turns are never updated or reordered after that.
	Append(ctx context.Context, turn *models.Turn) error

	// ListBySession returns the session's full turn log in seq order.
	ListBySession(ctx context.Context, sessionID string) ([]*models.Turn, error)

	// CountBySession returns the number of turns in the session's log.
	CountBySession(ctx context.Context, sessionID string) (int64, error)
}
