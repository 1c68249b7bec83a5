package challenges

import (
	"context"
	"time"

	"github.com/akarpov91/chainanchor/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, challenge *models.Challenge) error
	Get(ctx context.Context, requestID string) (*models.Challenge, error)

	// Consume marks the challenge used, but only if it has not been used
	// before. Returns false when another verify call won the race.
	Consume(ctx context.Context, requestID string, usedAt time.Time) (bool, error)

	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
