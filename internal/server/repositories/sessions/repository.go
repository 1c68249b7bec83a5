package sessions

import (
	"context"
	"time"

	"github.com/akarpov91/chainanchor/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, session *models.Session) error
	Get(ctx context.Context, id string) (*models.Session, error)
	Delete(ctx context.Context, id string) error
	DeleteForAddress(ctx context.Context, address string) (int64, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
