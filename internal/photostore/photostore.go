// Package photostore persists searchable photo metadata records.
package photostore

import (
	"context"
	"errors"

	"github.com/uulichen-sketch/PhotoMind/internal/models"
)

// ErrPhotoNotFound is returned when no record exists for the requested id.
var ErrPhotoNotFound = errors.New("photo not found")

// Store holds searchable photo records. Store upserts by id; document is the
// text indexed for similarity search.
type Store interface {
	Store(ctx context.Context, photo models.PhotoMetadata, document string) error
	Get(ctx context.Context, id string) (models.PhotoMetadata, error)
	List(ctx context.Context, limit, offset int) ([]models.PhotoMetadata, error)
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, query string, limit int) ([]models.PhotoMetadata, error)
}
