package entries

import (
	"context"

	"github.com/dmitrijs2005/keeperlink/internal/models"
)

// Repository describes CRUD and query operations for Entry objects.
type Repository interface {
	// Put inserts a new entry or replaces an existing one by ID.
	Put(ctx context.Context, entry *models.Entry) error

	// GetByID returns an entry by its identifier or common.ErrNotFound.
	GetByID(ctx context.Context, id string) (*models.Entry, error)

	// List returns all entries ordered by title.
	List(ctx context.Context) ([]models.Entry, error)

	DeleteByID(ctx context.Context, id string) error

	Count(ctx context.Context) (int, error)
}
