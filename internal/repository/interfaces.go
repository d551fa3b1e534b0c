package repository

import (
	"context"
	"time"

	"github.com/Patrick-De-Lara/todovault/internal/models"
)

// UserRepository defines the interface for user data operations
type UserRepository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// TodoRepository defines the interface for todo data operations.
// Every method is scoped to the owning user; soft-deleted rows are
// invisible to all reads.
type TodoRepository interface {
	Create(ctx context.Context, todo *models.Todo) (*models.Todo, error)
	GetByID(ctx context.Context, userID, id int64) (*models.Todo, error)
	ListByUser(ctx context.Context, userID int64) ([]*models.Todo, error)
	Update(ctx context.Context, todo *models.Todo) (*models.Todo, error)
	SoftDelete(ctx context.Context, userID, id int64, deletedAt time.Time) error
}
