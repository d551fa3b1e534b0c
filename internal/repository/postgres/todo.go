package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Patrick-De-Lara/todovault/internal/models"
	"github.com/Patrick-De-Lara/todovault/internal/repository"
)

type todoRepository struct {
	db *sql.DB
}

func NewTodoRepository(db *sql.DB) repository.TodoRepository {
	return &todoRepository{db: db}
}

const todoColumns = `id, title, description, due_date, attachment, is_completed, completed_at, user_id, created_at, updated_at, deleted_at`

func scanTodo(row interface{ Scan(...any) error }) (*models.Todo, error) {
	todo := &models.Todo{}
	err := row.Scan(
		&todo.ID, &todo.Title, &todo.Description, &todo.DueDate, &todo.Attachment,
		&todo.IsCompleted, &todo.CompletedAt, &todo.UserID,
		&todo.CreatedAt, &todo.UpdatedAt, &todo.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return todo, nil
}

func (r *todoRepository) Create(ctx context.Context, todo *models.Todo) (*models.Todo, error) {
	query := `INSERT INTO todos (title, description, due_date, attachment, is_completed, completed_at, user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`
	now := time.Now()
	todo.CreatedAt = now
	todo.UpdatedAt = now
	err := r.db.QueryRowContext(ctx, query,
		todo.Title, todo.Description, todo.DueDate, todo.Attachment,
		todo.IsCompleted, todo.CompletedAt, todo.UserID,
		todo.CreatedAt, todo.UpdatedAt,
	).Scan(&todo.ID, &todo.CreatedAt, &todo.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create todo: %w", err)
	}
	return todo, nil
}

func (r *todoRepository) GetByID(ctx context.Context, userID, id int64) (*models.Todo, error) {
	query := `SELECT ` + todoColumns + ` FROM todos
		WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`
	todo, err := scanTodo(r.db.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get todo: %w", err)
	}
	return todo, nil
}

func (r *todoRepository) ListByUser(ctx context.Context, userID int64) ([]*models.Todo, error) {
	query := `SELECT ` + todoColumns + ` FROM todos
		WHERE user_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query todos: %w", err)
	}
	defer rows.Close()

	var todos []*models.Todo
	for rows.Next() {
		todo, err := scanTodo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan todo: %w", err)
		}
		todos = append(todos, todo)
	}
	return todos, rows.Err()
}

func (r *todoRepository) Update(ctx context.Context, todo *models.Todo) (*models.Todo, error) {
	query := `UPDATE todos SET title=$3, description=$4, due_date=$5, attachment=$6, is_completed=$7, completed_at=$8, updated_at=$9
		WHERE id=$1 AND user_id=$2 AND deleted_at IS NULL
		RETURNING updated_at`
	todo.UpdatedAt = time.Now()
	err := r.db.QueryRowContext(ctx, query,
		todo.ID, todo.UserID, todo.Title, todo.Description, todo.DueDate,
		todo.Attachment, todo.IsCompleted, todo.CompletedAt, todo.UpdatedAt,
	).Scan(&todo.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to update todo: %w", err)
	}
	return todo, nil
}

func (r *todoRepository) SoftDelete(ctx context.Context, userID, id int64, deletedAt time.Time) error {
	query := `UPDATE todos SET deleted_at=$3, updated_at=$3
		WHERE id=$1 AND user_id=$2 AND deleted_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, id, userID, deletedAt)
	if err != nil {
		return fmt.Errorf("failed to soft delete todo: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
