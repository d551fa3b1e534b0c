package models

import "time"

// DueStatus classifies a todo relative to its due date
type DueStatus string

const (
	DueStatusNone      DueStatus = ""
	DueStatusNormal    DueStatus = "normal"
	DueStatusUrgent    DueStatus = "urgent"
	DueStatusOverdue   DueStatus = "overdue"
	DueStatusCompleted DueStatus = "completed"
)

// urgentWindow is how far ahead a due date still counts as urgent.
const urgentWindow = 7 * 24 * time.Hour

// Todo represents a user-owned task record
type Todo struct {
	ID          int64      `json:"id" db:"id"`
	Title       string     `json:"title" db:"title"`
	Description *string    `json:"description" db:"description"`
	DueDate     *time.Time `json:"due_date" db:"due_date"`
	Attachment  *string    `json:"attachment" db:"attachment"`
	IsCompleted bool       `json:"is_completed" db:"is_completed"`
	CompletedAt *time.Time `json:"completed_at" db:"completed_at"`
	UserID      int64      `json:"user_id" db:"user_id"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt   *time.Time `json:"-" db:"deleted_at"`
}

// HasAttachment returns true if the todo has a stored attachment reference
func (t *Todo) HasAttachment() bool {
	return t.Attachment != nil && *t.Attachment != ""
}

// IsOverdue returns true if the todo has a due date in the past and is not completed
func (t *Todo) IsOverdue(now time.Time) bool {
	if t.DueDate == nil || t.IsCompleted {
		return false
	}
	return t.DueDate.Before(now)
}

// IsUrgent returns true if the todo is due within the next seven days
// (inclusive), not yet overdue and not completed
func (t *Todo) IsUrgent(now time.Time) bool {
	if t.DueDate == nil || t.IsCompleted {
		return false
	}
	due := *t.DueDate
	return !due.Before(now) && !due.After(now.Add(urgentWindow))
}

// DueStatus classifies the todo as completed, overdue, urgent or normal.
// Todos without a due date have no status.
func (t *Todo) DueStatus(now time.Time) DueStatus {
	switch {
	case t.DueDate == nil:
		return DueStatusNone
	case t.IsCompleted:
		return DueStatusCompleted
	case t.IsOverdue(now):
		return DueStatusOverdue
	case t.IsUrgent(now):
		return DueStatusUrgent
	default:
		return DueStatusNormal
	}
}
