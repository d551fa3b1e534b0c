package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Patrick-De-Lara/todovault/internal/models"
	"github.com/Patrick-De-Lara/todovault/internal/storage"
)

const (
	maxTitleLength    = 255
	maxAttachmentSize = 25 << 20 // 25 MiB
)

// allowedExtensions is the attachment allow-list: images and documents.
var allowedExtensions = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "gif": true, "bmp": true,
	"webp": true, "svg": true,
	"pdf": true, "doc": true, "docx": true, "xls": true, "xlsx": true,
	"ppt": true, "pptx": true, "txt": true, "csv": true,
}

const (
	msgAttachmentType = "The attachment must be an image (jpg, jpeg, png, gif, bmp, webp, svg) or document (pdf, doc, docx, xls, xlsx, ppt, pptx, txt, csv)."
	msgAttachmentSize = "The attachment must not be greater than 25MB."
)

// Upload is a pending attachment upload handed to the service by the
// transport layer.
type Upload struct {
	Filename string
	Size     int64
	Reader   io.Reader
}

// CreateTodoInput holds the fields for a new todo.
type CreateTodoInput struct {
	Title       string
	Description *string
	DueDate     *time.Time
	Attachment  *Upload
}

// UpdateTodoInput is a partial patch: nil fields are left untouched.
type UpdateTodoInput struct {
	Title       *string
	Description *string
	DueDate     *time.Time
	IsCompleted *bool
	Attachment  *Upload
}

// Download is a resolved attachment ready for transfer.
type Download struct {
	Content  io.ReadCloser
	Filename string
	MimeType string
}

// ListTodos returns the user's non-deleted todos, newest first. When a cache
// is configured the list is served from it, with concurrent fills for the
// same user collapsed.
func (s *Service) ListTodos(ctx context.Context, userID int64) ([]*models.Todo, error) {
	if s.cache == nil {
		return s.listTodos(ctx, userID)
	}
	key := "list:" + strconv.FormatInt(userID, 10)
	v, err, _ := s.sf.Do(key, func() (interface{}, error) {
		if list, err := s.cache.GetList(ctx, userID); err == nil && list != nil {
			return list, nil
		}
		list, err := s.listTodos(ctx, userID)
		if err != nil {
			return nil, err
		}
		if err := s.cache.SetList(ctx, userID, list); err != nil {
			s.logger.WithError(err).Warn("failed to cache todo list")
		}
		return list, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]*models.Todo), nil
}

func (s *Service) listTodos(ctx context.Context, userID int64) ([]*models.Todo, error) {
	todos, err := s.Todos.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if todos == nil {
		todos = []*models.Todo{}
	}
	return todos, nil
}

// CreateTodo validates the input, stores the attachment if present, and
// persists a new todo owned by the user. New todos are never completed.
func (s *Service) CreateTodo(ctx context.Context, userID int64, input CreateTodoInput) (*models.Todo, error) {
	ve := &ValidationError{}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		ve.add("title", "The title field is required.")
	} else if utf8.RuneCountInString(title) > maxTitleLength {
		ve.add("title", fmt.Sprintf("The title must not be greater than %d characters.", maxTitleLength))
	}
	validateUpload(ve, input.Attachment)
	if !ve.ok() {
		return nil, ve
	}

	var attachment *string
	if input.Attachment != nil {
		ref, err := s.Files.Save(input.Attachment.Filename, input.Attachment.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to store attachment: %w", err)
		}
		attachment = &ref
	}

	todo := &models.Todo{
		Title:       title,
		Description: input.Description,
		DueDate:     input.DueDate,
		Attachment:  attachment,
		IsCompleted: false,
		CompletedAt: nil,
		UserID:      userID,
	}
	created, err := s.Todos.Create(ctx, todo)
	if err != nil {
		return nil, err
	}
	s.invalidateCache(ctx, userID)
	return created, nil
}

// GetTodo returns the todo if it exists, is not soft-deleted and is owned by
// the user.
func (s *Service) GetTodo(ctx context.Context, userID, id int64) (*models.Todo, error) {
	todo, err := s.Todos.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if todo == nil {
		return nil, ErrTodoNotFound
	}
	return todo, nil
}

// UpdateTodo applies a partial patch to the user's todo. Replacing the
// attachment deletes the previous file first; a failed delete is logged and
// the replacement proceeds. Completion transitions drive completed_at: a
// false-to-true transition stamps the current time, an explicit false always
// clears it, and re-completing an already completed todo keeps the original
// timestamp. The updated todo is reloaded so server-computed fields are
// reflected.
func (s *Service) UpdateTodo(ctx context.Context, userID, id int64, patch UpdateTodoInput) (*models.Todo, error) {
	todo, err := s.GetTodo(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	ve := &ValidationError{}
	var title string
	if patch.Title != nil {
		title = strings.TrimSpace(*patch.Title)
		if title == "" {
			ve.add("title", "The title field is required.")
		} else if utf8.RuneCountInString(title) > maxTitleLength {
			ve.add("title", fmt.Sprintf("The title must not be greater than %d characters.", maxTitleLength))
		}
	}
	validateUpload(ve, patch.Attachment)
	if !ve.ok() {
		return nil, ve
	}

	if patch.Attachment != nil {
		if todo.HasAttachment() {
			if err := s.Files.Delete(*todo.Attachment); err != nil {
				s.logger.WithError(err).WithField("attachment", *todo.Attachment).
					Warn("failed to delete replaced attachment")
			}
		}
		ref, err := s.Files.Save(patch.Attachment.Filename, patch.Attachment.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to store attachment: %w", err)
		}
		todo.Attachment = &ref
	}

	if patch.IsCompleted != nil {
		switch {
		case *patch.IsCompleted && !todo.IsCompleted:
			now := time.Now()
			todo.CompletedAt = &now
		case !*patch.IsCompleted:
			todo.CompletedAt = nil
		}
		todo.IsCompleted = *patch.IsCompleted
	}

	if patch.Title != nil {
		todo.Title = title
	}
	if patch.Description != nil {
		todo.Description = patch.Description
	}
	if patch.DueDate != nil {
		todo.DueDate = patch.DueDate
	}

	if _, err := s.Todos.Update(ctx, todo); err != nil {
		return nil, err
	}
	s.invalidateCache(ctx, userID)

	// Reload so the caller sees exactly what was persisted.
	return s.GetTodo(ctx, userID, id)
}

// DeleteTodo purges the attachment file (best effort) and soft-deletes the
// record. The row is retained with deleted_at set and disappears from all
// reads.
func (s *Service) DeleteTodo(ctx context.Context, userID, id int64) error {
	todo, err := s.GetTodo(ctx, userID, id)
	if err != nil {
		return err
	}

	if todo.HasAttachment() {
		if err := s.Files.Delete(*todo.Attachment); err != nil {
			s.logger.WithError(err).WithField("attachment", *todo.Attachment).
				Warn("failed to delete attachment of removed todo")
		}
	}

	if err := s.Todos.SoftDelete(ctx, userID, id, time.Now()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrTodoNotFound
		}
		return err
	}
	s.invalidateCache(ctx, userID)
	return nil
}

// DownloadAttachment resolves the todo's attachment to a byte stream with
// its stored filename and MIME type. The caller must close the content.
func (s *Service) DownloadAttachment(ctx context.Context, userID, id int64) (*Download, error) {
	todo, err := s.GetTodo(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !todo.HasAttachment() || !s.Files.Exists(*todo.Attachment) {
		return nil, ErrAttachmentNotFound
	}
	rc, err := s.Files.Open(*todo.Attachment)
	if err != nil {
		return nil, err
	}
	return &Download{
		Content:  rc,
		Filename: storage.BaseName(*todo.Attachment),
		MimeType: storage.MimeType(*todo.Attachment),
	}, nil
}

func (s *Service) invalidateCache(ctx context.Context, userID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.logger.WithError(err).Warn("failed to invalidate todo list cache")
	}
}

// validateUpload enforces the size ceiling and extension allow-list before
// anything is written to the store.
func validateUpload(ve *ValidationError, up *Upload) {
	if up == nil {
		return
	}
	if up.Size > maxAttachmentSize {
		ve.add("attachment", msgAttachmentSize)
	}
	ext := strings.ToLower(strings.TrimPrefix(extOf(up.Filename), "."))
	if !allowedExtensions[ext] {
		ve.add("attachment", msgAttachmentType)
	}
}

func extOf(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i:]
	}
	return ""
}
