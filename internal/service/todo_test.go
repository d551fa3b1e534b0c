package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }

func upload(name, content string) *Upload {
	return &Upload{Filename: name, Size: int64(len(content)), Reader: strings.NewReader(content)}
}

func TestCreateTodoDefaults(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	todo, err := env.svc.CreateTodo(ctx, 1, CreateTodoInput{Title: "Buy milk"})
	if err != nil {
		t.Fatalf("CreateTodo failed: %v", err)
	}
	if todo.ID == 0 {
		t.Error("created todo has no id")
	}
	if todo.IsCompleted {
		t.Error("new todo is completed")
	}
	if todo.CompletedAt != nil {
		t.Error("new todo has completed_at set")
	}
	if todo.UserID != 1 {
		t.Errorf("user_id = %d, want 1", todo.UserID)
	}
}

func TestCreateTodoValidation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	tests := []struct {
		name  string
		input CreateTodoInput
		field string
	}{
		{"missing title", CreateTodoInput{}, "title"},
		{"blank title", CreateTodoInput{Title: "   "}, "title"},
		{"title too long", CreateTodoInput{Title: strings.Repeat("x", 256)}, "title"},
		{"oversized attachment", CreateTodoInput{
			Title:      "ok",
			Attachment: &Upload{Filename: "big.pdf", Size: 26 << 20, Reader: strings.NewReader("")},
		}, "attachment"},
		{"disallowed extension", CreateTodoInput{
			Title:      "ok",
			Attachment: upload("virus.exe", "nope"),
		}, "attachment"},
		{"no extension", CreateTodoInput{
			Title:      "ok",
			Attachment: upload("README", "nope"),
		}, "attachment"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.CreateTodo(ctx, 1, tt.input)
			ve := AsValidationError(err)
			if ve == nil {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if len(ve.Fields[tt.field]) == 0 {
				t.Errorf("expected message for field %q, got %v", tt.field, ve.Fields)
			}
		})
	}

	// Nothing was persisted or stored for any rejected input.
	todos, _ := env.svc.ListTodos(ctx, 1)
	if len(todos) != 0 {
		t.Errorf("rejected input created %d todos", len(todos))
	}
	if len(env.store.files) != 0 {
		t.Errorf("rejected input wrote %d files", len(env.store.files))
	}
}

func TestCreateTodoWithAttachment(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	todo, err := env.svc.CreateTodo(ctx, 1, CreateTodoInput{
		Title:      "Scan receipts",
		Attachment: upload("receipt 2024.pdf", "%PDF-1.4"),
	})
	if err != nil {
		t.Fatalf("CreateTodo failed: %v", err)
	}
	if !todo.HasAttachment() {
		t.Fatal("todo has no attachment reference")
	}
	if !env.store.Exists(*todo.Attachment) {
		t.Errorf("attachment %q not in store", *todo.Attachment)
	}
}

func TestCompletionTransitions(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	todo, err := env.svc.CreateTodo(ctx, 1, CreateTodoInput{Title: "Buy milk"})
	if err != nil {
		t.Fatalf("CreateTodo failed: %v", err)
	}

	// false -> true stamps completed_at.
	before := time.Now()
	updated, err := env.svc.UpdateTodo(ctx, 1, todo.ID, UpdateTodoInput{IsCompleted: boolPtr(true)})
	if err != nil {
		t.Fatalf("UpdateTodo failed: %v", err)
	}
	if !updated.IsCompleted || updated.CompletedAt == nil {
		t.Fatalf("completion not recorded: %+v", updated)
	}
	if updated.CompletedAt.Before(before) || updated.CompletedAt.After(time.Now()) {
		t.Errorf("completed_at %v not at update time", updated.CompletedAt)
	}
	firstCompletedAt := *updated.CompletedAt

	// true -> true keeps the original timestamp.
	updated, err = env.svc.UpdateTodo(ctx, 1, todo.ID, UpdateTodoInput{IsCompleted: boolPtr(true)})
	if err != nil {
		t.Fatalf("UpdateTodo failed: %v", err)
	}
	if updated.CompletedAt == nil || !updated.CompletedAt.Equal(firstCompletedAt) {
		t.Errorf("re-completing changed completed_at: %v != %v", updated.CompletedAt, firstCompletedAt)
	}

	// explicit false always clears it.
	updated, err = env.svc.UpdateTodo(ctx, 1, todo.ID, UpdateTodoInput{IsCompleted: boolPtr(false)})
	if err != nil {
		t.Fatalf("UpdateTodo failed: %v", err)
	}
	if updated.IsCompleted || updated.CompletedAt != nil {
		t.Errorf("uncompleting did not clear completed_at: %+v", updated)
	}
}

func TestUpdateTodoPartialPatch(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	due := time.Now().Add(48 * time.Hour)
	todo, err := env.svc.CreateTodo(ctx, 1, CreateTodoInput{
		Title:       "Original",
		Description: strPtr("details"),
		DueDate:     &due,
	})
	if err != nil {
		t.Fatalf("CreateTodo failed: %v", err)
	}

	updated, err := env.svc.UpdateTodo(ctx, 1, todo.ID, UpdateTodoInput{Title: strPtr("Renamed")})
	if err != nil {
		t.Fatalf("UpdateTodo failed: %v", err)
	}
	if updated.Title != "Renamed" {
		t.Errorf("title = %q", updated.Title)
	}
	if updated.Description == nil || *updated.Description != "details" {
		t.Errorf("absent field was touched: description = %v", updated.Description)
	}
	if updated.DueDate == nil || !updated.DueDate.Equal(due) {
		t.Errorf("absent field was touched: due_date = %v", updated.DueDate)
	}
}

func TestUpdateTodoReplacesAttachment(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	todo, err := env.svc.CreateTodo(ctx, 1, CreateTodoInput{
		Title:      "With file",
		Attachment: upload("v1.txt", "first"),
	})
	if err != nil {
		t.Fatalf("CreateTodo failed: %v", err)
	}
	oldRef := *todo.Attachment

	updated, err := env.svc.UpdateTodo(ctx, 1, todo.ID, UpdateTodoInput{
		Attachment: upload("v2.txt", "second"),
	})
	if err != nil {
		t.Fatalf("UpdateTodo failed: %v", err)
	}
	if env.store.Exists(oldRef) {
		t.Errorf("replaced attachment %q still in store", oldRef)
	}
	if !updated.HasAttachment() || *updated.Attachment == oldRef {
		t.Fatalf("attachment reference not replaced: %v", updated.Attachment)
	}

	dl, err := env.svc.DownloadAttachment(ctx, 1, todo.ID)
	if err != nil {
		t.Fatalf("DownloadAttachment failed: %v", err)
	}
	defer dl.Content.Close()
	data, _ := io.ReadAll(dl.Content)
	if string(data) != "second" {
		t.Errorf("downloaded content = %q, want %q", data, "second")
	}
}

func TestUpdateTodoOldAttachmentDeleteFailureIsNonFatal(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	todo, err := env.svc.CreateTodo(ctx, 1, CreateTodoInput{
		Title:      "With file",
		Attachment: upload("v1.txt", "first"),
	})
	if err != nil {
		t.Fatalf("CreateTodo failed: %v", err)
	}

	env.store.failDelete = true
	updated, err := env.svc.UpdateTodo(ctx, 1, todo.ID, UpdateTodoInput{
		Attachment: upload("v2.txt", "second"),
	})
	if err != nil {
		t.Fatalf("replacement should proceed past a failed delete, got %v", err)
	}
	if !updated.HasAttachment() || *updated.Attachment == *todo.Attachment {
		t.Errorf("attachment reference not replaced: %v", updated.Attachment)
	}
}

func TestCrossUserIsolation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	todo, err := env.svc.CreateTodo(ctx, 1, CreateTodoInput{
		Title:      "Private",
		Attachment: upload("secret.txt", "classified"),
	})
	if err != nil {
		t.Fatalf("CreateTodo failed: %v", err)
	}

	if _, err := env.svc.GetTodo(ctx, 2, todo.ID); !errors.Is(err, ErrTodoNotFound) {
		t.Errorf("GetTodo for foreign user: err = %v, want ErrTodoNotFound", err)
	}
	if _, err := env.svc.UpdateTodo(ctx, 2, todo.ID, UpdateTodoInput{Title: strPtr("stolen")}); !errors.Is(err, ErrTodoNotFound) {
		t.Errorf("UpdateTodo for foreign user: err = %v, want ErrTodoNotFound", err)
	}
	if err := env.svc.DeleteTodo(ctx, 2, todo.ID); !errors.Is(err, ErrTodoNotFound) {
		t.Errorf("DeleteTodo for foreign user: err = %v, want ErrTodoNotFound", err)
	}
	if _, err := env.svc.DownloadAttachment(ctx, 2, todo.ID); !errors.Is(err, ErrTodoNotFound) {
		t.Errorf("DownloadAttachment for foreign user: err = %v, want ErrTodoNotFound", err)
	}

	list, err := env.svc.ListTodos(ctx, 2)
	if err != nil {
		t.Fatalf("ListTodos failed: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("foreign user sees %d todos", len(list))
	}
}

func TestDeleteTodoSoftDeletesAndPurgesAttachment(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	todo, err := env.svc.CreateTodo(ctx, 1, CreateTodoInput{
		Title:      "Doomed",
		Attachment: upload("gone.txt", "bytes"),
	})
	if err != nil {
		t.Fatalf("CreateTodo failed: %v", err)
	}
	ref := *todo.Attachment

	if err := env.svc.DeleteTodo(ctx, 1, todo.ID); err != nil {
		t.Fatalf("DeleteTodo failed: %v", err)
	}
	if env.store.Exists(ref) {
		t.Errorf("attachment %q still in store after delete", ref)
	}

	// Gone from get and list, but the row itself is retained.
	if _, err := env.svc.GetTodo(ctx, 1, todo.ID); !errors.Is(err, ErrTodoNotFound) {
		t.Errorf("GetTodo after delete: err = %v, want ErrTodoNotFound", err)
	}
	list, _ := env.svc.ListTodos(ctx, 1)
	if len(list) != 0 {
		t.Errorf("deleted todo still listed")
	}
	row := env.todos.todos[todo.ID]
	if row == nil || row.DeletedAt == nil {
		t.Error("row was not retained as a tombstone")
	}

	if err := env.svc.DeleteTodo(ctx, 1, todo.ID); !errors.Is(err, ErrTodoNotFound) {
		t.Errorf("second delete: err = %v, want ErrTodoNotFound", err)
	}
}

func TestListTodosNewestFirst(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	for _, title := range []string{"first", "second", "third"} {
		if _, err := env.svc.CreateTodo(ctx, 1, CreateTodoInput{Title: title}); err != nil {
			t.Fatalf("CreateTodo failed: %v", err)
		}
	}
	list, err := env.svc.ListTodos(ctx, 1)
	if err != nil {
		t.Fatalf("ListTodos failed: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("got %d todos, want 3", len(list))
	}
	if list[0].Title != "third" || list[2].Title != "first" {
		t.Errorf("order = [%s %s %s], want newest first", list[0].Title, list[1].Title, list[2].Title)
	}
}

func TestListTodosEmpty(t *testing.T) {
	env := newTestEnv()
	list, err := env.svc.ListTodos(context.Background(), 42)
	if err != nil {
		t.Fatalf("ListTodos failed: %v", err)
	}
	if list == nil {
		t.Fatal("empty list is nil, want non-nil empty slice")
	}
	if len(list) != 0 {
		t.Errorf("fresh user has %d todos", len(list))
	}
}

func TestDownloadAttachmentMissing(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	// No attachment at all.
	plain, err := env.svc.CreateTodo(ctx, 1, CreateTodoInput{Title: "No file"})
	if err != nil {
		t.Fatalf("CreateTodo failed: %v", err)
	}
	if _, err := env.svc.DownloadAttachment(ctx, 1, plain.ID); !errors.Is(err, ErrAttachmentNotFound) {
		t.Errorf("download without attachment: err = %v, want ErrAttachmentNotFound", err)
	}

	// Reference present but backing file gone.
	withFile, err := env.svc.CreateTodo(ctx, 1, CreateTodoInput{
		Title:      "Lost file",
		Attachment: upload("lost.txt", "bytes"),
	})
	if err != nil {
		t.Fatalf("CreateTodo failed: %v", err)
	}
	delete(env.store.files, *withFile.Attachment)
	if _, err := env.svc.DownloadAttachment(ctx, 1, withFile.ID); !errors.Is(err, ErrAttachmentNotFound) {
		t.Errorf("download with missing file: err = %v, want ErrAttachmentNotFound", err)
	}
}
