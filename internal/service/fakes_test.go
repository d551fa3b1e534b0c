package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"time"

	"github.com/Patrick-De-Lara/todovault/internal/models"
	"github.com/Patrick-De-Lara/todovault/internal/storage"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

var (
	errNoRows       = sql.ErrNoRows
	errDeleteFailed = errors.New("delete failed")
)

// fakeTodoRepo is an in-memory TodoRepository with the same visibility rules
// as the Postgres implementation: reads are user-scoped and skip soft-deleted
// rows.
type fakeTodoRepo struct {
	nextID int64
	todos  map[int64]*models.Todo
}

func newFakeTodoRepo() *fakeTodoRepo {
	return &fakeTodoRepo{nextID: 1, todos: map[int64]*models.Todo{}}
}

func (r *fakeTodoRepo) Create(_ context.Context, todo *models.Todo) (*models.Todo, error) {
	now := time.Now()
	todo.ID = r.nextID
	todo.CreatedAt = now
	todo.UpdatedAt = now
	r.nextID++
	cp := *todo
	r.todos[todo.ID] = &cp
	return todo, nil
}

func (r *fakeTodoRepo) GetByID(_ context.Context, userID, id int64) (*models.Todo, error) {
	t, ok := r.todos[id]
	if !ok || t.UserID != userID || t.DeletedAt != nil {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *fakeTodoRepo) ListByUser(_ context.Context, userID int64) ([]*models.Todo, error) {
	var out []*models.Todo
	// Descending id order matches the newest-first query.
	for id := r.nextID - 1; id >= 1; id-- {
		t, ok := r.todos[id]
		if !ok || t.UserID != userID || t.DeletedAt != nil {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeTodoRepo) Update(_ context.Context, todo *models.Todo) (*models.Todo, error) {
	t, ok := r.todos[todo.ID]
	if !ok || t.UserID != todo.UserID || t.DeletedAt != nil {
		return nil, nil
	}
	todo.UpdatedAt = time.Now()
	cp := *todo
	r.todos[todo.ID] = &cp
	return todo, nil
}

func (r *fakeTodoRepo) SoftDelete(_ context.Context, userID, id int64, deletedAt time.Time) error {
	t, ok := r.todos[id]
	if !ok || t.UserID != userID || t.DeletedAt != nil {
		return errNoRows
	}
	t.DeletedAt = &deletedAt
	t.UpdatedAt = deletedAt
	return nil
}

// fakeUserRepo is an in-memory UserRepository enforcing unique emails the way
// Postgres does, via error code 23505.
type fakeUserRepo struct {
	nextID int64
	users  map[int64]*models.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{nextID: 1, users: map[int64]*models.User{}}
}

func (r *fakeUserRepo) Create(_ context.Context, user *models.User) (*models.User, error) {
	for _, u := range r.users {
		if u.Email == user.Email {
			return nil, &pq.Error{Code: "23505"}
		}
	}
	now := time.Now()
	user.ID = r.nextID
	user.CreatedAt = now
	user.UpdatedAt = now
	r.nextID++
	cp := *user
	r.users[user.ID] = &cp
	return user, nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id int64) (*models.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

// fakeStore is an in-memory AttachmentStore.
type fakeStore struct {
	files      map[string][]byte
	failDelete bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{files: map[string][]byte{}}
}

func (s *fakeStore) Save(name string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	ref := "attachments/" + storage.StoredName(name)
	s.files[ref] = data
	return ref, nil
}

func (s *fakeStore) Delete(ref string) error {
	if s.failDelete {
		return errDeleteFailed
	}
	delete(s.files, ref)
	return nil
}

func (s *fakeStore) Open(ref string) (io.ReadCloser, error) {
	data, ok := s.files[ref]
	if !ok {
		return nil, errNoRows
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *fakeStore) Exists(ref string) bool {
	_, ok := s.files[ref]
	return ok
}

type testEnv struct {
	svc   *Service
	todos *fakeTodoRepo
	users *fakeUserRepo
	store *fakeStore
}

func newTestEnv() *testEnv {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	todos := newFakeTodoRepo()
	users := newFakeUserRepo()
	store := newFakeStore()
	svc := New(nil, logger, users, todos, store, nil, "test-secret", time.Hour)
	return &testEnv{svc: svc, todos: todos, users: users, store: store}
}
