package service

import (
	"database/sql"
	"time"

	"github.com/Patrick-De-Lara/todovault/internal/cache"
	"github.com/Patrick-De-Lara/todovault/internal/repository"
	"github.com/Patrick-De-Lara/todovault/internal/storage"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Service is the central business logic layer that holds the repositories,
// the attachment store and the optional list cache.
type Service struct {
	db     *sql.DB
	logger *logrus.Logger
	Users  repository.UserRepository
	Todos  repository.TodoRepository
	Files  storage.AttachmentStore

	cache *cache.TodoCache
	sf    singleflight.Group

	jwtSecret []byte
	tokenTTL  time.Duration
}

// New creates a new Service with all required dependencies. todoCache may be
// nil, in which case list reads always hit the database.
func New(db *sql.DB, logger *logrus.Logger,
	users repository.UserRepository,
	todos repository.TodoRepository,
	files storage.AttachmentStore,
	todoCache *cache.TodoCache,
	jwtSecret string,
	tokenTTL time.Duration,
) *Service {
	return &Service{
		db: db, logger: logger,
		Users: users, Todos: todos, Files: files,
		cache:     todoCache,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
	}
}
