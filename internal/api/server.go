package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Patrick-De-Lara/todovault/internal/service"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// maxUploadMemory bounds how much of a multipart body is held in memory
// before spilling to temp files.
const maxUploadMemory = 8 << 20

// Server provides the JSON API.
type Server struct {
	svc    *service.Service
	logger *logrus.Logger
	mux    *http.ServeMux
}

// NewServer creates a Server, registers all routes, and returns it.
func NewServer(svc *service.Service, logger *logrus.Logger) *Server {
	s := &Server{svc: svc, logger: logger, mux: http.NewServeMux()}
	s.routes()
	return s
}

// Handler returns the http.Handler that can be passed to http.Server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ---------------------------------------------------------------------------
// Routes
// ---------------------------------------------------------------------------

func (s *Server) routes() {
	// Auth
	s.handle("POST /api/register", s.handleRegister)
	s.handle("POST /api/login", s.handleLogin)
	s.handle("POST /api/logout", s.requireAuth(s.handleLogout))
	s.handle("GET /api/user", s.requireAuth(s.handleCurrentUser))

	// Todos
	s.handle("GET /api/todos", s.requireAuth(s.handleListTodos))
	s.handle("POST /api/todos", s.requireAuth(s.handleCreateTodo))
	s.handle("GET /api/todos/{id}", s.requireAuth(s.handleGetTodo))
	s.handle("PUT /api/todos/{id}", s.requireAuth(s.handleUpdateTodo))
	s.handle("PATCH /api/todos/{id}", s.requireAuth(s.handleUpdateTodo))
	s.handle("DELETE /api/todos/{id}", s.requireAuth(s.handleDeleteTodo))
	s.handle("GET /api/todos/{id}/download", s.requireAuth(s.handleDownloadAttachment))

	// Operational
	s.handle("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.Handler())
}

// handle registers an instrumented route.
func (s *Server) handle(pattern string, h http.HandlerFunc) {
	s.mux.Handle(pattern, instrument(pattern, h))
}

// ---------------------------------------------------------------------------
// JSON helpers
// ---------------------------------------------------------------------------

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			s.logger.WithError(err).Error("failed to encode JSON response")
		}
	}
}

func (s *Server) respondMessage(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"message": message})
}

// respondServiceError translates service-level failures into status codes:
// validation -> 422 with field messages, not-found -> 404, the rest -> 500.
func (s *Server) respondServiceError(w http.ResponseWriter, err error) {
	if ve := service.AsValidationError(err); ve != nil {
		s.respondJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"message": ve.Error(),
			"errors":  ve.Fields,
		})
		return
	}
	switch {
	case errors.Is(err, service.ErrTodoNotFound):
		s.respondMessage(w, http.StatusNotFound, "Todo not found")
	case errors.Is(err, service.ErrAttachmentNotFound):
		s.respondMessage(w, http.StatusNotFound, "Attachment not found")
	case errors.Is(err, service.ErrEmailTaken):
		s.respondJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"message": "The email has already been taken.",
			"errors":  map[string][]string{"email": {"The email has already been taken."}},
		})
	default:
		s.logger.WithError(err).Error("request failed")
		s.respondMessage(w, http.StatusInternalServerError, "Server error")
	}
}

// pathID extracts the {id} path value and converts it to int64.
func pathID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	if raw == "" {
		return 0, fmt.Errorf("missing id in path")
	}
	return strconv.ParseInt(raw, 10, 64)
}

// ---------------------------------------------------------------------------
// Auth
// ---------------------------------------------------------------------------

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondMessage(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	user, token, err := s.svc.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]any{"token": token, "user": user})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondMessage(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	user, token, err := s.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			s.respondMessage(w, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"token": token, "user": user})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	// Tokens are stateless; the client discards its copy. Clear the cookie
	// variant for browser callers.
	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	s.respondMessage(w, http.StatusOK, "Logged out successfully")
}

func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{"user": currentUser(r)})
}

// ---------------------------------------------------------------------------
// Todos
// ---------------------------------------------------------------------------

func (s *Server) handleListTodos(w http.ResponseWriter, r *http.Request) {
	todos, err := s.svc.ListTodos(r.Context(), currentUser(r).ID)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"todos": todos,
		"count": len(todos),
	})
}

func (s *Server) handleCreateTodo(w http.ResponseWriter, r *http.Request) {
	input, cleanup, err := s.decodeCreate(r)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	defer cleanup()

	todo, err := s.svc.CreateTodo(r.Context(), currentUser(r).ID, input)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]any{
		"message": "Todo created successfully",
		"todo":    todo,
	})
}

func (s *Server) handleGetTodo(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.respondMessage(w, http.StatusNotFound, "Todo not found")
		return
	}
	todo, err := s.svc.GetTodo(r.Context(), currentUser(r).ID, id)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"todo": todo})
}

func (s *Server) handleUpdateTodo(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.respondMessage(w, http.StatusNotFound, "Todo not found")
		return
	}
	patch, cleanup, err := s.decodeUpdate(r)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	defer cleanup()

	todo, err := s.svc.UpdateTodo(r.Context(), currentUser(r).ID, id, patch)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"message": "Todo updated successfully",
		"todo":    todo,
	})
}

func (s *Server) handleDeleteTodo(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.respondMessage(w, http.StatusNotFound, "Todo not found")
		return
	}
	if err := s.svc.DeleteTodo(r.Context(), currentUser(r).ID, id); err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondMessage(w, http.StatusOK, "Todo deleted successfully")
}

func (s *Server) handleDownloadAttachment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.respondMessage(w, http.StatusNotFound, "Todo not found")
		return
	}
	dl, err := s.svc.DownloadAttachment(r.Context(), currentUser(r).ID, id)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	defer dl.Content.Close()

	w.Header().Set("Content-Type", dl.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", dl.Filename))
	if _, err := io.Copy(w, dl.Content); err != nil {
		s.logger.WithError(err).Error("failed to stream attachment")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ---------------------------------------------------------------------------
// Body decoding
// ---------------------------------------------------------------------------

type todoBody struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	DueDate     *string `json:"due_date"`
	IsCompleted *bool   `json:"is_completed"`
}

var noopCleanup = func() {}

// decodeCreate reads the create parameters from a JSON or multipart body.
func (s *Server) decodeCreate(r *http.Request) (service.CreateTodoInput, func(), error) {
	var input service.CreateTodoInput

	if isMultipart(r) {
		form, cleanup, err := s.parseForm(r)
		if err != nil {
			return input, noopCleanup, err
		}
		if v, ok := form.value("title"); ok {
			input.Title = v
		}
		if v, ok := form.value("description"); ok {
			input.Description = &v
		}
		if v, ok := form.value("due_date"); ok && v != "" {
			due, err := parseDueDate(v)
			if err != nil {
				cleanup()
				return input, noopCleanup, err
			}
			input.DueDate = due
		}
		input.Attachment = form.upload
		return input, cleanup, nil
	}

	var body todoBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return input, noopCleanup, badRequest("body", "The request body must be valid JSON.")
	}
	if body.Title != nil {
		input.Title = *body.Title
	}
	input.Description = body.Description
	if body.DueDate != nil && *body.DueDate != "" {
		due, err := parseDueDate(*body.DueDate)
		if err != nil {
			return input, noopCleanup, err
		}
		input.DueDate = due
	}
	return input, noopCleanup, nil
}

// decodeUpdate reads a partial patch from a JSON or multipart body. Only
// fields present in the body end up non-nil in the patch.
func (s *Server) decodeUpdate(r *http.Request) (service.UpdateTodoInput, func(), error) {
	var patch service.UpdateTodoInput

	if isMultipart(r) {
		form, cleanup, err := s.parseForm(r)
		if err != nil {
			return patch, noopCleanup, err
		}
		if v, ok := form.value("title"); ok {
			patch.Title = &v
		}
		if v, ok := form.value("description"); ok {
			patch.Description = &v
		}
		if v, ok := form.value("due_date"); ok && v != "" {
			due, err := parseDueDate(v)
			if err != nil {
				cleanup()
				return patch, noopCleanup, err
			}
			patch.DueDate = due
		}
		if v, ok := form.value("is_completed"); ok {
			b, err := parseFormBool(v)
			if err != nil {
				cleanup()
				return patch, noopCleanup, err
			}
			patch.IsCompleted = &b
		}
		patch.Attachment = form.upload
		return patch, cleanup, nil
	}

	var body todoBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return patch, noopCleanup, badRequest("body", "The request body must be valid JSON.")
	}
	patch.Title = body.Title
	patch.Description = body.Description
	patch.IsCompleted = body.IsCompleted
	if body.DueDate != nil && *body.DueDate != "" {
		due, err := parseDueDate(*body.DueDate)
		if err != nil {
			return patch, noopCleanup, err
		}
		patch.DueDate = due
	}
	return patch, noopCleanup, nil
}

// parsedForm wraps a parsed multipart form and the optional attachment.
type parsedForm struct {
	values map[string][]string
	upload *service.Upload
}

func (f *parsedForm) value(name string) (string, bool) {
	vs, ok := f.values[name]
	if !ok || len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}

func (s *Server) parseForm(r *http.Request) (*parsedForm, func(), error) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		return nil, noopCleanup, badRequest("body", "The request body must be valid multipart form data.")
	}
	form := &parsedForm{values: r.MultipartForm.Value}

	file, header, err := r.FormFile("attachment")
	cleanup := func() {
		if file != nil {
			file.Close()
		}
		if err := r.MultipartForm.RemoveAll(); err != nil {
			s.logger.WithError(err).Warn("failed to clean up multipart temp files")
		}
	}
	if err == nil {
		form.upload = &service.Upload{
			Filename: header.Filename,
			Size:     header.Size,
			Reader:   file,
		}
	} else if err != http.ErrMissingFile {
		cleanup()
		return nil, noopCleanup, badRequest("attachment", "The attachment could not be read.")
	}
	return form, cleanup, nil
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

// parseDueDate accepts a bare date or an RFC 3339 timestamp. Bare dates are
// taken as the start of that day in UTC.
func parseDueDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			if layout == "2006-01-02" {
				t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			}
			return &t, nil
		}
	}
	return nil, badRequest("due_date", "The due date is not a valid date.")
}

func parseFormBool(s string) (bool, error) {
	switch s {
	case "1", "true":
		return true, nil
	case "0", "false":
		return false, nil
	}
	return false, badRequest("is_completed", "The is completed field must be true or false.")
}

// badRequest builds a single-field validation error.
func badRequest(field, message string) error {
	ve := &service.ValidationError{}
	ve.Fields = map[string][]string{field: {message}}
	return ve
}
