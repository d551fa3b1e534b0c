// Package client is a Go consumer of the todovault API. It keeps an
// in-memory copy of the todo list and derives filtered views, urgency and
// stats from it the same way the server classifies due dates.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Todo mirrors the API's todo representation.
type Todo struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	DueDate     *time.Time `json:"due_date"`
	Attachment  *string    `json:"attachment"`
	IsCompleted bool       `json:"is_completed"`
	CompletedAt *time.Time `json:"completed_at"`
	UserID      int64      `json:"user_id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// User mirrors the API's user representation.
type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// TokenStore persists the access token between requests. Implementations
// decide where it lives (memory, keychain, file); the client never touches
// global state.
type TokenStore interface {
	Token() string
	SetToken(token string) error
	ClearToken() error
}

// MemoryTokenStore is a TokenStore that keeps the token in memory.
type MemoryTokenStore struct {
	mu    sync.Mutex
	token string
}

func (s *MemoryTokenStore) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *MemoryTokenStore) SetToken(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

func (s *MemoryTokenStore) ClearToken() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api: %d %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api: unexpected status %d", e.Status)
}

// Client talks to the todovault API and caches the fetched todo list.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenStore

	mu    sync.RWMutex
	todos []Todo
}

// New creates a Client for the given base URL. A nil token store gets an
// in-memory one.
func New(baseURL string, tokens TokenStore) *Client {
	if tokens == nil {
		tokens = &MemoryTokenStore{}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		tokens:  tokens,
	}
}

// Upload is a file to attach to a todo.
type Upload struct {
	Name    string
	Content io.Reader
}

// CreateTodoParams are the fields for a new todo. Zero values are omitted
// from the request.
type CreateTodoParams struct {
	Title       string
	Description string
	DueDate     string // YYYY-MM-DD or RFC 3339
	Attachment  *Upload
}

// UpdateTodoParams is a partial patch: nil fields are not sent.
type UpdateTodoParams struct {
	Title       *string
	Description *string
	DueDate     *string
	IsCompleted *bool
	Attachment  *Upload
}

// Register creates an account and stores the returned token.
func (c *Client) Register(ctx context.Context, name, email, password string) (*User, error) {
	return c.authenticate(ctx, "/api/register", map[string]string{
		"name": name, "email": email, "password": password,
	})
}

// Login authenticates and stores the returned token.
func (c *Client) Login(ctx context.Context, email, password string) (*User, error) {
	return c.authenticate(ctx, "/api/login", map[string]string{
		"email": email, "password": password,
	})
}

func (c *Client) authenticate(ctx context.Context, path string, body map[string]string) (*User, error) {
	var out struct {
		Token string `json:"token"`
		User  *User  `json:"user"`
	}
	if err := c.doJSON(ctx, http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}
	if err := c.tokens.SetToken(out.Token); err != nil {
		return nil, fmt.Errorf("failed to store token: %w", err)
	}
	return out.User, nil
}

// Logout tells the server goodbye and drops the stored token either way.
func (c *Client) Logout(ctx context.Context) error {
	err := c.doJSON(ctx, http.MethodPost, "/api/logout", nil, nil)
	if clearErr := c.tokens.ClearToken(); clearErr != nil && err == nil {
		err = clearErr
	}
	c.mu.Lock()
	c.todos = nil
	c.mu.Unlock()
	return err
}

// Fetch reloads the todo list from the server into the local cache.
func (c *Client) Fetch(ctx context.Context) error {
	var out struct {
		Todos []Todo `json:"todos"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/todos", nil, &out); err != nil {
		return err
	}
	c.mu.Lock()
	c.todos = out.Todos
	c.mu.Unlock()
	return nil
}

// Todos returns a copy of the cached list.
func (c *Client) Todos() []Todo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Todo, len(c.todos))
	copy(out, c.todos)
	return out
}

// Create creates a todo, then re-fetches the list rather than splicing the
// response in locally, so derived views never diverge from server state.
func (c *Client) Create(ctx context.Context, params CreateTodoParams) (*Todo, error) {
	fields := map[string]string{"title": params.Title}
	if params.Description != "" {
		fields["description"] = params.Description
	}
	if params.DueDate != "" {
		fields["due_date"] = params.DueDate
	}

	var out struct {
		Todo *Todo `json:"todo"`
	}
	var err error
	if params.Attachment != nil {
		err = c.doMultipart(ctx, http.MethodPost, "/api/todos", fields, params.Attachment, &out)
	} else {
		err = c.doJSON(ctx, http.MethodPost, "/api/todos", fields, &out)
	}
	if err != nil {
		return nil, err
	}
	if err := c.Fetch(ctx); err != nil {
		return out.Todo, err
	}
	return out.Todo, nil
}

// Update patches a todo and refreshes the cached copy.
func (c *Client) Update(ctx context.Context, id int64, params UpdateTodoParams) (*Todo, error) {
	path := fmt.Sprintf("/api/todos/%d", id)
	var out struct {
		Todo *Todo `json:"todo"`
	}
	var err error
	if params.Attachment != nil {
		fields := map[string]string{}
		if params.Title != nil {
			fields["title"] = *params.Title
		}
		if params.Description != nil {
			fields["description"] = *params.Description
		}
		if params.DueDate != nil {
			fields["due_date"] = *params.DueDate
		}
		if params.IsCompleted != nil {
			fields["is_completed"] = formBool(*params.IsCompleted)
		}
		err = c.doMultipart(ctx, http.MethodPut, path, fields, params.Attachment, &out)
	} else {
		body := map[string]any{}
		if params.Title != nil {
			body["title"] = *params.Title
		}
		if params.Description != nil {
			body["description"] = *params.Description
		}
		if params.DueDate != nil {
			body["due_date"] = *params.DueDate
		}
		if params.IsCompleted != nil {
			body["is_completed"] = *params.IsCompleted
		}
		err = c.doJSON(ctx, http.MethodPut, path, body, &out)
	}
	if err != nil {
		return nil, err
	}
	if out.Todo != nil {
		c.replace(*out.Todo)
	}
	return out.Todo, nil
}

// ToggleComplete flips the completion flag of a cached todo.
func (c *Client) ToggleComplete(ctx context.Context, id int64) (*Todo, error) {
	c.mu.RLock()
	var current *Todo
	for i := range c.todos {
		if c.todos[i].ID == id {
			current = &c.todos[i]
			break
		}
	}
	c.mu.RUnlock()
	if current == nil {
		return nil, fmt.Errorf("todo %d not in cached list", id)
	}
	next := !current.IsCompleted
	return c.Update(ctx, id, UpdateTodoParams{IsCompleted: &next})
}

// Delete removes a todo and drops it from the cache.
func (c *Client) Delete(ctx context.Context, id int64) error {
	if err := c.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/api/todos/%d", id), nil, nil); err != nil {
		return err
	}
	c.mu.Lock()
	kept := c.todos[:0]
	for _, t := range c.todos {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	c.todos = kept
	c.mu.Unlock()
	return nil
}

// DownloadAttachment fetches a todo's attachment. The filename comes from
// the Content-Disposition header.
func (c *Client) DownloadAttachment(ctx context.Context, id int64) ([]byte, string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, fmt.Sprintf("/api/todos/%d/download", id), nil, "")
	if err != nil {
		return nil, "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", decodeAPIError(resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	filename := fmt.Sprintf("attachment-%d", id)
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if i := strings.Index(cd, `filename="`); i >= 0 {
			rest := cd[i+len(`filename="`):]
			if j := strings.Index(rest, `"`); j >= 0 {
				filename = rest[:j]
			}
		}
	}
	return data, filename, nil
}

// ---------------------------------------------------------------------------
// Request plumbing
// ---------------------------------------------------------------------------

func (c *Client) replace(updated Todo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.todos {
		if c.todos[i].ID == updated.ID {
			c.todos[i] = updated
			return
		}
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token := c.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	contentType := ""
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
		contentType = "application/json"
	}
	req, err := c.newRequest(ctx, method, path, reader, contentType)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) doMultipart(ctx context.Context, method, path string, fields map[string]string, upload *Upload, out any) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	fw, err := mw.CreateFormFile("attachment", upload.Name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(fw, upload.Content); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := c.newRequest(ctx, method, path, &buf, mw.FormDataContentType())
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	_ = json.NewDecoder(resp.Body).Decode(apiErr)
	return apiErr
}

func formBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
