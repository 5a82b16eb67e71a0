package taskflowsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Paulygold/task-flow-manager/internal/domain"
	"github.com/Paulygold/task-flow-manager/internal/identity"
)

// Client is a Task Flow HTTP API client. It keeps the current session and
// reports changes to it the way identity.AuthService expects, so it can back
// an identity.Manager directly.
type Client struct {
	BaseURL    string
	BasePath   string
	HTTPClient *http.Client
	Timeout    time.Duration

	mu        sync.Mutex
	session   *domain.Session
	listeners map[int]func(identity.AuthEvent, *domain.Session)
	nextID    int
}

var (
	_ identity.AuthService = (*Client)(nil)
	_ identity.Directory   = (*Client)(nil)
)

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v1",
		Timeout:  10 * time.Second,
	}
}

// APIError wraps non-2xx responses. Unwrap maps the envelope code back to
// the matching domain error.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api error: status=%d", e.StatusCode)
	}
	return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Code {
	case "unauthorized":
		return domain.ErrUnauthenticated
	case "invalid_credentials":
		return domain.ErrInvalidCredentials
	case "forbidden":
		return domain.ErrForbidden
	case "not_found":
		return domain.ErrNotFound
	case "conflict":
		return domain.ErrConflict
	case "duplicate_email":
		return domain.ErrDuplicateEmail
	case "weak_password":
		return domain.ErrWeakPassword
	case "validation_failed", "bad_request":
		field, _ := e.Details["field"].(string)
		return domain.ValidationError{Field: field, Reason: e.Message}
	}
	return nil
}

// SetSession installs a session restored from storage. It does not notify
// listeners.
func (c *Client) SetSession(s *domain.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = s
}

func (c *Client) GetSession(_ context.Context) (*domain.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil, nil
	}
	s := *c.session
	return &s, nil
}

func (c *Client) OnAuthStateChange(fn func(identity.AuthEvent, *domain.Session)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listeners == nil {
		c.listeners = map[int]func(identity.AuthEvent, *domain.Session){}
	}
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (domain.Session, error) {
	var s domain.Session
	err := c.do(ctx, http.MethodPost, "auth/login", map[string]any{"email": email, "password": password}, &s, false)
	if err != nil {
		return domain.Session{}, err
	}
	c.install(identity.EventSignedIn, &s)
	return s, nil
}

// SignUp creates an account. The server signs the new account in, so the
// returned session is never nil on success.
func (c *Client) SignUp(ctx context.Context, email, password, displayName string) (*domain.Session, error) {
	body := map[string]any{"email": email, "password": password}
	if displayName != "" {
		body["display_name"] = displayName
	}
	var s domain.Session
	if err := c.do(ctx, http.MethodPost, "auth/signup", body, &s, false); err != nil {
		return nil, err
	}
	c.install(identity.EventSignedIn, &s)
	out := s
	return &out, nil
}

// Refresh rotates the refresh token of the current session.
func (c *Client) Refresh(ctx context.Context) (domain.Session, error) {
	current, _ := c.GetSession(ctx)
	if current == nil {
		return domain.Session{}, domain.ErrUnauthenticated
	}
	var s domain.Session
	if err := c.do(ctx, http.MethodPost, "auth/refresh", map[string]any{"refresh_token": current.RefreshToken}, &s, false); err != nil {
		return domain.Session{}, err
	}
	c.install(identity.EventTokenRefreshed, &s)
	return s, nil
}

// SignOut drops the local session and revokes its refresh token. The local
// session is gone even when revocation fails.
func (c *Client) SignOut(ctx context.Context) error {
	current, _ := c.GetSession(ctx)
	c.install(identity.EventSignedOut, nil)
	if current == nil {
		return nil
	}
	return c.do(ctx, http.MethodPost, "auth/logout", map[string]any{"refresh_token": current.RefreshToken}, nil, false)
}

func (c *Client) install(event identity.AuthEvent, s *domain.Session) {
	c.mu.Lock()
	c.session = s
	fns := make([]func(identity.AuthEvent, *domain.Session), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		var copied *domain.Session
		if s != nil {
			v := *s
			copied = &v
		}
		fn(event, copied)
	}
}

func (c *Client) FetchProfile(ctx context.Context, actorID string) (domain.Profile, error) {
	var p domain.Profile
	err := c.do(ctx, http.MethodGet, "profiles/"+url.PathEscape(actorID), nil, &p, true)
	return p, err
}

func (c *Client) FetchRole(ctx context.Context, actorID string) (domain.Role, error) {
	var ra domain.RoleAssignment
	if err := c.do(ctx, http.MethodGet, "roles/"+url.PathEscape(actorID), nil, &ra, true); err != nil {
		return "", err
	}
	return ra.Role, nil
}

// Me returns the caller's profile and role.
func (c *Client) Me(ctx context.Context) (domain.Profile, domain.Role, error) {
	var resp struct {
		Profile domain.Profile `json:"profile"`
		Role    domain.Role    `json:"role"`
	}
	err := c.do(ctx, http.MethodGet, "me", nil, &resp, true)
	return resp.Profile, resp.Role, err
}

func (c *Client) UpdateProfile(ctx context.Context, actorID, fullName string) (domain.Profile, error) {
	var p domain.Profile
	err := c.do(ctx, http.MethodPatch, "profiles/"+url.PathEscape(actorID), map[string]any{"full_name": fullName}, &p, true)
	return p, err
}

func (c *Client) SetRole(ctx context.Context, actorID string, role domain.Role) (domain.RoleAssignment, error) {
	var ra domain.RoleAssignment
	err := c.do(ctx, http.MethodPut, "roles/"+url.PathEscape(actorID), map[string]any{"role": role}, &ra, true)
	return ra, err
}

func (c *Client) ListProjects(ctx context.Context, search string, limit int) ([]domain.Project, error) {
	q := url.Values{}
	if search != "" {
		q.Set("search", search)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out []domain.Project
	err := c.do(ctx, http.MethodGet, withQuery("projects", q), nil, &out, true)
	return out, err
}

func (c *Client) CreateProject(ctx context.Context, name, description string) (domain.Project, error) {
	body := map[string]any{"name": name}
	if description != "" {
		body["description"] = description
	}
	var p domain.Project
	err := c.do(ctx, http.MethodPost, "projects", body, &p, true)
	return p, err
}

func (c *Client) DeleteProject(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "projects/"+url.PathEscape(id), nil, nil, true)
}

// TaskQuery filters ListTasks; zero fields are ignored.
type TaskQuery struct {
	ProjectID  string
	AssignedTo string
	Status     string
	Priority   string
	Limit      int
}

func (c *Client) ListTasks(ctx context.Context, query TaskQuery) ([]domain.Task, error) {
	q := url.Values{}
	for k, v := range map[string]string{
		"project_id":  query.ProjectID,
		"assigned_to": query.AssignedTo,
		"status":      query.Status,
		"priority":    query.Priority,
	} {
		if v != "" {
			q.Set(k, v)
		}
	}
	if query.Limit > 0 {
		q.Set("limit", strconv.Itoa(query.Limit))
	}
	var out []domain.Task
	err := c.do(ctx, http.MethodGet, withQuery("tasks", q), nil, &out, true)
	return out, err
}

// CreateTask creates a task. fields carries the optional attributes using
// their wire names (priority, status, project_id, assigned_to, due_date,
// description).
func (c *Client) CreateTask(ctx context.Context, title string, fields map[string]string) (domain.Task, error) {
	body := map[string]any{"title": title}
	for k, v := range fields {
		body[k] = v
	}
	var t domain.Task
	err := c.do(ctx, http.MethodPost, "tasks", body, &t, true)
	return t, err
}

// UpdateTask patches a task. An empty value clears a nullable field.
func (c *Client) UpdateTask(ctx context.Context, id string, fields map[string]string) (domain.Task, error) {
	var t domain.Task
	err := c.do(ctx, http.MethodPatch, "tasks/"+url.PathEscape(id), fields, &t, true)
	return t, err
}

func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "tasks/"+url.PathEscape(id), nil, nil, true)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any, authed bool) error {
	c.mu.Lock()
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	httpClient := c.HTTPClient
	var token string
	if c.session != nil {
		token = c.session.AccessToken
	}
	c.mu.Unlock()
	if authed && token == "" {
		return domain.ErrUnauthenticated
	}

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(endpoint), &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		// Timeouts and cancellations stay matchable through errors.Is.
		return fmt.Errorf("%w: %w", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	b, _ := io.ReadAll(resp.Body)
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var env struct {
		Error struct {
			Code    string         `json:"code"`
			Message string         `json:"message"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(b, &env); err == nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
		apiErr.Details = env.Error.Details
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(b))
	}
	return apiErr
}

func (c *Client) url(endpoint string) string {
	base := strings.TrimRight(c.BaseURL, "/")
	prefix := strings.Trim(c.BasePath, "/")
	if prefix != "" {
		base += "/" + prefix
	}
	return base + "/" + strings.TrimLeft(endpoint, "/")
}

func withQuery(endpoint string, q url.Values) string {
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}
