package obralinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Obraline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Project represents the API project model (partial).
type Project struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	State     string `json:"state"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// Membership represents a project member or pending invitation.
type Membership struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	Status    string `json:"status"`
}

// Task represents the API task model (partial).
type Task struct {
	ID          string `json:"id"`
	ProjectID   string `json:"project_id"`
	Title       string `json:"title"`
	Status      string `json:"status"`
	Priority    string `json:"priority"`
	AssigneeID  string `json:"assignee_id"`
	DueDate     string `json:"due_date"`
	Comment     string `json:"comment,omitempty"`
	EvidenceURL string `json:"evidence_url,omitempty"`
}

// MaterialAllocation reserves stock for a task at creation time.
type MaterialAllocation struct {
	MaterialID string `json:"material_id"`
	Quantity   int    `json:"quantity"`
}

// Material represents project inventory.
type Material struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	Unit      string `json:"unit"`
	Quantity  int    `json:"quantity"`
}

// Statistics summarizes project task completion.
type Statistics struct {
	Total       int `json:"total"`
	Completadas int `json:"completadas"`
	EnProgreso  int `json:"en_progreso"`
	Vencidas    int `json:"vencidas"`
}

// User represents an account.
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Login exchanges credentials for a bearer token and stores it on the client.
func (c *Client) Login(ctx context.Context, email, password string) (User, error) {
	var resp struct {
		Token string `json:"token"`
		User  User   `json:"user"`
	}
	err := c.do(ctx, http.MethodPost, "v1/auth/login", map[string]any{
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		return User{}, err
	}
	c.BearerToken = resp.Token
	return resp.User, nil
}

// CreateProject creates a project; the caller becomes its Gerente.
func (c *Client) CreateProject(ctx context.Context, name, startDate, endDate string) (Project, error) {
	body := map[string]any{"name": name}
	if startDate != "" {
		body["start_date"] = startDate
	}
	if endDate != "" {
		body["end_date"] = endDate
	}
	var resp Project
	err := c.do(ctx, http.MethodPost, "v1/projects", body, &resp)
	return resp, err
}

// ListProjects returns the caller's projects, optionally filtered by state.
func (c *Client) ListProjects(ctx context.Context, state string) ([]Project, error) {
	endpoint := "v1/projects"
	if state != "" {
		endpoint += "?state=" + url.QueryEscape(state)
	}
	var resp []Project
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Invite invites a user to a project by email.
func (c *Client) Invite(ctx context.Context, projectID, email, role string) (Membership, error) {
	var resp Membership
	endpoint := fmt.Sprintf("v1/projects/%s/members", url.PathEscape(projectID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"email": email, "role": role}, &resp)
	return resp, err
}

// AcceptInvitation accepts a pending invitation for the caller.
func (c *Client) AcceptInvitation(ctx context.Context, membershipID string) (Membership, error) {
	var resp Membership
	endpoint := fmt.Sprintf("v1/invitations/%s/accept", url.PathEscape(membershipID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// CreateTask creates a task with an optional material allocation.
func (c *Client) CreateTask(ctx context.Context, projectID, title, assigneeID, dueDate string, materials []MaterialAllocation) (Task, error) {
	body := map[string]any{
		"title":       title,
		"assignee_id": assigneeID,
		"due_date":    dueDate,
	}
	if len(materials) > 0 {
		body["materials"] = materials
	}
	var resp Task
	endpoint := fmt.Sprintf("v1/projects/%s/tasks", url.PathEscape(projectID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// StartTask moves a pending task to in progress.
func (c *Client) StartTask(ctx context.Context, taskID string) (Task, error) {
	var resp Task
	endpoint := fmt.Sprintf("v1/tasks/%s/start", url.PathEscape(taskID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// CompleteTask completes a task with its comment and evidence URL.
func (c *Client) CompleteTask(ctx context.Context, taskID, comment, evidenceURL string) (Task, error) {
	var resp Task
	endpoint := fmt.Sprintf("v1/tasks/%s/complete", url.PathEscape(taskID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{
		"comment":      comment,
		"evidence_url": evidenceURL,
	}, &resp)
	return resp, err
}

// CreateMaterial registers inventory on a project.
func (c *Client) CreateMaterial(ctx context.Context, projectID, name, unit string, quantity int) (Material, error) {
	var resp Material
	endpoint := fmt.Sprintf("v1/projects/%s/materials", url.PathEscape(projectID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{
		"name":     name,
		"unit":     unit,
		"quantity": quantity,
	}, &resp)
	return resp, err
}

// Statistics returns the project's task completion summary.
func (c *Client) Statistics(ctx context.Context, projectID string) (Statistics, error) {
	var resp Statistics
	endpoint := fmt.Sprintf("v1/projects/%s/statistics", url.PathEscape(projectID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
