// Package questlogsdk is a minimal Questlog HTTP API client.
package questlogsdk

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

// Client talks to a Questlog server. Set BearerToken or APIKey before use.
type Client struct {
	BaseURL     string
	WorkspaceID string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, workspaceID string) *Client {
	return &Client{
		BaseURL:     baseURL,
		WorkspaceID: workspaceID,
		Timeout:     10 * time.Second,
	}
}

// DailyGoal mirrors the API goal model.
type DailyGoal struct {
	ID                string `json:"id"`
	Description       string `json:"description"`
	Completed         bool   `json:"completed"`
	CompletionMinutes *int   `json:"completion_minutes,omitempty"`
}

// DailyReport mirrors the API daily report model (partial).
type DailyReport struct {
	ID          string      `json:"id"`
	UserID      string      `json:"user_id"`
	Day         string      `json:"day"`
	MorningMood int         `json:"morning_mood"`
	EveningMood *int        `json:"evening_mood,omitempty"`
	Goals       []DailyGoal `json:"goals"`
	Insights    string      `json:"insights,omitempty"`
}

// GoalCompletion references a goal by its ID.
type GoalCompletion struct {
	GoalID            string `json:"goal_id"`
	Completed         bool   `json:"completed"`
	CompletionMinutes *int   `json:"completion_minutes,omitempty"`
}

// Eligibility is the gate decision for a submission kind.
type Eligibility struct {
	Allowed      bool   `json:"allowed"`
	Reason       string `json:"reason,omitempty"`
	NextEligible string `json:"next_eligible,omitempty"`
}

// Assignment mirrors the API quest assignment model (partial).
type Assignment struct {
	UserID    string  `json:"user_id"`
	TaskID    string  `json:"task_id"`
	Status    string  `json:"status"`
	RevokedAt *string `json:"revoked_at,omitempty"`
}

// Dashboard mirrors the weekly progress summary.
type Dashboard struct {
	UserID     string         `json:"user_id"`
	Rollup     map[string]any `json:"rollup"`
	Struggling bool           `json:"struggling"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// DailyEligibility checks whether the caller may submit today's report.
func (c *Client) DailyEligibility(ctx context.Context) (Eligibility, error) {
	var resp Eligibility
	err := c.do(ctx, http.MethodGet, c.workspacePath("reports/daily/eligibility"), nil, &resp)
	return resp, err
}

// WeeklyEligibility checks the weekly window and dedup gate.
func (c *Client) WeeklyEligibility(ctx context.Context) (Eligibility, error) {
	var resp Eligibility
	err := c.do(ctx, http.MethodGet, c.workspacePath("reports/weekly/eligibility"), nil, &resp)
	return resp, err
}

// SubmitDaily submits the morning report for the authenticated actor.
func (c *Client) SubmitDaily(ctx context.Context, wakeUpTime string, morningMood int, goals []string) (DailyReport, error) {
	body := map[string]any{
		"wake_up_time": wakeUpTime,
		"morning_mood": morningMood,
		"goals":        goals,
	}
	var resp DailyReport
	err := c.do(ctx, http.MethodPost, c.workspacePath("reports/daily"), body, &resp)
	return resp, err
}

// CompleteDaily submits the end-of-day update. Completions must cover every
// goal of the morning report.
func (c *Client) CompleteDaily(ctx context.Context, eveningMood int, completions []GoalCompletion, insights string) (DailyReport, error) {
	body := map[string]any{
		"evening_mood": eveningMood,
		"completions":  completions,
		"insights":     insights,
	}
	var resp DailyReport
	err := c.do(ctx, http.MethodPost, c.workspacePath("reports/daily/complete"), body, &resp)
	return resp, err
}

// SetQuestStatus moves an assignment to a new status.
func (c *Client) SetQuestStatus(ctx context.Context, userID, taskID, status string) (Assignment, error) {
	body := map[string]any{"status": status}
	var resp Assignment
	endpoint := c.workspacePath(fmt.Sprintf("users/%s/quests/%s", url.PathEscape(userID), url.PathEscape(taskID)))
	err := c.do(ctx, http.MethodPatch, endpoint, body, &resp)
	return resp, err
}

// UserQuests lists a member's assignments.
func (c *Client) UserQuests(ctx context.Context, userID string) ([]Assignment, error) {
	var resp []Assignment
	endpoint := c.workspacePath(fmt.Sprintf("users/%s/quests", url.PathEscape(userID)))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// UserDashboard fetches the weekly progress summary.
func (c *Client) UserDashboard(ctx context.Context, userID string) (Dashboard, error) {
	var resp Dashboard
	endpoint := c.workspacePath(fmt.Sprintf("users/%s/dashboard", url.PathEscape(userID)))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Events returns recent events, newest first.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := c.workspacePath("events")
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
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

func (c *Client) workspacePath(p string) string {
	workspace := url.PathEscape(c.WorkspaceID)
	return fmt.Sprintf("v0/workspaces/%s/%s", workspace, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
