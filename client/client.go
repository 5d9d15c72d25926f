// Package client talks to the StudyMate HTTP API and implements timer.Backend.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/studymate/studymate/timer"
)

// Client is a thin JSON client for /api/v1.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the server at baseURL (e.g. http://localhost:8080).
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// APIError is a non-2xx answer that does not map onto a timer error.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (code %d): %s", e.Status, e.Code, e.Message)
}

func (c *Client) do(ctx context.Context, op, method, path, token string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/api/v1"+path, rdr)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &timer.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env); err != nil {
		return &timer.NetworkError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 || env.Code != 0 {
		return &APIError{Status: resp.StatusCode, Code: env.Code, Message: env.Message}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return &timer.NetworkError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode data: %w", err)}
		}
	}
	return nil
}

// sessionCall runs a session-scoped request and translates HTTP failures into timer errors.
func (c *Client) sessionCall(ctx context.Context, op, method, path, token, sessionID string, body, out any) error {
	err := c.do(ctx, op, method, path, token, body, out)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.Status {
	case http.StatusBadRequest:
		return &timer.ValidationError{Reason: apiErr.Message}
	case http.StatusNotFound:
		return &timer.NotFoundError{SessionID: sessionID}
	case http.StatusForbidden:
		return timer.ErrForbidden
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", timer.ErrInvalidTransition, apiErr.Message)
	case http.StatusLocked:
		return timer.ErrBusy
	default:
		return &timer.NetworkError{Op: op, Status: apiErr.Status, Err: apiErr}
	}
}

func recordPath(id, action string) string {
	return "/study-records/" + url.PathEscape(id) + "/" + action
}

// StartSession implements timer.Backend.
func (c *Client) StartSession(ctx context.Context, user timer.User, req timer.StartRequest) (string, error) {
	var out struct {
		RecordID string `json:"record_id"`
	}
	body := map[string]any{
		"subject_id":         req.SubjectID,
		"topic":              req.Topic,
		"estimated_duration": req.EstimatedDuration,
	}
	if err := c.sessionCall(ctx, "start", http.MethodPost, "/study-records/start", user.Token, "", body, &out); err != nil {
		return "", err
	}
	if out.RecordID == "" {
		return "", &timer.NetworkError{Op: "start", Err: errors.New("server returned no record id")}
	}
	return out.RecordID, nil
}

// PauseSession implements timer.Backend.
func (c *Client) PauseSession(ctx context.Context, user timer.User, sessionID string) error {
	return c.sessionCall(ctx, "pause", http.MethodPost, recordPath(sessionID, "pause"), user.Token, sessionID, nil, nil)
}

// ResumeSession implements timer.Backend.
func (c *Client) ResumeSession(ctx context.Context, user timer.User, sessionID string) error {
	return c.sessionCall(ctx, "resume", http.MethodPost, recordPath(sessionID, "resume"), user.Token, sessionID, nil, nil)
}

// CompletePomodoro implements timer.Backend.
func (c *Client) CompletePomodoro(ctx context.Context, user timer.User, sessionID string, req timer.PomodoroRequest) (timer.PomodoroResult, error) {
	var out struct {
		PomodoroCount int              `json:"pomodoro_count"`
		Milestone     *timer.Milestone `json:"milestone"`
	}
	body := map[string]any{
		"focus_rating":   req.FocusRating,
		"pomodoro_count": req.PomodoroCount,
	}
	if err := c.sessionCall(ctx, "pomodoro", http.MethodPost, recordPath(sessionID, "pomodoro"), user.Token, sessionID, body, &out); err != nil {
		return timer.PomodoroResult{}, err
	}
	return timer.PomodoroResult{PomodoroCount: out.PomodoroCount, Milestone: out.Milestone}, nil
}

// CompleteSession implements timer.Backend.
func (c *Client) CompleteSession(ctx context.Context, user timer.User, sessionID string, req timer.CompleteRequest) (timer.CompleteResult, error) {
	var out struct {
		Record struct {
			Duration int        `json:"duration"`
			EndTime  *time.Time `json:"end_time"`
		} `json:"record"`
		Streak     timer.Streak `json:"streak"`
		Reputation struct {
			Points    int           `json:"points"`
			Awarded   int           `json:"awarded"`
			Breakdown []timer.Award `json:"breakdown"`
		} `json:"reputation"`
	}
	tags := req.Tags
	if tags == nil {
		tags = []string{}
	}
	body := map[string]any{
		"notes":             req.Notes,
		"tags":              tags,
		"final_focus_score": req.FocusScore,
		"duration":          req.Duration,
		"elapsed_seconds":   req.ElapsedSeconds,
		"pomodoro_count":    req.PomodoroCount,
	}
	if err := c.sessionCall(ctx, "complete", http.MethodPost, recordPath(sessionID, "complete"), user.Token, sessionID, body, &out); err != nil {
		return timer.CompleteResult{}, err
	}
	res := timer.CompleteResult{
		Duration:      out.Record.Duration,
		PointsAwarded: out.Reputation.Awarded,
		TotalPoints:   out.Reputation.Points,
		Breakdown:     out.Reputation.Breakdown,
		Streak:        out.Streak,
	}
	if out.Record.EndTime != nil {
		res.CompletedAt = *out.Record.EndTime
	}
	return res, nil
}

var _ timer.Backend = (*Client)(nil)
