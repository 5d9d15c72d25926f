package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/studymate/studymate/timer"
)

// Account is the authenticated identity returned by login and register.
type Account struct {
	Token    string
	UserID   uint
	Username string
	Points   int
}

// User converts the account into the identity the timer passes along.
func (a Account) User() timer.User {
	return timer.User{ID: a.UserID, Token: a.Token}
}

type authPayload struct {
	Token string `json:"token"`
	User  struct {
		ID       uint   `json:"id"`
		Username string `json:"username"`
		Points   int    `json:"points"`
	} `json:"user"`
}

func (p authPayload) account() Account {
	return Account{Token: p.Token, UserID: p.User.ID, Username: p.User.Username, Points: p.User.Points}
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, username, password string) (Account, error) {
	var out authPayload
	body := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, "login", http.MethodPost, "/auth/login", "", body, &out); err != nil {
		return Account{}, err
	}
	return out.account(), nil
}

// Register creates an account and returns its token.
func (c *Client) Register(ctx context.Context, username, password, inviteCode string) (Account, error) {
	var out authPayload
	body := map[string]string{"username": username, "password": password, "invite_code": inviteCode}
	if err := c.do(ctx, "register", http.MethodPost, "/auth/register", "", body, &out); err != nil {
		return Account{}, err
	}
	return out.account(), nil
}

// Me resolves a token to its account.
func (c *Client) Me(ctx context.Context, token string) (Account, error) {
	var out struct {
		ID       uint   `json:"id"`
		Username string `json:"username"`
		Points   int    `json:"points"`
	}
	if err := c.do(ctx, "me", http.MethodGet, "/auth/me", token, nil, &out); err != nil {
		return Account{}, err
	}
	return Account{Token: token, UserID: out.ID, Username: out.Username, Points: out.Points}, nil
}

// Record is the listing view of a study session.
type Record struct {
	ID            string     `json:"id"`
	SubjectID     string     `json:"subject_id"`
	Topic         string     `json:"topic"`
	Duration      int        `json:"duration"`
	FocusScore    int        `json:"focus_score"`
	PomodoroCount int        `json:"pomodoro_count"`
	Breaks        int        `json:"breaks"`
	Tags          []string   `json:"tags"`
	PointsAwarded int        `json:"points_awarded"`
	Status        string     `json:"status"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       *time.Time `json:"end_time"`
}

// RecordPage is one page of records.
type RecordPage struct {
	Items      []Record `json:"items"`
	Pagination struct {
		Page       int   `json:"page"`
		PageSize   int   `json:"page_size"`
		Total      int64 `json:"total"`
		TotalPages int   `json:"total_pages"`
	} `json:"pagination"`
}

// ListRecords pages through the caller's records; status may be empty.
func (c *Client) ListRecords(ctx context.Context, token, status string, page, pageSize int) (RecordPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))
	if status != "" {
		q.Set("status", status)
	}
	var out RecordPage
	err := c.do(ctx, "list", http.MethodGet, "/study-records?"+q.Encode(), token, nil, &out)
	return out, err
}

// Stats is the caller's aggregate history.
type Stats struct {
	CompletedSessions int64   `json:"completed_sessions"`
	TotalMinutes      int64   `json:"total_minutes"`
	TotalPomodoros    int64   `json:"total_pomodoros"`
	AverageFocus      float64 `json:"average_focus"`
	ActiveSessions    int64   `json:"active_sessions"`
	Points            int     `json:"points"`
	CurrentStreak     int     `json:"current_streak"`
	LongestStreak     int     `json:"longest_streak"`
}

// Stats fetches /stats/me.
func (c *Client) Stats(ctx context.Context, token string) (Stats, error) {
	var out Stats
	err := c.do(ctx, "stats", http.MethodGet, "/stats/me", token, nil, &out)
	return out, err
}

// CancelRecord abandons a record on the server.
func (c *Client) CancelRecord(ctx context.Context, token, id string) error {
	return c.sessionCall(ctx, "cancel", http.MethodPost, recordPath(id, "cancel"), token, id, nil, nil)
}

// Tier is one threshold of the reward policy.
type Tier struct {
	At     int `json:"at"`
	Points int `json:"points"`
}

// Policy is the server's point award table.
type Policy struct {
	DurationTiers       []Tier `json:"duration_tiers"`
	FocusBonusThreshold int    `json:"focus_bonus_threshold"`
	FocusBonusPoints    int    `json:"focus_bonus_points"`
	StreakMilestones    []Tier `json:"streak_milestones"`
	PomodoroMilestones  []Tier `json:"pomodoro_milestones"`
}

// Lines renders the policy as short human readable rules.
func (p Policy) Lines() []string {
	var lines []string
	for _, t := range p.DurationTiers {
		lines = append(lines, fmt.Sprintf("%d+ minutes: %d pts", t.At, t.Points))
	}
	if p.FocusBonusPoints > 0 {
		lines = append(lines, fmt.Sprintf("focus score %d+: +%d pts", p.FocusBonusThreshold, p.FocusBonusPoints))
	}
	for _, t := range p.StreakMilestones {
		lines = append(lines, fmt.Sprintf("%d-day streak: %d pts", t.At, t.Points))
	}
	for _, t := range p.PomodoroMilestones {
		lines = append(lines, fmt.Sprintf("pomodoro #%d in a session: %d pts", t.At, t.Points))
	}
	return lines
}

// Policy fetches /progress/policy.
func (c *Client) Policy(ctx context.Context, token string) (Policy, error) {
	var out Policy
	err := c.do(ctx, "policy", http.MethodGet, "/progress/policy", token, nil, &out)
	return out, err
}
