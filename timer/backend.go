package timer

import (
	"context"
	"time"
)

// User identifies the caller on every backend request.
type User struct {
	ID    uint
	Token string
}

// StartRequest opens a session.
type StartRequest struct {
	SubjectID         string
	Topic             string
	EstimatedDuration int // minutes
}

// PomodoroRequest reports one finished focus interval.
type PomodoroRequest struct {
	FocusRating   int
	PomodoroCount int
}

// Milestone is a reward surfaced by the server.
type Milestone struct {
	Message string `json:"message"`
	Points  int    `json:"points"`
}

// PomodoroResult is the server's answer to a PomodoroRequest.
type PomodoroResult struct {
	PomodoroCount int
	Milestone     *Milestone
}

// CompleteRequest finalizes a session.
type CompleteRequest struct {
	Notes          string
	Tags           []string
	FocusScore     int
	Duration       int // minutes, floor(ElapsedSeconds/60)
	ElapsedSeconds int
	PomodoroCount  int
}

// Award is one line of the server's reputation breakdown.
type Award struct {
	Reason string `json:"reason"`
	Detail string `json:"detail"`
	Points int    `json:"points"`
}

// Streak mirrors the server's streak counters.
type Streak struct {
	Current int `json:"current"`
	Longest int `json:"longest"`
}

// CompleteResult carries the server-computed outcome of completion.
type CompleteResult struct {
	Duration      int
	PointsAwarded int
	TotalPoints   int
	Breakdown     []Award
	Streak        Streak
	CompletedAt   time.Time
}

// Backend is the server contract the controller drives.
type Backend interface {
	StartSession(ctx context.Context, user User, req StartRequest) (sessionID string, err error)
	PauseSession(ctx context.Context, user User, sessionID string) error
	ResumeSession(ctx context.Context, user User, sessionID string) error
	CompletePomodoro(ctx context.Context, user User, sessionID string, req PomodoroRequest) (PomodoroResult, error)
	CompleteSession(ctx context.Context, user User, sessionID string, req CompleteRequest) (CompleteResult, error)
}
