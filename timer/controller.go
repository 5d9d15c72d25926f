package timer

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the controller's lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateOngoing   State = "ongoing"
	StatePaused    State = "paused"
	StateBreak     State = "break"
	StateCompleted State = "completed"
)

// RequestStatus tags the last transition request.
type RequestStatus string

const (
	RequestNone      RequestStatus = ""
	RequestPending   RequestStatus = "pending"
	RequestCommitted RequestStatus = "committed"
	RequestFailed    RequestStatus = "failed"
)

// Transition describes the most recent server-backed transition.
type Transition struct {
	Action string
	Status RequestStatus
	Err    error
}

// Snapshot is a read-only view of the controller.
type Snapshot struct {
	State       State
	SessionID   string
	SubjectID   string
	Topic       string
	Remaining   time.Duration
	Elapsed     time.Duration
	Pomodoros   int
	Breaks      int
	FocusRating int
	InFlight    bool
	// PomodoroDue is set when the last pomodoro report failed; Resume re-sends it.
	PomodoroDue bool
	Last        Transition
	Milestone   *Milestone
	Result      *CompleteResult
}

const (
	DefaultPomodoro   = 25 * time.Minute
	DefaultBreak      = 5 * time.Minute
	DefaultMinSession = 60 * time.Second
)

// Controller drives one study session from start to completion.
type Controller struct {
	backend Backend
	clock   Clock
	log     *zap.Logger

	pomodoro   time.Duration
	breakLen   time.Duration
	minSession time.Duration

	mu          sync.Mutex
	gen         int
	state       State
	sessionID   string
	subjectID   string
	topic       string
	startedAt   time.Time
	cd          countdown
	pomodoros   int
	breaks      int
	focusRating int
	inFlight    bool
	pomodoroDue bool
	last        Transition
	milestone   *Milestone
	result      *CompleteResult
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(ctl *Controller) { ctl.clock = c }
}

// WithLogger sets the logger used for transition events.
func WithLogger(l *zap.Logger) Option {
	return func(ctl *Controller) { ctl.log = l }
}

// WithDurations overrides the focus and break lengths.
func WithDurations(pomodoro, breakLen time.Duration) Option {
	return func(ctl *Controller) {
		if pomodoro > 0 {
			ctl.pomodoro = pomodoro
		}
		if breakLen > 0 {
			ctl.breakLen = breakLen
		}
	}
}

// WithMinSession overrides the shortest completable session.
func WithMinSession(d time.Duration) Option {
	return func(ctl *Controller) { ctl.minSession = d }
}

// New creates an idle controller.
func New(backend Backend, opts ...Option) *Controller {
	c := &Controller{
		backend:    backend,
		clock:      SystemClock,
		log:        zap.NewNop(),
		pomodoro:   DefaultPomodoro,
		breakLen:   DefaultBreak,
		minSession: DefaultMinSession,
		state:      StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.cd = frozenCountdown(c.pomodoro)
	return c
}

// begin claims the single in-flight slot. Caller holds mu.
func (c *Controller) begin(action string) (int, error) {
	if c.inFlight {
		return 0, ErrBusy
	}
	c.inFlight = true
	c.last = Transition{Action: action, Status: RequestPending}
	return c.gen, nil
}

// finish releases the slot and reports whether the response still applies. Caller holds mu.
func (c *Controller) finish(gen int, action string, err error) bool {
	if gen != c.gen {
		return false
	}
	c.inFlight = false
	if err != nil {
		c.last = Transition{Action: action, Status: RequestFailed, Err: err}
		c.log.Warn("timer transition failed", zap.String("action", action), zap.String("session_id", c.sessionID), zap.Error(err))
		return true
	}
	c.last = Transition{Action: action, Status: RequestCommitted}
	c.log.Debug("timer transition committed", zap.String("action", action), zap.String("session_id", c.sessionID))
	return true
}

// Start opens a session on the server and begins the first focus countdown.
func (c *Controller) Start(ctx context.Context, user User, subjectID, topic string) error {
	subjectID = strings.TrimSpace(subjectID)
	topic = strings.TrimSpace(topic)
	if subjectID == "" {
		return &ValidationError{Field: "subject", Reason: "is required"}
	}
	if topic == "" {
		return &ValidationError{Field: "topic", Reason: "is required"}
	}

	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrInvalidTransition
	}
	gen, err := c.begin("start")
	est := int(c.pomodoro / time.Minute)
	c.mu.Unlock()
	if err != nil {
		return err
	}

	id, err := c.backend.StartSession(ctx, user, StartRequest{SubjectID: subjectID, Topic: topic, EstimatedDuration: est})

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.finish(gen, "start", err) {
		return nil
	}
	if err != nil {
		return err
	}
	now := c.clock.Now()
	c.state = StateOngoing
	c.sessionID = id
	c.subjectID = subjectID
	c.topic = topic
	c.startedAt = now
	c.cd = startCountdown(now, c.pomodoro)
	c.pomodoros = 0
	c.breaks = 0
	c.pomodoroDue = false
	c.milestone = nil
	c.result = nil
	return nil
}

// Pause suspends an ongoing countdown. It does nothing in any other state.
func (c *Controller) Pause(ctx context.Context, user User) error {
	c.mu.Lock()
	if c.state != StateOngoing {
		c.mu.Unlock()
		return nil
	}
	gen, err := c.begin("pause")
	if err != nil {
		c.mu.Unlock()
		return err
	}
	prevCD, prevBreaks := c.cd, c.breaks
	c.state = StatePaused
	c.cd = c.cd.freeze(c.clock.Now())
	c.breaks++
	id := c.sessionID
	c.mu.Unlock()

	err = c.backend.PauseSession(ctx, user, id)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.finish(gen, "pause", err) {
		return nil
	}
	if err != nil {
		c.state = StateOngoing
		c.cd = prevCD
		c.breaks = prevBreaks
	}
	return err
}

// Resume continues a paused countdown, or starts a fresh focus interval when on break.
// After a failed pomodoro report it re-sends that report instead.
// It does nothing in any other state.
func (c *Controller) Resume(ctx context.Context, user User) error {
	c.mu.Lock()
	if c.state == StateOngoing && c.pomodoroDue {
		if c.inFlight {
			c.mu.Unlock()
			return ErrBusy
		}
		return c.completePomodoro(ctx, user, c.clock.Now())
	}
	if c.state != StatePaused && c.state != StateBreak {
		c.mu.Unlock()
		return nil
	}
	gen, err := c.begin("resume")
	if err != nil {
		c.mu.Unlock()
		return err
	}
	prevState, prevCD := c.state, c.cd
	now := c.clock.Now()
	if c.state == StateBreak {
		c.cd = startCountdown(now, c.pomodoro)
	} else {
		c.cd = c.cd.resume(now)
	}
	c.state = StateOngoing
	id := c.sessionID
	c.mu.Unlock()

	err = c.backend.ResumeSession(ctx, user, id)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.finish(gen, "resume", err) {
		return nil
	}
	if err != nil {
		c.state = prevState
		c.cd = prevCD
	}
	return err
}

// SetFocusRating updates the focus input sent with the next pomodoro, clamped to 0..100.
func (c *Controller) SetFocusRating(r int) {
	if r < 0 {
		r = 0
	}
	if r > 100 {
		r = 100
	}
	c.mu.Lock()
	c.focusRating = r
	c.mu.Unlock()
}

// Tick advances countdowns. Call it about once per second; late calls are harmless.
func (c *Controller) Tick(ctx context.Context, user User) error {
	c.mu.Lock()
	now := c.clock.Now()
	switch {
	case c.state == StateOngoing && c.cd.running && c.cd.left(now) <= 0 && !c.inFlight:
		return c.completePomodoro(ctx, user, now)
	case c.state == StateBreak && c.cd.left(now) <= 0:
		c.state = StatePaused
		c.cd = frozenCountdown(c.pomodoro)
		c.log.Debug("break finished", zap.String("session_id", c.sessionID))
	}
	c.mu.Unlock()
	return nil
}

// completePomodoro reports an expired focus interval and enters the break once the
// server accepts it. On failure the session stays ongoing with the countdown held at
// zero until the user resumes. It is entered with mu held and releases it.
func (c *Controller) completePomodoro(ctx context.Context, user User, now time.Time) error {
	gen, _ := c.begin("pomodoro")
	expiredAt := now
	if c.cd.running {
		expiredAt = c.cd.deadline()
	}
	c.cd = frozenCountdown(0)
	req := PomodoroRequest{FocusRating: c.focusRating, PomodoroCount: c.pomodoros + 1}
	id := c.sessionID
	c.mu.Unlock()

	res, err := c.backend.CompletePomodoro(ctx, user, id, req)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.finish(gen, "pomodoro", err) {
		return nil
	}
	if err != nil {
		c.pomodoroDue = true
		return err
	}
	c.pomodoroDue = false
	c.pomodoros = max(req.PomodoroCount, res.PomodoroCount)
	c.state = StateBreak
	c.cd = startCountdown(expiredAt, c.breakLen)
	c.milestone = res.Milestone
	return nil
}

// Complete finalizes the session. Sessions shorter than the minimum are rejected locally.
func (c *Controller) Complete(ctx context.Context, user User, notes string, tags []string, focusScore int) (*CompleteResult, error) {
	if focusScore < 0 || focusScore > 100 {
		return nil, &ValidationError{Field: "focus score", Reason: "must be between 0 and 100"}
	}

	c.mu.Lock()
	if c.state != StateOngoing && c.state != StatePaused && c.state != StateBreak {
		c.mu.Unlock()
		return nil, ErrInvalidTransition
	}
	if c.inFlight {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	elapsed := c.clock.Now().Sub(c.startedAt)
	if elapsed < c.minSession {
		c.mu.Unlock()
		return nil, &ValidationError{Field: "duration", Reason: "session must last at least one minute"}
	}
	gen, _ := c.begin("complete")
	seconds := int(elapsed / time.Second)
	req := CompleteRequest{
		Notes:          strings.TrimSpace(notes),
		Tags:           tags,
		FocusScore:     focusScore,
		Duration:       seconds / 60,
		ElapsedSeconds: seconds,
		PomodoroCount:  c.pomodoros,
	}
	id := c.sessionID
	c.mu.Unlock()

	res, err := c.backend.CompleteSession(ctx, user, id, req)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.finish(gen, "complete", err) {
		return nil, ErrInvalidTransition
	}
	if err != nil {
		return nil, err
	}
	c.state = StateCompleted
	c.cd = frozenCountdown(0)
	c.result = &res
	return &res, nil
}

// Abandon stops the countdown without telling the server and returns the controller to idle.
// Responses to requests still in flight are discarded.
func (c *Controller) Abandon() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.state = StateIdle
	c.sessionID = ""
	c.cd = frozenCountdown(c.pomodoro)
	c.inFlight = false
	c.pomodoroDue = false
	c.last = Transition{}
	c.milestone = nil
}

// Snapshot returns the current view.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()

	remaining := c.cd.left(now)
	if remaining < 0 {
		remaining = 0
	}
	var elapsed time.Duration
	if c.state != StateIdle && !c.startedAt.IsZero() {
		elapsed = now.Sub(c.startedAt)
		if c.result != nil {
			elapsed = time.Duration(c.result.Duration) * time.Minute
		}
	}
	return Snapshot{
		State:       c.state,
		SessionID:   c.sessionID,
		SubjectID:   c.subjectID,
		Topic:       c.topic,
		Remaining:   remaining,
		Elapsed:     elapsed,
		Pomodoros:   c.pomodoros,
		Breaks:      c.breaks,
		FocusRating: c.focusRating,
		InFlight:    c.inFlight,
		PomodoroDue: c.pomodoroDue,
		Last:        c.last,
		Milestone:   c.milestone,
		Result:      c.result,
	}
}

// Run calls Tick every interval until ctx is done, reporting each tick to notify.
func (c *Controller) Run(ctx context.Context, user User, interval time.Duration, notify func(Snapshot, error)) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			err := c.Tick(ctx, user)
			if notify != nil {
				notify(c.Snapshot(), err)
			}
		}
	}
}

// Paused reports whether the countdown is suspended, including during a break.
func (s State) Paused() bool {
	return s == StatePaused || s == StateBreak
}
