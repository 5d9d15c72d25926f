package timer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type call struct {
	op  string
	req any
}

type fakeBackend struct {
	mu       sync.Mutex
	calls    []call
	errs     map[string]error
	block    chan struct{}
	entered  chan struct{}
	complete CompleteResult
	pomodoro func(PomodoroRequest) PomodoroResult
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{errs: map[string]error{}}
}

func (b *fakeBackend) record(op string, req any) error {
	b.mu.Lock()
	b.calls = append(b.calls, call{op: op, req: req})
	err := b.errs[op]
	block, entered := b.block, b.entered
	b.mu.Unlock()
	if block != nil {
		if entered != nil {
			entered <- struct{}{}
		}
		<-block
	}
	return err
}

func (b *fakeBackend) ops() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.calls))
	for _, c := range b.calls {
		out = append(out, c.op)
	}
	return out
}

func (b *fakeBackend) lastReq() any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[len(b.calls)-1].req
}

func (b *fakeBackend) StartSession(_ context.Context, _ User, req StartRequest) (string, error) {
	if err := b.record("start", req); err != nil {
		return "", err
	}
	return "sess-1", nil
}

func (b *fakeBackend) PauseSession(_ context.Context, _ User, id string) error {
	return b.record("pause", id)
}

func (b *fakeBackend) ResumeSession(_ context.Context, _ User, id string) error {
	return b.record("resume", id)
}

func (b *fakeBackend) CompletePomodoro(_ context.Context, _ User, _ string, req PomodoroRequest) (PomodoroResult, error) {
	if err := b.record("pomodoro", req); err != nil {
		return PomodoroResult{}, err
	}
	if b.pomodoro != nil {
		return b.pomodoro(req), nil
	}
	return PomodoroResult{PomodoroCount: req.PomodoroCount}, nil
}

func (b *fakeBackend) CompleteSession(_ context.Context, _ User, _ string, req CompleteRequest) (CompleteResult, error) {
	if err := b.record("complete", req); err != nil {
		return CompleteResult{}, err
	}
	res := b.complete
	res.Duration = req.Duration
	return res, nil
}

var ada = User{ID: 1, Token: "t"}

func newTestController(t *testing.T) (*Controller, *fakeBackend, *fakeClock) {
	t.Helper()
	b := newFakeBackend()
	clk := &fakeClock{now: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}
	return New(b, WithClock(clk)), b, clk
}

func startSession(t *testing.T, c *Controller) {
	t.Helper()
	require.NoError(t, c.Start(context.Background(), ada, "Math", "Algebra"))
}

func TestStartBeginsCountdown(t *testing.T) {
	c, b, _ := newTestController(t)
	startSession(t, c)

	s := c.Snapshot()
	assert.Equal(t, StateOngoing, s.State)
	assert.Equal(t, "sess-1", s.SessionID)
	assert.Equal(t, 1500*time.Second, s.Remaining)
	assert.Equal(t, Transition{Action: "start", Status: RequestCommitted}, s.Last)
	assert.Equal(t, StartRequest{SubjectID: "Math", Topic: "Algebra", EstimatedDuration: 25}, b.lastReq())

	assert.ErrorIs(t, c.Start(context.Background(), ada, "Math", "Algebra"), ErrInvalidTransition)
}

func TestStartRequiresSubjectAndTopic(t *testing.T) {
	c, b, _ := newTestController(t)

	var verr *ValidationError
	require.ErrorAs(t, c.Start(context.Background(), ada, "", "Algebra"), &verr)
	assert.Equal(t, "subject", verr.Field)
	require.ErrorAs(t, c.Start(context.Background(), ada, "Math", "  "), &verr)
	assert.Equal(t, "topic", verr.Field)

	assert.Empty(t, b.ops())
	assert.Equal(t, StateIdle, c.Snapshot().State)
}

func TestStartFailureStaysIdle(t *testing.T) {
	c, b, _ := newTestController(t)
	b.errs["start"] = &NetworkError{Op: "start", Err: errors.New("connection refused")}

	err := c.Start(context.Background(), ada, "Math", "Algebra")
	var nerr *NetworkError
	require.ErrorAs(t, err, &nerr)

	s := c.Snapshot()
	assert.Equal(t, StateIdle, s.State)
	assert.Equal(t, RequestFailed, s.Last.Status)
}

func TestCountdownIsAnchored(t *testing.T) {
	c, _, clk := newTestController(t)
	startSession(t, c)

	// no ticks at all for ten minutes
	clk.Advance(10 * time.Minute)
	assert.Equal(t, 15*time.Minute, c.Snapshot().Remaining)

	clk.Advance(1500 * time.Millisecond)
	require.NoError(t, c.Tick(context.Background(), ada))
	assert.Equal(t, 15*time.Minute-1500*time.Millisecond, c.Snapshot().Remaining)
}

func TestPomodoroExpiry(t *testing.T) {
	c, b, clk := newTestController(t)
	b.pomodoro = func(req PomodoroRequest) PomodoroResult {
		return PomodoroResult{PomodoroCount: req.PomodoroCount}
	}
	startSession(t, c)
	c.SetFocusRating(72)

	clk.Advance(1500 * time.Second)
	require.NoError(t, c.Tick(context.Background(), ada))

	s := c.Snapshot()
	assert.Equal(t, 1, s.Pomodoros)
	assert.Equal(t, StateBreak, s.State)
	assert.True(t, s.State.Paused())
	assert.Equal(t, 300*time.Second, s.Remaining)
	assert.Equal(t, PomodoroRequest{FocusRating: 72, PomodoroCount: 1}, b.lastReq())
	assert.Equal(t, RequestCommitted, s.Last.Status)
}

func TestBreakEndsInPausedState(t *testing.T) {
	c, _, clk := newTestController(t)
	startSession(t, c)

	clk.Advance(25 * time.Minute)
	require.NoError(t, c.Tick(context.Background(), ada))
	clk.Advance(5 * time.Minute)
	require.NoError(t, c.Tick(context.Background(), ada))

	s := c.Snapshot()
	assert.Equal(t, StatePaused, s.State)
	assert.Equal(t, 25*time.Minute, s.Remaining)

	clk.Advance(time.Hour)
	assert.Equal(t, 25*time.Minute, c.Snapshot().Remaining, "paused countdown does not move")
}

func TestPomodoroMilestoneSurfaced(t *testing.T) {
	c, b, clk := newTestController(t)
	b.pomodoro = func(req PomodoroRequest) PomodoroResult {
		res := PomodoroResult{PomodoroCount: req.PomodoroCount}
		if req.PomodoroCount == 3 {
			res.Milestone = &Milestone{Message: "3 pomodoros in one session: +10 points", Points: 10}
		}
		return res
	}
	startSession(t, c)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		clk.Advance(25 * time.Minute)
		require.NoError(t, c.Tick(ctx, ada))
		require.NoError(t, c.Resume(ctx, ada))
	}
	s := c.Snapshot()
	require.NotNil(t, s.Milestone)
	assert.Equal(t, 10, s.Milestone.Points)
}

func TestPomodoroCountSurvivesPauseResume(t *testing.T) {
	c, _, clk := newTestController(t)
	startSession(t, c)
	ctx := context.Background()

	const expirations = 4
	for i := 0; i < expirations; i++ {
		clk.Advance(10 * time.Minute)
		require.NoError(t, c.Pause(ctx, ada))
		clk.Advance(3 * time.Minute)
		require.NoError(t, c.Tick(ctx, ada))
		require.NoError(t, c.Resume(ctx, ada))
		clk.Advance(15 * time.Minute)
		require.NoError(t, c.Tick(ctx, ada))
		require.Equal(t, StateBreak, c.Snapshot().State)
		require.NoError(t, c.Resume(ctx, ada))
	}

	s := c.Snapshot()
	assert.Equal(t, expirations, s.Pomodoros)
	assert.Equal(t, expirations, s.Breaks)
}

func TestPomodoroFailureHoldsUntilResume(t *testing.T) {
	c, b, clk := newTestController(t)
	startSession(t, c)
	ctx := context.Background()
	b.errs["pomodoro"] = &NetworkError{Op: "pomodoro", Err: errors.New("timeout")}

	clk.Advance(25 * time.Minute)
	err := c.Tick(ctx, ada)
	var nerr *NetworkError
	require.ErrorAs(t, err, &nerr)

	s := c.Snapshot()
	assert.Equal(t, StateOngoing, s.State)
	assert.Zero(t, s.Pomodoros)
	assert.Zero(t, s.Remaining)
	assert.True(t, s.PomodoroDue)
	assert.Equal(t, RequestFailed, s.Last.Status)

	// no automatic retry
	clk.Advance(10 * time.Minute)
	require.NoError(t, c.Tick(ctx, ada))
	assert.Equal(t, []string{"start", "pomodoro"}, b.ops())

	delete(b.errs, "pomodoro")
	require.NoError(t, c.Resume(ctx, ada))

	s = c.Snapshot()
	assert.Equal(t, StateBreak, s.State)
	assert.Equal(t, 1, s.Pomodoros)
	assert.False(t, s.PomodoroDue)
	assert.Equal(t, 5*time.Minute, s.Remaining)
	assert.Equal(t, []string{"start", "pomodoro", "pomodoro"}, b.ops())
	assert.Equal(t, 1, b.lastReq().(PomodoroRequest).PomodoroCount)
}

func TestPomodoroRetryAfterPause(t *testing.T) {
	c, b, clk := newTestController(t)
	startSession(t, c)
	ctx := context.Background()
	b.errs["pomodoro"] = &NetworkError{Op: "pomodoro", Err: errors.New("timeout")}

	clk.Advance(25 * time.Minute)
	require.Error(t, c.Tick(ctx, ada))
	delete(b.errs, "pomodoro")

	require.NoError(t, c.Pause(ctx, ada))
	require.NoError(t, c.Resume(ctx, ada))
	require.NoError(t, c.Tick(ctx, ada))

	s := c.Snapshot()
	assert.Equal(t, StateBreak, s.State)
	assert.Equal(t, 1, s.Pomodoros)
	assert.Equal(t, []string{"start", "pomodoro", "pause", "resume", "pomodoro"}, b.ops())
}

func TestPauseResume(t *testing.T) {
	c, b, clk := newTestController(t)
	startSession(t, c)
	ctx := context.Background()

	clk.Advance(5 * time.Minute)
	require.NoError(t, c.Pause(ctx, ada))
	s := c.Snapshot()
	assert.Equal(t, StatePaused, s.State)
	assert.Equal(t, 1, s.Breaks)
	assert.Equal(t, 20*time.Minute, s.Remaining)

	clk.Advance(7 * time.Minute)
	assert.Equal(t, 20*time.Minute, c.Snapshot().Remaining)

	require.NoError(t, c.Resume(ctx, ada))
	clk.Advance(time.Minute)
	assert.Equal(t, 19*time.Minute, c.Snapshot().Remaining)
	assert.Equal(t, []string{"start", "pause", "resume"}, b.ops())
}

func TestPauseOutsideOngoingIsNoop(t *testing.T) {
	c, b, _ := newTestController(t)

	require.NoError(t, c.Pause(context.Background(), ada))
	require.NoError(t, c.Resume(context.Background(), ada))

	assert.Equal(t, StateIdle, c.Snapshot().State)
	assert.Empty(t, b.ops())
}

func TestPauseRollbackOnFailure(t *testing.T) {
	c, b, clk := newTestController(t)
	startSession(t, c)
	b.errs["pause"] = &NetworkError{Op: "pause", Err: errors.New("offline")}

	clk.Advance(5 * time.Minute)
	err := c.Pause(context.Background(), ada)
	require.Error(t, err)

	clk.Advance(time.Minute)
	s := c.Snapshot()
	assert.Equal(t, StateOngoing, s.State)
	assert.Zero(t, s.Breaks)
	assert.Equal(t, 19*time.Minute, s.Remaining, "countdown kept running")
	assert.Equal(t, Transition{Action: "pause", Status: RequestFailed, Err: err}, s.Last)
}

func TestResumeRollbackOnFailure(t *testing.T) {
	c, b, clk := newTestController(t)
	startSession(t, c)
	ctx := context.Background()
	require.NoError(t, c.Pause(ctx, ada))

	b.errs["resume"] = ErrInvalidTransition
	clk.Advance(time.Minute)
	assert.ErrorIs(t, c.Resume(ctx, ada), ErrInvalidTransition)

	s := c.Snapshot()
	assert.Equal(t, StatePaused, s.State)
	assert.Equal(t, 25*time.Minute, s.Remaining)
}

func TestTransitionsAreSerialized(t *testing.T) {
	c, b, _ := newTestController(t)
	startSession(t, c)

	block := make(chan struct{})
	b.mu.Lock()
	b.block = block
	b.entered = make(chan struct{}, 1)
	b.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- c.Pause(context.Background(), ada) }()
	<-b.entered

	s := c.Snapshot()
	assert.True(t, s.InFlight)
	assert.Equal(t, RequestPending, s.Last.Status)
	assert.Equal(t, StatePaused, s.State, "pause applies optimistically")

	assert.ErrorIs(t, c.Resume(context.Background(), ada), ErrBusy)
	_, err := c.Complete(context.Background(), ada, "", nil, 50)
	assert.ErrorIs(t, err, ErrBusy)

	b.mu.Lock()
	b.block = nil
	b.mu.Unlock()
	close(block)

	require.NoError(t, <-done)
	assert.Equal(t, []string{"start", "pause"}, b.ops())
	assert.Equal(t, RequestCommitted, c.Snapshot().Last.Status)
}

func TestCompleteTooShort(t *testing.T) {
	c, b, clk := newTestController(t)
	startSession(t, c)

	clk.Advance(59 * time.Second)
	_, err := c.Complete(context.Background(), ada, "notes", nil, 80)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "duration", verr.Field)

	assert.Equal(t, []string{"start"}, b.ops())
	assert.Equal(t, StateOngoing, c.Snapshot().State)
}

func TestCompleteReportsFloorMinutes(t *testing.T) {
	for _, tc := range []struct {
		elapsed time.Duration
		want    int
	}{
		{119 * time.Second, 1},
		{120 * time.Second, 2},
	} {
		t.Run(tc.elapsed.String(), func(t *testing.T) {
			c, b, clk := newTestController(t)
			startSession(t, c)
			clk.Advance(tc.elapsed)

			res, err := c.Complete(context.Background(), ada, "", nil, 50)
			require.NoError(t, err)
			assert.Equal(t, tc.want, res.Duration)
			req := b.lastReq().(CompleteRequest)
			assert.Equal(t, tc.want, req.Duration)
			assert.Equal(t, int(tc.elapsed/time.Second), req.ElapsedSeconds)
		})
	}
}

func TestCompleteFortyFiveMinutes(t *testing.T) {
	c, b, clk := newTestController(t)
	b.complete = CompleteResult{
		PointsAwarded: 15,
		TotalPoints:   15,
		Streak:        Streak{Current: 1, Longest: 1},
		Breakdown:     []Award{{Reason: "duration_tier", Points: 5}, {Reason: "focus_bonus", Points: 10}},
	}
	startSession(t, c)
	clk.Advance(45 * time.Minute)
	// the 25 minute expiry is processed late
	require.NoError(t, c.Tick(context.Background(), ada))

	res, err := c.Complete(context.Background(), ada, "  quadratics ", []string{"algebra"}, 85)
	require.NoError(t, err)
	assert.Equal(t, 45, res.Duration)
	assert.Equal(t, 15, res.PointsAwarded)

	req := b.lastReq().(CompleteRequest)
	assert.Equal(t, "quadratics", req.Notes)
	assert.Equal(t, 85, req.FocusScore)
	assert.Equal(t, 1, req.PomodoroCount)

	s := c.Snapshot()
	assert.Equal(t, StateCompleted, s.State)
	assert.Zero(t, s.Remaining)
	assert.Equal(t, 45*time.Minute, s.Elapsed)
	require.NotNil(t, s.Result)
	assert.Equal(t, 1, s.Result.Streak.Current)

	_, err = c.Complete(context.Background(), ada, "", nil, 85)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	require.NoError(t, c.Pause(context.Background(), ada))
}

func TestCompleteValidatesFocus(t *testing.T) {
	c, b, clk := newTestController(t)
	startSession(t, c)
	clk.Advance(5 * time.Minute)

	_, err := c.Complete(context.Background(), ada, "", nil, 101)
	assert.Error(t, err)
	_, err = c.Complete(context.Background(), ada, "", nil, -1)
	assert.Error(t, err)
	assert.Equal(t, []string{"start"}, b.ops())
}

func TestCompleteFailureKeepsSession(t *testing.T) {
	c, b, clk := newTestController(t)
	startSession(t, c)
	clk.Advance(5 * time.Minute)
	b.errs["complete"] = &NotFoundError{SessionID: "sess-1"}

	_, err := c.Complete(context.Background(), ada, "", nil, 50)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, StateOngoing, c.Snapshot().State)
	assert.Equal(t, RequestFailed, c.Snapshot().Last.Status)
}

func TestCompleteFromIdle(t *testing.T) {
	c, _, _ := newTestController(t)
	_, err := c.Complete(context.Background(), ada, "", nil, 50)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestAbandon(t *testing.T) {
	c, b, clk := newTestController(t)
	startSession(t, c)
	clk.Advance(5 * time.Minute)

	c.Abandon()
	s := c.Snapshot()
	assert.Equal(t, StateIdle, s.State)
	assert.Empty(t, s.SessionID)

	clk.Advance(time.Hour)
	require.NoError(t, c.Tick(context.Background(), ada))
	assert.Equal(t, []string{"start"}, b.ops(), "nothing is sent after abandoning")
}

func TestSetFocusRatingClamps(t *testing.T) {
	c, _, _ := newTestController(t)
	c.SetFocusRating(140)
	assert.Equal(t, 100, c.Snapshot().FocusRating)
	c.SetFocusRating(-3)
	assert.Zero(t, c.Snapshot().FocusRating)
}

func TestRunTicks(t *testing.T) {
	c, _, clk := newTestController(t)
	startSession(t, c)
	clk.Advance(25 * time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan Snapshot, 8)
	go c.Run(ctx, ada, time.Millisecond, func(s Snapshot, _ error) {
		select {
		case got <- s:
		default:
		}
	})

	select {
	case s := <-got:
		assert.Equal(t, StateBreak, s.State)
	case <-time.After(2 * time.Second):
		t.Fatal("no tick observed")
	}
}
