package tui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studymate/studymate/timer"
)

type stubClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stubClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type stubBackend struct {
	mu       sync.Mutex
	ops      []string
	complete timer.CompleteRequest
	// failPomodoros makes that many pomodoro reports fail
	failPomodoros int
}

func (b *stubBackend) note(op string) {
	b.mu.Lock()
	b.ops = append(b.ops, op)
	b.mu.Unlock()
}

func (b *stubBackend) StartSession(context.Context, timer.User, timer.StartRequest) (string, error) {
	b.note("start")
	return "s1", nil
}

func (b *stubBackend) PauseSession(context.Context, timer.User, string) error {
	b.note("pause")
	return nil
}

func (b *stubBackend) ResumeSession(context.Context, timer.User, string) error {
	b.note("resume")
	return nil
}

func (b *stubBackend) CompletePomodoro(_ context.Context, _ timer.User, _ string, req timer.PomodoroRequest) (timer.PomodoroResult, error) {
	b.note("pomodoro")
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failPomodoros > 0 {
		b.failPomodoros--
		return timer.PomodoroResult{}, &timer.NetworkError{Op: "pomodoro", Err: errors.New("timeout")}
	}
	return timer.PomodoroResult{PomodoroCount: req.PomodoroCount}, nil
}

func (b *stubBackend) CompleteSession(_ context.Context, _ timer.User, _ string, req timer.CompleteRequest) (timer.CompleteResult, error) {
	b.note("complete")
	b.mu.Lock()
	b.complete = req
	b.mu.Unlock()
	return timer.CompleteResult{Duration: req.Duration, PointsAwarded: 5}, nil
}

func newModel(t *testing.T) (TimerModel, *stubBackend, *stubClock) {
	t.Helper()
	b := &stubBackend{}
	clk := &stubClock{now: time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)}
	ctl := timer.New(b, timer.WithClock(clk))
	user := timer.User{ID: 1, Token: "tok"}
	require.NoError(t, ctl.Start(context.Background(), user, "Math", "Algebra"))
	return NewTimerModel(context.Background(), ctl, user), b, clk
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press feeds a key and drops the returned command.
func press(m TimerModel, k string) TimerModel {
	next, _ := m.Update(key(k))
	return next.(TimerModel)
}

// pressRun feeds a key, runs its command and feeds the action result back in.
func pressRun(m TimerModel, k string) TimerModel {
	next, cmd := m.Update(key(k))
	m = next.(TimerModel)
	if cmd == nil {
		return m
	}
	if done, ok := cmd().(actionDoneMsg); ok {
		next, _ = m.Update(done)
		m = next.(TimerModel)
	}
	return m
}

func TestViewShowsCountdown(t *testing.T) {
	m, _, _ := newModel(t)
	view := m.View()
	assert.Contains(t, view, "25:00")
	assert.Contains(t, view, "Math · Algebra")
	assert.Contains(t, view, "ONGOING")
}

func TestPauseToggle(t *testing.T) {
	m, b, _ := newModel(t)

	m = pressRun(m, "p")
	assert.Equal(t, timer.StatePaused, m.ctl.Snapshot().State)
	m = pressRun(m, "p")
	assert.Equal(t, timer.StateOngoing, m.ctl.Snapshot().State)
	assert.Equal(t, []string{"start", "pause", "resume"}, b.ops)
}

func TestRetryFailedPomodoro(t *testing.T) {
	m, b, clk := newModel(t)
	b.failPomodoros = 1

	clk.Advance(25 * time.Minute)
	require.Error(t, m.ctl.Tick(context.Background(), m.user))
	assert.Contains(t, m.View(), "press p to retry")

	m = pressRun(m, "p")
	snap := m.ctl.Snapshot()
	assert.Equal(t, timer.StateBreak, snap.State)
	assert.Equal(t, 1, snap.Pomodoros)
	assert.NotContains(t, m.View(), "press p to retry")
	assert.Equal(t, []string{"start", "pomodoro", "pomodoro"}, b.ops)
}

func TestFocusKeysClamp(t *testing.T) {
	m, _, _ := newModel(t)
	for i := 0; i < 10; i++ {
		m = press(m, "+")
	}
	assert.Equal(t, 100, m.focus)
	assert.Equal(t, 100, m.ctl.Snapshot().FocusRating)
}

func TestFinishFlow(t *testing.T) {
	m, b, clk := newModel(t)
	clk.Advance(3 * time.Minute)

	m = press(m, "s")
	require.Equal(t, phaseNotes, m.phase)
	for _, r := range "limits" {
		m = press(m, string(r))
	}
	m = press(m, "enter")
	require.Equal(t, phaseTags, m.phase)
	for _, r := range "calc, exam" {
		m = press(m, string(r))
	}

	next, cmd := m.Update(key("enter"))
	m = next.(TimerModel)
	require.NotNil(t, cmd)
	next, quit := m.Update(cmd())
	m = next.(TimerModel)

	require.NotNil(t, quit)
	assert.Equal(t, phaseDone, m.phase)
	require.NotNil(t, m.result)
	assert.Equal(t, 3, m.result.Duration)
	assert.Equal(t, "limits", b.complete.Notes)
	assert.Equal(t, []string{"calc", "exam"}, b.complete.Tags)
	assert.Equal(t, 70, b.complete.FocusScore)
}

func TestFinishTooEarlyShowsError(t *testing.T) {
	m, _, _ := newModel(t)

	m = press(m, "s")
	m = press(m, "enter")
	m = pressRun(m, "enter")

	assert.Equal(t, phaseTimer, m.phase)
	require.Error(t, m.err)
	assert.True(t, strings.Contains(m.View(), "at least one minute"))
}

func TestQuitAbandons(t *testing.T) {
	m, b, _ := newModel(t)
	next, cmd := m.Update(key("q"))
	m = next.(TimerModel)

	assert.NotNil(t, cmd)
	assert.True(t, m.abandoned)
	assert.Equal(t, timer.StateIdle, m.ctl.Snapshot().State)
	assert.Equal(t, []string{"start"}, b.ops)
}

func TestFormatClock(t *testing.T) {
	assert.Equal(t, "25:00", formatClock(25*time.Minute))
	assert.Equal(t, "00:59", formatClock(59*time.Second))
	assert.Equal(t, "1:02:03", formatClock(time.Hour+2*time.Minute+3*time.Second))
	assert.Equal(t, "00:00", formatClock(-time.Second))
}
