package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studymate/studymate/config"
	"github.com/studymate/studymate/models"
	"github.com/studymate/studymate/routes"
	"github.com/studymate/studymate/services"
	"github.com/studymate/studymate/timer"
)

type sharedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *sharedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *sharedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newServer(t *testing.T, clock *sharedClock) *httptest.Server {
	t.Helper()
	c := config.Defaults()
	c.JWTSecret = "client-test-secret"
	c.GinMode = "test"
	c.GinPath = filepath.Join(t.TempDir(), "gin.log")
	c.DBDriver = "sqlite"
	c.SQLitePath = "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	c.LogLevel = "silent"
	c.Timezone = "UTC"
	c.RateLimitPerMinute = 10000
	c = config.Use(c)

	db, err := config.OpenDatabase(c, &models.User{}, &models.StudySession{}, &models.StudyStreak{}, &models.ReputationEntry{})
	require.NoError(t, err)
	svc := services.NewStudyService(db, c, services.WithClock(clock.Now), services.WithLocker(services.NewMemoryLocker()))

	srv := httptest.NewServer(routes.SetupRouter(db, svc))
	t.Cleanup(func() {
		srv.Close()
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return srv
}

func TestControllerAgainstServer(t *testing.T) {
	clock := &sharedClock{now: time.Date(2026, 6, 1, 7, 30, 0, 0, time.UTC)}
	srv := newServer(t, clock)
	api := New(srv.URL, srv.Client())
	ctx := context.Background()

	acct, err := api.Register(ctx, "ada", "correct-horse", "")
	require.NoError(t, err)
	require.NotEmpty(t, acct.Token)
	user := acct.User()

	ctl := timer.New(api, timer.WithClock(clock))
	require.NoError(t, ctl.Start(ctx, user, "Math", "Algebra"))
	assert.Equal(t, 1500*time.Second, ctl.Snapshot().Remaining)

	clock.Advance(5 * time.Minute)
	require.NoError(t, ctl.Pause(ctx, user))
	require.NoError(t, ctl.Resume(ctx, user))

	ctl.SetFocusRating(80)
	clock.Advance(20 * time.Minute)
	require.NoError(t, ctl.Tick(ctx, user))
	snap := ctl.Snapshot()
	assert.Equal(t, timer.StateBreak, snap.State)
	assert.Equal(t, 1, snap.Pomodoros)
	assert.Equal(t, timer.RequestCommitted, snap.Last.Status)

	clock.Advance(20 * time.Minute)
	res, err := ctl.Complete(ctx, user, "quadratics", []string{"algebra"}, 85)
	require.NoError(t, err)
	assert.Equal(t, 45, res.Duration)
	assert.Equal(t, 15, res.PointsAwarded)
	assert.Equal(t, 15, res.TotalPoints)
	assert.Equal(t, 1, res.Streak.Current)
	assert.Len(t, res.Breakdown, 2)

	page, err := api.ListRecords(ctx, acct.Token, "completed", 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, 1, page.Items[0].Breaks)
	assert.Equal(t, 1, page.Items[0].PomodoroCount)

	stats, err := api.Stats(ctx, acct.Token)
	require.NoError(t, err)
	assert.Equal(t, 15, stats.Points)
	assert.EqualValues(t, 45, stats.TotalMinutes)
}

func TestErrorMapping(t *testing.T) {
	clock := &sharedClock{now: time.Date(2026, 6, 1, 7, 30, 0, 0, time.UTC)}
	srv := newServer(t, clock)
	api := New(srv.URL, srv.Client())
	ctx := context.Background()

	owner, err := api.Register(ctx, "ada", "correct-horse", "")
	require.NoError(t, err)
	other, err := api.Register(ctx, "mallory", "correct-horse", "")
	require.NoError(t, err)

	id, err := api.StartSession(ctx, owner.User(), timer.StartRequest{SubjectID: "Math", Topic: "Algebra"})
	require.NoError(t, err)

	err = api.ResumeSession(ctx, owner.User(), id)
	assert.ErrorIs(t, err, timer.ErrInvalidTransition)

	err = api.PauseSession(ctx, other.User(), id)
	assert.ErrorIs(t, err, timer.ErrForbidden)

	err = api.PauseSession(ctx, owner.User(), "missing")
	var nf *timer.NotFoundError
	assert.ErrorAs(t, err, &nf)

	_, err = api.CompleteSession(ctx, owner.User(), id, timer.CompleteRequest{FocusScore: 50, ElapsedSeconds: 10})
	var verr *timer.ValidationError
	assert.ErrorAs(t, err, &verr)

	require.NoError(t, api.CancelRecord(ctx, owner.Token, id))

	_, err = api.Login(ctx, "ada", "wrong")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
}

func TestNetworkErrors(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer broken.Close()

	api := New(broken.URL, broken.Client())
	err := api.PauseSession(context.Background(), timer.User{Token: "x"}, "id")
	var nerr *timer.NetworkError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, http.StatusBadGateway, nerr.Status)

	unreachable := New("http://127.0.0.1:1", &http.Client{Timeout: time.Second})
	_, err = unreachable.StartSession(context.Background(), timer.User{}, timer.StartRequest{SubjectID: "a", Topic: "b"})
	require.ErrorAs(t, err, &nerr)
	assert.False(t, errors.Is(err, timer.ErrBusy))
}

// flakyTransport fails the first request whose path ends with suffix.
type flakyTransport struct {
	base   http.RoundTripper
	suffix string

	mu     sync.Mutex
	failed bool
}

func (f *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	fail := !f.failed && strings.HasSuffix(req.URL.Path, f.suffix)
	if fail {
		f.failed = true
	}
	f.mu.Unlock()
	if fail {
		return nil, errors.New("connection reset by peer")
	}
	return f.base.RoundTrip(req)
}

func TestFailedPomodoroRecovers(t *testing.T) {
	clock := &sharedClock{now: time.Date(2026, 6, 1, 7, 30, 0, 0, time.UTC)}
	srv := newServer(t, clock)
	hc := srv.Client()
	hc.Transport = &flakyTransport{base: hc.Transport, suffix: "/pomodoro"}
	api := New(srv.URL, hc)
	ctx := context.Background()

	acct, err := api.Register(ctx, "ada", "correct-horse", "")
	require.NoError(t, err)
	user := acct.User()

	ctl := timer.New(api, timer.WithClock(clock))
	require.NoError(t, ctl.Start(ctx, user, "Math", "Algebra"))

	clock.Advance(25 * time.Minute)
	err = ctl.Tick(ctx, user)
	var nerr *timer.NetworkError
	require.ErrorAs(t, err, &nerr)
	snap := ctl.Snapshot()
	assert.Equal(t, timer.StateOngoing, snap.State)
	assert.Zero(t, snap.Pomodoros)
	assert.True(t, snap.PomodoroDue)

	clock.Advance(5 * time.Minute)
	require.NoError(t, ctl.Tick(ctx, user))
	assert.Equal(t, timer.StateOngoing, ctl.Snapshot().State)

	require.NoError(t, ctl.Resume(ctx, user))
	snap = ctl.Snapshot()
	assert.Equal(t, timer.StateBreak, snap.State)
	assert.Equal(t, 1, snap.Pomodoros)

	clock.Advance(5 * time.Minute)
	require.NoError(t, ctl.Tick(ctx, user))
	assert.Equal(t, timer.StatePaused, ctl.Snapshot().State)

	require.NoError(t, ctl.Resume(ctx, user))
	snap = ctl.Snapshot()
	assert.Equal(t, timer.StateOngoing, snap.State)
	assert.Equal(t, 25*time.Minute, snap.Remaining)

	page, err := api.ListRecords(ctx, acct.Token, "ongoing", 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, 1, page.Items[0].PomodoroCount)
}

func TestPolicyShowsDefaultTiers(t *testing.T) {
	clock := &sharedClock{now: time.Date(2026, 6, 1, 7, 30, 0, 0, time.UTC)}
	srv := newServer(t, clock)
	api := New(srv.URL, srv.Client())
	ctx := context.Background()

	acct, err := api.Register(ctx, "ada", "correct-horse", "")
	require.NoError(t, err)

	p, err := api.Policy(ctx, acct.Token)
	require.NoError(t, err)
	assert.Equal(t, []Tier{{30, 5}, {60, 15}, {120, 30}}, p.DurationTiers)
	assert.Equal(t, 80, p.FocusBonusThreshold)

	lines := p.Lines()
	assert.Contains(t, lines, "30+ minutes: 5 pts")
	assert.Contains(t, lines, "focus score 80+: +10 pts")
	assert.Contains(t, lines, "3-day streak: 15 pts")
	assert.Contains(t, lines, "pomodoro #3 in a session: 10 pts")

	_, err = New(srv.URL, srv.Client()).Policy(ctx, "")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
}
