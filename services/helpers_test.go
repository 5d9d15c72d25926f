package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/studymate/studymate/config"
	"github.com/studymate/studymate/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
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

func testConfig() config.AppConfig {
	c := config.Defaults()
	c.DBDriver = "sqlite"
	c.SQLitePath = "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	c.LogLevel = "silent"
	c.Timezone = "UTC"
	return c
}

func openTestDB(t *testing.T, c config.AppConfig) *gorm.DB {
	t.Helper()
	db, err := config.OpenDatabase(c, &models.User{}, &models.StudySession{}, &models.StudyStreak{}, &models.ReputationEntry{})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

type fixture struct {
	db    *gorm.DB
	svc   *StudyService
	clock *fakeClock
	user  models.User
}

func newFixture(t *testing.T, mutate ...func(*config.AppConfig)) *fixture {
	t.Helper()
	c := testConfig()
	for _, m := range mutate {
		m(&c)
	}
	db := openTestDB(t, c)
	clock := newFakeClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	svc := NewStudyService(db, c, WithClock(clock.Now), WithLocker(NewMemoryLocker()))

	user := models.User{Username: "ada"}
	require.NoError(t, db.Create(&user).Error)
	return &fixture{db: db, svc: svc, clock: clock, user: user}
}

func (f *fixture) start(t *testing.T) *models.StudySession {
	t.Helper()
	sess, err := f.svc.Start(context.Background(), f.user.ID, StartInput{SubjectID: "Math", Topic: "Algebra"})
	require.NoError(t, err)
	return sess
}

func (f *fixture) points(t *testing.T) int {
	t.Helper()
	var u models.User
	require.NoError(t, f.db.First(&u, f.user.ID).Error)
	return u.Points
}
