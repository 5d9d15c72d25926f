package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/studymate/studymate/utils"
)

// StaleSweeper periodically cancels sessions that were started and then forgotten.
type StaleSweeper struct {
	svc       *StudyService
	cron      *cron.Cron
	schedule  string
	olderThan time.Duration

	mu      sync.Mutex
	running bool
}

// NewStaleSweeper validates schedule and prepares the cron runner.
func NewStaleSweeper(svc *StudyService, schedule string, olderThan time.Duration) (*StaleSweeper, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("parse sweep schedule %q: %w", schedule, err)
	}
	if olderThan <= 0 {
		return nil, fmt.Errorf("stale threshold must be positive, got %s", olderThan)
	}
	return &StaleSweeper{
		svc:       svc,
		cron:      cron.New(cron.WithLocation(svc.loc)),
		schedule:  schedule,
		olderThan: olderThan,
	}, nil
}

// Start registers the sweep job and starts the scheduler.
func (s *StaleSweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	if _, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.RunOnce(context.Background()); err != nil {
			utils.Logger.Error("stale session sweep failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule stale sweep: %w", err)
	}
	s.cron.Start()
	s.running = true
	utils.Logger.Info("stale session sweeper started",
		zap.String("schedule", s.schedule), zap.Duration("older_than", s.olderThan))
	return nil
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (s *StaleSweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
}

// RunOnce performs one sweep and returns the number of sessions cancelled.
func (s *StaleSweeper) RunOnce(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	n, err := s.svc.CancelStale(ctx, s.olderThan)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		utils.Logger.Info("cancelled stale study sessions", zap.Int64("count", n))
	}
	return n, nil
}
