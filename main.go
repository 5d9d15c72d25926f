package main

import (
	"time"

	"github.com/studymate/studymate/config"
	"github.com/studymate/studymate/models"
	"github.com/studymate/studymate/routes"
	"github.com/studymate/studymate/services"
	"github.com/studymate/studymate/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}
	defer func() { _ = utils.Logger.Sync() }()

	db := config.InitDatabase(&models.User{}, &models.StudySession{}, &models.StudyStreak{}, &models.ReputationEntry{})

	svc := services.NewStudyService(db, cfg)
	r := routes.SetupRouter(db, svc)

	var hooks []func()
	if !cfg.DisableStaleSweeper {
		sweeper, err := services.NewStaleSweeper(svc, cfg.StaleSweepSchedule, time.Duration(cfg.StaleSessionHours)*time.Hour)
		if err != nil {
			utils.Sugar.Fatalf("stale session sweeper: %v", err)
		}
		if err := sweeper.Start(); err != nil {
			utils.Sugar.Fatalf("stale session sweeper: %v", err)
		}
		hooks = append(hooks, sweeper.Stop)
	}
	if rc := utils.GetRedis(); rc != nil {
		hooks = append(hooks, func() { _ = rc.Close() })
	}

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(":"+cfg.AppPort, r, hooks...); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
