package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Janitor periodically unmounts views whose sessions expired
type Janitor struct {
	service  *ViewService
	schedule string
	logger   *zap.SugaredLogger
	cron     *cron.Cron
}

// NewJanitor creates a janitor running on a cron schedule such as "@every 1m"
func NewJanitor(service *ViewService, schedule string) *Janitor {
	return &Janitor{
		service:  service,
		schedule: schedule,
		logger:   service.logger,
		cron:     cron.New(),
	}
}

// Start schedules the sweep
func (j *Janitor) Start() error {
	if _, err := j.cron.AddFunc(j.schedule, j.RunOnce); err != nil {
		return fmt.Errorf("failed to schedule session sweep: %w", err)
	}
	j.cron.Start()
	j.logger.Infof("Session janitor started with schedule %s", j.schedule)
	return nil
}

// RunOnce performs a single sweep
func (j *Janitor) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	swept, err := j.service.SweepExpired(ctx)
	if err != nil {
		j.logger.Errorf("Session sweep failed: %v", err)
		return
	}
	if swept > 0 {
		j.logger.Infof("Session sweep unmounted %d views", swept)
	}
}

// Stop stops the schedule and waits for a running sweep to finish
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
	j.logger.Info("Session janitor stopped")
}
