package service

import (
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"go-image-editor/internal/logger"
)

// Sweeper closes idle sessions and reports how many it closed
type Sweeper interface {
	SweepIdle() int
}

// Janitor runs a Sweeper on a cron schedule
type Janitor struct {
	mu       sync.Mutex
	cron     *cron.Cron
	sweeper  Sweeper
	schedule string
	running  bool
	log      *logrus.Entry
}

// NewJanitor validates schedule (standard cron syntax or "@every <duration>")
// and registers the sweep
func NewJanitor(sweeper Sweeper, schedule string) (*Janitor, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}

	j := &Janitor{
		cron:     cron.New(),
		sweeper:  sweeper,
		schedule: schedule,
		log:      logger.ForComponent("janitor"),
	}
	if _, err := j.cron.AddFunc(schedule, j.Sweep); err != nil {
		return nil, fmt.Errorf("failed to register sweep: %w", err)
	}
	return j, nil
}

// Sweep runs one sweep immediately
func (j *Janitor) Sweep() {
	closed := j.sweeper.SweepIdle()
	j.log.WithField("closed", closed).Debug("Idle session sweep finished")
}

// Start starts the schedule
func (j *Janitor) Start() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		return fmt.Errorf("janitor already running")
	}
	j.cron.Start()
	j.running = true
	j.log.WithField("schedule", j.schedule).Info("Session janitor started")
	return nil
}

// Stop stops the schedule and waits for a running sweep to finish
func (j *Janitor) Stop() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.running {
		return fmt.Errorf("janitor not running")
	}
	ctx := j.cron.Stop()
	<-ctx.Done()
	j.running = false
	return nil
}
