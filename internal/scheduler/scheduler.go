package scheduler

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/openblinds/blindctl/internal/logger"
	"github.com/openblinds/blindctl/internal/motor"
)

// Scheduler runs time-based maintenance jobs. The only built-in job is
// the periodic re-calibration ascent, which keeps the tracked location
// honest on installations where the blind is rarely driven to the top.
type Scheduler struct {
	cron  *cron.Cron
	motor *motor.Controller
	log   *zap.SugaredLogger
}

// New creates a scheduler bound to the motor controller.
func New(m *motor.Controller) *Scheduler {
	return &Scheduler{
		cron:  cron.New(),
		motor: m,
		log:   logger.Sugar().With("component", "scheduler"),
	}
}

// AddCalibration registers a cron spec for the re-calibration ascent.
// The job skips when the motor is not idle so it never interrupts a
// host-commanded movement.
func (s *Scheduler) AddCalibration(spec string) error {
	_, err := s.cron.AddFunc(spec, func() {
		if !s.motor.IsStopped() {
			s.log.Infow("skipping scheduled calibration, motor busy")
			return
		}
		s.log.Infow("starting scheduled calibration")
		s.motor.MoveUpUntilStall()
	})
	if err != nil {
		return fmt.Errorf("invalid calibration schedule %q: %w", spec, err)
	}
	return nil
}

// Start begins running jobs in their own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
