package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// Job is a periodic task run by the Manager.
type Job interface {
	Name() string
	Interval() time.Duration
	Run(ctx context.Context)
}

// Manager owns the gocron scheduler for background jobs.
type Manager struct {
	scheduler gocron.Scheduler
	log       *zap.Logger
}

func NewManager(log *zap.Logger) (*Manager, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &Manager{scheduler: s, log: log}, nil
}

// Register adds job. A run still in progress when the next tick fires is not
// overlapped; the tick is rescheduled instead.
func (m *Manager) Register(ctx context.Context, job Job) error {
	_, err := m.scheduler.NewJob(
		gocron.DurationJob(job.Interval()),
		gocron.NewTask(func() { job.Run(ctx) }),
		gocron.WithName(job.Name()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return err
	}
	m.log.Info("job registered", zap.String("job", job.Name()), zap.Duration("interval", job.Interval()))
	return nil
}

func (m *Manager) Start() {
	m.scheduler.Start()
}

func (m *Manager) Stop() {
	if err := m.scheduler.Shutdown(); err != nil {
		m.log.Error("shutdown scheduler", zap.Error(err))
	}
}
