package app

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Completer завершает занятия, время которых прошло
type Completer interface {
	CompleteEnded(ctx context.Context, limit int) (int, error)
}

// Scheduler управляет фоновыми задачами
type Scheduler struct {
	cron      *cron.Cron
	completer Completer
	batch     int
	logger    *zap.Logger
}

func NewScheduler(completer Completer, batch int, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:      cron.New(),
		completer: completer,
		batch:     batch,
		logger:    logger,
	}
}

// Start регистрирует задачу автозавершения и запускает cron
func (s *Scheduler) Start(ctx context.Context, schedule string) error {
	if _, err := s.cron.AddFunc(schedule, func() { s.completeEnded(ctx) }); err != nil {
		return fmt.Errorf("schedule completion job %q: %w", schedule, err)
	}

	s.logger.Info("Starting background scheduler", zap.String("completion_cron", schedule))
	s.cron.Start()
	return nil
}

// Stop ждёт окончания запущенных задач
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background scheduler")
	<-s.cron.Stop().Done()
}

func (s *Scheduler) completeEnded(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	done, err := s.completer.CompleteEnded(ctx, s.batch)
	if err != nil {
		s.logger.Error("Failed to auto-complete bookings", zap.Error(err))
		return
	}
	if done > 0 {
		s.logger.Info("Bookings auto-completed", zap.Int("count", done))
	}
}
