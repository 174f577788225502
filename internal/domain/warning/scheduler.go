package warning

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler runs the risk scan on a cron spec, typically nightly.
type Scheduler struct {
	cron   *cron.Cron
	svc    *Service
	logger *slog.Logger
}

func NewScheduler(svc *Service, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		svc:    svc,
		logger: logger,
	}
}

// Start registers the scan at spec and begins the cron loop.
func (s *Scheduler) Start(spec string) error {
	_, err := s.cron.AddFunc(spec, func() {
		report, err := s.svc.Scan(context.Background())
		if err != nil {
			s.logger.Error("scheduled warning scan failed", "error", err)
			return
		}
		s.logger.Info("scheduled warning scan completed",
			"students", report.Students, "opened", report.Opened, "resolved", report.Resolved)
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron loop, waiting for a running scan to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
