// Package scheduler drives periodic background maintenance — currently
// just scheduled journal rollover — on top of github.com/robfig/cron/v3,
// promoted here from an indirect teacher dependency to a direct one.
package scheduler

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Rollover is anything that can be asked to roll over on a schedule; both
// journal.Store[T] instantiations satisfy it.
type Rollover interface {
	RolloverIfNeeded() error
}

// Scheduler runs one or more named Rollover targets on a cron schedule.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// New builds a Scheduler that checks every registered target against spec
// (standard five-field cron syntax, e.g. "*/15 * * * *"). It does not start
// running until Start is called.
func New(spec string, logger *slog.Logger, targets map[string]Rollover) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := cron.New()
	for name, target := range targets {
		name, target := name, target
		err := c.AddFunc(spec, func() {
			if err := target.RolloverIfNeeded(); err != nil {
				logger.Warn("scheduled rollover check failed", slog.String("document", name), slog.String("error", err.Error()))
			}
		})
		if err != nil {
			return nil, err
		}
	}
	return &Scheduler{cron: c, logger: logger}, nil
}

// Start begins running scheduled checks in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler; it does not wait for an in-progress check.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
