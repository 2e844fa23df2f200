package services

import (
	"context"

	"SocialSchedulerAPI/utils"

	"github.com/robfig/cron/v3"
)

// Scheduler drives the dispatcher on a cron schedule. It only owns the
// timer; all dispatch state lives in the repository, so stopping and
// restarting the scheduler is always safe.
type Scheduler struct {
	cron       *cron.Cron
	dispatcher *Dispatcher
	spec       string
}

func NewScheduler(dispatcher *Dispatcher, spec string) *Scheduler {
	return &Scheduler{
		cron:       cron.New(),
		dispatcher: dispatcher,
		spec:       spec,
	}
}

func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.spec, func() {
		n, err := s.dispatcher.RunOnce(context.Background())
		if err != nil {
			utils.Errorf("dispatch cycle failed: %v", err)
			return
		}
		if n > 0 {
			utils.Infof("dispatch cycle processed %d post(s)", n)
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	utils.Infof("scheduler started (%s)", s.spec)
	return nil
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
