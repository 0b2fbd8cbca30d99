package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Refresher is satisfied by core.Service.
type Refresher interface {
	Refresh(ctx context.Context) (bool, error)
}

// DefaultRefreshSpec re-reads the entitlement snapshot every 15 minutes.
const DefaultRefreshSpec = "@every 15m"

// RefreshScheduler periodically re-runs the snapshot refresh so revocations
// and expirations that never reach the update stream are still picked up.
type RefreshScheduler struct {
	cron    *cron.Cron
	r       Refresher
	log     logrus.FieldLogger
	timeout time.Duration
}

// NewRefreshScheduler schedules r on spec (standard cron or descriptors such
// as "@every 15m"). An overlapping run is skipped.
func NewRefreshScheduler(r Refresher, spec string, log logrus.FieldLogger) (*RefreshScheduler, error) {
	if spec == "" {
		spec = DefaultRefreshSpec
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(log))))
	s := &RefreshScheduler{cron: c, r: r, log: log, timeout: 30 * time.Second}
	if _, err := c.AddFunc(spec, s.RunOnce); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *RefreshScheduler) Start() { s.cron.Start() }

// Stop stops scheduling and waits for a running refresh to finish.
func (s *RefreshScheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunOnce refreshes immediately.
func (s *RefreshScheduler) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	purchased, err := s.r.Refresh(ctx)
	if err != nil {
		s.log.WithError(err).Warn("scheduled refresh failed")
		return
	}
	s.log.WithField("purchased", purchased).Debug("scheduled refresh")
}
