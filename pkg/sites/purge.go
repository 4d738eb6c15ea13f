package sites

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sitekit/sitekit/pkg/observability"
)

// DefaultTrashRetention is how long a deleted site stays restorable before
// the purger removes it for good.
const DefaultTrashRetention = 30 * 24 * time.Hour

// DefaultPurgeSchedule runs the purger nightly at 03:00.
const DefaultPurgeSchedule = "0 3 * * *"

// TrashPurger periodically purges expired sites from the trash on a cron
// schedule.
type TrashPurger struct {
	service   *Service
	retention time.Duration
	schedule  string
	cron      *cron.Cron
	log       *observability.Logger
}

// NewTrashPurger creates a purger over the service. Zero retention falls
// back to DefaultTrashRetention, empty schedule to DefaultPurgeSchedule.
func NewTrashPurger(service *Service, retention time.Duration, schedule string, log *observability.Logger) *TrashPurger {
	if retention <= 0 {
		retention = DefaultTrashRetention
	}
	if schedule == "" {
		schedule = DefaultPurgeSchedule
	}
	if log == nil {
		log = observability.NewNopLogger()
	}
	return &TrashPurger{
		service:   service,
		retention: retention,
		schedule:  schedule,
		log:       log,
	}
}

// Start registers the schedule and begins running. Returns an error on a
// malformed cron expression.
func (p *TrashPurger) Start() error {
	c := cron.New()
	_, err := c.AddFunc(p.schedule, p.runOnce)
	if err != nil {
		return fmt.Errorf("start trash purger: bad schedule %q: %w", p.schedule, err)
	}
	p.cron = c
	c.Start()
	p.log.WithFields(map[string]interface{}{
		"schedule":  p.schedule,
		"retention": p.retention.String(),
	}).Info("trash purger started")
	return nil
}

// Stop halts the schedule and waits for an in-flight run to finish.
func (p *TrashPurger) Stop() {
	if p.cron == nil {
		return
	}
	<-p.cron.Stop().Done()
	p.log.Info("trash purger stopped")
}

// RunOnce purges expired sites immediately, outside the schedule.
func (p *TrashPurger) RunOnce(ctx context.Context) (int, error) {
	return p.service.PurgeExpired(ctx, p.retention)
}

func (p *TrashPurger) runOnce() {
	purged, err := p.service.PurgeExpired(context.Background(), p.retention)
	if err != nil {
		p.log.WithError(err).Error("scheduled trash purge failed")
		return
	}
	if purged > 0 {
		p.log.WithField("purged", purged).Info("scheduled trash purge completed")
	}
}
