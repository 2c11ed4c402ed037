package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"eventbot/pkg/logx"
)

// Refresher keeps event cards current on two cadences: every card at a slow
// interval, plus a fast sweep over events about to start so their countdown
// stays readable.
type Refresher struct {
	log logx.Logger
	svc *Service
	c   *cron.Cron

	nearWindow time.Duration
}

// NewRefresher schedules card redraws. cardSpec and nearSpec are cron specs
// (robfig/cron standard 5-field or @every forms).
func NewRefresher(log logx.Logger, svc *Service, cardSpec, nearSpec string) (*Refresher, error) {
	r := &Refresher{
		log:        log.With(logx.String("comp", "card-refresh")),
		svc:        svc,
		c:          cron.New(),
		nearWindow: 15 * time.Minute,
	}
	if _, err := r.c.AddFunc(cardSpec, r.refreshAll); err != nil {
		return nil, err
	}
	if _, err := r.c.AddFunc(nearSpec, r.refreshNear); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Refresher) Start() { r.c.Start() }

// Stop halts scheduling and waits for in-flight refreshes, bounded by ctx.
func (r *Refresher) Stop(ctx context.Context) error {
	done := r.c.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Refresher) refreshAll() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	for _, e := range r.svc.Events().List() {
		if err := r.svc.RefreshCard(ctx, e); err != nil {
			r.log.Warn("card refresh failed", logx.Err(err), logx.String("uuid", e.UUID.String()))
		}
	}
}

func (r *Refresher) refreshNear() {
	now := time.Now()
	head, ok := r.svc.Events().PeekEarliest()
	if !ok || head.Start.Sub(now) > r.nearWindow {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	for _, e := range r.svc.Events().List() {
		if e.Start.Before(now) || e.Start.Sub(now) > r.nearWindow {
			continue
		}
		if err := r.svc.RefreshCard(ctx, e); err != nil {
			r.log.Warn("card refresh failed", logx.Err(err), logx.String("uuid", e.UUID.String()))
		}
	}
}
