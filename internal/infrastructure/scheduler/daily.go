package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"MorningPulse/internal/ports"
)

// DailyScheduler fires a job once a day at a wall-clock time in a timezone.
type DailyScheduler struct {
	hour   int
	minute int
	loc    *time.Location
	logger *slog.Logger

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

var _ ports.Scheduler = (*DailyScheduler)(nil)

// NewDailyScheduler builds a scheduler for HH:MM in loc (UTC when nil).
func NewDailyScheduler(hour, minute int, loc *time.Location, logger *slog.Logger) *DailyScheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &DailyScheduler{hour: hour, minute: minute, loc: loc, logger: logger}
}

// Next returns the first fire time strictly after t.
func (d *DailyScheduler) Next(t time.Time) time.Time {
	local := t.In(d.loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), d.hour, d.minute, 0, 0, d.loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, d.hour, d.minute, 0, 0, d.loc)
	}
	return next
}

// Start runs job at every fire time until ctx ends or Stop is called. The
// next fire time is computed after each run returns.
func (d *DailyScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		return errors.New("scheduler already started")
	}
	d.stop = make(chan struct{})
	d.done = make(chan struct{})

	go d.loop(ctx, job, d.stop, d.done)
	return nil
}

func (d *DailyScheduler) loop(ctx context.Context, job func(time.Time), stop, done chan struct{}) {
	defer close(done)
	for {
		next := d.Next(time.Now())
		if d.logger != nil {
			d.logger.Info("next run scheduled", "at", next.Format(time.RFC3339))
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case t := <-timer.C:
			job(t.In(d.loc))
		case <-ctx.Done():
			timer.Stop()
			return
		case <-stop:
			timer.Stop()
			return
		}
	}
}

// Stop halts the loop and waits for a running job to return, bounded by ctx.
func (d *DailyScheduler) Stop(ctx context.Context) error {
	d.mu.Lock()
	stop, done := d.stop, d.done
	d.stop, d.done = nil, nil
	d.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
