// Package scheduler runs the periodic full resync of the synchronization
// store on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	cron "github.com/netresearch/go-cron"

	"github.com/dohr-michael/orbit/internal/events"
)

// DefaultTimeout bounds a single resync.
const DefaultTimeout = 30 * time.Second

// ErrBusy is returned by Trigger while another resync is running.
var ErrBusy = errors.New("resync already running")

// Refresher is the store operation a resync runs.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Config holds dependencies for the scheduler.
type Config struct {
	Store   Refresher
	Bus     *events.Bus
	Spec    string        // cron expression, e.g. "*/5 * * * *"
	Timeout time.Duration // per resync; DefaultTimeout when zero
	Logger  *slog.Logger
}

// Scheduler triggers store resyncs on a cron schedule.
type Scheduler struct {
	store   Refresher
	bus     *events.Bus
	expr    *CronExpr
	timeout time.Duration
	logger  *slog.Logger

	runMu sync.Mutex

	mu      sync.Mutex
	cron    *cron.Cron
	lastRun time.Time
	runs    int
}

// New creates a scheduler. It fails on an invalid cron expression.
func New(cfg Config) (*Scheduler, error) {
	expr, err := ParseCron(cfg.Spec)
	if err != nil {
		return nil, err
	}
	s := &Scheduler{
		store:   cfg.Store,
		bus:     cfg.Bus,
		expr:    expr,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
	}
	if s.timeout <= 0 {
		s.timeout = DefaultTimeout
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

// Start begins the cron loop. Resyncs run until ctx is done or Stop is
// called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return
	}

	c := cron.New(cron.WithParser(parser))
	c.Schedule(s.expr.schedule, cron.FuncJob(func() {
		if err := s.Trigger(ctx, "cron"); err != nil && !errors.Is(err, ErrBusy) {
			s.logger.Warn("scheduled resync failed", "error", err)
		}
	}))
	c.Start()
	s.cron = c

	s.logger.Info("scheduler started", "spec", s.expr.String(), "next", s.expr.Next(time.Now()))

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
}

// Stop halts the cron loop and waits for a running resync.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// Trigger runs one resync now and publishes its outcome. Overlapping
// triggers are rejected with ErrBusy.
func (s *Scheduler) Trigger(ctx context.Context, trigger string) error {
	if !s.runMu.TryLock() {
		return ErrBusy
	}
	defer s.runMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	err := s.store.Refresh(ctx)
	elapsed := time.Since(start)

	s.mu.Lock()
	s.lastRun = start
	s.runs++
	s.mu.Unlock()

	payload := events.ResyncPayload{Trigger: trigger, Duration: elapsed}
	if err != nil {
		payload.Error = err.Error()
	}
	if s.bus != nil {
		s.bus.Publish(events.NewTypedEvent(events.SourceScheduler, payload))
	}
	s.logger.Debug("resync", "trigger", trigger, "duration", elapsed, "error", err)
	return err
}

// Status reports the number of resyncs run, the last run time and the next
// scheduled one.
func (s *Scheduler) Status() (runs int, last, next time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs, s.lastRun, s.expr.Next(time.Now())
}
