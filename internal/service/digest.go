package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"clubportal/internal/model"
	"clubportal/pkg/metrics"
)

// ErrDigestRunning is returned by ForceTrigger while a digest cycle is in
// flight; re-entrant work is dropped, never queued.
var ErrDigestRunning = errors.New("digest run already in progress")

// digestWindow is how far ahead the digest looks for uncovered runs.
const digestWindow = 7 * 24 * time.Hour

// CoverageSource looks up runs with unfilled LIRF slots.
type CoverageSource interface {
	CoverageGaps(ctx context.Context, from, until time.Time) ([]model.CoverageGap, error)
}

// Marker is the per-calendar-day idempotence flag.
type Marker interface {
	IsSet(ctx context.Context, day time.Time) (bool, error)
	Set(ctx context.Context, day time.Time) error
}

// DigestScheduler drives the weekly LIRF coverage digest. It ticks hourly;
// a cycle only fires on the designated weekday and at most once per
// calendar day, guarded by the day marker. The digest bypasses both the
// quota tracker and the notification store: it is a standing-obligation
// broadcast, not a per-event notification.
type DigestScheduler struct {
	runs       CoverageSource
	resolver   *RecipientResolver
	dispatcher *Dispatcher
	marker     Marker
	weekday    time.Weekday
	tick       time.Duration
	logger     *zap.Logger
	now        func() time.Time

	dispatching atomic.Bool
	stopOnce    sync.Once
	stopCh      chan struct{}
}

func NewDigestScheduler(
	runs CoverageSource,
	resolver *RecipientResolver,
	dispatcher *Dispatcher,
	marker Marker,
	weekday time.Weekday,
	tick time.Duration,
	logger *zap.Logger,
) *DigestScheduler {
	if tick <= 0 {
		tick = time.Hour
	}
	return &DigestScheduler{
		runs:       runs,
		resolver:   resolver,
		dispatcher: dispatcher,
		marker:     marker,
		weekday:    weekday,
		tick:       tick,
		logger:     logger,
		now:        time.Now,
		stopCh:     make(chan struct{}),
	}
}

// Start runs the tick loop until Stop. Blocking; call from a goroutine.
func (s *DigestScheduler) Start(ctx context.Context) {
	s.logger.Info("Starting digest scheduler",
		zap.String("weekday", s.weekday.String()),
		zap.Duration("tick", s.tick),
	)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			s.logger.Info("Digest scheduler stopped")
			return
		case <-ctx.Done():
			s.logger.Info("Digest scheduler context cancelled")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Stop ends the tick loop. An in-flight cycle finishes on its own.
func (s *DigestScheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Tick runs one scheduler transition. Ticks arriving while a cycle is
// dispatching are dropped.
func (s *DigestScheduler) Tick(ctx context.Context) {
	if !s.dispatching.CompareAndSwap(false, true) {
		s.logger.Debug("Digest tick dropped, cycle in progress")
		return
	}
	defer s.dispatching.Store(false)

	now := s.now()
	if now.Weekday() != s.weekday {
		return
	}

	set, err := s.marker.IsSet(ctx, now)
	if err != nil {
		s.logger.Error("Failed to read digest day marker", zap.Error(err))
		return
	}
	if set {
		return
	}

	sent, failed, err := s.run(ctx)
	if err != nil {
		// No marker: the next hourly tick retries until the weekday
		// window passes.
		metrics.RecordDigestRun("failed")
		s.logger.Error("Digest cycle failed", zap.Error(err))
		return
	}

	s.finish(ctx, now, sent, failed)
}

// ForceTrigger runs a digest cycle immediately, bypassing the weekday and
// marker checks. The marker is still set afterwards so the next scheduled
// tick does not re-send.
func (s *DigestScheduler) ForceTrigger(ctx context.Context) (sent, failed int, err error) {
	if !s.dispatching.CompareAndSwap(false, true) {
		return 0, 0, ErrDigestRunning
	}
	defer s.dispatching.Store(false)

	sent, failed, err = s.run(ctx)
	if err != nil {
		metrics.RecordDigestRun("failed")
		return 0, 0, err
	}

	s.finish(ctx, s.now(), sent, failed)
	return sent, failed, nil
}

func (s *DigestScheduler) finish(ctx context.Context, day time.Time, sent, failed int) {
	if err := s.marker.Set(ctx, day); err != nil {
		s.logger.Error("Failed to set digest day marker", zap.Error(err))
	}

	outcome := "completed"
	if failed > 0 {
		outcome = "partial"
	}
	metrics.RecordDigestRun(outcome)
	s.logger.Info("Digest cycle finished",
		zap.Int("sent", sent),
		zap.Int("failed", failed),
		zap.String("outcome", outcome),
	)
}

// run executes one digest cycle. The returned error is non-nil only when
// the lookup phase fails; per-recipient send failures are counted and the
// cycle still completes.
func (s *DigestScheduler) run(ctx context.Context) (sent, failed int, err error) {
	now := s.now()
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	until := from.Add(digestWindow)

	gaps, err := s.runs.CoverageGaps(ctx, from, until)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to look up coverage gaps: %w", err)
	}

	recipients, err := s.resolver.ElevatedRecipients(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to resolve digest recipients: %w", err)
	}

	s.logger.Info("Dispatching digest",
		zap.Int("coverage_gaps", len(gaps)),
		zap.Int("recipients", len(recipients)),
	)

	delay := s.dispatcher.Delay()
	for i, m := range recipients {
		subject, htmlBody, textBody := renderDigest(gaps, m)
		if err := s.dispatcher.SendDirect(ctx, m, subject, htmlBody, textBody); err != nil {
			failed++
			s.logger.Error("Digest send failed",
				zap.String("to", m.Email),
				zap.Error(err),
			)
		} else {
			sent++
		}

		if i < len(recipients)-1 && delay > 0 {
			time.Sleep(delay)
		}
	}

	return sent, failed, nil
}

// ParseWeekday maps a config string like "monday" to a time.Weekday.
func ParseWeekday(s string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sunday":
		return time.Sunday, nil
	case "monday":
		return time.Monday, nil
	case "tuesday":
		return time.Tuesday, nil
	case "wednesday":
		return time.Wednesday, nil
	case "thursday":
		return time.Thursday, nil
	case "friday":
		return time.Friday, nil
	case "saturday":
		return time.Saturday, nil
	default:
		return 0, fmt.Errorf("unknown weekday %q", s)
	}
}
