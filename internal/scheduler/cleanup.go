package scheduler

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/diagnosis/tourbook/pkg/logger"
)

// DefaultSchedule runs the sweep at 03:00 every day.
const DefaultSchedule = "0 0 3 * * *"

type ResetTokenCleaner interface {
	ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error)
}

type IdempotencyCleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// Result is what one sweep removed.
type Result struct {
	ResetTokens     int64
	IdempotencyKeys int64
}

// CleanupScheduler periodically clears expired password-reset tokens and
// stored idempotency responses.
type CleanupScheduler struct {
	tokens   ResetTokenCleaner
	keys     IdempotencyCleaner
	schedule string
	now      func() time.Time

	cron    *cron.Cron
	mu      sync.Mutex
	running bool
}

// NewCleanupScheduler accepts 5- or 6-field cron expressions. Either cleaner
// may be nil.
func NewCleanupScheduler(tokens ResetTokenCleaner, keys IdempotencyCleaner, schedule string) *CleanupScheduler {
	if strings.TrimSpace(schedule) == "" {
		schedule = DefaultSchedule
	}
	if len(strings.Fields(schedule)) == 5 {
		schedule = "0 " + schedule
	}
	return &CleanupScheduler{tokens: tokens, keys: keys, schedule: schedule, now: time.Now}
}

func (s *CleanupScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	c := cron.New(cron.WithSeconds(), cron.WithLogger(cron.PrintfLogger(logger.Printf{})))
	if _, err := c.AddFunc(s.schedule, func() { s.RunOnce(context.Background()) }); err != nil {
		logger.Error("Failed to schedule cleanup job", "schedule", s.schedule, "error", err)
		return err
	}

	c.Start()
	s.cron = c
	s.running = true
	logger.Info("Cleanup scheduler started", "schedule", s.schedule)
	return nil
}

func (s *CleanupScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	logger.Info("Cleanup scheduler stopped")
}

func (s *CleanupScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RunOnce performs a single sweep. A failing cleaner is logged and the
// other still runs.
func (s *CleanupScheduler) RunOnce(ctx context.Context) Result {
	start := time.Now()
	var res Result

	if s.tokens != nil {
		n, err := s.tokens.ClearExpiredResetTokens(ctx, s.now())
		if err != nil {
			logger.ErrorContext(ctx, "Failed to clear expired reset tokens", "error", err)
		}
		res.ResetTokens = n
	}
	if s.keys != nil {
		n, err := s.keys.CleanupExpired(ctx)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to clean up idempotency keys", "error", err)
		}
		res.IdempotencyKeys = n
	}

	logger.InfoContext(ctx, "Completed scheduled cleanup",
		"reset_tokens_cleared", res.ResetTokens,
		"idempotency_keys_deleted", res.IdempotencyKeys,
		"duration", time.Since(start).String(),
	)
	return res
}
