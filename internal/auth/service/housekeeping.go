package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/eslschool/esladmin/internal/auth/store"
)

const (
	DefaultHousekeepingInterval = time.Hour

	housekeepingTimeout = time.Minute
)

// HousekeepingResult counts what a single cleanup pass removed.
type HousekeepingResult struct {
	BlacklistedTokens int64
	RefreshTokens     int64
}

// HousekeepingService periodically purges expired blacklist entries and
// refresh tokens so neither table grows without bound. It never runs on the
// request path.
type HousekeepingService struct {
	Store     store.Store
	Blacklist *Blacklist
	Logger    *slog.Logger
	Interval  time.Duration
	Observer  Observer

	Now func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewHousekeepingService creates a housekeeping service. A non-positive
// interval falls back to DefaultHousekeepingInterval.
func NewHousekeepingService(st store.Store, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = DefaultHousekeepingInterval
	}

	return &HousekeepingService{
		Store:     st,
		Blacklist: &Blacklist{Store: st},
		Logger:    logger,
		Interval:  interval,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start launches the background worker. Call Stop to shut it down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop signals the worker and waits for an in-progress pass to finish.
func (s *HousekeepingService) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.tick()

	for {
		select {
		case <-ticker.C:
			s.tick()
		case <-s.stopCh:
			return
		}
	}
}

func (s *HousekeepingService) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), housekeepingTimeout)
	defer cancel()

	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	s.RunOnce(ctx)
}

// RunOnce performs one cleanup pass. Each deletion is independent; a
// failure in one is logged and does not stop the other.
func (s *HousekeepingService) RunOnce(ctx context.Context) HousekeepingResult {
	var res HousekeepingResult
	now := clockNow(s.Now)
	obs := observerOrNop(s.Observer)

	n, err := s.Blacklist.PurgeExpired(ctx, now)
	if err != nil {
		s.Logger.Error("failed to purge expired blacklisted tokens", "error", err)
	} else {
		res.BlacklistedTokens = n
		obs.Purged("blacklisted_tokens", n)
	}

	n, err = s.Store.RefreshTokens().DeleteExpiredRefreshTokens(ctx, now)
	if err != nil {
		s.Logger.Error("failed to delete expired refresh tokens", "error", storeErr(err))
	} else {
		res.RefreshTokens = n
		obs.Purged("refresh_tokens", n)
	}

	s.Logger.Info("housekeeping cleanup completed",
		"blacklisted_tokens_deleted", res.BlacklistedTokens,
		"refresh_tokens_deleted", res.RefreshTokens,
	)
	return res
}
