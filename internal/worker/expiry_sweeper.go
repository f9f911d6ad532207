package worker

import (
	"context"
	"time"

	"campspots/internal/logging"
	"campspots/internal/service"

	"github.com/rs/zerolog"
)

type PendingExpirer interface {
	ExpireStalePending(ctx context.Context, now time.Time) (*service.ExpiryReport, error)
}

// ExpirySweeper periodically releases sites held by reservations whose
// checkout was never completed.
type ExpirySweeper struct {
	expirer  PendingExpirer
	interval time.Duration
	now      func() time.Time
	logger   *zerolog.Logger
}

func NewExpirySweeper(expirer PendingExpirer, interval time.Duration, logger *zerolog.Logger) *ExpirySweeper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &ExpirySweeper{
		expirer:  expirer,
		interval: interval,
		now:      time.Now,
		logger:   logging.Component(logger, "expiry_sweeper"),
	}
}

func (s *ExpirySweeper) Start(ctx context.Context) {
	s.logger.Info().Dur("interval", s.interval).Msg("started")
	defer s.logger.Info().Msg("stopped")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one expiry pass.
func (s *ExpirySweeper) Sweep(ctx context.Context) *service.ExpiryReport {
	report, err := s.expirer.ExpireStalePending(ctx, s.now())
	if err != nil {
		s.logger.Error().Err(err).Msg("expiry pass failed")
		return nil
	}
	if report.Examined > 0 {
		s.logger.Info().
			Int("examined", report.Examined).
			Int("expired", report.Expired).
			Int("confirmed", report.Confirmed).
			Int("skipped", report.Skipped).
			Msg("expiry pass finished")
	}
	return report
}
