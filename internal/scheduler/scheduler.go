// Package scheduler drives the time-based payout transitions: on every tick
// it promotes PENDING records whose payout date has arrived to SCHEDULED.
// Each promotion is a conditional write, so overlapping ticks and restarts
// are harmless.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"payout-ledger/internal/ledger"
)

// Config holds scheduler configuration
type Config struct {
	Interval  time.Duration
	BatchSize int
}

// DefaultConfig returns default scheduler configuration
func DefaultConfig() *Config {
	return &Config{
		Interval:  time.Minute,
		BatchSize: 500,
	}
}

// Scheduler periodically marks due payouts as scheduled.
type Scheduler struct {
	service *ledger.Service
	config  *Config
	logger  zerolog.Logger

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
	lastRun  time.Time
}

// New creates a payout scheduler.
func New(service *ledger.Service, config *Config, logger zerolog.Logger) *Scheduler {
	if config == nil {
		config = DefaultConfig()
	}
	return &Scheduler{
		service:  service,
		config:   config,
		logger:   logger.With().Str("component", "payout_scheduler").Logger(),
		stopChan: make(chan struct{}),
	}
}

// Start starts the scheduler loop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info().Dur("interval", s.config.Interval).Msg("starting payout scheduler")

	s.wg.Add(1)
	go s.run()
	return nil
}

// Stop stops the scheduler and waits for the in-flight tick.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopChan)
	s.wg.Wait()
	s.logger.Info().Msg("payout scheduler stopped")
}

// RunOnce promotes due payouts immediately, outside the loop. The admin tool
// uses this for manual catch-up runs.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	marked, err := s.service.MarkDuePayouts(ctx, time.Now(), s.config.BatchSize)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	s.lastRun = time.Now()
	s.mu.Unlock()
	return marked, nil
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.config.Interval)
			marked, err := s.RunOnce(ctx)
			cancel()
			if err != nil {
				s.logger.Error().Err(err).Msg("marking due payouts failed")
				continue
			}
			if marked > 0 {
				s.logger.Info().Int("marked", marked).Msg("promoted due payouts to scheduled")
			}
		}
	}
}
