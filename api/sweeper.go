/*
sweeper.go - Background closer for overdue bookings

PURPOSE:
  Periodically sweeps active bookings whose end time has passed and nobody
  closed out: pending reservations never approved are cancelled, confirmed
  ones the customer missed become no_show, in_progress ones complete.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - Delegates the actual transitions to booking.Service.SweepOverdue,
    which goes through the same lifecycle table as the API

USAGE:
  sweeper := NewSweeper(svc, log)
  sweeper.Start()
  // ... later
  sweeper.Stop()

SEE ALSO:
  - booking/service.go: SweepOverdue, the transition rules
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/schedule-engine/booking"
)

// Sweeper closes out overdue bookings on a timer.
type Sweeper struct {
	Booking       *booking.Service
	CheckInterval time.Duration
	Log           zerolog.Logger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewSweeper creates a sweeper with a 5 minute check interval.
func NewSweeper(svc *booking.Service, log zerolog.Logger) *Sweeper {
	return &Sweeper{
		Booking:       svc,
		CheckInterval: 5 * time.Minute,
		Log:           log,
		stop:          make(chan struct{}),
	}
}

// Start begins the background loop. The first sweep runs immediately.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ticker = time.NewTicker(s.CheckInterval)
	s.wg.Add(1)
	go s.run()

	s.Log.Info().Dur("interval", s.CheckInterval).Msg("sweeper started")
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.Log.Info().Msg("sweeper stopped")
	}
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	s.sweep()
	for {
		select {
		case <-s.ticker.C:
			s.sweep()
		case <-s.stop:
			return
		}
	}
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	swept, err := s.Booking.SweepOverdue(ctx, time.Now())
	if err != nil {
		s.Log.Error().Err(err).Msg("sweep failed")
		return
	}
	if swept > 0 {
		s.Log.Info().Int("swept", swept).Msg("sweep completed")
	}
}

// RunNow triggers an immediate sweep (for testing/admin).
func (s *Sweeper) RunNow() { s.sweep() }
