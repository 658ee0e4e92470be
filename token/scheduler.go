package token

import (
	"sync"
	"time"

	"github.com/jrsteele09/go-auth-guard/internal/clock"
	"github.com/jrsteele09/go-auth-guard/session"
	"github.com/rs/zerolog"
)

// Scheduler keeps at most one pending refresh timer. Arming a new timer
// always cancels the previous one.
type Scheduler struct {
	clock     clock.Clock
	threshold time.Duration
	minDelay  time.Duration
	onDue     func()
	logger    zerolog.Logger

	mu         sync.Mutex
	timer      clock.Timer
	generation uint64
	deadline   time.Time
}

var _ session.RefreshScheduler = (*Scheduler)(nil)

// NewScheduler returns a scheduler that calls onDue when the current token
// needs refreshing. onDue runs on the timer's goroutine.
func NewScheduler(clk clock.Clock, threshold, minDelay time.Duration, onDue func(), logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		clock:     clk,
		threshold: threshold,
		minDelay:  minDelay,
		onDue:     onDue,
		logger:    logger,
	}
}

// Schedule arms the timer for tokens. A token with unknown expiry leaves
// nothing armed; a token already inside the threshold is refreshed on a
// zero-delay timer.
func (s *Scheduler) Schedule(tokens session.TokenSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()

	exp, ok := DecodeExpiry(tokens.AccessToken)
	if !ok {
		s.logger.Debug().Msg("access token expiry unknown, proactive refresh disabled")
		return
	}

	now := s.clock.Now()
	delay, due := RefreshDelay(exp, now, s.threshold, s.minDelay)
	s.logger.Debug().
		Dur("untilExpiry", exp.Sub(now)).
		Dur("threshold", s.threshold).
		Dur("delay", delay).
		Bool("due", due).
		Msg("scheduling token refresh")

	gen := s.generation
	s.deadline = now.Add(delay)
	s.timer = s.clock.AfterFunc(delay, func() { s.fire(gen) })
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.deadline = time.Time{}
	s.mu.Unlock()

	s.onDue()
}

// Cancel disarms the pending timer, if any. A timer that already started
// firing but has not reached onDue is also suppressed.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
}

func (s *Scheduler) cancelLocked() {
	s.generation++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.deadline = time.Time{}
}

// Pending returns the deadline of the armed timer.
func (s *Scheduler) Pending() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deadline, s.timer != nil
}
