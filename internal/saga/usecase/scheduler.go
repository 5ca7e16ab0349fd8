package usecase

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FireFunc is invoked when a timeout timer elapses, with the workflow's
// correlation id and the token the timer was armed with.
type FireFunc func(correlationID uuid.UUID, token int64)

// TimeoutScheduler arms and cancels workflow timeouts.
type TimeoutScheduler interface {
	Schedule(correlationID uuid.UUID, token int64, delay time.Duration)
	Cancel(correlationID uuid.UUID)
	Stop()
}

// TimerScheduler is an in-memory TimeoutScheduler built on time.AfterFunc,
// one timer per correlation id. Timers do not survive a process restart;
// the token check on dispatch makes a stale or duplicate firing harmless.
type TimerScheduler struct {
	mu      sync.Mutex
	timers  map[uuid.UUID]*time.Timer
	fire    FireFunc
	logger  *slog.Logger
	stopped bool
}

// NewTimerScheduler creates a new TimerScheduler. Bind must be called before
// any timer is armed.
func NewTimerScheduler(logger *slog.Logger) *TimerScheduler {
	return &TimerScheduler{
		timers: make(map[uuid.UUID]*time.Timer),
		logger: logger,
	}
}

// Bind sets the function invoked when a timer fires. Separate from the
// constructor because the engine and the scheduler reference each other.
func (s *TimerScheduler) Bind(fire FireFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fire = fire
}

// Schedule arms (or re-arms) the timeout for a workflow instance. An earlier
// timer for the same correlation id is stopped first.
func (s *TimerScheduler) Schedule(correlationID uuid.UUID, token int64, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || s.fire == nil {
		return
	}

	if timer, ok := s.timers[correlationID]; ok {
		timer.Stop()
	}

	s.timers[correlationID] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, correlationID)
		fire := s.fire
		stopped := s.stopped
		s.mu.Unlock()

		if stopped {
			return
		}
		fire(correlationID, token)
	})

	if s.logger != nil {
		s.logger.Debug("timeout armed",
			slog.String("correlation_id", correlationID.String()),
			slog.Int64("token", token),
			slog.Duration("delay", delay),
		)
	}
}

// Cancel stops the timer for a workflow instance, if any.
func (s *TimerScheduler) Cancel(correlationID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if timer, ok := s.timers[correlationID]; ok {
		timer.Stop()
		delete(s.timers, correlationID)
	}
}

// Stop cancels all outstanding timers. Used on shutdown.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for correlationID, timer := range s.timers {
		timer.Stop()
		delete(s.timers, correlationID)
	}
}
