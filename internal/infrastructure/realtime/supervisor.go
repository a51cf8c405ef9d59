package realtime

import (
	"context"
	"sync"
	"time"

	"dmsync/internal/domain/repository"
	"dmsync/pkg/logger"
)

// Status is the user-visible connection state of a supervised channel.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
)

// DialFunc opens the underlying subscription. onDrop must be invoked at most
// once when the channel reports an error or timeout after a successful dial.
type DialFunc func(ctx context.Context, onDrop func(error)) (repository.Subscription, error)

// Supervisor owns the reconnect policy for one channel: exponential backoff
// starting at 1s, capped at 30s, at most 5 attempts. After the cap the channel
// is left disconnected and the UI gets a manual-retry affordance via Retry.
//
// This is intentionally scoped to the two channel kinds used here (conversation
// list feeds and per-conversation message/typing channels), not a generic
// retry library.
type Supervisor struct {
	name     string
	dial     DialFunc
	onStatus func(Status)

	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int

	mu      sync.Mutex
	status  Status
	cancel  context.CancelFunc
	running bool
}

func NewSupervisor(name string, dial DialFunc, onStatus func(Status)) *Supervisor {
	return &Supervisor{
		name:        name,
		dial:        dial,
		onStatus:    onStatus,
		baseDelay:   time.Second,
		maxDelay:    30 * time.Second,
		maxAttempts: 5,
		status:      StatusDisconnected,
	}
}

// backoffDelay is min(baseDelay * 2^attempt, maxDelay).
func (s *Supervisor) backoffDelay(attempt int) time.Duration {
	delay := s.baseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= s.maxDelay {
			return s.maxDelay
		}
	}
	return delay
}

// Start launches the connect loop. Calling Start on a running supervisor is a
// no-op.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	go s.run(runCtx)
}

// Stop tears the channel down without marking it disconnected-by-failure.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.running = false
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Retry restarts a supervisor that exhausted its attempts. Used by the UI's
// manual-retry affordance.
func (s *Supervisor) Retry(ctx context.Context) {
	s.Stop()
	s.Start(ctx)
}

// Status returns the current channel status.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Supervisor) setStatus(status Status) {
	s.mu.Lock()
	changed := s.status != status
	s.status = status
	onStatus := s.onStatus
	s.mu.Unlock()

	if changed && onStatus != nil {
		onStatus(status)
	}
}

func (s *Supervisor) run(ctx context.Context) {
	attempt := 0
	for {
		s.setStatus(StatusConnecting)

		drop := make(chan error, 1)
		sub, err := s.dial(ctx, func(e error) {
			select {
			case drop <- e:
			default:
			}
		})

		if err == nil {
			attempt = 0
			s.setStatus(StatusConnected)

			select {
			case <-ctx.Done():
				sub.Unsubscribe()
				return
			case err = <-drop:
				sub.Unsubscribe()
				logger.Warn("realtime: %s channel dropped: %v", s.name, err)
			}
		} else {
			logger.Warn("realtime: %s channel connect failed: %v", s.name, err)
		}

		attempt++
		if attempt >= s.maxAttempts {
			logger.Error("realtime: %s channel gave up after %d attempts", s.name, attempt)
			s.setStatus(StatusDisconnected)
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			return
		}

		select {
		case <-ctx.Done():
			s.setStatus(StatusDisconnected)
			return
		case <-time.After(s.backoffDelay(attempt - 1)):
		}
	}
}
