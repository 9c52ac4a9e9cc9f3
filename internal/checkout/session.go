package checkout

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Config sizes a session's timers. Durations are truncated to whole seconds.
type Config struct {
	SessionDuration time.Duration
	WarnBefore      time.Duration
	Policy          Policy
	Notify          func(Notification)
	Logger          *slog.Logger
	// OnDone is called once the session reaches a state no timer or retry
	// can leave. The timeline has already been told to stop.
	OnDone func(*Session)
	// Ticks replaces the one-second ticker, for tests.
	Ticks <-chan time.Time
}

// Snapshot is a point-in-time view of a session.
type Snapshot struct {
	Ref              string `json:"ref"`
	Status           Status `json:"status"`
	Locked           bool   `json:"locked"`
	SessionRemaining int    `json:"session_remaining_seconds"`
	SessionPaused    bool   `json:"session_paused"`
	PaymentRemaining int    `json:"payment_remaining_seconds"`
	PaymentActive    bool   `json:"payment_active"`
	Finished         bool   `json:"finished"`
	Closed           bool   `json:"closed"`
}

// Session is one checkout's status machine. Both countdowns run on a single
// timeline owned by the session. The timeline stops when the session
// finishes (approved, expired, or failed with no retry allowed) or on Close.
type Session struct {
	mu     sync.Mutex
	ref    string
	status Status
	locked bool
	policy Policy

	sessionTotal     int
	sessionRemaining int
	sessionPaused    bool
	sessionActive    bool
	warnAt           int

	paymentRemaining int
	paymentActive    bool

	notify func(Notification)
	onDone func(*Session)
	outbox []Notification
	logger *slog.Logger

	ticks     <-chan time.Time
	base      context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	finished  bool
	closed    bool
}

func NewSession(ref string, cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	total := int(cfg.SessionDuration / time.Second)
	return &Session{
		ref:              ref,
		status:           StatusPending,
		policy:           cfg.Policy,
		sessionTotal:     total,
		sessionRemaining: total,
		sessionActive:    total > 0,
		warnAt:           int(cfg.WarnBefore / time.Second),
		notify:           cfg.Notify,
		onDone:           cfg.OnDone,
		logger:           logger.With("component", "checkout", "ref", ref),
		ticks:            cfg.Ticks,
	}
}

func (s *Session) Ref() string {
	return s.ref
}

// Start runs the session timeline until ctx is done, the session finishes
// or Close is called.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.cancel != nil {
		return
	}
	s.base = ctx
	if !s.finished {
		s.runLocked()
	}
}

func (s *Session) runLocked() {
	ctx, cancel := context.WithCancel(s.base)
	done := make(chan struct{})
	s.cancel, s.done = cancel, done

	ticks := s.ticks
	var ticker *time.Ticker
	if ticks == nil {
		ticker = time.NewTicker(time.Second)
		ticks = ticker.C
	}

	go func() {
		defer close(done)
		if ticker != nil {
			defer ticker.Stop()
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticks:
				s.Advance(1)
			}
		}
	}()
}

// Close cancels both timers and waits for the timeline to stop. It must not
// be called from a notification callback.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.sessionActive = false
		s.paymentActive = false
		cancel, done := s.cancel, s.done
		s.mu.Unlock()

		if cancel != nil {
			cancel()
			<-done
		}
	})
}

// Advance moves the timeline forward by the given number of seconds.
func (s *Session) Advance(seconds int) {
	s.mu.Lock()
	for i := 0; i < seconds && !s.closed; i++ {
		s.tickLocked()
	}
	s.flushUnlock()
}

func (s *Session) tickLocked() {
	if s.locked {
		return
	}

	if s.sessionActive && !s.sessionPaused && s.sessionRemaining > 0 {
		s.sessionRemaining--
		if s.warnAt > 0 && s.sessionRemaining == s.warnAt && s.status == StatusPending {
			s.enqueueLocked(NotifyExpiryWarning, "checkout session is about to expire")
		}
		if s.sessionRemaining == 0 {
			s.sessionActive = false
			if s.status == StatusPending {
				s.expireLocked()
			}
		}
	}

	if s.paymentActive && s.paymentRemaining > 0 {
		s.paymentRemaining--
		if s.paymentRemaining == 0 {
			s.paymentActive = false
			if s.status != StatusApproved && s.status != StatusProcessing {
				s.failLocked("payment code expired")
			}
		}
	}
}

// StartPaymentTimer arms the provider-specific countdown, such as the
// lifetime of an instant-payment code.
func (s *Session) StartPaymentTimer(d time.Duration) bool {
	s.mu.Lock()
	defer s.flushUnlock()

	if s.locked || s.closed {
		return false
	}
	s.paymentRemaining = int(d / time.Second)
	s.paymentActive = s.paymentRemaining > 0
	return s.paymentActive
}

// SetProcessing is rejected once approved or locked. It pauses the session
// timer while the provider works.
func (s *Session) SetProcessing() bool {
	s.mu.Lock()
	defer s.flushUnlock()

	switch {
	case s.locked || s.status == StatusApproved:
		s.logger.Debug("processing rejected", "status", s.status)
		return false
	case s.status == StatusPending:
	case s.status == StatusFailed && s.policy.AllowFailedToProcessing:
	default:
		s.logger.Debug("processing rejected", "status", s.status)
		return false
	}

	s.status = StatusProcessing
	s.sessionPaused = true
	return true
}

// SetApproved always succeeds. It locks the session, stops both timers and
// from then on only success notifications pass.
func (s *Session) SetApproved() bool {
	s.mu.Lock()
	defer s.flushUnlock()

	if s.status == StatusApproved {
		return true
	}
	s.status = StatusApproved
	s.locked = true
	s.sessionActive = false
	s.paymentActive = false
	s.enqueueLocked(NotifySuccess, "payment approved")
	return true
}

// SetFailed is ignored once approved. It resumes the session timer so the
// buyer can retry.
func (s *Session) SetFailed(reason string) bool {
	s.mu.Lock()
	defer s.flushUnlock()

	if s.status == StatusApproved || s.status == StatusFailed {
		s.logger.Debug("failure ignored", "status", s.status, "reason", reason)
		return false
	}
	s.failLocked(reason)
	return true
}

// SetExpired is ignored when approved, processing or already failed.
func (s *Session) SetExpired() bool {
	s.mu.Lock()
	defer s.flushUnlock()

	if s.status != StatusPending {
		s.logger.Debug("expiry ignored", "status", s.status)
		return false
	}
	s.expireLocked()
	return true
}

// Retry returns a failed session to pending when the policy allows it. The
// session countdown keeps its remaining time.
func (s *Session) Retry() bool {
	s.mu.Lock()
	defer s.flushUnlock()

	if s.locked || s.status != StatusFailed || !s.policy.AllowFailedToPending {
		return false
	}
	s.status = StatusPending
	return true
}

// Reset starts the session over. It is refused once approved.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.flushUnlock()

	if s.locked {
		return ErrSessionLocked
	}
	if s.finished {
		s.finished = false
		if s.base != nil && !s.closed {
			s.runLocked()
		}
	}
	s.status = StatusPending
	s.sessionRemaining = s.sessionTotal
	s.sessionActive = s.sessionTotal > 0 && !s.closed
	s.sessionPaused = false
	s.paymentActive = false
	s.paymentRemaining = 0
	return nil
}

// Notify delivers msg unless the current status suppresses its kind. Once
// approved only success passes; once failed expiry messages are dropped.
func (s *Session) Notify(kind NotificationKind, msg string) bool {
	s.mu.Lock()
	defer s.flushUnlock()
	return s.enqueueLocked(kind, msg)
}

// Finished reports whether the session reached a final state. Reset of an
// unlocked session clears it.
func (s *Session) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Ref:              s.ref,
		Status:           s.status,
		Locked:           s.locked,
		SessionRemaining: s.sessionRemaining,
		SessionPaused:    s.sessionPaused,
		PaymentRemaining: s.paymentRemaining,
		PaymentActive:    s.paymentActive,
		Finished:         s.finished,
		Closed:           s.closed,
	}
}

// --- helpers (mu held) ---

func (s *Session) failLocked(reason string) {
	s.status = StatusFailed
	s.sessionPaused = false
	s.paymentActive = false
	s.enqueueLocked(NotifyFailure, reason)
}

func (s *Session) expireLocked() {
	s.status = StatusExpired
	s.sessionActive = false
	s.paymentActive = false
	s.enqueueLocked(NotifyExpired, "checkout session expired")
}

// finishLocked marks the session finished the first time it reaches a
// state nothing but Reset can leave.
func (s *Session) finishLocked() bool {
	if s.finished || s.closed {
		return false
	}
	switch {
	case s.status == StatusApproved, s.status == StatusExpired:
	case s.status == StatusFailed && !s.policy.AllowFailedToPending && !s.policy.AllowFailedToProcessing:
	default:
		return false
	}
	s.finished = true
	s.sessionActive = false
	s.paymentActive = false
	return true
}

func (s *Session) allowedLocked(kind NotificationKind) bool {
	switch s.status {
	case StatusApproved:
		return kind == NotifySuccess
	case StatusFailed:
		return kind != NotifyExpiryWarning && kind != NotifyExpired
	}
	return true
}

func (s *Session) enqueueLocked(kind NotificationKind, msg string) bool {
	if !s.allowedLocked(kind) {
		s.logger.Debug("notification suppressed", "kind", kind, "status", s.status)
		return false
	}
	s.outbox = append(s.outbox, Notification{Ref: s.ref, Kind: kind, Message: msg})
	return true
}

// flushUnlock releases mu and then delivers queued notifications, so a
// callback may call back into the session. A session that just finished
// stops its timeline and reports to OnDone.
func (s *Session) flushUnlock() {
	finished := s.finishLocked()
	cancel := s.cancel
	out := s.outbox
	s.outbox = nil
	notify := s.notify
	s.mu.Unlock()

	if notify != nil {
		for _, n := range out {
			notify(n)
		}
	}
	if !finished {
		return
	}
	s.logger.Debug("session finished")
	if cancel != nil {
		cancel()
	}
	if s.onDone != nil {
		s.onDone(s)
	}
}
