package checkout

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/paylane/settlement/internal/domain"
)

// RegistryConfig holds the defaults applied to every session.
type RegistryConfig struct {
	SessionDuration time.Duration
	WarnBefore      time.Duration
	// PaymentDurations arms the provider timer per payment method; methods
	// without an entry get none.
	PaymentDurations map[domain.PaymentMethod]time.Duration
	Policy           Policy
	Notify           func(Notification)
	// MaxSessions caps live sessions; zero means no cap.
	MaxSessions int
	// Retain keeps a finished session readable before it is dropped.
	Retain time.Duration
}

// DefaultRetain applies when RegistryConfig.Retain is not set.
const DefaultRetain = 10 * time.Minute

// ErrTooManySessions is returned by Open when the registry is full.
var ErrTooManySessions = errors.New("too many open checkout sessions")

// Registry tracks the live checkout sessions of this process, keyed by
// transaction reference. Sessions never share state. A finished session is
// dropped Retain after it finishes unless it was reset meanwhile.
type Registry struct {
	mu       sync.Mutex
	cfg      RegistryConfig
	sessions map[string]*Session
	logger   *slog.Logger
}

func NewRegistry(cfg RegistryConfig, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Retain <= 0 {
		cfg.Retain = DefaultRetain
	}
	return &Registry{
		cfg:      cfg,
		sessions: make(map[string]*Session),
		logger:   logger.With("component", "checkout"),
	}
}

// Open starts a session for ref, or returns the existing one.
func (r *Registry) Open(ctx context.Context, ref string, method domain.PaymentMethod) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[ref]; ok {
		return s, nil
	}
	if r.cfg.MaxSessions > 0 && len(r.sessions) >= r.cfg.MaxSessions {
		return nil, ErrTooManySessions
	}
	s := NewSession(ref, Config{
		SessionDuration: r.cfg.SessionDuration,
		WarnBefore:      r.cfg.WarnBefore,
		Policy:          r.cfg.Policy,
		Notify:          r.cfg.Notify,
		Logger:          r.logger,
		OnDone:          r.retire,
	})
	s.Start(context.WithoutCancel(ctx))
	if d, ok := r.cfg.PaymentDurations[method]; ok {
		s.StartPaymentTimer(d)
	}
	r.sessions[ref] = s
	return s, nil
}

func (r *Registry) Get(ref string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[ref]
	return s, ok
}

// Remove tears the session down and forgets it.
func (r *Registry) Remove(ref string) {
	r.mu.Lock()
	s, ok := r.sessions[ref]
	delete(r.sessions, ref)
	r.mu.Unlock()

	if ok {
		s.Close()
	}
}

func (r *Registry) retire(s *Session) {
	r.logger.Debug("session finished", "ref", s.Ref(), "status", s.Status())
	time.AfterFunc(r.cfg.Retain, func() {
		if !s.Finished() {
			return
		}
		r.mu.Lock()
		if r.sessions[s.Ref()] == s {
			delete(r.sessions, s.Ref())
		}
		r.mu.Unlock()
		s.Close()
	})
}

// Close tears down every session.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

// AfterTransition feeds reconciled order statuses into the matching session.
// Approval locks the session and finishes it; a reversal drops it.
func (r *Registry) AfterTransition(_ context.Context, t domain.StatusTransition) error {
	s, ok := r.Get(t.Order.TransactionRef)
	if !ok {
		return nil
	}

	switch t.To {
	case domain.StatusApproved:
		s.SetApproved()
	case domain.StatusRefunded, domain.StatusChargeback:
		r.Remove(t.Order.TransactionRef)
	case domain.StatusRefused, domain.StatusCancelled:
		s.SetFailed("payment " + string(t.To))
	case domain.StatusExpired:
		s.SetExpired()
	}
	return nil
}
