package session

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// ErrWatchUnsupported is returned by Watch when the storage cannot announce changes.
var ErrWatchUnsupported = errors.New("session storage does not announce changes")

// Provider is the single owner of session state. Views read it through Current and learn
// about login, logout and token changes through Subscribe.
type Provider struct {
	storage Storage
	logger  zerolog.Logger

	mu          sync.RWMutex
	current     Session
	subscribers map[chan Session]struct{}
}

// NewProvider builds a provider over the given storage.
func NewProvider(storage Storage, logger zerolog.Logger) *Provider {
	return &Provider{
		storage:     storage,
		logger:      logger.With().Str("component", "session_provider").Logger(),
		subscribers: make(map[chan Session]struct{}),
	}
}

// Load reads the persisted session and makes it current.
func (p *Provider) Load(ctx context.Context) (Session, error) {
	values, err := p.storage.Load(ctx)
	if err != nil {
		return Session{}, err
	}
	session := fromValues(values)
	p.set(session)
	return session, nil
}

// Login persists the session and notifies subscribers.
func (p *Provider) Login(ctx context.Context, session Session) error {
	if err := p.storage.Save(ctx, session.values()); err != nil {
		return err
	}
	p.set(session)
	p.logger.Info().Str("user_id", session.UserID).Str("role", session.Role).Msg("session started")
	return nil
}

// Logout clears the persisted session and notifies subscribers.
func (p *Provider) Logout(ctx context.Context) error {
	if err := p.storage.Clear(ctx); err != nil {
		return err
	}
	p.set(Session{})
	p.logger.Info().Msg("session ended")
	return nil
}

// Current returns the in-memory session.
func (p *Provider) Current() Session {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Token returns the current bearer token. An empty token is not an error; the API decides.
func (p *Provider) Token(_ context.Context) (string, error) {
	return p.Current().Token, nil
}

// Subscribe returns a channel that receives the session after every change, and a function
// that stops the subscription. Slow readers only ever see the latest session.
func (p *Provider) Subscribe() (<-chan Session, func()) {
	ch := make(chan Session, 1)

	p.mu.Lock()
	p.subscribers[ch] = struct{}{}
	p.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subscribers, ch)
			p.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Watch reloads the session whenever the storage announces a write, including writes made
// by other processes. It blocks until ctx is done.
func (p *Provider) Watch(ctx context.Context) error {
	notifier, ok := p.storage.(Notifier)
	if !ok {
		return ErrWatchUnsupported
	}

	changes, err := notifier.Changes(ctx)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			if _, err := p.Load(ctx); err != nil {
				p.logger.Warn().Err(err).Msg("failed to reload session")
			}
		}
	}
}

func (p *Provider) set(session Session) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if session == p.current {
		return
	}
	p.current = session

	for ch := range p.subscribers {
		select {
		case ch <- session:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- session:
			default:
			}
		}
	}
}
