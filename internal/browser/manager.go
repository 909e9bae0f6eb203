package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrNotInitialized is returned by GetContext before Initialize or after Cleanup.
var ErrNotInitialized = errors.New("browser not initialized")

// Manager owns the browser process and the shared browsing context. The
// context is replaced once it is older than the configured lifetime, which
// bounds the memory a long-lived session accumulates.
type Manager struct {
	launch   Launcher
	opts     LaunchOptions
	lifetime time.Duration
	log      zerolog.Logger
	now      func() time.Time

	// OnRotate, when set, is called after every context replacement.
	OnRotate func()

	mu        sync.RWMutex
	engine    Engine
	current   Context
	createdAt time.Time
}

// NewManager returns a Manager that starts browsers with launch.
func NewManager(launch Launcher, opts LaunchOptions, lifetime time.Duration, log zerolog.Logger) *Manager {
	return &Manager{
		launch:   launch,
		opts:     opts,
		lifetime: lifetime,
		log:      log,
		now:      time.Now,
	}
}

// Initialize launches the browser and opens the first context.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.engine != nil {
		return nil
	}

	engine, err := m.launch(ctx, m.opts)
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	bctx, err := engine.NewContext()
	if err != nil {
		Release(m.log, "browser", engine)
		return fmt.Errorf("create browser context: %w", err)
	}

	m.engine = engine
	m.current = bctx
	m.createdAt = m.now()
	m.log.Info().Bool("headless", m.opts.Headless).Dur("context_lifetime", m.lifetime).Msg("browser initialized")
	return nil
}

// GetContext returns the shared context, replacing it first when it has
// outlived its lifetime. Callers that find a fresh context only take the read
// lock; a replacement holds the write lock, so nobody sees a half-rotated state.
func (m *Manager) GetContext() (Context, error) {
	m.mu.RLock()
	current, createdAt := m.current, m.createdAt
	m.mu.RUnlock()
	if current != nil && m.now().Sub(createdAt) < m.lifetime {
		return current, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.engine == nil {
		return nil, ErrNotInitialized
	}
	// Another caller may have rotated while we waited for the lock.
	if m.current != nil && m.now().Sub(m.createdAt) < m.lifetime {
		return m.current, nil
	}

	if m.current != nil {
		m.log.Info().Dur("age", m.now().Sub(m.createdAt)).Msg("rotating browser context")
		Release(m.log, "browser context", m.current)
		m.current = nil
	}

	bctx, err := m.engine.NewContext()
	if err != nil {
		return nil, fmt.Errorf("create browser context: %w", err)
	}
	m.current = bctx
	m.createdAt = m.now()
	if m.OnRotate != nil {
		m.OnRotate()
	}
	return bctx, nil
}

// Cleanup closes the context and then the browser. Failures are logged only.
// It is safe to call more than once.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		Release(m.log, "browser context", m.current)
		m.current = nil
	}
	if m.engine != nil {
		Release(m.log, "browser", m.engine)
		m.engine = nil
		m.log.Info().Msg("browser closed")
	}
}

// Ready returns ErrNotInitialized unless a browser is running.
func (m *Manager) Ready() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.engine == nil {
		return ErrNotInitialized
	}
	return nil
}
