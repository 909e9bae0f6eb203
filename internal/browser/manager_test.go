package browser_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PriceTracker/internal/browser"
	"PriceTracker/internal/browser/browsertest"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newManager(t *testing.T, engine *browsertest.Engine, lifetime time.Duration) (*browser.Manager, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	m := browser.NewManager(browsertest.Launcher(engine), browser.LaunchOptions{Headless: true}, lifetime, zerolog.Nop())
	browser.SetManagerClock(m, c.Now)
	return m, c
}

func TestManagerGetContextBeforeInitialize(t *testing.T) {
	m, _ := newManager(t, &browsertest.Engine{}, time.Hour)
	_, err := m.GetContext()
	assert.ErrorIs(t, err, browser.ErrNotInitialized)
}

func TestManagerReusesFreshContext(t *testing.T) {
	engine := &browsertest.Engine{}
	m, c := newManager(t, engine, time.Hour)
	require.NoError(t, m.Initialize(context.Background()))

	first, err := m.GetContext()
	require.NoError(t, err)
	c.Advance(59 * time.Minute)
	second, err := m.GetContext()
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Len(t, engine.Contexts(), 1)
}

func TestManagerRotatesExpiredContext(t *testing.T) {
	engine := &browsertest.Engine{}
	m, c := newManager(t, engine, time.Hour)
	rotations := 0
	m.OnRotate = func() { rotations++ }
	require.NoError(t, m.Initialize(context.Background()))

	first, err := m.GetContext()
	require.NoError(t, err)

	c.Advance(time.Hour)
	second, err := m.GetContext()
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.True(t, first.(*browsertest.Context).Closed(), "old context is closed")
	assert.False(t, second.(*browsertest.Context).Closed())
	assert.Equal(t, 1, rotations)
}

func TestManagerConcurrentRotationCreatesOneContext(t *testing.T) {
	engine := &browsertest.Engine{}
	m, c := newManager(t, engine, time.Minute)
	require.NoError(t, m.Initialize(context.Background()))
	c.Advance(2 * time.Minute)

	var wg sync.WaitGroup
	got := make([]browser.Context, 16)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			bctx, err := m.GetContext()
			assert.NoError(t, err)
			got[i] = bctx
		}(i)
	}
	wg.Wait()

	assert.Len(t, engine.Contexts(), 2, "initial context plus exactly one replacement")
	for _, bctx := range got {
		assert.Same(t, got[0], bctx)
	}
}

func TestManagerRotationFailureRetriesNextCall(t *testing.T) {
	engine := &browsertest.Engine{}
	m, c := newManager(t, engine, time.Minute)
	require.NoError(t, m.Initialize(context.Background()))
	c.Advance(time.Minute)

	engine.NewContextErr = errors.New("target crashed")
	_, err := m.GetContext()
	require.Error(t, err)

	engine.NewContextErr = nil
	bctx, err := m.GetContext()
	require.NoError(t, err)
	assert.NotNil(t, bctx)
}

func TestManagerCleanup(t *testing.T) {
	engine := &browsertest.Engine{}
	m, _ := newManager(t, engine, time.Hour)
	require.NoError(t, m.Initialize(context.Background()))
	bctx, err := m.GetContext()
	require.NoError(t, err)

	m.Cleanup()
	m.Cleanup()

	assert.True(t, bctx.(*browsertest.Context).Closed())
	assert.True(t, engine.Closed())
	_, err = m.GetContext()
	assert.ErrorIs(t, err, browser.ErrNotInitialized)
}

func TestInitializeFailsWhenFirstContextFails(t *testing.T) {
	engine := &browsertest.Engine{NewContextErr: errors.New("no targets")}
	m, _ := newManager(t, engine, time.Hour)

	err := m.Initialize(context.Background())
	require.Error(t, err)
	assert.True(t, engine.Closed(), "browser is released when the first context cannot be opened")
}

type panicky struct{}

func (panicky) Close() error { panic("boom") }

type failing struct{}

func (failing) Close() error { return errors.New("already gone") }

func TestReleaseSwallowsFailures(t *testing.T) {
	assert.NotPanics(t, func() {
		browser.Release(zerolog.Nop(), "panicky", panicky{})
		browser.Release(zerolog.Nop(), "failing", failing{})
		browser.Release(zerolog.Nop(), "nil", nil)
	})
}

func TestManagerReady(t *testing.T) {
	m, _ := newManager(t, &browsertest.Engine{}, time.Hour)
	assert.ErrorIs(t, m.Ready(), browser.ErrNotInitialized)
	require.NoError(t, m.Initialize(context.Background()))
	assert.NoError(t, m.Ready())
	m.Cleanup()
	assert.ErrorIs(t, m.Ready(), browser.ErrNotInitialized)
}
