// Package browsertest provides in-memory browser fakes for tests.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"PriceTracker/internal/browser"
)

// Page is a scripted tab. The zero value answers every Goto with 200.
type Page struct {
	Status   int
	GotoErr  error
	BlockErr error
	Texts    map[string]string
	Document string

	// OnGoto, when set, replaces Status and GotoErr.
	OnGoto func(url string) (int, error)

	mu      sync.Mutex
	visited []string
	blocked []string
	closed  bool
}

func (p *Page) Goto(ctx context.Context, url string, _ time.Duration) (int, error) {
	p.mu.Lock()
	p.visited = append(p.visited, url)
	p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if p.OnGoto != nil {
		return p.OnGoto(url)
	}
	if p.GotoErr != nil {
		return 0, p.GotoErr
	}
	if p.Status == 0 {
		return 200, nil
	}
	return p.Status, nil
}

func (p *Page) BlockResources(kinds ...string) error {
	p.mu.Lock()
	p.blocked = append(p.blocked, kinds...)
	p.mu.Unlock()
	return p.BlockErr
}

func (p *Page) Text(_ context.Context, selector string) (string, error) {
	if t, ok := p.Texts[selector]; ok {
		return t, nil
	}
	return "", fmt.Errorf("%w: %s", browser.ErrElementNotFound, selector)
}

func (p *Page) HTML() (string, error) {
	return p.Document, nil
}

func (p *Page) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Visited lists the URLs passed to Goto.
func (p *Page) Visited() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.visited...)
}

// Blocked lists the resource kinds passed to BlockResources.
func (p *Page) Blocked() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.blocked...)
}

// Context hands out pages from NewPageFn, or blank pages when it is nil.
type Context struct {
	NewPageFn  func() (*Page, error)
	NewPageErr error

	mu     sync.Mutex
	pages  []*Page
	closed bool
}

func (c *Context) NewPage() (browser.Page, error) {
	if c.NewPageErr != nil {
		return nil, c.NewPageErr
	}
	p := &Page{}
	if c.NewPageFn != nil {
		var err error
		if p, err = c.NewPageFn(); err != nil {
			return nil, err
		}
	}
	c.mu.Lock()
	c.pages = append(c.pages, p)
	c.mu.Unlock()
	return p, nil
}

func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("context already closed")
	}
	c.closed = true
	return nil
}

// Closed reports whether Close was called.
func (c *Context) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Pages lists every page opened in this context.
func (c *Context) Pages() []*Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Page(nil), c.pages...)
}

// Engine records every context it creates.
type Engine struct {
	// NewContextFn builds each context; nil yields an empty Context.
	NewContextFn  func() *Context
	NewContextErr error

	mu       sync.Mutex
	contexts []*Context
	closed   bool
}

func (e *Engine) NewContext() (browser.Context, error) {
	if e.NewContextErr != nil {
		return nil, e.NewContextErr
	}
	c := &Context{}
	if e.NewContextFn != nil {
		c = e.NewContextFn()
	}
	e.mu.Lock()
	e.contexts = append(e.contexts, c)
	e.mu.Unlock()
	return c, nil
}

func (e *Engine) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Contexts lists every context created so far, oldest first.
func (e *Engine) Contexts() []*Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Context(nil), e.contexts...)
}

// Launcher returns a browser.Launcher that always yields e.
func Launcher(e *Engine) browser.Launcher {
	return func(context.Context, browser.LaunchOptions) (browser.Engine, error) {
		return e, nil
	}
}
