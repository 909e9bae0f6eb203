package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// PageBlockedKinds are aborted on every scrape page; prices never need them.
var PageBlockedKinds = []string{"image", "font", "media"}

// elementWait bounds how long Text waits for a selector to appear once the
// DOM is loaded.
const elementWait = 5 * time.Second

// ErrElementNotFound is returned by Page.Text when nothing matches the selector.
var ErrElementNotFound = errors.New("element not found")

var resourceKinds = map[string]proto.NetworkResourceType{
	"image":      proto.NetworkResourceTypeImage,
	"font":       proto.NetworkResourceTypeFont,
	"media":      proto.NetworkResourceTypeMedia,
	"stylesheet": proto.NetworkResourceTypeStylesheet,
}

// NewRodLauncher returns a Launcher backed by go-rod and a local Chromium.
func NewRodLauncher() Launcher {
	return func(ctx context.Context, opts LaunchOptions) (Engine, error) {
		l := launcher.New().
			Context(ctx).
			Headless(opts.Headless).
			NoSandbox(true).
			Set("disable-dev-shm-usage")
		if opts.Bin != "" {
			l = l.Bin(opts.Bin)
		}

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("start chromium: %w", err)
		}

		b := rod.New().ControlURL(u)
		if err := b.Connect(); err != nil {
			l.Kill()
			return nil, fmt.Errorf("connect to chromium: %w", err)
		}
		return &rodEngine{browser: b, launcher: l}, nil
	}
}

type rodEngine struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
}

func (e *rodEngine) NewContext() (Context, error) {
	incognito, err := e.browser.Incognito()
	if err != nil {
		return nil, err
	}
	return &rodContext{browser: incognito}, nil
}

func (e *rodEngine) Close() error {
	err := e.browser.Close()
	e.launcher.Cleanup()
	return err
}

// rodContext is an incognito browser; closing it disposes the context only.
type rodContext struct {
	browser *rod.Browser
}

func (c *rodContext) NewPage() (Page, error) {
	p, err := stealth.Page(c.browser)
	if err != nil {
		return nil, err
	}
	return &rodPage{page: p}, nil
}

func (c *rodContext) Close() error {
	return c.browser.Close()
}

type rodPage struct {
	page   *rod.Page
	router *rod.HijackRouter
}

func (p *rodPage) BlockResources(kinds ...string) error {
	if p.router != nil {
		return errors.New("resources already blocked on this page")
	}
	router := p.page.HijackRequests()
	for _, kind := range kinds {
		rt, ok := resourceKinds[kind]
		if !ok {
			return fmt.Errorf("unknown resource kind %q", kind)
		}
		err := router.Add("*", rt, func(h *rod.Hijack) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
		})
		if err != nil {
			return fmt.Errorf("block %s requests: %w", kind, err)
		}
	}
	go router.Run()
	p.router = router
	return nil
}

func (p *rodPage) Goto(ctx context.Context, url string, timeout time.Duration) (int, error) {
	page := p.page.Context(ctx).Timeout(timeout)
	defer page.CancelTimeout()

	status := 0
	waitDocument := page.EachEvent(func(e *proto.NetworkResponseReceived) bool {
		if e.Type != proto.NetworkResourceTypeDocument || e.FrameID != p.page.FrameID {
			return false
		}
		status = e.Response.Status
		return true
	})
	waitDOM := page.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)

	if err := page.Navigate(url); err != nil {
		return 0, err
	}
	waitDOM()
	waitDocument()

	if err := page.GetContext().Err(); err != nil {
		return status, fmt.Errorf("waiting for %s: %w", url, err)
	}
	if status == 0 {
		return 0, fmt.Errorf("no document response for %s", url)
	}
	return status, nil
}

func (p *rodPage) Text(ctx context.Context, selector string) (string, error) {
	page := p.page.Context(ctx).Timeout(elementWait)
	defer page.CancelTimeout()

	el, err := page.Element(selector)
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %s", ErrElementNotFound, selector)
		}
		return "", err
	}
	return el.Text()
}

func (p *rodPage) HTML() (string, error) {
	return p.page.HTML()
}

func (p *rodPage) Close() error {
	if p.router != nil {
		_ = p.router.Stop()
	}
	return p.page.Close()
}
