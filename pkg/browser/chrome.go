// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

const (
	lifecycleInit        = "init"
	lifecycleNetworkIdle = "networkIdle"

	// One navigation emits a few dozen lifecycle events at most.
	lifecycleBuffer = 128
)

// Chrome is a Page backed by a Chromium process driven over CDP.
// The process is launched on first use.
type Chrome struct {
	opts Options

	mu          sync.Mutex
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	closed      bool
}

// NewChrome creates a Chrome page. Nothing is launched until the first call.
func NewChrome(opts Options) *Chrome {
	return &Chrome{opts: opts.withDefaults()}
}

func (c *Chrome) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", c.opts.Headless),
		chromedp.WindowSize(c.opts.ViewportWidth, c.opts.ViewportHeight),
	)
	if c.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(c.opts.ExecPath))
	}
	return opts
}

// tab returns the tab context, launching the browser if needed.
func (c *Chrome) tab() (context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if c.tabCtx != nil {
		return c.tabCtx, nil
	}

	slog.Debug("Launching browser", "headless", c.opts.Headless,
		"viewport", fmt.Sprintf("%dx%d", c.opts.ViewportWidth, c.opts.ViewportHeight))

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), c.allocatorOptions()...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(func(format string, args ...any) {
			slog.Debug("chromedp", "message", fmt.Sprintf(format, args...))
		}),
	)

	err := chromedp.Run(tabCtx,
		chromedp.EmulateViewport(int64(c.opts.ViewportWidth), int64(c.opts.ViewportHeight)),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return page.SetLifecycleEventsEnabled(true).Do(ctx)
		}),
	)
	if err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	c.allocCancel = allocCancel
	c.tabCtx = tabCtx
	c.tabCancel = tabCancel
	return tabCtx, nil
}

// op derives a context that carries the tab and is cancelled with ctx.
// Cancelling it never closes the tab.
func (c *Chrome) op(ctx context.Context) (context.Context, context.CancelFunc, error) {
	tab, err := c.tab()
	if err != nil {
		return nil, nil, err
	}
	opCtx, cancel := context.WithCancel(tab)
	stop := context.AfterFunc(ctx, cancel)
	return opCtx, func() {
		stop()
		cancel()
	}, nil
}

// Navigate loads url, then waits up to NetworkIdleTimeout for the network
// to go quiet. An idle timeout is logged and otherwise ignored.
func (c *Chrome) Navigate(ctx context.Context, url string) error {
	opCtx, cancel, err := c.op(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	events := make(chan lifecycleEvent, lifecycleBuffer)
	listenCtx, stopListening := context.WithCancel(opCtx)
	defer stopListening()
	chromedp.ListenTarget(listenCtx, func(ev any) {
		e, ok := ev.(*page.EventLifecycleEvent)
		if !ok {
			return
		}
		select {
		case events <- lifecycleEvent{Name: e.Name, LoaderID: string(e.LoaderID)}:
		default:
			slog.Debug("Dropped lifecycle event", "name", e.Name)
		}
	})

	navCtx, navCancel := context.WithTimeout(opCtx, c.opts.NavigationTimeout)
	defer navCancel()
	if err := chromedp.Run(navCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}

	idle, err := awaitNetworkIdle(ctx, events, c.opts.NetworkIdleTimeout)
	if err != nil {
		return err
	}
	if !idle {
		slog.Warn("Timeout waiting for network idle, proceeding", "url", url, "timeout", c.opts.NetworkIdleTimeout)
	}
	return nil
}

// lifecycleEvent is the part of page.EventLifecycleEvent the idle wait reads.
type lifecycleEvent struct {
	Name     string
	LoaderID string
}

// awaitNetworkIdle consumes events until the loader of the latest "init"
// reports networkIdle, returning true. It returns false once timeout
// elapses and ctx's error if ctx ends first.
func awaitNetworkIdle(ctx context.Context, events <-chan lifecycleEvent, timeout time.Duration) (bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var loaderID string
	for {
		select {
		case e := <-events:
			switch {
			case e.Name == lifecycleInit:
				loaderID = e.LoaderID
			case e.Name == lifecycleNetworkIdle && loaderID != "" && e.LoaderID == loaderID:
				return true, nil
			}
		case <-timer.C:
			return false, nil
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

func (c *Chrome) URL(ctx context.Context) (string, error) {
	var loc string
	if err := c.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("failed to read location: %w", err)
	}
	return loc, nil
}

func (c *Chrome) Title(ctx context.Context) (string, error) {
	var title string
	if err := c.run(ctx, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("failed to read title: %w", err)
	}
	return title, nil
}

func (c *Chrome) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := c.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return buf, nil
}

func (c *Chrome) Evaluate(ctx context.Context, expression string, out any) error {
	if out == nil {
		var discard any
		out = &discard
	}
	if err := c.run(ctx, chromedp.Evaluate(expression, out)); err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}
	return nil
}

func (c *Chrome) run(ctx context.Context, actions ...chromedp.Action) error {
	opCtx, cancel, err := c.op(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	return chromedp.Run(opCtx, actions...)
}

// Close tears down the tab, then the browser process.
func (c *Chrome) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if c.tabCancel != nil {
		c.tabCancel()
	}
	if c.allocCancel != nil {
		c.allocCancel()
	}
	c.tabCtx = nil
	return nil
}

var _ Page = (*Chrome)(nil)
