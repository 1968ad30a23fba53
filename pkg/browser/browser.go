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

// Package browser drives a single browser tab.
//
// Page is the narrow surface the discovery tools need. Chrome implements it
// on top of chromedp; tests substitute an in-memory fake.
package browser

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by operations on a page that has been closed.
var ErrClosed = errors.New("browser is closed")

// Page is one browser tab.
type Page interface {
	// Navigate loads url and waits for the page to settle.
	Navigate(ctx context.Context, url string) error

	// URL returns the current location.
	URL(ctx context.Context) (string, error)

	// Title returns the document title.
	Title(ctx context.Context) (string, error)

	// Screenshot captures the viewport as PNG.
	Screenshot(ctx context.Context) ([]byte, error)

	// Evaluate runs a JavaScript expression and decodes its JSON result into out.
	Evaluate(ctx context.Context, expression string, out any) error

	// Close releases the tab and the browser process. Safe to call twice.
	Close() error
}

// Options configures the browser.
type Options struct {
	Headless bool

	ViewportWidth  int
	ViewportHeight int

	// NavigationTimeout bounds the load of the document.
	NavigationTimeout time.Duration

	// NetworkIdleTimeout bounds the wait for network quiescence after load.
	// Exceeding it is not an error.
	NetworkIdleTimeout time.Duration

	// ExecPath overrides the browser binary.
	ExecPath string
}

// DefaultOptions mirrors the config defaults.
func DefaultOptions() Options {
	return Options{
		Headless:           true,
		ViewportWidth:      1280,
		ViewportHeight:     720,
		NavigationTimeout:  30 * time.Second,
		NetworkIdleTimeout: 10 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ViewportWidth <= 0 {
		o.ViewportWidth = d.ViewportWidth
	}
	if o.ViewportHeight <= 0 {
		o.ViewportHeight = d.ViewportHeight
	}
	if o.NavigationTimeout <= 0 {
		o.NavigationTimeout = d.NavigationTimeout
	}
	if o.NetworkIdleTimeout <= 0 {
		o.NetworkIdleTimeout = d.NetworkIdleTimeout
	}
	return o
}
