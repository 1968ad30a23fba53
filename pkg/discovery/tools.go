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

package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"

	"github.com/kadirpekel/scout/pkg/browser"
	"github.com/kadirpekel/scout/pkg/tool"
	"github.com/kadirpekel/scout/pkg/tool/functiontool"
)

// Tool names as seen by the model.
const (
	ToolTakeScreenshot          = "take_screenshot"
	ToolGetInteractableElements = "get_interactable_elements"
	ToolGetPageMetadata         = "get_page_metadata"
)

// ScreenshotFile is the file name of the page capture inside the host directory.
const ScreenshotFile = "screenshot.png"

// Tools observes one page. The page is loaded lazily by whichever tool runs
// first, exactly once.
type Tools struct {
	url       string
	assetsDir string
	page      browser.Page

	initOnce sync.Once
}

// NewTools creates the tools for url. Screenshots go under assetsDir.
func NewTools(url, assetsDir string, page browser.Page) *Tools {
	return &Tools{url: url, assetsDir: assetsDir, page: page}
}

// URL returns the target URL.
func (t *Tools) URL() string {
	return t.url
}

// ensureInitialized navigates to the target. A failed navigation is logged
// and the tools keep working against whatever the page shows.
func (t *Tools) ensureInitialized(ctx context.Context) {
	t.initOnce.Do(func() {
		slog.Info("Launching browser and navigating", "url", t.url)
		if err := t.page.Navigate(ctx, t.url); err != nil {
			slog.Warn("Navigation failed", "url", t.url, "error", err)
		}
	})
}

// TakeScreenshot saves <assets>/<host>/screenshot.png for the page's
// current URL and returns its absolute path.
func (t *Tools) TakeScreenshot(ctx context.Context) (string, error) {
	t.ensureInitialized(ctx)

	current, err := t.page.URL(ctx)
	if err != nil {
		slog.Warn("Could not read page URL", "error", err)
	}

	dir, err := filepath.Abs(filepath.Join(t.assetsDir, HostOf(current)))
	if err != nil {
		return "", fmt.Errorf("failed to resolve assets directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create assets directory: %w", err)
	}

	png, err := t.page.Screenshot(ctx)
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, ScreenshotFile)
	if err := renameio.WriteFile(path, png, 0o644); err != nil {
		return "", fmt.Errorf("failed to write screenshot: %w", err)
	}
	slog.Info("Screenshot saved", "path", path)
	return path, nil
}

// InteractableElements lists visible interactable elements. An evaluation
// failure is logged and yields an empty list.
func (t *Tools) InteractableElements(ctx context.Context) []Element {
	t.ensureInitialized(ctx)
	slog.Info("Scanning for interactable elements")

	var cands []candidate
	if err := t.page.Evaluate(ctx, collectScript(Selectors), &cands); err != nil {
		slog.Error("Error getting elements", "error", err)
		return []Element{}
	}

	elements := toElements(cands)
	slog.Info("Found interactable elements", "count", len(elements))
	return elements
}

// PageMetadata returns the page's url and title.
func (t *Tools) PageMetadata(ctx context.Context) (map[string]string, error) {
	t.ensureInitialized(ctx)

	current, err := t.page.URL(ctx)
	if err != nil {
		return nil, err
	}
	title, err := t.page.Title(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]string{"url": current, "title": title}, nil
}

// Cleanup closes the browser.
func (t *Tools) Cleanup() error {
	return t.page.Close()
}

// noArgs is the parameter type of tools that take none.
type noArgs struct{}

// CallableTools exposes the observation operations to the model.
func (t *Tools) CallableTools() ([]tool.CallableTool, error) {
	screenshot, err := functiontool.New(
		functiontool.Config{
			Name:        ToolTakeScreenshot,
			Description: "Takes a screenshot of the current page and returns the absolute path.",
		},
		func(ctx tool.Context, _ noArgs) (map[string]any, error) {
			path, err := t.TakeScreenshot(ctx)
			if err != nil {
				return nil, err
			}
			return map[string]any{"path": path}, nil
		},
	)
	if err != nil {
		return nil, err
	}

	elements, err := functiontool.New(
		functiontool.Config{
			Name:        ToolGetInteractableElements,
			Description: "Scans the page for interactable elements, scores them, and returns a list.",
		},
		func(ctx tool.Context, _ noArgs) (map[string]any, error) {
			els := t.InteractableElements(ctx)
			return map[string]any{"elements": els, "count": len(els)}, nil
		},
	)
	if err != nil {
		return nil, err
	}

	metadata, err := functiontool.New(
		functiontool.Config{
			Name:        ToolGetPageMetadata,
			Description: "Returns metadata about the current page (URL, Title).",
		},
		func(ctx tool.Context, _ noArgs) (map[string]any, error) {
			md, err := t.PageMetadata(ctx)
			if err != nil {
				return nil, err
			}
			return map[string]any{"url": md["url"], "title": md["title"]}, nil
		},
	)
	if err != nil {
		return nil, err
	}

	return []tool.CallableTool{screenshot, elements, metadata}, nil
}
