package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
)

const NameBrowser = "browser"

// BrowserTool renders pages in headless Chrome for sites where plain HTTP
// fetch returns an empty shell. The browser starts lazily on first use and
// stays up across calls until Close.
type BrowserTool struct {
	Workspace string

	mu            sync.Mutex
	allocCtx      context.Context
	browserCtx    context.Context
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
}

func NewBrowserTool(workspace string) *BrowserTool {
	return &BrowserTool{Workspace: workspace}
}

func (b *BrowserTool) Name() string {
	return NameBrowser
}

func (b *BrowserTool) Description() string {
	return "Open a URL in a headless browser and extract the rendered page. " +
		"Use for JavaScript-heavy sites where web_fetch returns empty content. " +
		"Actions: 'text' (default), 'html', 'screenshot'."
}

func (b *BrowserTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "The URL to open",
			},
			"action": map[string]any{
				"type":        "string",
				"enum":        []string{"text", "html", "screenshot"},
				"description": "What to extract after the page renders (default: text)",
			},
			"wait_seconds": map[string]any{
				"type":        "integer",
				"description": "Extra settle time after navigation for slow scripts",
			},
		},
		"required": []string{"url"},
	}
}

func (b *BrowserTool) initBrowser() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browserCtx != nil {
		select {
		case <-b.browserCtx.Done():
			b.cleanup()
		default:
			return nil
		}
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("headless", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)

	b.allocCtx, b.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	b.browserCtx, b.browserCancel = chromedp.NewContext(b.allocCtx)

	return chromedp.Run(b.browserCtx)
}

func (b *BrowserTool) cleanup() {
	if b.browserCancel != nil {
		b.browserCancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
	b.browserCtx = nil
	b.allocCtx = nil
}

// Close shuts the shared browser down. Safe to call without prior use.
func (b *BrowserTool) Close() {
	b.mu.Lock()
	b.cleanup()
	b.mu.Unlock()
}

func (b *BrowserTool) Execute(ctx context.Context, input map[string]any) (Result, error) {
	rawURL, _ := input["url"].(string)
	if rawURL == "" {
		return Result{Error: "url is required", ExitCode: 1}, nil
	}
	action, _ := input["action"].(string)
	if action == "" {
		action = "text"
	}

	if err := b.initBrowser(); err != nil {
		return Result{Error: fmt.Sprintf("failed to initialize browser: %v", err), ExitCode: 1}, nil
	}

	actionCtx, cancel := context.WithTimeout(b.browserCtx, 60*time.Second)
	defer cancel()

	if err := chromedp.Run(actionCtx, chromedp.Navigate(rawURL)); err != nil {
		return Result{Error: fmt.Sprintf("navigation failed: %v", err), ExitCode: 1}, nil
	}
	if settle := intArg(input, "wait_seconds", 0); settle > 0 {
		time.Sleep(time.Duration(settle) * time.Second)
	}

	var out string
	var err error

	switch action {
	case "text":
		err = chromedp.Run(actionCtx,
			chromedp.WaitVisible("body", chromedp.ByQuery),
			chromedp.Evaluate("document.body.innerText", &out),
		)

	case "html":
		err = chromedp.Run(actionCtx,
			chromedp.ActionFunc(func(ctx context.Context) error {
				node, err := dom.GetDocument().Do(ctx)
				if err != nil {
					return err
				}
				out, err = dom.GetOuterHTML().WithNodeID(node.NodeID).Do(ctx)
				return err
			}),
		)

	case "screenshot":
		var buf []byte
		err = chromedp.Run(actionCtx, chromedp.CaptureScreenshot(&buf))
		if err == nil {
			dir := filepath.Join(b.Workspace, "screenshots")
			if mkErr := os.MkdirAll(dir, 0755); mkErr != nil {
				return Result{Error: mkErr.Error(), ExitCode: 1}, nil
			}
			path := filepath.Join(dir, fmt.Sprintf("screenshot_%d.png", time.Now().Unix()))
			if wrErr := os.WriteFile(path, buf, 0644); wrErr != nil {
				return Result{Error: wrErr.Error(), ExitCode: 1}, nil
			}
			out = "Screenshot saved to " + path
		}

	default:
		return Result{Error: fmt.Sprintf("Unknown action: %s", action), ExitCode: 1}, nil
	}

	if err != nil {
		return Result{Error: fmt.Sprintf("Browser action failed: %v", err), ExitCode: 1}, nil
	}

	if len(out) > 50000 {
		out = out[:50000] + "\n... (truncated)"
	}
	return Result{Output: out}, nil
}
