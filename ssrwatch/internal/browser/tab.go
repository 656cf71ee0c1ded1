package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Tab wraps a Rod page for one observed document. The page is created
// before navigation so the observer can install its bootstrap script first;
// a script registered after the navigation starts misses the initial parse.
type Tab struct {
	Page    *rod.Page
	PageURL string
	PageID  string
	manager *Manager
}

// NewTab creates a blank tab without navigating. Navigation happens via
// Navigate after the caller has installed bootstrap scripts and CDP
// listeners on the page.
func NewTab(mgr *Manager, pageURL, pageID string) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	var page *rod.Page
	var err error
	if mgr.cfg.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	return &Tab{
		Page:    page,
		PageURL: pageURL,
		PageID:  pageID,
		manager: mgr,
	}, nil
}

// Navigate starts loading the tab's URL. It returns once the navigation
// is committed, before parsing finishes, so callers can observe the parse
// itself. Use WaitLoad to block until the load event.
func (t *Tab) Navigate(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := t.Page.Context(navCtx).Navigate(t.PageURL); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", t.PageURL, err)
	}
	return nil
}

// WaitLoad blocks until the page fires its load event. A timeout is
// logged, not fatal: slow pages still classify.
func (t *Tab) WaitLoad(ctx context.Context, timeout time.Duration) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	loadCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := t.Page.Context(loadCtx).WaitLoad(); err != nil {
		t.manager.cfg.Logger.Warn("browser: wait load timeout",
			"url", t.PageURL, "error", err)
	}
}

// GetFullDOM serialises the live DOM as outer HTML.
func (t *Tab) GetFullDOM(ctx context.Context) ([]byte, error) {
	res, err := t.Page.Context(ctx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return nil, fmt.Errorf("browser: get DOM: %w", err)
	}
	return []byte(res.Value.Str()), nil
}

// Close closes the tab.
func (t *Tab) Close() error {
	if t.Page != nil {
		return t.Page.Close()
	}
	return nil
}
