// Package ssrwatch classifies every element of a live document as
// server-rendered or client-rendered. It drives Chrome over CDP through a
// two-phase lifecycle: capture the server-delivered tree while the initial
// HTML parses, then monitor — everything inserted afterwards is the
// client's work. Results are queryable per page and published to sinks as
// reports.
package ssrwatch

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"

	"github.com/leochiu-a/chrome-ssr-inspector/htmldom"
	"github.com/leochiu-a/chrome-ssr-inspector/origin"
	"github.com/leochiu-a/chrome-ssr-inspector/ssrwatch/internal/browser"
	"github.com/leochiu-a/chrome-ssr-inspector/ssrwatch/internal/config"
	"github.com/leochiu-a/chrome-ssr-inspector/ssrwatch/internal/fetcher"
	"github.com/leochiu-a/chrome-ssr-inspector/ssrwatch/internal/observer"
	"github.com/leochiu-a/chrome-ssr-inspector/ssrwatch/internal/sink"
	"github.com/leochiu-a/chrome-ssr-inspector/ssrwatch/internal/store"
	"github.com/leochiu-a/chrome-ssr-inspector/ssrwatch/mutation"
)

// session is one observed page: its classifier plus whichever host backs
// it. Browser sessions observe live CDP; static sessions classify a
// fetched document where, by construction, everything is server-rendered.
type session struct {
	cfg config.PageConfig
	cls *origin.Classifier

	// browser path
	tab *browser.Tab
	obs *observer.Observer

	// static path
	doc *htmldom.Document

	detection *fetcher.Detection
}

func (s *session) static() bool { return s.doc != nil }

// Watcher is the top-level orchestrator. It manages the browser, page
// sessions, sinks, and the report store. Create one per ssrwatch instance.
type Watcher struct {
	cfg   *config.Config
	mgr   *browser.Manager
	fetch *fetcher.Fetcher
	sinkR *sink.Router
	db    *store.Store // nil when persistence is disabled
	rb    *reportBuilder

	mu       sync.Mutex
	sessions map[string]*session
	started  bool

	logger *slog.Logger
}

// New creates a Watcher from configuration.
func New(cfg *config.Config, logger *slog.Logger, sinks ...sink.Sink) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.ApplyDefaults()

	w := &Watcher{
		cfg:      cfg,
		fetch:    fetcher.New(fetcher.WithLogger(logger)),
		rb:       newReportBuilder(),
		sessions: make(map[string]*session),
		logger:   logger,
	}

	w.mgr = browser.NewManager(browser.Config{
		RemoteURL:   cfg.Browser.Remote,
		MemoryLimit: cfg.Browser.MemoryLimit,
		Stealth:     cfg.Browser.Stealth,
		Logger:      logger,
	})

	if cfg.Store.Path != "" {
		db, err := store.Open(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("ssrwatch: open store: %w", err)
		}
		w.db = db
		// Batch traffic reaches the store through a callback sink so the
		// observer pipeline stays unaware of persistence.
		sinks = append(sinks, sink.NewCallback(
			func(ctx context.Context, b mutation.Batch) error {
				return db.RecordBatch(ctx, &b)
			}, nil))
	}

	w.sinkR = sink.NewRouter(logger, sinks...)
	return w, nil
}

// Start begins observing every configured page.
func (w *Watcher) Start(ctx context.Context) error {
	for _, page := range w.cfg.Pages {
		if err := w.ObservePage(ctx, page); err != nil {
			w.logger.Error("ssrwatch: failed to observe page",
				"url", page.URL, "error", err)
		}
	}
	return nil
}

// ObservePage starts classification of a single page. Mode "auto" fetches
// the page once: a prerendered body classifies statically without a
// browser, anything else escalates to the CDP path.
func (w *Watcher) ObservePage(ctx context.Context, pageCfg config.PageConfig) error {
	if pageCfg.ID == "" || pageCfg.URL == "" {
		return fmt.Errorf("ssrwatch: page needs both id and url")
	}

	switch pageCfg.Mode {
	case "static":
		return w.observeStatic(ctx, pageCfg, nil)
	case "browser":
		return w.observeBrowser(ctx, pageCfg)
	case "auto", "":
		res, err := w.fetch.Fetch(ctx, pageCfg.URL)
		if err != nil {
			w.logger.Warn("ssrwatch: auto-detect fetch failed, escalating to browser",
				"url", pageCfg.URL, "error", err)
			return w.observeBrowser(ctx, pageCfg)
		}
		if res.Detection.Prerendered {
			return w.observeStatic(ctx, pageCfg, res)
		}
		w.logger.Info("ssrwatch: page looks client-rendered, using browser",
			"url", pageCfg.URL, "text_ratio", res.Detection.TextRatio)
		return w.observeBrowser(ctx, pageCfg)
	default:
		return fmt.Errorf("ssrwatch: unknown mode %q", pageCfg.Mode)
	}
}

// Detect runs the prerender heuristic on a URL without starting a session.
func (w *Watcher) Detect(ctx context.Context, pageURL string) (*fetcher.Result, error) {
	return w.fetch.Fetch(ctx, pageURL)
}

// observeStatic classifies a fetched document. No JavaScript ran, so the
// lifecycle collapses: capture the parsed tree, complete immediately, and
// every element is server-rendered.
func (w *Watcher) observeStatic(ctx context.Context, pageCfg config.PageConfig, res *fetcher.Result) error {
	if res == nil {
		var err error
		res, err = w.fetch.Fetch(ctx, pageCfg.URL)
		if err != nil {
			return fmt.Errorf("ssrwatch: static fetch: %w", err)
		}
	}

	doc, err := htmldom.Parse(bytes.NewReader(res.HTML))
	if err != nil {
		return fmt.Errorf("ssrwatch: parse static document: %w", err)
	}

	cls := origin.NewClassifier(doc, origin.WithLogger(w.logger))
	if err := cls.BeginCapture(ctx); err != nil {
		return fmt.Errorf("ssrwatch: static capture: %w", err)
	}
	doc.MarkParseComplete()
	if err := cls.CompleteCapture(ctx); err != nil {
		return fmt.Errorf("ssrwatch: static complete: %w", err)
	}

	w.mu.Lock()
	w.sessions[pageCfg.ID] = &session{
		cfg:       pageCfg,
		cls:       cls,
		doc:       doc,
		detection: &res.Detection,
	}
	w.mu.Unlock()

	w.logger.Info("ssrwatch: static session classified",
		"url", pageCfg.URL, "id", pageCfg.ID, "html_hash", res.HTMLHash)
	return nil
}

// observeBrowser opens a tab and runs the full two-phase lifecycle over
// CDP. Ordering matters: the bootstrap script installs before navigation,
// capture begins while the parse is still running, and the phase flips on
// the page's parse_complete signal.
func (w *Watcher) observeBrowser(ctx context.Context, pageCfg config.PageConfig) error {
	if err := w.ensureBrowser(ctx); err != nil {
		return err
	}

	tab, err := browser.NewTab(w.mgr, pageCfg.URL, pageCfg.ID)
	if err != nil {
		return fmt.Errorf("ssrwatch: open tab: %w", err)
	}

	obs := observer.New(observer.Config{
		Tab:            tab,
		Sink:           w.sinkR,
		DebounceWindow: w.cfg.Debounce.Window,
		DebounceMax:    w.cfg.Debounce.MaxBuffer,
		OnNavigate:     func(url string) { w.onNavigate(pageCfg.ID, url) },
		Logger:         w.logger,
	})

	if err := obs.Prepare(); err != nil {
		tab.Close()
		return err
	}
	if err := tab.Navigate(ctx, w.cfg.Browser.NavTimeout); err != nil {
		obs.Stop()
		tab.Close()
		return err
	}
	if err := obs.Start(); err != nil {
		obs.Stop()
		tab.Close()
		return err
	}

	cls := origin.NewClassifier(obs, origin.WithLogger(w.logger))
	if err := cls.BeginCapture(ctx); err != nil {
		obs.Stop()
		tab.Close()
		return fmt.Errorf("ssrwatch: begin capture: %w", err)
	}

	// The parse boundary. If the signal never arrives (binding raced the
	// navigation) fall back to the load event so the lifecycle always
	// completes.
	parseCtx, cancel := context.WithTimeout(ctx, w.cfg.Browser.NavTimeout)
	if err := obs.WaitParseComplete(parseCtx); err != nil {
		w.logger.Warn("ssrwatch: parse signal missed, falling back to load event",
			"url", pageCfg.URL, "error", err)
		tab.WaitLoad(ctx, w.cfg.Browser.NavTimeout)
	}
	cancel()

	if err := cls.CompleteCapture(ctx); err != nil {
		cls.Teardown()
		obs.Stop()
		tab.Close()
		return fmt.Errorf("ssrwatch: complete capture: %w", err)
	}

	w.mu.Lock()
	w.sessions[pageCfg.ID] = &session{cfg: pageCfg, cls: cls, tab: tab, obs: obs}
	w.mu.Unlock()

	w.logger.Info("ssrwatch: observing page",
		"url", pageCfg.URL, "id", pageCfg.ID, "phase", cls.CurrentPhase())
	return nil
}

// Classify answers the origin of the element at an XPath. Unknown
// elements in a live session default to server: if it was never observed
// being inserted, the server delivered it.
func (w *Watcher) Classify(pageID, xpath string) (string, error) {
	s, err := w.session(pageID)
	if err != nil {
		return "", err
	}
	if s.static() {
		return origin.TagServer.String(), nil
	}
	id, ok := s.obs.ResolveXPath(xpath)
	if !ok {
		return "", fmt.Errorf("ssrwatch: no element at %q", xpath)
	}
	return s.cls.Classify(id).String(), nil
}

// Aggregate walks the live tree and tallies both origins.
func (w *Watcher) Aggregate(ctx context.Context, pageID string) (origin.Totals, error) {
	s, err := w.session(pageID)
	if err != nil {
		return origin.Totals{}, err
	}
	return s.cls.Aggregate(ctx)
}

// Phase reports where a session is in its lifecycle.
func (w *Watcher) Phase(pageID string) (string, error) {
	s, err := w.session(pageID)
	if err != nil {
		return "", err
	}
	return s.cls.CurrentPhase().String(), nil
}

// Report builds a classification report for a page, publishes it to the
// sinks, and persists it when a store is configured.
func (w *Watcher) Report(ctx context.Context, pageID string) (*mutation.Report, error) {
	s, err := w.session(pageID)
	if err != nil {
		return nil, err
	}

	totals, err := s.cls.Aggregate(ctx)
	if err != nil {
		return nil, fmt.Errorf("ssrwatch: aggregate for report: %w", err)
	}

	var clients []clientRoot
	if !s.static() {
		clients, err = w.collectClientRoots(ctx, s)
		if err != nil {
			return nil, err
		}
	}

	rep := w.rb.build(pageID, s.pageURL(), s.cls.CurrentPhase(), totals, clients)

	if err := w.sinkR.SendReport(ctx, *rep); err != nil {
		w.logger.Error("ssrwatch: send report failed", "error", err)
	}
	if w.db != nil {
		if err := w.db.InsertReport(ctx, rep); err != nil {
			w.logger.Error("ssrwatch: persist report failed", "error", err)
		}
	}
	return rep, nil
}

// LatestReport reads the most recent persisted report for a page.
func (w *Watcher) LatestReport(ctx context.Context, pageID string) (*mutation.Report, error) {
	if w.db == nil {
		return nil, fmt.Errorf("ssrwatch: no store configured")
	}
	return w.db.LatestReport(ctx, pageID)
}

// StopPage tears down one session. Classification state is discarded;
// stopping is orthogonal to phase.
func (w *Watcher) StopPage(pageID string) error {
	w.mu.Lock()
	s, ok := w.sessions[pageID]
	delete(w.sessions, pageID)
	w.mu.Unlock()

	if !ok {
		return fmt.Errorf("ssrwatch: unknown page %q", pageID)
	}
	w.teardownSession(s)
	w.logger.Info("ssrwatch: stopped session", "id", pageID)
	return nil
}

// Stop shuts down all sessions, the sinks, the store, and the browser.
func (w *Watcher) Stop() {
	w.mu.Lock()
	sessions := w.sessions
	w.sessions = make(map[string]*session)
	w.mu.Unlock()

	for id, s := range sessions {
		w.teardownSession(s)
		w.logger.Info("ssrwatch: stopped session", "id", id)
	}

	w.sinkR.Close()
	if w.db != nil {
		w.db.Close()
	}
	w.mgr.Close()
}

// Pages lists active session IDs.
func (w *Watcher) Pages() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	ids := make([]string, 0, len(w.sessions))
	for id := range w.sessions {
		ids = append(ids, id)
	}
	return ids
}

func (w *Watcher) session(pageID string) (*session, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.sessions[pageID]
	if !ok {
		return nil, fmt.Errorf("ssrwatch: unknown page %q", pageID)
	}
	return s, nil
}

func (s *session) pageURL() string {
	if s.tab != nil {
		return s.tab.PageURL
	}
	return s.cfg.URL
}

func (w *Watcher) teardownSession(s *session) {
	s.cls.Teardown()
	if s.obs != nil {
		s.obs.Stop()
	}
	if s.tab != nil {
		s.tab.Close()
	}
}

// collectClientRoots walks the live tree and gathers every client-tagged
// element with its location and serialised content.
func (w *Watcher) collectClientRoots(ctx context.Context, s *session) ([]clientRoot, error) {
	var ids []origin.NodeID
	err := s.obs.WalkTree(ctx, func(id origin.NodeID) error {
		if s.cls.Classify(id) == origin.TagClient {
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ssrwatch: collect client elements: %w", err)
	}

	clients := make([]clientRoot, 0, len(ids))
	for _, id := range ids {
		xpath, _ := s.obs.XPathOf(id)
		c := clientRoot{XPath: xpath, Tag: s.obs.TagOf(id)}
		if html, err := s.obs.OuterHTML(ctx, id); err == nil {
			c.HTML = html
		}
		clients = append(clients, c)
	}
	return clients, nil
}

// onNavigate handles a history API transition: the session keeps its
// classification state (the document was not reloaded) and a fresh report
// records the post-navigation picture.
func (w *Watcher) onNavigate(pageID, url string) {
	w.logger.Info("ssrwatch: history navigation", "id", pageID, "url", url)
	if _, err := w.Report(context.Background(), pageID); err != nil {
		w.logger.Error("ssrwatch: post-navigation report failed",
			"id", pageID, "error", err)
	}
}

func (w *Watcher) ensureBrowser(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	if _, err := w.mgr.Start(ctx); err != nil {
		return fmt.Errorf("ssrwatch: start browser: %w", err)
	}
	w.mgr.SetRecycleCallback(&browser.RecycleCallback{
		BeforeRecycle: w.flushBrowserSessions,
		AfterRecycle:  func(b *rod.Browser) { w.reconnectSessions(ctx) },
	})
	w.started = true
	return nil
}

func (w *Watcher) flushBrowserSessions() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, s := range w.sessions {
		if s.obs != nil {
			s.obs.Stop()
		}
	}
}

// reconnectSessions rebuilds browser sessions after a Chrome recycle. The
// documents reload from scratch, so each session restarts its lifecycle;
// static sessions are untouched.
func (w *Watcher) reconnectSessions(ctx context.Context) {
	w.mu.Lock()
	var toRestart []config.PageConfig
	for id, s := range w.sessions {
		if s.static() {
			continue
		}
		toRestart = append(toRestart, s.cfg)
		s.cls.Teardown()
		delete(w.sessions, id)
	}
	w.mu.Unlock()

	for _, pageCfg := range toRestart {
		if err := w.observeBrowser(ctx, pageCfg); err != nil {
			w.logger.Error("ssrwatch: reconnect session failed",
				"url", pageCfg.URL, "error", err)
		}
	}
}
