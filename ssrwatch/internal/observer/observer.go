// Package observer implements per-page DOM observation over CDP and the
// lifecycle bootstrap script, and exposes the page as a classification
// host: a tree walk plus an insertion stream keyed on stable node IDs.
package observer

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"github.com/leochiu-a/chrome-ssr-inspector/idgen"
	"github.com/leochiu-a/chrome-ssr-inspector/origin"
	"github.com/leochiu-a/chrome-ssr-inspector/ssrwatch/internal/browser"
	"github.com/leochiu-a/chrome-ssr-inspector/ssrwatch/internal/sink"
	"github.com/leochiu-a/chrome-ssr-inspector/ssrwatch/mutation"
)

//go:embed boot.js
var bootJS []byte

const bindingName = "__ssrwatch_binding"

// Observer manages observation of a single page. Call Prepare before
// navigation so the bootstrap script catches the initial parse, then
// Start after navigation begins.
type Observer struct {
	tab    *browser.Tab
	sink   sink.Sink
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	nodes *nodeMap

	rawCh      chan mutation.Record
	docResetCh chan struct{}
	debouncer  *debouncer
	seq        atomic.Uint64

	started  atomic.Bool
	stopCh   chan struct{}
	loopDone chan struct{}
	stopOnce sync.Once

	// origin watchers registered via Observe.
	mu       sync.Mutex
	watchers map[int]func(origin.Batch)
	nextW    int

	parseOnce sync.Once
	parseCh   chan struct{}

	onNavigate func(url string)
}

// Config for creating an Observer.
type Config struct {
	Tab            *browser.Tab
	Sink           sink.Sink
	DebounceWindow time.Duration
	DebounceMax    int
	// OnNavigate is called when the page performs a history API
	// transition without a document reload.
	OnNavigate func(url string)
	Logger     *slog.Logger
}

// New creates an Observer for the given tab.
func New(cfg Config) *Observer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	o := &Observer{
		tab:        cfg.Tab,
		sink:       cfg.Sink,
		logger:     cfg.Logger,
		ctx:        ctx,
		cancel:     cancel,
		nodes:      newNodeMap(),
		rawCh:      make(chan mutation.Record, 4096),
		docResetCh: make(chan struct{}, 1),
		stopCh:     make(chan struct{}),
		loopDone:   make(chan struct{}),
		watchers:   make(map[int]func(origin.Batch)),
		parseCh:    make(chan struct{}),
		onNavigate: cfg.OnNavigate,
	}

	o.debouncer = newDebouncer(debounceConfig{
		Window:    cfg.DebounceWindow,
		MaxBuffer: cfg.DebounceMax,
	}, o.emitBatch)

	return o
}

// Prepare installs the lifecycle binding and bootstrap script. Must run
// before navigation: a script registered afterwards misses the initial
// parse and the parse_complete signal never fires.
func (o *Observer) Prepare() error {
	page := o.tab.Page

	if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(page); err != nil {
		return fmt.Errorf("observer: add binding: %w", err)
	}
	if _, err := (proto.PageAddScriptToEvaluateOnNewDocument{
		Source: string(bootJS),
	}).Call(page); err != nil {
		return fmt.Errorf("observer: add bootstrap script: %w", err)
	}

	go o.listenBinding()
	return nil
}

// Start begins structural observation: it snapshots the full DOM for node
// tracking, subscribes to CDP DOM events, and runs the batching loop.
func (o *Observer) Start() error {
	if err := o.initDOMTracking(); err != nil {
		return fmt.Errorf("observer: init DOM tracking: %w", err)
	}

	cdp := newCDPListener(o)
	cdp.start()

	o.started.Store(true)
	go o.loop()
	return nil
}

// Stop flushes pending mutations and stops all observation goroutines.
// Safe to call more than once. The final flush happens on the loop
// goroutine, which owns the debouncer; Stop only signals it and waits.
func (o *Observer) Stop() {
	o.stopOnce.Do(func() {
		if o.started.Load() {
			close(o.stopCh)
			<-o.loopDone
		} else {
			o.debouncer.flush()
		}
		o.cancel()
	})
}

// WaitParseComplete blocks until the page signals that its initial HTML
// parse finished, or ctx is cancelled.
func (o *Observer) WaitParseComplete(ctx context.Context) error {
	select {
	case <-o.parseCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WalkTree visits every element currently in the document, in document
// order, and rebuilds node tracking as a side effect. Implements the
// classification host contract.
func (o *Observer) WalkTree(ctx context.Context, visit func(origin.NodeID) error) error {
	elements, err := o.refreshDocument(ctx)
	if err != nil {
		return err
	}
	for _, id := range elements {
		if err := visit(origin.NodeID(id)); err != nil {
			return err
		}
	}
	return nil
}

// Observe registers a handler for insertion batches. The returned cancel
// detaches the handler; the CDP subscription itself stays up for the
// lifetime of the observer.
func (o *Observer) Observe(handler func(origin.Batch)) (origin.CancelFunc, error) {
	select {
	case <-o.ctx.Done():
		return nil, fmt.Errorf("observer: stopped")
	default:
	}

	o.mu.Lock()
	id := o.nextW
	o.nextW++
	o.watchers[id] = handler
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		delete(o.watchers, id)
		o.mu.Unlock()
	}, nil
}

// ResolveXPath returns the stable node ID currently at an XPath.
func (o *Observer) ResolveXPath(xpath string) (origin.NodeID, bool) {
	id, ok := o.nodes.resolve(xpath)
	return origin.NodeID(id), ok
}

// XPathOf returns the last known XPath for a stable node ID.
func (o *Observer) XPathOf(id origin.NodeID) (string, bool) {
	return o.nodes.xpathOf(proto.DOMBackendNodeID(id))
}

// TagOf returns the tag name last seen for a stable node ID.
func (o *Observer) TagOf(id origin.NodeID) string {
	return o.nodes.tagOf(proto.DOMBackendNodeID(id))
}

// OuterHTML serialises one element by its stable ID.
func (o *Observer) OuterHTML(ctx context.Context, id origin.NodeID) (string, error) {
	backendID := proto.DOMBackendNodeID(id)
	res, err := proto.DOMGetOuterHTML{BackendNodeID: backendID}.Call(o.tab.Page.Context(ctx))
	if err != nil {
		return "", fmt.Errorf("observer: outer HTML of %d: %w", id, err)
	}
	return res.OuterHTML, nil
}

func (o *Observer) initDOMTracking() error {
	elements, err := o.refreshDocument(o.ctx)
	if err != nil {
		return err
	}
	o.logger.Info("observer: DOM tracking initialised",
		"url", o.tab.PageURL, "elements", len(elements), "nodes", o.nodes.size())
	return nil
}

// refreshDocument pulls the full DOM with depth=-1 and pierce=true. Without
// the full-depth pull, CDP silently drops mutation events on untracked deep
// nodes.
func (o *Observer) refreshDocument(ctx context.Context) ([]proto.DOMBackendNodeID, error) {
	depth := -1
	doc, err := proto.DOMGetDocument{Depth: &depth, Pierce: true}.Call(o.tab.Page.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("DOM.getDocument: %w", err)
	}
	return o.nodes.buildFromDocument(doc.Root), nil
}

// listenBinding receives lifecycle signals from the bootstrap script.
func (o *Observer) listenBinding() {
	page := o.tab.Page
	page.Context(o.ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != bindingName {
			return
		}

		var sig struct {
			Signal string `json:"signal"`
			URL    string `json:"url"`
		}
		if err := json.Unmarshal([]byte(e.Payload), &sig); err != nil {
			o.logger.Warn("observer: parse binding payload", "error", err)
			return
		}

		switch sig.Signal {
		case "parse_complete":
			o.logger.Info("observer: parse complete", "url", sig.URL)
			o.parseOnce.Do(func() { close(o.parseCh) })
		case "navigate":
			o.logger.Info("observer: history navigation", "url", sig.URL)
			o.tab.PageURL = sig.URL
			if o.onNavigate != nil {
				go o.onNavigate(sig.URL)
			}
		}
	})()
}

// notifyInsertion fans an insertion out to registered origin watchers,
// synchronously so batch order is preserved.
func (o *Observer) notifyInsertion(ins origin.Insertion) {
	o.mu.Lock()
	handlers := make([]func(origin.Batch), 0, len(o.watchers))
	for _, h := range o.watchers {
		handlers = append(handlers, h)
	}
	o.mu.Unlock()

	batch := origin.Batch{ins}
	for _, h := range handlers {
		h(batch)
	}
}

// record queues a mutation record for the sink pipeline.
func (o *Observer) record(rec mutation.Record) {
	select {
	case o.rawCh <- rec:
	default:
		o.logger.Warn("observer: record buffer full, dropping", "op", rec.Op)
	}
}

func (o *Observer) loop() {
	defer close(o.loopDone)
	for {
		select {
		case <-o.ctx.Done():
			return
		case <-o.stopCh:
			o.finalFlush()
			return
		case rec := <-o.rawCh:
			o.debouncer.add(rec)
		case <-o.debouncer.timerC():
			o.debouncer.flush()
		case <-o.docResetCh:
			o.handleDocReset()
		}
	}
}

// finalFlush drains whatever is still queued and emits it. Runs before the
// context is cancelled so the sink send still goes through.
func (o *Observer) finalFlush() {
	for {
		select {
		case rec := <-o.rawCh:
			o.debouncer.add(rec)
		default:
			o.debouncer.flush()
			return
		}
	}
}

// handleDocReset processes DOM.documentUpdated: the whole DOM was replaced
// (document.open/write). Node tracking is rebuilt; the bootstrap script
// re-runs on its own since it is registered on new documents.
func (o *Observer) handleDocReset() {
	o.logger.Info("observer: document updated, rebuilding node map")

	o.debouncer.flush()
	o.emitBatch([]mutation.Record{{Op: mutation.OpDocReset}})

	if err := o.initDOMTracking(); err != nil {
		o.logger.Error("observer: re-init DOM tracking failed", "error", err)
	}
}

func (o *Observer) emitBatch(records []mutation.Record) {
	if len(records) == 0 || o.sink == nil {
		return
	}

	batch := mutation.Batch{
		ID:        idgen.New(),
		PageURL:   o.tab.PageURL,
		PageID:    o.tab.PageID,
		Seq:       o.seq.Add(1),
		Records:   records,
		Timestamp: time.Now().UnixMilli(),
	}

	if err := o.sink.Send(o.ctx, batch); err != nil {
		o.logger.Error("observer: send batch failed", "error", err)
	}
}
