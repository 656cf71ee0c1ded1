package origin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Insertion is one inserted subtree: the root plus every descendant that
// arrived with it, in document order. Hosts report whole subtrees so the
// classifier can bulk-propagate a verdict without walking the tree itself.
type Insertion struct {
	Root        NodeID
	Descendants []NodeID
}

// Batch is the message unit a host pushes: all insertions observed in one
// delivery window, in delivery order. The classifier is a state transition
// over (map, phase, batch) — feeding synthetic batches is all a test needs.
type Batch []Insertion

// CancelFunc unsubscribes a watch installed by Host.Observe. Safe to call
// more than once.
type CancelFunc func()

// Host is the document binding injected into a Classifier. Implementations:
// the CDP observer (live Chrome page), htmldom (parsed snapshot / fixture).
type Host interface {
	// WalkTree visits every element currently in the tree. Returning a
	// non-nil error from visit aborts the walk and is returned as-is.
	WalkTree(ctx context.Context, visit func(NodeID) error) error

	// Observe installs a subtree-recursive insertion watch rooted at the
	// document. Batches are delivered in the order the host enqueues them.
	Observe(handler func(Batch)) (CancelFunc, error)
}

// ErrCaptureStarted is returned by BeginCapture when capture already ran.
// The phase machine transitions exactly once; a second call has nothing
// valid to do.
var ErrCaptureStarted = errors.New("origin: capture already started")

// ErrNotCapturing is returned by CompleteCapture outside PhaseCapturing.
var ErrNotCapturing = errors.New("origin: not in capture phase")

// ErrTornDown is returned by lifecycle operations after Teardown.
var ErrTornDown = errors.New("origin: classifier torn down")

// Classifier maintains the origin map for one document instance.
//
// All state is guarded by one mutex: host event delivery and queries arrive
// on different goroutines in Go, so the single-logical-thread model of a
// page script becomes lock-serialised callbacks here. No operation blocks
// while holding the lock except the host tree walks.
type Classifier struct {
	mu      sync.Mutex
	host    Host
	origins *Map
	phase   atomic.Int32

	began    bool
	tornDown bool
	cancel   CancelFunc

	logger *slog.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithLogger sets a custom logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Classifier) { c.logger = l }
}

// NewClassifier creates a Classifier bound to the given host. The classifier
// is inert until BeginCapture.
func NewClassifier(host Host, opts ...Option) *Classifier {
	c := &Classifier{
		host:    host,
		origins: newMap(),
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BeginCapture walks the current tree tagging every present element server,
// then installs the capture-phase watch: anything inserted from here until
// CompleteCapture — raced insertions included — is still part of the
// original document source, and is tagged server along with its whole
// subtree. Call once, as early as the host allows; a repeat call is a
// guarded no-op returning ErrCaptureStarted. A rejected host subscription
// is fatal: there is no fallback to full mutation visibility.
func (c *Classifier) BeginCapture(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tornDown {
		return ErrTornDown
	}
	if c.began || Phase(c.phase.Load()) != PhaseCapturing {
		return ErrCaptureStarted
	}

	if err := c.walkTagServerLocked(ctx); err != nil {
		return fmt.Errorf("origin: initial walk: %w", err)
	}

	cancel, err := c.host.Observe(c.onCaptureBatch)
	if err != nil {
		return fmt.Errorf("origin: install capture watch: %w", err)
	}
	c.cancel = cancel
	c.began = true

	c.logger.Debug("origin: capture started", "elements", c.origins.len())
	return nil
}

// CompleteCapture is driven by the host's one-shot "initial parse complete"
// signal. It disconnects the capture watch, runs one final defensive walk
// tagging any element the mutation stream missed as server, transitions to
// PhaseMonitoring, and installs the monitoring watch. Mutation history
// cannot be replayed, so the final walk is the only mitigation for batched
// or dropped capture-phase notifications.
func (c *Classifier) CompleteCapture(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tornDown {
		return ErrTornDown
	}
	if Phase(c.phase.Load()) != PhaseCapturing {
		return ErrNotCapturing
	}

	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}

	if err := c.walkTagServerLocked(ctx); err != nil {
		return fmt.Errorf("origin: final capture walk: %w", err)
	}

	c.phase.Store(int32(PhaseMonitoring))

	cancel, err := c.host.Observe(c.onMonitorBatch)
	if err != nil {
		return fmt.Errorf("origin: install monitoring watch: %w", err)
	}
	c.cancel = cancel

	c.logger.Info("origin: monitoring started", "server_elements", c.origins.len())
	return nil
}

// Teardown disconnects whatever watch is active. Idempotent; safe before
// BeginCapture. The phase and the map survive: Classify keeps returning
// last-known values, and host notifications already enqueued but not yet
// delivered are never processed.
func (c *Classifier) Teardown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tornDown {
		return
	}
	c.tornDown = true
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.logger.Debug("origin: torn down", "phase", Phase(c.phase.Load()).String())
}

// onCaptureBatch tags every inserted subtree server. During initial parsing
// an insertion is document source, not script output.
func (c *Classifier) onCaptureBatch(batch Batch) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tornDown || Phase(c.phase.Load()) != PhaseCapturing {
		return
	}
	for _, ins := range batch {
		c.origins.markServer(ins.Root)
		for _, d := range ins.Descendants {
			c.origins.markServer(d)
		}
	}
}

// onMonitorBatch applies the monitoring rule per element in delivery order:
// no entry → client; existing server entry → preserved (relocation, not new
// content). Descendants of a client root follow the same per-element rule,
// so a relocated server node inside a fresh client subtree stays server.
func (c *Classifier) onMonitorBatch(batch Batch) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tornDown || Phase(c.phase.Load()) != PhaseMonitoring {
		return
	}
	for _, ins := range batch {
		c.origins.markClientIfNew(ins.Root)
		for _, d := range ins.Descendants {
			c.origins.markClientIfNew(d)
		}
	}
}

func (c *Classifier) walkTagServerLocked(ctx context.Context) error {
	return c.host.WalkTree(ctx, func(id NodeID) error {
		if _, ok := c.origins.get(id); !ok {
			c.origins.markServer(id)
		}
		return nil
	})
}
