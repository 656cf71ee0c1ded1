package origin

import (
	"context"
	"errors"
	"testing"
)

// fakeHost is a synthetic document: a flat identity set plus a manual
// insertion feed. It delivers batches synchronously to whichever watch is
// installed, like the real hosts do at callback boundaries.
type fakeHost struct {
	nodes    []NodeID
	handler  func(Batch)
	observeN int
	cancelN  int
	failSub  bool
}

func (h *fakeHost) WalkTree(_ context.Context, visit func(NodeID) error) error {
	for _, id := range h.nodes {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}

func (h *fakeHost) Observe(handler func(Batch)) (CancelFunc, error) {
	if h.failSub {
		return nil, errors.New("subscription rejected")
	}
	h.observeN++
	h.handler = handler
	return func() {
		h.cancelN++
		h.handler = nil
	}, nil
}

// insert adds a subtree to the tree and delivers it as one batch.
func (h *fakeHost) insert(ins ...Insertion) {
	for _, i := range ins {
		h.nodes = append(h.nodes, i.Root)
		h.nodes = append(h.nodes, i.Descendants...)
	}
	if h.handler != nil {
		h.handler(Batch(ins))
	}
}

// remove detaches identities from the tree without notifying anyone —
// removals carry no classification meaning.
func (h *fakeHost) remove(ids ...NodeID) {
	drop := make(map[NodeID]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := h.nodes[:0]
	for _, id := range h.nodes {
		if !drop[id] {
			kept = append(kept, id)
		}
	}
	h.nodes = kept
}

func startMonitoring(t *testing.T, h *fakeHost) *Classifier {
	t.Helper()
	c := NewClassifier(h)
	if err := c.BeginCapture(context.Background()); err != nil {
		t.Fatalf("BeginCapture: %v", err)
	}
	if err := c.CompleteCapture(context.Background()); err != nil {
		t.Fatalf("CompleteCapture: %v", err)
	}
	return c
}

func TestInitialWalkTagsAllServer(t *testing.T) {
	h := &fakeHost{nodes: []NodeID{1, 2, 3}}
	c := NewClassifier(h)
	if err := c.BeginCapture(context.Background()); err != nil {
		t.Fatalf("BeginCapture: %v", err)
	}

	for _, id := range []NodeID{1, 2, 3} {
		if got := c.Classify(id); got != TagServer {
			t.Errorf("Classify(%d): got %s, want server", id, got)
		}
	}
	if c.CurrentPhase() != PhaseCapturing {
		t.Errorf("phase: got %s, want capturing", c.CurrentPhase())
	}
}

func TestCapturePhaseInsertionsAreServer(t *testing.T) {
	h := &fakeHost{nodes: []NodeID{1}}
	c := NewClassifier(h)
	if err := c.BeginCapture(context.Background()); err != nil {
		t.Fatalf("BeginCapture: %v", err)
	}

	// Raced insertion during initial parsing: still document source.
	h.insert(Insertion{Root: 10, Descendants: []NodeID{11, 12}})

	for _, id := range []NodeID{10, 11, 12} {
		if got := c.Classify(id); got != TagServer {
			t.Errorf("Classify(%d): got %s, want server", id, got)
		}
	}
}

func TestMonitoringTagsNewInsertionsClient(t *testing.T) {
	h := &fakeHost{nodes: []NodeID{1, 2}}
	c := startMonitoring(t, h)

	h.insert(Insertion{Root: 20, Descendants: []NodeID{21, 22}})

	for _, id := range []NodeID{20, 21, 22} {
		if got := c.Classify(id); got != TagClient {
			t.Errorf("Classify(%d): got %s, want client", id, got)
		}
	}
	// Pre-existing elements untouched.
	if got := c.Classify(1); got != TagServer {
		t.Errorf("Classify(1): got %s, want server", got)
	}
}

func TestRelocationPreservesServer(t *testing.T) {
	h := &fakeHost{nodes: []NodeID{1, 2, 3}}
	c := startMonitoring(t, h)

	// Remove a server node and reinsert it elsewhere: relocation, not new
	// content.
	h.remove(2)
	h.insert(Insertion{Root: 2})

	if got := c.Classify(2); got != TagServer {
		t.Errorf("Classify(2) after relocation: got %s, want server", got)
	}
}

func TestClientSubtreeDoesNotOverwriteRelocatedServerDescendant(t *testing.T) {
	h := &fakeHost{nodes: []NodeID{1, 5}}
	c := startMonitoring(t, h)

	// Fresh client wrapper carrying a known server node inside.
	h.remove(5)
	h.insert(Insertion{Root: 30, Descendants: []NodeID{5, 31}})

	if got := c.Classify(30); got != TagClient {
		t.Errorf("Classify(30): got %s, want client", got)
	}
	if got := c.Classify(31); got != TagClient {
		t.Errorf("Classify(31): got %s, want client", got)
	}
	if got := c.Classify(5); got != TagServer {
		t.Errorf("Classify(5): got %s, want server (relocated)", got)
	}
}

func TestDefensiveFinalWalkBackstopsMissedNodes(t *testing.T) {
	h := &fakeHost{nodes: []NodeID{1}}
	c := NewClassifier(h)
	if err := c.BeginCapture(context.Background()); err != nil {
		t.Fatalf("BeginCapture: %v", err)
	}

	// Sneak a node into the tree without a mutation notification (batching
	// gap). The final walk in CompleteCapture must catch it.
	h.nodes = append(h.nodes, 99)
	if err := c.CompleteCapture(context.Background()); err != nil {
		t.Fatalf("CompleteCapture: %v", err)
	}

	if got := c.Classify(99); got != TagServer {
		t.Errorf("Classify(99): got %s, want server", got)
	}
}

func TestTotalityAfterCompleteCapture(t *testing.T) {
	h := &fakeHost{nodes: []NodeID{1, 2, 3, 4}}
	c := startMonitoring(t, h)
	h.insert(Insertion{Root: 40})

	err := h.WalkTree(context.Background(), func(id NodeID) error {
		tag := c.Classify(id)
		if tag != TagServer && tag != TagClient {
			t.Errorf("Classify(%d): undefined tag %d", id, tag)
		}
		// Idempotent reclassification.
		if again := c.Classify(id); again != tag {
			t.Errorf("Classify(%d): unstable verdict %s then %s", id, tag, again)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
}

func TestObservationGapDefaultsToServer(t *testing.T) {
	h := &fakeHost{}
	c := startMonitoring(t, h)

	// Never observed by any watch or walk.
	if got := c.Classify(12345); got != TagServer {
		t.Errorf("Classify(unseen): got %s, want server", got)
	}
}

func TestAggregateConsistency(t *testing.T) {
	h := &fakeHost{nodes: []NodeID{1, 2, 3}}
	c := startMonitoring(t, h)
	h.insert(Insertion{Root: 50, Descendants: []NodeID{51}})

	totals, err := c.Aggregate(context.Background())
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if totals.Total != len(h.nodes) {
		t.Errorf("Total: got %d, want %d", totals.Total, len(h.nodes))
	}
	if totals.Server+totals.Client != totals.Total {
		t.Errorf("Server+Client = %d, want Total %d",
			totals.Server+totals.Client, totals.Total)
	}
	if totals.Server != 3 || totals.Client != 2 {
		t.Errorf("got server=%d client=%d, want 3/2", totals.Server, totals.Client)
	}
}

func TestPhaseTransitionExactlyOnce(t *testing.T) {
	h := &fakeHost{nodes: []NodeID{1}}
	c := startMonitoring(t, h)

	if err := c.BeginCapture(context.Background()); !errors.Is(err, ErrCaptureStarted) {
		t.Errorf("re-entrant BeginCapture: got %v, want ErrCaptureStarted", err)
	}
	if err := c.CompleteCapture(context.Background()); !errors.Is(err, ErrNotCapturing) {
		t.Errorf("second CompleteCapture: got %v, want ErrNotCapturing", err)
	}
	if c.CurrentPhase() != PhaseMonitoring {
		t.Errorf("phase: got %s, want monitoring", c.CurrentPhase())
	}
}

func TestBeginCaptureSubscriptionFailureIsFatal(t *testing.T) {
	h := &fakeHost{nodes: []NodeID{1}, failSub: true}
	c := NewClassifier(h)
	if err := c.BeginCapture(context.Background()); err == nil {
		t.Fatal("BeginCapture: expected error on rejected subscription")
	}
}

func TestTeardownStability(t *testing.T) {
	h := &fakeHost{nodes: []NodeID{1, 2}}
	c := startMonitoring(t, h)
	h.insert(Insertion{Root: 60})

	c.Teardown()
	c.Teardown() // double teardown is a no-op

	if h.cancelN == 0 {
		t.Error("teardown did not cancel the active watch")
	}

	// Mutations after teardown change nothing.
	h.insert(Insertion{Root: 61})
	if got := c.Classify(61); got != TagServer {
		t.Errorf("Classify(61) post-teardown: got %s, want server default", got)
	}
	// Last-known values survive.
	if got := c.Classify(60); got != TagClient {
		t.Errorf("Classify(60) post-teardown: got %s, want client", got)
	}
	if c.CurrentPhase() != PhaseMonitoring {
		t.Errorf("phase after teardown: got %s, want monitoring", c.CurrentPhase())
	}
}

func TestTeardownBeforeCaptureIsSafe(t *testing.T) {
	h := &fakeHost{}
	c := NewClassifier(h)
	c.Teardown()
	if err := c.BeginCapture(context.Background()); !errors.Is(err, ErrTornDown) {
		t.Errorf("BeginCapture after teardown: got %v, want ErrTornDown", err)
	}
	if h.observeN != 0 {
		t.Error("no watch should be installed after teardown")
	}
}

// TestScenarioFreshInsertNeverGainsServer covers the full lifecycle: three
// elements at capture, a fresh insert after, then a move of that fresh
// element. D never had a server entry, so no relocation exception applies.
func TestScenarioFreshInsertNeverGainsServer(t *testing.T) {
	h := &fakeHost{nodes: []NodeID{1, 2, 3}} // A, B, C
	c := startMonitoring(t, h)

	h.insert(Insertion{Root: 4}) // insert D under B
	if got := c.Classify(4); got != TagClient {
		t.Fatalf("Classify(D): got %s, want client", got)
	}

	h.remove(4)
	h.insert(Insertion{Root: 4}) // reinsert D under C
	if got := c.Classify(4); got != TagClient {
		t.Errorf("Classify(D) after move: got %s, want client", got)
	}
}

func TestBatchOrderAppliesPerElement(t *testing.T) {
	h := &fakeHost{nodes: []NodeID{7}}
	c := startMonitoring(t, h)

	// Same identity twice in one batch: a detach/reattach seen as two
	// insertions. The preserve-server rule wins, not arrival order.
	h.remove(7)
	h.insert(Insertion{Root: 7}, Insertion{Root: 7})
	if got := c.Classify(7); got != TagServer {
		t.Errorf("Classify(7): got %s, want server", got)
	}
}
