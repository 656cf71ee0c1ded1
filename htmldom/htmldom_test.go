package htmldom

import (
	"context"
	"testing"

	"github.com/leochiu-a/chrome-ssr-inspector/origin"
)

const shellHTML = `<!DOCTYPE html>
<html><head><title>t</title></head>
<body>
  <div id="root">
    <nav><a href="/">home</a></nav>
    <main><p>server text</p></main>
  </div>
</body></html>`

func TestWalkTreeVisitsAllElements(t *testing.T) {
	doc, err := ParseString(shellHTML)
	if err != nil {
		t.Fatal(err)
	}

	seen := 0
	err = doc.WalkTree(context.Background(), func(origin.NodeID) error {
		seen++
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	// html, head, title, body, div, nav, a, main, p
	if seen != 9 {
		t.Errorf("walk visited %d elements, want 9", seen)
	}
	if got := doc.CountElements(); got != seen {
		t.Errorf("CountElements: got %d, want %d", got, seen)
	}
}

func TestNodeIDStableAcrossDetach(t *testing.T) {
	doc, err := ParseString(shellHTML)
	if err != nil {
		t.Fatal(err)
	}

	nav := doc.First("nav")
	id := doc.NodeID(nav)
	doc.Remove(nav)
	doc.Reattach(nav, doc.First("main"))

	if got := doc.NodeID(nav); got != id {
		t.Errorf("NodeID changed across relocation: %d → %d", id, got)
	}
}

func TestObserveDeliversSubtreeBatches(t *testing.T) {
	doc, err := ParseString(shellHTML)
	if err != nil {
		t.Fatal(err)
	}

	var got []origin.Batch
	cancel, err := doc.Observe(func(b origin.Batch) { got = append(got, b) })
	if err != nil {
		t.Fatal(err)
	}

	roots, err := doc.AppendFragment(doc.First("main"),
		`<section><h2>new</h2><p>body</p></section>`)
	if err != nil {
		t.Fatal(err)
	}
	if len(roots) != 1 {
		t.Fatalf("fragment roots: got %d, want 1", len(roots))
	}

	if len(got) != 1 {
		t.Fatalf("batches delivered: got %d, want 1", len(got))
	}
	ins := got[0][0]
	if ins.Root != doc.NodeID(roots[0]) {
		t.Errorf("batch root mismatch")
	}
	if len(ins.Descendants) != 2 { // h2, p
		t.Errorf("descendants: got %d, want 2", len(ins.Descendants))
	}

	cancel()
	doc.AppendElement(doc.First("main"), "span")
	if len(got) != 1 {
		t.Errorf("cancelled watch still received batches")
	}
}

func TestParseCompleteFiresOnce(t *testing.T) {
	doc, err := ParseString(shellHTML)
	if err != nil {
		t.Fatal(err)
	}

	fired := 0
	doc.OnParseComplete(func() { fired++ })
	doc.MarkParseComplete()
	doc.MarkParseComplete()
	if fired != 1 {
		t.Errorf("parse-complete fired %d times, want 1", fired)
	}

	// Late registration invokes immediately.
	late := false
	doc.OnParseComplete(func() { late = true })
	if !late {
		t.Error("late OnParseComplete was not invoked")
	}
}

// TestClassifierOverDocument runs the full lifecycle against a parsed tree:
// capture the shell, complete, then script-like insertions become client
// while a relocated shell node stays server.
func TestClassifierOverDocument(t *testing.T) {
	doc, err := ParseString(shellHTML)
	if err != nil {
		t.Fatal(err)
	}

	c := origin.NewClassifier(doc)
	doc.OnParseComplete(func() {
		if err := c.CompleteCapture(context.Background()); err != nil {
			t.Errorf("CompleteCapture: %v", err)
		}
	})
	if err := c.BeginCapture(context.Background()); err != nil {
		t.Fatalf("BeginCapture: %v", err)
	}
	doc.MarkParseComplete()

	// Hydration-style client insert.
	roots, err := doc.AppendFragment(doc.First("div"),
		`<div class="widget"><button>go</button></div>`)
	if err != nil {
		t.Fatal(err)
	}
	widget := roots[0]
	if got := c.Classify(doc.NodeID(widget)); got != origin.TagClient {
		t.Errorf("widget: got %s, want client", got)
	}

	// Relocate the server-rendered nav into the widget.
	nav := doc.First("nav")
	doc.Reattach(nav, widget)
	if got := c.Classify(doc.NodeID(nav)); got != origin.TagServer {
		t.Errorf("relocated nav: got %s, want server", got)
	}

	totals, err := c.Aggregate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if totals.Total != doc.CountElements() {
		t.Errorf("Total %d != live element count %d", totals.Total, doc.CountElements())
	}
	if totals.Server+totals.Client != totals.Total {
		t.Errorf("server+client != total: %+v", totals)
	}
}
