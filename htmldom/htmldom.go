// Package htmldom is a synthetic document host over golang.org/x/net/html.
//
// It gives the origin classifier a document tree without a browser: parse an
// HTML snapshot, then drive construction and script-like mutation by hand.
// Element identity follows the parsed node pointer, so a detached element
// reinserted elsewhere keeps its NodeID — the same stability the CDP host
// gets from backend node IDs.
//
// htmldom backs the classifier test suite, the HTTP-only observation path
// (a static fetch never ran script, so its tree is server by construction),
// and ad-hoc simulation.
package htmldom

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/net/html"

	"github.com/leochiu-a/chrome-ssr-inspector/origin"
)

// Document is a mutable HTML tree implementing origin.Host.
type Document struct {
	mu       sync.Mutex
	root     *html.Node
	ids      map[*html.Node]origin.NodeID
	nextID   int64
	watchers map[int]func(origin.Batch)
	nextW    int

	parseDone  bool
	onComplete []func()
}

// Parse reads a full HTML document.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("htmldom: parse: %w", err)
	}
	return &Document{
		root:     root,
		ids:      make(map[*html.Node]origin.NodeID),
		watchers: make(map[int]func(origin.Batch)),
	}, nil
}

// ParseString parses an HTML document held in a string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// Root returns the document root node.
func (d *Document) Root() *html.Node {
	return d.root
}

// NodeID returns the stable identity of a node, assigning one on first use.
func (d *Document) NodeID(n *html.Node) origin.NodeID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.idLocked(n)
}

func (d *Document) idLocked(n *html.Node) origin.NodeID {
	if id, ok := d.ids[n]; ok {
		return id
	}
	d.nextID++
	id := origin.NodeID(d.nextID)
	d.ids[n] = id
	return id
}

// WalkTree visits every element currently attached to the tree, in document
// order. Text, comment, and doctype nodes are not elements and are skipped.
// Identities are snapshotted before visiting so visit callbacks may call
// back into the classifier without holding the document lock.
func (d *Document) WalkTree(_ context.Context, visit func(origin.NodeID) error) error {
	d.mu.Lock()
	var ids []origin.NodeID
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			ids = append(ids, d.idLocked(n))
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(d.root)
	d.mu.Unlock()

	for _, id := range ids {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}

// Observe installs a recursive insertion watch. Batches are delivered
// synchronously at mutation boundaries, in mutation order.
func (d *Document) Observe(handler func(origin.Batch)) (origin.CancelFunc, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextW++
	key := d.nextW
	d.watchers[key] = handler
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.watchers, key)
	}, nil
}

// OnParseComplete registers a callback for the one-shot "initial parse
// complete" signal. Registering after the signal fired invokes the callback
// immediately.
func (d *Document) OnParseComplete(fn func()) {
	d.mu.Lock()
	if d.parseDone {
		d.mu.Unlock()
		fn()
		return
	}
	d.onComplete = append(d.onComplete, fn)
	d.mu.Unlock()
}

// MarkParseComplete fires the parse-complete signal. Only the first call
// has any effect.
func (d *Document) MarkParseComplete() {
	d.mu.Lock()
	if d.parseDone {
		d.mu.Unlock()
		return
	}
	d.parseDone = true
	fns := d.onComplete
	d.onComplete = nil
	d.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// notify delivers one insertion batch to every watcher. Caller must not
// hold the lock.
func (d *Document) notify(batch origin.Batch) {
	d.mu.Lock()
	handlers := make([]func(origin.Batch), 0, len(d.watchers))
	for _, h := range d.watchers {
		handlers = append(handlers, h)
	}
	d.mu.Unlock()

	for _, h := range handlers {
		h(batch)
	}
}

// subtreeInsertion builds the Insertion for a subtree root: the root plus
// all element descendants in document order.
func (d *Document) subtreeInsertion(n *html.Node) origin.Insertion {
	d.mu.Lock()
	defer d.mu.Unlock()

	ins := origin.Insertion{Root: d.idLocked(n)}
	var walk func(*html.Node)
	walk = func(p *html.Node) {
		for c := p.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode {
				ins.Descendants = append(ins.Descendants, d.idLocked(c))
			}
			walk(c)
		}
	}
	walk(n)
	return ins
}
