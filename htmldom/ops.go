package htmldom

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/leochiu-a/chrome-ssr-inspector/origin"
)

// AppendElement creates a fresh element under parent and notifies watchers.
// Attrs alternate key, value.
func (d *Document) AppendElement(parent *html.Node, tag string, attrs ...string) *html.Node {
	n := &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
	}
	for i := 0; i+1 < len(attrs); i += 2 {
		n.Attr = append(n.Attr, html.Attribute{Key: attrs[i], Val: attrs[i+1]})
	}
	parent.AppendChild(n)
	d.notify(origin.Batch{d.subtreeInsertion(n)})
	return n
}

// AppendFragment parses an HTML fragment in the context of parent, attaches
// every parsed top-level node, and notifies watchers with one batch — the
// way a script-driven innerHTML insertion lands as one mutation record set.
func (d *Document) AppendFragment(parent *html.Node, fragment string) ([]*html.Node, error) {
	nodes, err := html.ParseFragment(strings.NewReader(fragment), parent)
	if err != nil {
		return nil, fmt.Errorf("htmldom: parse fragment: %w", err)
	}

	var roots []*html.Node
	var batch origin.Batch
	for _, n := range nodes {
		parent.AppendChild(n)
		if n.Type == html.ElementNode {
			roots = append(roots, n)
			batch = append(batch, d.subtreeInsertion(n))
		}
	}

	if len(batch) > 0 {
		d.notify(batch)
	}
	return roots, nil
}

// Remove detaches a node from the tree. Removal carries no classification
// meaning and emits no batch; the node keeps its identity for a later
// reinsertion.
func (d *Document) Remove(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// Reattach moves an already-known node (detached or not) under a new
// parent and notifies watchers — a relocation as the classifier sees one.
func (d *Document) Reattach(n *html.Node, newParent *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
	newParent.AppendChild(n)
	d.notify(origin.Batch{d.subtreeInsertion(n)})
}

// First returns the first element with the given tag, in document order.
func (d *Document) First(tag string) *html.Node {
	var found *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != nil {
			return
		}
		if n.Type == html.ElementNode && n.Data == tag {
			found = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(d.root)
	return found
}

// CountElements returns the number of elements currently attached.
func (d *Document) CountElements() int {
	count := 0
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			count++
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(d.root)
	return count
}
