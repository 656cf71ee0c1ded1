package observer

import (
	"context"

	"github.com/go-rod/rod/lib/proto"

	"github.com/leochiu-a/chrome-ssr-inspector/origin"
	"github.com/leochiu-a/chrome-ssr-inspector/ssrwatch/mutation"
)

// cdpListener subscribes to the CDP DOM domain on a page. Structural
// events are the sole source of insertion facts: the injected script only
// signals lifecycle, never mutations, so there is no cross-source
// deduplication to do.
type cdpListener struct {
	obs  *Observer
	ctx  context.Context
	stop context.CancelFunc
}

func newCDPListener(obs *Observer) *cdpListener {
	ctx, cancel := context.WithCancel(obs.ctx)
	return &cdpListener{obs: obs, ctx: ctx, stop: cancel}
}

func (cl *cdpListener) start() {
	proto.DOMEnable{}.Call(cl.obs.tab.Page)
	go cl.listenAll()
}

func (cl *cdpListener) listenAll() {
	p := cl.obs.tab.Page
	o := cl.obs

	wait := p.Context(cl.ctx).EachEvent(
		func(e *proto.DOMChildNodeInserted) {
			if e.Node == nil {
				return
			}
			node := cl.resolveSubtree(e.Node)
			elements := o.nodes.addSubtree(e.ParentNodeID, node)
			if len(elements) == 0 {
				return // text or comment node, no classification target
			}

			descendants := make([]origin.NodeID, 0, len(elements)-1)
			for _, id := range elements[1:] {
				descendants = append(descendants, origin.NodeID(id))
			}
			o.notifyInsertion(origin.Insertion{
				Root:        origin.NodeID(elements[0]),
				Descendants: descendants,
			})

			html, err := o.OuterHTML(cl.ctx, origin.NodeID(elements[0]))
			if err != nil {
				o.logger.Debug("observer: serialise inserted subtree", "error", err)
			}
			o.record(insertRecord(
				o.nodes.xpath(node.NodeID), o.nodes.tagOf(elements[0]),
				elements, html,
			))
		},

		func(e *proto.DOMChildNodeRemoved) {
			// Removal keeps the element's classification; identity is the
			// backend ID and it survives detachment.
			xpath := o.nodes.xpath(e.NodeID)
			o.nodes.removeNode(e.NodeID)
			o.record(mutation.Record{Op: mutation.OpRemove, XPath: xpath})
		},

		func(e *proto.DOMDocumentUpdated) {
			select {
			case o.docResetCh <- struct{}{}:
			default:
			}
		},
	)

	wait()
}

// resolveSubtree fetches the full subtree of an inserted node when CDP
// delivered it at depth 0: childNodeInserted carries ChildNodeCount but an
// empty Children slice unless the children were already requested, and the
// descendants would otherwise never enter the node map.
func (cl *cdpListener) resolveSubtree(node *proto.DOMNode) *proto.DOMNode {
	if !needsSubtreeFetch(node) {
		return node
	}

	depth := -1
	res, err := proto.DOMDescribeNode{
		BackendNodeID: node.BackendNodeID,
		Depth:         &depth,
		Pierce:        true,
	}.Call(cl.obs.tab.Page.Context(cl.ctx))
	if err != nil || res.Node == nil {
		cl.obs.logger.Warn("observer: describe inserted subtree", "error", err)
		return node
	}

	full := res.Node
	// describeNode may return without a frontend ID; keep the one from the
	// insertion event so the node map links it to its parent.
	if full.NodeID == 0 {
		full.NodeID = node.NodeID
	}
	return full
}

func needsSubtreeFetch(node *proto.DOMNode) bool {
	return node.ChildNodeCount != nil && *node.ChildNodeCount > 0 &&
		len(node.Children) == 0
}

// insertRecord builds the sink record for one inserted subtree. elements is
// the root followed by its element descendants; html is the serialised
// subtree at insertion time.
func insertRecord(xpath, tag string, elements []proto.DOMBackendNodeID, html string) mutation.Record {
	rec := mutation.Record{
		Op:    mutation.OpInsert,
		XPath: xpath,
		Tag:   tag,
		Node:  int64(elements[0]),
		HTML:  html,
	}
	for _, id := range elements[1:] {
		rec.Subtree = append(rec.Subtree, int64(id))
	}
	return rec
}
