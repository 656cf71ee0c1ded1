package observer

import (
	"testing"

	"github.com/go-rod/rod/lib/proto"

	"github.com/leochiu-a/chrome-ssr-inspector/ssrwatch/mutation"
)

func intp(n int) *int { return &n }

func TestNeedsSubtreeFetch(t *testing.T) {
	tests := []struct {
		name string
		node *proto.DOMNode
		want bool
	}{
		{"leaf", elem(10, 110, "SPAN"), false},
		{"depth-0 container", &proto.DOMNode{
			NodeID: 10, BackendNodeID: 110, NodeType: 1, NodeName: "DIV",
			ChildNodeCount: intp(3),
		}, true},
		{"container with children delivered", &proto.DOMNode{
			NodeID: 10, BackendNodeID: 110, NodeType: 1, NodeName: "DIV",
			ChildNodeCount: intp(1),
			Children:       []*proto.DOMNode{elem(11, 111, "SPAN")},
		}, false},
		{"zero count", &proto.DOMNode{
			NodeID: 10, BackendNodeID: 110, NodeType: 1, NodeName: "DIV",
			ChildNodeCount: intp(0),
		}, false},
	}
	for _, tt := range tests {
		if got := needsSubtreeFetch(tt.node); got != tt.want {
			t.Errorf("%s: needsSubtreeFetch = %v, want %v", tt.name, got, tt.want)
		}
	}
}

// A fetched subtree can carry descendants without frontend IDs. Every
// element must still surface with its stable ID so the whole insertion
// reaches classification, not just the root.
func TestAddSubtreeWithoutFrontendIDs(t *testing.T) {
	nm := newNodeMap()
	nm.buildFromDocument(docTree())

	inserted := &proto.DOMNode{
		NodeID: 20, BackendNodeID: 120, NodeType: 1, NodeName: "SECTION",
		Children: []*proto.DOMNode{
			{BackendNodeID: 121, NodeType: 1, NodeName: "UL",
				Children: []*proto.DOMNode{
					{BackendNodeID: 122, NodeType: 1, NodeName: "LI"},
					{BackendNodeID: 123, NodeType: 1, NodeName: "LI"},
				}},
		},
	}

	elements := nm.addSubtree(5, inserted) // under body
	want := []proto.DOMBackendNodeID{120, 121, 122, 123}
	if len(elements) != len(want) {
		t.Fatalf("elements = %v, want %v", elements, want)
	}
	for i, id := range want {
		if elements[i] != id {
			t.Errorf("elements[%d] = %d, want %d", i, elements[i], id)
		}
	}

	for _, id := range want {
		if _, ok := nm.xpathOf(id); !ok {
			t.Errorf("stable ID %d has no XPath entry", id)
		}
	}
}

func TestInsertRecordCarriesSubtreeAndHTML(t *testing.T) {
	elements := []proto.DOMBackendNodeID{120, 121, 122}
	rec := insertRecord("/html/body/section", "section", elements, "<section><ul></ul></section>")

	if rec.Op != mutation.OpInsert {
		t.Fatalf("op = %q", rec.Op)
	}
	if rec.Node != 120 {
		t.Errorf("node = %d, want 120", rec.Node)
	}
	if len(rec.Subtree) != 2 || rec.Subtree[0] != 121 || rec.Subtree[1] != 122 {
		t.Errorf("subtree = %v, want [121 122]", rec.Subtree)
	}
	if rec.HTML == "" {
		t.Error("insert record lost its serialised subtree")
	}
	if rec.XPath != "/html/body/section" || rec.Tag != "section" {
		t.Errorf("xpath/tag = %q/%q", rec.XPath, rec.Tag)
	}
}
