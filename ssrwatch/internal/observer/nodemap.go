package observer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-rod/rod/lib/proto"
)

// nodeMap tracks the live DOM topology seen over CDP. Identity is the
// BackendNodeID: frontend NodeIDs are reassigned when a node is detached
// and reinserted, backend IDs are not, and relocation detection depends on
// that stability.
type nodeMap struct {
	mu sync.RWMutex

	// backend maps frontend NodeID to the stable BackendNodeID.
	backend map[proto.DOMNodeID]proto.DOMBackendNodeID
	// paths maps frontend NodeID to the node's XPath.
	paths map[proto.DOMNodeID]string
	// tags maps frontend NodeID to lowercase tag name.
	tags map[proto.DOMNodeID]string

	parent   map[proto.DOMNodeID]proto.DOMNodeID
	children map[proto.DOMNodeID][]proto.DOMNodeID

	// byXPath resolves an XPath back to a backend ID for query handling.
	byXPath map[string]proto.DOMBackendNodeID
	// pathOf is the reverse of byXPath, keyed on the stable ID.
	pathOf map[proto.DOMBackendNodeID]string
}

func newNodeMap() *nodeMap {
	nm := &nodeMap{}
	nm.resetLocked()
	return nm
}

func (nm *nodeMap) resetLocked() {
	nm.backend = make(map[proto.DOMNodeID]proto.DOMBackendNodeID)
	nm.paths = make(map[proto.DOMNodeID]string)
	nm.tags = make(map[proto.DOMNodeID]string)
	nm.parent = make(map[proto.DOMNodeID]proto.DOMNodeID)
	nm.children = make(map[proto.DOMNodeID][]proto.DOMNodeID)
	nm.byXPath = make(map[string]proto.DOMBackendNodeID)
	nm.pathOf = make(map[proto.DOMBackendNodeID]string)
}

// buildFromDocument rebuilds the map from a full DOM.getDocument tree and
// returns the backend IDs of every element node in document order.
func (nm *nodeMap) buildFromDocument(root *proto.DOMNode) []proto.DOMBackendNodeID {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	nm.resetLocked()
	return nm.walkNode(root, "")
}

func (nm *nodeMap) walkNode(node *proto.DOMNode, parentPath string) []proto.DOMBackendNodeID {
	if node == nil {
		return nil
	}

	var elements []proto.DOMBackendNodeID

	xpath := nm.computeXPath(node, parentPath)
	// Nodes from DOM.describeNode may lack a frontend ID; they still get
	// stable-ID and XPath entries, just no frontend-keyed topology.
	if node.NodeID != 0 {
		nm.backend[node.NodeID] = node.BackendNodeID
		nm.paths[node.NodeID] = xpath
		nm.tags[node.NodeID] = strings.ToLower(node.NodeName)
	}
	if node.NodeType == 1 {
		nm.byXPath[xpath] = node.BackendNodeID
		nm.pathOf[node.BackendNodeID] = xpath
		elements = append(elements, node.BackendNodeID)
	}

	for _, child := range node.Children {
		if child.NodeID != 0 {
			nm.parent[child.NodeID] = node.NodeID
			nm.children[node.NodeID] = append(nm.children[node.NodeID], child.NodeID)
		}
		elements = append(elements, nm.walkNode(child, xpath)...)
	}

	for _, sr := range node.ShadowRoots {
		nm.parent[sr.NodeID] = node.NodeID
		elements = append(elements, nm.walkNode(sr, xpath+"/shadow-root")...)
	}

	return elements
}

func (nm *nodeMap) computeXPath(node *proto.DOMNode, parentPath string) string {
	name := strings.ToLower(node.NodeName)

	switch node.NodeType {
	case 9: // Document
		return ""
	case 10: // DocumentType
		return parentPath
	case 3: // Text
		return parentPath + "/text()"
	case 8: // Comment
		return parentPath + "/comment()"
	case 1: // Element
	default:
		return parentPath + "/" + name
	}

	switch name {
	case "html":
		return "/html"
	case "head":
		return "/html/head"
	case "body":
		return "/html/body"
	}

	parentID, hasParent := nm.parent[node.NodeID]
	if !hasParent {
		return parentPath + "/" + name
	}

	siblings := nm.children[parentID]
	idx, total := 1, 0
	for _, sibID := range siblings {
		if nm.tags[sibID] == name {
			total++
		}
	}
	for _, sibID := range siblings {
		if sibID == node.NodeID {
			break
		}
		if nm.tags[sibID] == name {
			idx++
		}
	}

	if total > 1 {
		return fmt.Sprintf("%s/%s[%d]", parentPath, name, idx)
	}
	return parentPath + "/" + name
}

// addSubtree registers a freshly inserted node under parentID and returns
// the backend IDs of the inserted element nodes in document order.
func (nm *nodeMap) addSubtree(parentID proto.DOMNodeID, node *proto.DOMNode) []proto.DOMBackendNodeID {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	parentPath := nm.paths[parentID]
	nm.parent[node.NodeID] = parentID
	nm.children[parentID] = append(nm.children[parentID], node.NodeID)
	return nm.walkNode(node, parentPath)
}

// removeNode forgets a node and its subtree. The backend ID stays in
// pathOf so a later reinsertion of the same node can still be related to
// its history.
func (nm *nodeMap) removeNode(nodeID proto.DOMNodeID) {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	nm.removeNodeLocked(nodeID)
}

func (nm *nodeMap) removeNodeLocked(nodeID proto.DOMNodeID) {
	for _, childID := range nm.children[nodeID] {
		nm.removeNodeLocked(childID)
	}

	if parentID, ok := nm.parent[nodeID]; ok {
		kids := nm.children[parentID]
		for i, id := range kids {
			if id == nodeID {
				nm.children[parentID] = append(kids[:i], kids[i+1:]...)
				break
			}
		}
	}

	if p, ok := nm.paths[nodeID]; ok {
		delete(nm.byXPath, p)
	}
	delete(nm.backend, nodeID)
	delete(nm.paths, nodeID)
	delete(nm.tags, nodeID)
	delete(nm.parent, nodeID)
	delete(nm.children, nodeID)
}

// xpath returns the current XPath for a frontend NodeID.
func (nm *nodeMap) xpath(id proto.DOMNodeID) string {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	if p, ok := nm.paths[id]; ok {
		return p
	}
	return fmt.Sprintf("/unknown[nodeId=%d]", id)
}

// xpathOf returns the last known XPath for a backend ID.
func (nm *nodeMap) xpathOf(id proto.DOMBackendNodeID) (string, bool) {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	p, ok := nm.pathOf[id]
	return p, ok
}

// resolve returns the backend ID currently at an XPath.
func (nm *nodeMap) resolve(xpath string) (proto.DOMBackendNodeID, bool) {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	id, ok := nm.byXPath[xpath]
	return id, ok
}

// tagOf returns the lowercase tag name last seen for a backend ID.
func (nm *nodeMap) tagOf(id proto.DOMBackendNodeID) string {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	for nid, bid := range nm.backend {
		if bid == id {
			return nm.tags[nid]
		}
	}
	return ""
}

// size reports how many nodes are currently tracked.
func (nm *nodeMap) size() int {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	return len(nm.paths)
}
