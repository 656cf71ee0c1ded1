// Package origin classifies elements of a live document tree by render
// origin: present before any script executed (server-rendered) or inserted
// afterward by script (client-rendered).
//
// The classifier owns nothing but a map from element identity to a Tag and
// a two-phase lifecycle. The document itself belongs to a Host — a CDP
// session, a parsed HTML snapshot, or a test fixture — injected at
// construction time. origin observes, it does not interpret: consumers ask
// it for verdicts and counts, the host pushes insertion batches.
package origin

// Tag is the render origin of an element. Exactly one tag is associated
// with an element once it has been observed.
type Tag uint8

const (
	// TagServer marks an element that was part of the document as initially
	// constructed, before any script ran.
	TagServer Tag = iota
	// TagClient marks an element inserted by script execution after initial
	// construction completed.
	TagClient
)

// String returns the wire form: "server" or "client".
func (t Tag) String() string {
	if t == TagClient {
		return "client"
	}
	return "server"
}

// NodeID is an opaque, identity-comparable handle into the host's document
// tree. Two structurally identical elements have distinct NodeIDs. For the
// CDP host this is the backend node ID (stable across relocation); synthetic
// hosts assign their own.
type NodeID int64

// Totals is the aggregate classification count for one tree walk.
// Server+Client always equals Total.
type Totals struct {
	Server int `json:"server_count"`
	Client int `json:"client_count"`
	Total  int `json:"total_count"`
}
