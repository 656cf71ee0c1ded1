// Package mutation defines the structured types emitted by ssrwatch.
// These are the public API contract: any consumer (report pipelines, custom
// tooling) imports this package to receive and process observations.
package mutation

// Op is the type of DOM mutation observed.
type Op string

const (
	OpInsert   Op = "insert"    // childNodeInserted (subtree roots carry descendants)
	OpRemove   Op = "remove"    // childNodeRemoved
	OpDocReset Op = "doc_reset" // documentUpdated — entire DOM replaced
)

// Record is a single DOM mutation relevant to render-origin tracking.
type Record struct {
	Op       Op      `json:"op"`
	XPath    string  `json:"xpath,omitempty"`
	Tag      string  `json:"tag,omitempty"`
	Node     int64   `json:"node,omitempty"`     // stable element identity
	Subtree  []int64 `json:"subtree,omitempty"`  // descendant identities for insert
	HTML     string  `json:"html,omitempty"`     // serialised subtree for insert
}

// Batch is the atomic unit emitted by the watcher: all records collected
// during a single debounce window, in delivery order.
type Batch struct {
	ID        string   `json:"id"` // UUIDv7
	PageURL   string   `json:"page_url"`
	PageID    string   `json:"page_id"`
	Seq       uint64   `json:"seq"` // monotonically increasing per page (gap detection)
	Records   []Record `json:"records"`
	Timestamp int64    `json:"timestamp"` // epoch milliseconds at flush
}
