package mutation

// Verdict is one classified element in a report. Only client-rendered
// subtree roots carry snippets; listing every server element would just
// reproduce the page.
type Verdict struct {
	XPath    string `json:"xpath"`
	Tag      string `json:"tag,omitempty"`
	Origin   string `json:"origin"` // "server" | "client"
	Snippet  string `json:"snippet,omitempty"`  // sanitised outer HTML
	Markdown string `json:"markdown,omitempty"` // human-readable rendition
}

// Report is a point-in-time classification of one page: aggregate counts
// plus per-element verdicts for the client-rendered roots. Reports are an
// audit artifact — the classifier never reads them back.
type Report struct {
	ID          string    `json:"id"` // UUIDv7
	PageURL     string    `json:"page_url"`
	PageID      string    `json:"page_id"`
	Phase       string    `json:"phase"`
	ServerCount int       `json:"server_count"`
	ClientCount int       `json:"client_count"`
	TotalCount  int       `json:"total_count"`
	Verdicts    []Verdict `json:"verdicts,omitempty"`
	Timestamp   int64     `json:"timestamp"` // epoch milliseconds
}
