package sink

import (
	"context"

	"github.com/leochiu-a/chrome-ssr-inspector/ssrwatch/mutation"
)

// BatchFunc is called for each batch (in-process, zero serialisation).
type BatchFunc func(ctx context.Context, batch mutation.Batch) error

// ReportFunc is called for each classification report.
type ReportFunc func(ctx context.Context, report mutation.Report) error

// Callback delivers observations via Go function calls — the path for
// consumers living in the same binary, with zero serialisation overhead.
type Callback struct {
	onBatch  BatchFunc
	onReport ReportFunc
}

// NewCallback creates a Callback sink. Either handler may be nil.
func NewCallback(onBatch BatchFunc, onReport ReportFunc) *Callback {
	return &Callback{onBatch: onBatch, onReport: onReport}
}

func (c *Callback) Send(ctx context.Context, batch mutation.Batch) error {
	if c.onBatch != nil {
		return c.onBatch(ctx, batch)
	}
	return nil
}

func (c *Callback) SendReport(ctx context.Context, report mutation.Report) error {
	if c.onReport != nil {
		return c.onReport(ctx, report)
	}
	return nil
}

func (c *Callback) Close() error { return nil }
