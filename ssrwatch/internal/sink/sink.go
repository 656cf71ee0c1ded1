// Package sink defines output backends for ssrwatch observations.
package sink

import (
	"context"

	"github.com/leochiu-a/chrome-ssr-inspector/ssrwatch/mutation"
)

// Sink is the output interface. Implementations deliver mutation batches
// and classification reports to different backends (stdout, webhook,
// in-process callback).
type Sink interface {
	Send(ctx context.Context, batch mutation.Batch) error
	SendReport(ctx context.Context, report mutation.Report) error
	Close() error
}
