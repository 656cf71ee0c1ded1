package ssrwatch

import (
	"context"
	"io"
	"log/slog"

	"github.com/leochiu-a/chrome-ssr-inspector/ssrwatch/internal/sink"
	"github.com/leochiu-a/chrome-ssr-inspector/ssrwatch/mutation"
)

// Sink is the output interface for ssrwatch observations.
type Sink = sink.Sink

// NewStdoutSink creates a stdout JSON-lines sink.
func NewStdoutSink(w io.Writer) Sink {
	return sink.NewStdout(w)
}

// NewWebhookSink creates a webhook POST sink with retry.
func NewWebhookSink(url string, logger *slog.Logger) Sink {
	return sink.NewWebhook(url, sink.WithWebhookLogger(logger))
}

// BatchFunc is called for each mutation batch.
type BatchFunc = sink.BatchFunc

// ReportFunc is called for each classification report.
type ReportFunc = sink.ReportFunc

// NewCallbackSink creates an in-process callback sink — for consumers in
// the same binary, with zero serialisation.
func NewCallbackSink(
	onBatch func(ctx context.Context, batch mutation.Batch) error,
	onReport func(ctx context.Context, report mutation.Report) error,
) Sink {
	return sink.NewCallback(onBatch, onReport)
}

// SinksFromConfig builds sinks from configuration entries.
func SinksFromConfig(cfgs []SinkConfig, out io.Writer, logger *slog.Logger) []Sink {
	var sinks []Sink
	for _, sc := range cfgs {
		switch sc.Type {
		case "stdout":
			sinks = append(sinks, NewStdoutSink(out))
		case "webhook":
			sinks = append(sinks, NewWebhookSink(sc.URL, logger))
		default:
			logger.Warn("ssrwatch: unknown sink type, skipping", "type", sc.Type)
		}
	}
	return sinks
}
