package ssrwatch

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/leochiu-a/chrome-ssr-inspector/ssrwatch/mutation"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const prerenderedHTML = `<!DOCTYPE html>
<html><head><title>Release notes</title></head><body>
<main>
<h1>Release notes</h1>
<p>This release focuses on stability. The observation pipeline now survives
browser recycling without losing buffered mutation records, and report
generation handles pages with several thousand elements without visible
latency. Upgrading requires no configuration changes.</p>
<p>The query surface gained a per-element lookup so consumers can ask about
a single XPath instead of pulling the whole aggregate. Webhook delivery
retries with exponential backoff and gives up after the configured number
of attempts.</p>
</main>
</body></html>`

func staticServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(prerenderedHTML))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// collectReports is a callback sink capturing published reports.
type collectReports struct {
	mu      sync.Mutex
	reports []mutation.Report
}

func (c *collectReports) sink() Sink {
	return NewCallbackSink(nil, func(_ context.Context, rep mutation.Report) error {
		c.mu.Lock()
		c.reports = append(c.reports, rep)
		c.mu.Unlock()
		return nil
	})
}

func testWatcher(t *testing.T, sinks ...Sink) *Watcher {
	t.Helper()
	w, err := New(&Config{}, testLogger(), sinks...)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	t.Cleanup(w.Stop)
	return w
}

func TestStaticSessionClassifiesEverythingServer(t *testing.T) {
	srv := staticServer(t)
	w := testWatcher(t)
	ctx := context.Background()

	err := w.ObservePage(ctx, PageConfig{ID: "notes", URL: srv.URL, Mode: "static"})
	if err != nil {
		t.Fatalf("observe: %v", err)
	}

	phase, err := w.Phase("notes")
	if err != nil || phase != "monitoring_client_elements" {
		t.Errorf("phase = %q (err=%v)", phase, err)
	}

	totals, err := w.Aggregate(ctx, "notes")
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if totals.Client != 0 {
		t.Errorf("client count = %d, want 0 (no JS ran)", totals.Client)
	}
	if totals.Server == 0 || totals.Server != totals.Total {
		t.Errorf("totals = %+v, want all server", totals)
	}

	tag, err := w.Classify("notes", "/html/body/main/h1")
	if err != nil || tag != "server" {
		t.Errorf("classify = %q (err=%v), want server", tag, err)
	}
}

func TestAutoModePicksStaticForPrerenderedPage(t *testing.T) {
	srv := staticServer(t)
	w := testWatcher(t)

	err := w.ObservePage(context.Background(), PageConfig{ID: "auto", URL: srv.URL, Mode: "auto"})
	if err != nil {
		t.Fatalf("observe: %v", err)
	}

	s, err := w.session("auto")
	if err != nil {
		t.Fatal(err)
	}
	if !s.static() {
		t.Error("prerendered page escalated to browser mode")
	}
	if s.detection == nil || !s.detection.Prerendered {
		t.Errorf("detection = %+v", s.detection)
	}
}

func TestReportPublishedToSinks(t *testing.T) {
	srv := staticServer(t)
	var got collectReports
	w := testWatcher(t, got.sink())
	ctx := context.Background()

	if err := w.ObservePage(ctx, PageConfig{ID: "notes", URL: srv.URL, Mode: "static"}); err != nil {
		t.Fatalf("observe: %v", err)
	}

	rep, err := w.Report(ctx, "notes")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if rep.ClientCount != 0 || len(rep.Verdicts) != 0 {
		t.Errorf("static report carries client verdicts: %+v", rep)
	}
	if rep.PageID != "notes" || !strings.HasPrefix(rep.PageURL, "http") {
		t.Errorf("report identity wrong: %+v", rep)
	}

	got.mu.Lock()
	defer got.mu.Unlock()
	if len(got.reports) != 1 || got.reports[0].ID != rep.ID {
		t.Errorf("sink received %d reports", len(got.reports))
	}
}

func TestDetectDoesNotCreateSession(t *testing.T) {
	srv := staticServer(t)
	w := testWatcher(t)

	res, err := w.Detect(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if !res.Detection.Prerendered {
		t.Errorf("detection = %+v, want prerendered", res.Detection)
	}
	if len(w.Pages()) != 0 {
		t.Errorf("detect created sessions: %v", w.Pages())
	}
}

func TestStopPageDiscardsSession(t *testing.T) {
	srv := staticServer(t)
	w := testWatcher(t)
	ctx := context.Background()

	if err := w.ObservePage(ctx, PageConfig{ID: "notes", URL: srv.URL, Mode: "static"}); err != nil {
		t.Fatalf("observe: %v", err)
	}
	if err := w.StopPage("notes"); err != nil {
		t.Fatalf("stop: %v", err)
	}

	if _, err := w.Phase("notes"); err == nil {
		t.Error("phase succeeded after stop")
	}
	if err := w.StopPage("notes"); err == nil {
		t.Error("second stop should report unknown page")
	}
}

func TestUnknownPageErrors(t *testing.T) {
	w := testWatcher(t)
	ctx := context.Background()

	if _, err := w.Aggregate(ctx, "ghost"); err == nil {
		t.Error("aggregate of unknown page should error")
	}
	if _, err := w.Report(ctx, "ghost"); err == nil {
		t.Error("report of unknown page should error")
	}
	if _, err := w.Classify("ghost", "/html"); err == nil {
		t.Error("classify of unknown page should error")
	}
}

func TestObservePageValidation(t *testing.T) {
	w := testWatcher(t)
	ctx := context.Background()

	if err := w.ObservePage(ctx, PageConfig{URL: "https://example.com/"}); err == nil {
		t.Error("missing page id accepted")
	}
	if err := w.ObservePage(ctx, PageConfig{ID: "x", URL: "https://example.com/", Mode: "teleport"}); err == nil {
		t.Error("unknown mode accepted")
	}
}
