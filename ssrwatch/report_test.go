package ssrwatch

import (
	"strings"
	"testing"

	"github.com/leochiu-a/chrome-ssr-inspector/origin"
)

func TestTopLevelRootsFiltersNested(t *testing.T) {
	clients := []clientRoot{
		{XPath: "/html/body/div[2]", Tag: "div"},
		{XPath: "/html/body/div[2]/ul", Tag: "ul"},
		{XPath: "/html/body/div[2]/ul/li[1]", Tag: "li"},
		{XPath: "/html/body/aside", Tag: "aside"},
	}

	roots := topLevelRoots(clients)
	if len(roots) != 2 {
		t.Fatalf("roots = %d, want 2: %+v", len(roots), roots)
	}
	paths := map[string]bool{}
	for _, r := range roots {
		paths[r.XPath] = true
	}
	if !paths["/html/body/div[2]"] || !paths["/html/body/aside"] {
		t.Errorf("unexpected roots: %+v", roots)
	}
}

func TestTopLevelRootsSiblingIndexesAreNotPrefixes(t *testing.T) {
	clients := []clientRoot{
		{XPath: "/html/body/div[1]"},
		{XPath: "/html/body/div[10]"},
	}
	roots := topLevelRoots(clients)
	if len(roots) != 2 {
		t.Fatalf("div[10] wrongly treated as nested under div[1]: %+v", roots)
	}
}

func TestReportBuilderSanitisesSnippets(t *testing.T) {
	rb := newReportBuilder()
	rep := rb.build("home", "https://example.com/", origin.PhaseMonitoring,
		origin.Totals{Server: 10, Client: 1, Total: 11},
		[]clientRoot{{
			XPath: "/html/body/div[2]",
			Tag:   "div",
			HTML:  `<div><script>alert("x")</script><p>widget <b>text</b></p></div>`,
		}})

	if len(rep.Verdicts) != 1 {
		t.Fatalf("verdicts = %d, want 1", len(rep.Verdicts))
	}
	v := rep.Verdicts[0]
	if strings.Contains(v.Snippet, "<script") {
		t.Errorf("script survived sanitisation: %q", v.Snippet)
	}
	if !strings.Contains(v.Snippet, "widget") {
		t.Errorf("content lost in sanitisation: %q", v.Snippet)
	}
	if !strings.Contains(v.Markdown, "widget") || !strings.Contains(v.Markdown, "**text**") {
		t.Errorf("markdown rendition wrong: %q", v.Markdown)
	}
	if v.Origin != "client" {
		t.Errorf("origin = %q, want client", v.Origin)
	}
}

func TestReportBuilderCountsAndIdentity(t *testing.T) {
	rb := newReportBuilder()
	rep := rb.build("home", "https://example.com/", origin.PhaseCapturing,
		origin.Totals{Server: 7, Client: 0, Total: 7}, nil)

	if rep.ServerCount != 7 || rep.ClientCount != 0 || rep.TotalCount != 7 {
		t.Errorf("counts = %d/%d/%d", rep.ServerCount, rep.ClientCount, rep.TotalCount)
	}
	if rep.Phase != "capturing_server_elements" {
		t.Errorf("phase = %q", rep.Phase)
	}
	if !strings.HasPrefix(rep.ID, "rpt_") {
		t.Errorf("report ID %q missing rpt_ prefix", rep.ID)
	}
	if len(rep.Verdicts) != 0 {
		t.Errorf("verdicts = %+v, want none", rep.Verdicts)
	}
}
