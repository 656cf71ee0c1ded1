package ssrwatch

import (
	"sort"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/microcosm-cc/bluemonday"

	"github.com/leochiu-a/chrome-ssr-inspector/idgen"
	"github.com/leochiu-a/chrome-ssr-inspector/origin"
	"github.com/leochiu-a/chrome-ssr-inspector/ssrwatch/mutation"
)

// clientRoot is a client-rendered element candidate for a report verdict.
type clientRoot struct {
	XPath string
	Tag   string
	HTML  string
}

// reportBuilder turns classification state into publishable reports.
// Snippets pass through an HTML sanitiser because report consumers render
// them; the markdown rendition is for human review of what the client
// injected.
type reportBuilder struct {
	sanitize *bluemonday.Policy
	md       *converter.Converter
	newID    idgen.Generator
}

func newReportBuilder() *reportBuilder {
	return &reportBuilder{
		sanitize: bluemonday.UGCPolicy(),
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
		newID: idgen.Prefixed("rpt_", idgen.UUIDv7()),
	}
}

func (b *reportBuilder) build(pageID, pageURL string, phase origin.Phase, totals origin.Totals, clients []clientRoot) *mutation.Report {
	roots := topLevelRoots(clients)

	verdicts := make([]mutation.Verdict, 0, len(roots))
	for _, r := range roots {
		v := mutation.Verdict{
			XPath:  r.XPath,
			Tag:    r.Tag,
			Origin: origin.TagClient.String(),
		}
		if r.HTML != "" {
			v.Snippet = b.sanitize.Sanitize(r.HTML)
			if md, err := b.md.ConvertString(r.HTML); err == nil {
				v.Markdown = strings.TrimSpace(md)
			}
		}
		verdicts = append(verdicts, v)
	}

	return &mutation.Report{
		ID:          b.newID(),
		PageURL:     pageURL,
		PageID:      pageID,
		Phase:       phase.String(),
		ServerCount: totals.Server,
		ClientCount: totals.Client,
		TotalCount:  totals.Total,
		Verdicts:    verdicts,
		Timestamp:   time.Now().UnixMilli(),
	}
}

// topLevelRoots filters a set of client elements down to subtree roots:
// an element nested under another client element is covered by its
// ancestor's verdict and would only duplicate snippet content.
func topLevelRoots(clients []clientRoot) []clientRoot {
	if len(clients) <= 1 {
		return clients
	}

	sorted := make([]clientRoot, len(clients))
	copy(sorted, clients)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].XPath < sorted[j].XPath })

	var roots []clientRoot
	for _, c := range sorted {
		nested := false
		for _, r := range roots {
			if strings.HasPrefix(c.XPath, r.XPath+"/") {
				nested = true
				break
			}
		}
		if !nested {
			roots = append(roots, c)
		}
	}
	return roots
}
