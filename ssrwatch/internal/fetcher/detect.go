package fetcher

import (
	"bytes"
	"strings"
)

// Detection is the verdict of the static prerender heuristic, with the
// signals that produced it so callers can explain the decision.
type Detection struct {
	Prerendered bool    `json:"prerendered"`
	TextChars   int     `json:"text_chars"`
	MarkupChars int     `json:"markup_chars"`
	TextRatio   float64 `json:"text_ratio"`
	SPAShell    bool    `json:"spa_shell"` // a known empty-mount-point pattern matched
}

// Detect reports whether raw HTML looks server-rendered: enough visible
// text relative to markup and no empty SPA mount point. A page that fails
// here needs the browser path before anything meaningful can be classified.
func Detect(html []byte) Detection {
	var d Detection
	if len(html) < 256 {
		return d
	}

	d.TextChars, d.MarkupChars = textMarkupRatio(html)
	total := d.TextChars + d.MarkupChars
	if total == 0 {
		return d
	}
	d.TextRatio = float64(d.TextChars) / float64(total)

	lower := bytes.ToLower(html)
	spaIndicators := []string{
		`<div id="root"></div>`,
		`<div id="app"></div>`,
		`<div id="__next"></div>`,
		`<noscript>you need to enable javascript`,
		`<noscript>enable javascript`,
	}
	for _, ind := range spaIndicators {
		if bytes.Contains(lower, []byte(ind)) {
			d.SPAShell = true
			return d
		}
	}

	// Less than 10% text, or under 200 chars of it, reads as a shell
	// waiting for script.
	d.Prerendered = d.TextRatio >= 0.10 && d.TextChars >= 200
	return d
}

// textMarkupRatio computes the approximate byte count of visible text vs
// markup. Script and style bodies count as markup.
func textMarkupRatio(html []byte) (text, markup int) {
	inTag := false
	inScript := false
	inStyle := false

	s := string(html)
	i := 0
	for i < len(s) {
		if inScript {
			idx := strings.Index(s[i:], "</script")
			if idx == -1 {
				break
			}
			markup += idx + len("</script>")
			i += idx
			end := strings.IndexByte(s[i:], '>')
			if end >= 0 {
				i += end + 1
			}
			inScript = false
			continue
		}
		if inStyle {
			idx := strings.Index(s[i:], "</style")
			if idx == -1 {
				break
			}
			markup += idx + len("</style>")
			i += idx
			end := strings.IndexByte(s[i:], '>')
			if end >= 0 {
				i += end + 1
			}
			inStyle = false
			continue
		}

		ch := s[i]
		if ch == '<' {
			inTag = true
			markup++
			rest := strings.ToLower(s[i:])
			if strings.HasPrefix(rest, "<script") {
				inScript = true
			} else if strings.HasPrefix(rest, "<style") {
				inStyle = true
			}
			i++
			continue
		}
		if ch == '>' {
			inTag = false
			markup++
			i++
			continue
		}
		if inTag {
			markup++
		} else if ch != ' ' && ch != '\t' && ch != '\n' && ch != '\r' {
			text++
		}
		i++
	}
	return text, markup
}
