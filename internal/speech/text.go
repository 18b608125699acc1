package speech

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	reFence      = regexp.MustCompile("(?m)^[ \\t]*(```|~~~).*$")
	reImage      = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	reLink       = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	reHTMLTag    = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)
	reHeading    = regexp.MustCompile(`(?m)^[ \t]{0,3}#{1,6}[ \t]*`)
	reQuote      = regexp.MustCompile(`(?m)^[ \t]*>+[ \t]?`)
	reListMarker = regexp.MustCompile(`(?m)^[ \t]*([-*+]|\d+[.)])[ \t]+`)
	reRule       = regexp.MustCompile(`(?m)^[ \t]*([-*_][ \t]*){3,}$`)
	reEmphasis   = regexp.MustCompile("(\\*\\*|__|\\*|_|~~|`)")
	reSpaces     = regexp.MustCompile(`[ \t\f\v]+`)
	reParagraph  = regexp.MustCompile(`\n\s*\n`)
)

// PrepareText converts chapter markdown into plain text for synthesis.
// Markup is removed, the result is NFC-normalized, runs of spaces collapse to one,
// and paragraphs are separated by a single blank line.
func PrepareText(markdown string) string {
	s := strings.ReplaceAll(markdown, "\r\n", "\n")

	s = reFence.ReplaceAllString(s, "")
	s = reImage.ReplaceAllString(s, "$1")
	s = reLink.ReplaceAllString(s, "$1")
	s = reHTMLTag.ReplaceAllString(s, "")
	s = reRule.ReplaceAllString(s, "")
	s = reHeading.ReplaceAllString(s, "")
	s = reQuote.ReplaceAllString(s, "")
	s = reListMarker.ReplaceAllString(s, "")
	s = reEmphasis.ReplaceAllString(s, "")

	s = norm.NFC.String(s)

	paragraphs := reParagraph.Split(s, -1)
	out := make([]string, 0, len(paragraphs))
	for _, p := range paragraphs {
		p = strings.ReplaceAll(p, "\n", " ")
		p = strings.TrimSpace(reSpaces.ReplaceAllString(p, " "))
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n\n")
}
