package speech

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrepareText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain text",
			in:   "Hello world.",
			want: "Hello world.",
		},
		{
			name: "headings and emphasis",
			in:   "# Chapter One\n\nIt was a **dark** and _stormy_ night.",
			want: "Chapter One\n\nIt was a dark and stormy night.",
		},
		{
			name: "links and images keep their text",
			in:   "See [the map](https://example.com/map) and ![a lighthouse](img/l.png).",
			want: "See the map and a lighthouse.",
		},
		{
			name: "lists and quotes",
			in:   "- first\n- second\n\n> quoted line",
			want: "first second\n\nquoted line",
		},
		{
			name: "code fences and rules",
			in:   "Before\n\n```go\nfmt.Println()\n```\n\n---\n\nAfter",
			want: "Before\n\nfmt.Println()\n\nAfter",
		},
		{
			name: "whitespace collapses",
			in:   "  lots   of\tspace \r\n  here  \n\n\n\nnext",
			want: "lots of space here\n\nnext",
		},
		{
			name: "decomposed accents are composed",
			in:   "Cafe\u0301",
			want: "Caf\u00e9",
		},
		{
			name: "only markup",
			in:   "---\n\n```\n```",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PrepareText(tt.in))
		})
	}
}
