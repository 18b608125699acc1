package domain

// ChapterSummary is one entry of a chapter listing.
// ID is the stable path-like key within the source repository.
type ChapterSummary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// ChapterContent is the raw text of a chapter. Held only in transient view state.
type ChapterContent struct {
	ChapterID string `json:"chapter_id"`
	Text      string `json:"text"`
}

// IndexOfChapter returns the position of chapterID in chapters, or -1.
func IndexOfChapter(chapters []ChapterSummary, chapterID string) int {
	for i, c := range chapters {
		if c.ID == chapterID {
			return i
		}
	}
	return -1
}
