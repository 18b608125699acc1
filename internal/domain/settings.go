package domain

import (
	"strings"

	"github.com/listenupapp/listenup-reader/internal/errors"
)

// Theme is the reader's display theme preference.
type Theme string

// Theme values.
const (
	ThemeSystem Theme = "system"
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
)

// Setting defaults applied on first run and when back-filling older blobs.
const (
	DefaultDisplayFont = "System"
	DefaultFontSize    = 16
	DefaultPlaySpeed   = 1.0
	DefaultTheme       = ThemeSystem
)

// Settings is the single persisted configuration record.
// The JSON shape is the on-disk contract; field names must stay stable.
type Settings struct {
	GitHubToken       string `json:"githubToken"`
	GitHubRepoURL     string `json:"githubRepoUrl" validate:"omitempty,url"`
	GitHubRepoBranch  string `json:"githubRepoBranch"`
	ContentFolderPath string `json:"contentFolderPath"`

	DisplayFont string  `json:"displayFont"`
	FontSize    float64 `json:"fontSize" validate:"gt=0,lte=96"`
	PlaySpeed   float64 `json:"playSpeed" validate:"gte=0.25,lte=4"`
	Theme       Theme   `json:"theme" validate:"oneof=system light dark"`

	// CurrentChapterID and CurrentReadingOffset form the single "last position" slot.
	// The offset means nothing unless the chapter ID matches the chapter being opened.
	CurrentChapterID     *string `json:"currentChapterId,omitempty"`
	CurrentReadingOffset float64 `json:"currentReadingOffset" validate:"gte=0"`

	// CurrentListeningChapterID and CurrentListeningPositionMs remember where speech
	// stopped, in audio milliseconds. Audio position and scroll offset have no fixed
	// relationship, so the two slots are kept apart.
	CurrentListeningChapterID  *string `json:"currentListeningChapterId,omitempty"`
	CurrentListeningPositionMs int64   `json:"currentListeningPositionMs" validate:"gte=0"`
}

// NewSettings returns a record populated entirely with defaults.
func NewSettings() *Settings {
	return &Settings{
		DisplayFont: DefaultDisplayFont,
		FontSize:    DefaultFontSize,
		PlaySpeed:   DefaultPlaySpeed,
		Theme:       DefaultTheme,
	}
}

// Clone returns a deep copy.
func (s *Settings) Clone() *Settings {
	c := *s
	if s.CurrentChapterID != nil {
		id := *s.CurrentChapterID
		c.CurrentChapterID = &id
	}
	if s.CurrentListeningChapterID != nil {
		id := *s.CurrentListeningChapterID
		c.CurrentListeningChapterID = &id
	}
	return &c
}

// SavedOffset returns the persisted offset for chapterID.
// ok is false when the saved slot belongs to another chapter or is empty.
func (s *Settings) SavedOffset(chapterID string) (offset float64, ok bool) {
	if s.CurrentChapterID == nil || *s.CurrentChapterID != chapterID {
		return 0, false
	}
	return s.CurrentReadingOffset, true
}

// WithPosition returns a copy with the position slot set to (chapterID, offset).
func (s *Settings) WithPosition(chapterID string, offset float64) *Settings {
	c := s.Clone()
	c.CurrentChapterID = &chapterID
	c.CurrentReadingOffset = offset
	return c
}

// HasPosition reports whether the slot already holds exactly (chapterID, offset).
func (s *Settings) HasPosition(chapterID string, offset float64) bool {
	saved, ok := s.SavedOffset(chapterID)
	return ok && saved == offset
}

// SavedListeningPosition returns the persisted audio position for chapterID.
func (s *Settings) SavedListeningPosition(chapterID string) (ms int64, ok bool) {
	if s.CurrentListeningChapterID == nil || *s.CurrentListeningChapterID != chapterID {
		return 0, false
	}
	return s.CurrentListeningPositionMs, true
}

// WithListeningPosition returns a copy with the listening slot set to (chapterID, ms).
func (s *Settings) WithListeningPosition(chapterID string, ms int64) *Settings {
	c := s.Clone()
	c.CurrentListeningChapterID = &chapterID
	c.CurrentListeningPositionMs = ms
	return c
}

// HasListeningPosition reports whether the listening slot holds exactly (chapterID, ms).
func (s *Settings) HasListeningPosition(chapterID string, ms int64) bool {
	saved, ok := s.SavedListeningPosition(chapterID)
	return ok && saved == ms
}

// Source returns the remote source coordinates held in the record.
func (s *Settings) Source() Source {
	return Source{
		Token:       s.GitHubToken,
		RepoURL:     s.GitHubRepoURL,
		Branch:      s.GitHubRepoBranch,
		ContentPath: s.ContentFolderPath,
	}
}

// Source identifies where chapters are listed and fetched from.
type Source struct {
	Token       string
	RepoURL     string
	Branch      string
	ContentPath string
}

// Validate checks the preconditions for any network call against the source.
// An empty content path means the repository root.
func (s Source) Validate() error {
	var missing []string
	if strings.TrimSpace(s.Token) == "" {
		missing = append(missing, "githubToken")
	}
	if strings.TrimSpace(s.RepoURL) == "" {
		missing = append(missing, "githubRepoUrl")
	}
	if strings.TrimSpace(s.Branch) == "" {
		missing = append(missing, "githubRepoBranch")
	}
	if len(missing) > 0 {
		return errors.ConfigurationMissing(missing...)
	}
	return nil
}
