package content

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/listenupapp/listenup-reader/internal/domain"
	"github.com/listenupapp/listenup-reader/internal/errors"
)

const acceptGitHubV3 = "application/vnd.github.v3+json"

// rawEntry is one item of the GitHub contents API directory listing.
type rawEntry struct {
	Type string `json:"type"`
	Name string `json:"name"`
	Path string `json:"path"`
}

// ListChapters returns the chapter files directly under the source's content path,
// in the order the API returns them. Directories and other file types are skipped.
func (c *Client) ListChapters(ctx context.Context, src domain.Source) ([]domain.ChapterSummary, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	owner, repo, err := ParseRepoURL(src.RepoURL)
	if err != nil {
		return nil, err
	}

	u := c.cfg.APIHost + "/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(repo) + "/contents"
	if p := escapePath(src.ContentPath); p != "" {
		u += "/" + p
	}
	u += "?" + url.Values{"ref": {src.Branch}}.Encode()

	key := "list\x00" + src.Token + "\x00" + u
	body, err := c.get(ctx, hostAPI, key, u, authHeader(src.Token, acceptGitHubV3))
	if err != nil {
		c.logger.Error("Failed to list chapters",
			"owner", owner,
			"repo", repo,
			"path", src.ContentPath,
			"error", err,
		)
		return nil, err
	}

	var entries []rawEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		c.logger.Error("Unexpected chapter listing payload", "owner", owner, "repo", repo, "error", err)
		return nil, errors.Fetch(errors.FetchUpstream, "content path is not a directory").WithCause(err)
	}

	chapters := make([]domain.ChapterSummary, 0, len(entries))
	for _, e := range entries {
		if e.Type != "file" || !strings.HasSuffix(e.Name, c.cfg.Extension) {
			continue
		}
		chapters = append(chapters, domain.ChapterSummary{
			ID:    e.Path,
			Title: strings.TrimSuffix(e.Name, c.cfg.Extension),
		})
	}

	c.logger.Debug("chapters listed", "owner", owner, "repo", repo, "count", len(chapters))
	return chapters, nil
}

// FetchChapter returns the raw text of the chapter at chapterID on the source's branch.
func (c *Client) FetchChapter(ctx context.Context, src domain.Source, chapterID string) (string, error) {
	if err := src.Validate(); err != nil {
		return "", err
	}
	if strings.TrimSpace(chapterID) == "" {
		return "", errors.Validation("chapter id is required")
	}
	owner, repo, err := ParseRepoURL(src.RepoURL)
	if err != nil {
		return "", err
	}

	u := c.cfg.RawHost + "/" + url.PathEscape(owner) + "/" + url.PathEscape(repo) + "/" +
		url.PathEscape(src.Branch) + "/" + escapePath(chapterID)

	key := "raw\x00" + src.Token + "\x00" + u
	body, err := c.get(ctx, hostRaw, key, u, authHeader(src.Token, ""))
	if err != nil {
		c.logger.Error("Failed to fetch chapter",
			"owner", owner,
			"repo", repo,
			"chapter_id", chapterID,
			"error", err,
		)
		return "", err
	}

	return string(body), nil
}

// ParseRepoURL extracts owner and repository from a repository URL,
// taking the last two path segments.
func ParseRepoURL(repoURL string) (owner, repo string, err error) {
	u, err := url.Parse(strings.TrimSpace(repoURL))
	if err != nil {
		return "", "", errors.Validation("invalid repository url").WithCause(err)
	}

	var segments []string
	for s := range strings.SplitSeq(u.Path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	if len(segments) < 2 {
		return "", "", errors.Validation("repository url must end in owner/repo")
	}

	owner = segments[len(segments)-2]
	repo = strings.TrimSuffix(segments[len(segments)-1], ".git")
	return owner, repo, nil
}

// escapePath escapes each segment of a slash-separated repository path.
func escapePath(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
