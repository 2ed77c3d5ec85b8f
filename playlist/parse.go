package playlist

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/cimena/cinecast/internal/errors"
)

var (
	videoIDRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

	// last-resort extraction for inputs url.Parse cannot make sense of
	embeddedIDRegex = regexp.MustCompile(`(?:v=|/embed/|youtu\.be/)([A-Za-z0-9_-]{11})`)
)

// ParseVideoID extracts the 11-char video id from a raw id, a short link, a
// watch/live/embed URL, or anything the fallback regex can find an id in.
func ParseVideoID(input string) (string, error) {
	input = strings.TrimSpace(input)

	if videoIDRegex.MatchString(input) {
		return input, nil
	}

	if u, err := url.Parse(input); err == nil && u.Host != "" {
		if id := idFromURL(u); videoIDRegex.MatchString(id) {
			return id, nil
		}
	}

	if m := embeddedIDRegex.FindStringSubmatch(input); m != nil {
		return m[1], nil
	}

	return "", errors.Newf(ErrInvalidLink, "no video id in %q", input)
}

func idFromURL(u *url.URL) string {
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")

	if host == "youtu.be" {
		return firstPathSegment(u.Path)
	}

	if v := u.Query().Get("v"); v != "" {
		return v
	}

	for _, prefix := range []string{"/live/", "/embed/"} {
		if rest, ok := strings.CutPrefix(u.Path, prefix); ok {
			return firstPathSegment(rest)
		}
	}

	return ""
}

func firstPathSegment(path string) string {
	path = strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return path
}
