package acquire

import (
	"net/url"
	"path"
	"strings"

	"github.com/heyjunin/HLSgrab/pkg/errors"
	"github.com/heyjunin/HLSgrab/pkg/saver"
)

// defaultName is used when the media URL has no usable file name.
const defaultName = "video"

// NormalizeInput turns user input into an absolute http(s) URL: surrounding whitespace is
// trimmed and "https://" is prefixed unless the input already starts with http:// or https://.
// The result must have a scheme and a host, otherwise InvalidInputURL is returned.
func NormalizeInput(raw string) (*url.URL, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, errors.New(errors.InvalidInputURL, errors.GetErrorMessage(errors.ErrInputEmpty), "", errors.ErrInputEmpty)
	}

	lower := strings.ToLower(s)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		s = "https://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return nil, errors.Wrap(err, errors.InvalidInputURL, errors.GetErrorMessage(errors.ErrInputUnparseable), errors.ErrInputUnparseable)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.New(errors.InvalidInputURL, errors.GetErrorMessage(errors.ErrInputMissingHost), s, errors.ErrInputMissingHost)
	}
	return u, nil
}

// SuggestedName derives an output file name (without extension) from the media
// playlist URL: its last path segment without extension, sanitized, or "video".
func SuggestedName(media *url.URL) string {
	if media == nil {
		return defaultName
	}
	base := path.Base(media.Path)
	if unescaped, err := url.PathUnescape(base); err == nil {
		base = unescaped
	}
	base = strings.TrimSuffix(base, path.Ext(base))
	name := saver.SanitizeFileName(base)
	if name == "" || name == "." || name == "_" {
		return defaultName
	}
	return name
}
