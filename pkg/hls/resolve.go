package hls

import (
	"net/url"
	"strings"
)

// Resolve turns a raw playlist line into an absolute URL against base.
// The first matching rule wins:
//
//  1. raw already carries a scheme: returned as parsed
//  2. raw starts with "//": base scheme + ":" + raw
//  3. raw starts with "/": base scheme and host (with port) + raw as the path
//  4. otherwise: raw relative to base's directory, base query dropped
//
// Resolve returns nil for blank input or when no rule yields a parseable URL.
func Resolve(raw string, base *url.URL) *url.URL {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	ref, err := url.Parse(raw)
	if err == nil && ref.IsAbs() {
		return ref
	}
	if base == nil || base.Scheme == "" {
		return nil
	}

	if strings.HasPrefix(raw, "//") {
		u, err := url.Parse(base.Scheme + ":" + raw)
		if err != nil || u.Host == "" {
			return nil
		}
		return u
	}

	if err != nil || base.Host == "" {
		return nil
	}

	if strings.HasPrefix(raw, "/") {
		return &url.URL{
			Scheme:   base.Scheme,
			User:     base.User,
			Host:     base.Host,
			Path:     ref.Path,
			RawPath:  ref.RawPath,
			RawQuery: ref.RawQuery,
			Fragment: ref.Fragment,
		}
	}

	return directoryOf(base).ResolveReference(ref)
}

// directoryOf returns base with its last path segment, query and fragment removed.
func directoryOf(base *url.URL) *url.URL {
	dir := *base
	dir.RawQuery = ""
	dir.ForceQuery = false
	dir.Fragment = ""
	dir.RawFragment = ""
	if i := strings.LastIndex(dir.Path, "/"); i >= 0 {
		dir.Path = dir.Path[:i+1]
	} else {
		dir.Path = "/"
	}
	dir.RawPath = ""
	return &dir
}
