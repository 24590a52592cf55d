// Package hls parses HLS playlists, resolves their URIs and orders variant candidates.
package hls

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/heyjunin/HLSgrab/pkg/errors"
)

const (
	streamInfTag = "#EXT-X-STREAM-INF"
	mapTag       = "#EXT-X-MAP"
	manifestExt  = ".m3u8"
)

var mapURIRegex = regexp.MustCompile(`URI="([^"]*)"`)

// Kind classifies a playlist.
type Kind int

const (
	// Media lists the segments of one stream.
	Media Kind = iota
	// Master lists variant playlists.
	Master
)

func (k Kind) String() string {
	if k == Master {
		return "master"
	}
	return "media"
}

// VariantReference is a variant line of a master playlist, as written.
type VariantReference struct {
	URI string
}

// PreferredHD reports whether the URI contains "hd.m3u8", case-insensitively.
func (v VariantReference) PreferredHD() bool {
	return strings.Contains(strings.ToLower(v.URI), "hd"+manifestExt)
}

// SegmentReference is one media segment. Index is its 0-based position and defines output order.
type SegmentReference struct {
	Index int
	URI   *url.URL
}

// Document is a parsed playlist. It is immutable; accessors return copies.
type Document struct {
	kind     Kind
	base     *url.URL
	text     string
	lines    []string
	variants []VariantReference
}

// Parse splits text into trimmed non-empty lines and classifies it.
// Any line starting with #EXT-X-STREAM-INF makes the document a master playlist,
// even if it also carries media syntax.
func Parse(text string, base *url.URL) *Document {
	d := &Document{text: text, kind: Media}
	if base != nil {
		b := *base
		d.base = &b
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			d.lines = append(d.lines, line)
		}
	}

	pending := false
	for _, line := range d.lines {
		if strings.HasPrefix(line, streamInfTag) {
			d.kind = Master
			pending = true
			continue
		}
		if pending && !isComment(line) {
			d.variants = append(d.variants, VariantReference{URI: line})
			pending = false
		}
	}
	return d
}

func isComment(line string) bool {
	return strings.HasPrefix(line, "#")
}

// Kind returns the document's classification.
func (d *Document) Kind() Kind { return d.kind }

// Text returns the playlist text exactly as fetched.
func (d *Document) Text() string { return d.text }

// BaseURI returns a copy of the URL the document was fetched from.
func (d *Document) BaseURI() *url.URL {
	if d.base == nil {
		return nil
	}
	b := *d.base
	return &b
}

// Lines returns the trimmed non-empty lines.
func (d *Document) Lines() []string {
	return append([]string(nil), d.lines...)
}

// Variants returns the variant references in document order.
func (d *Document) Variants() []VariantReference {
	return append([]VariantReference(nil), d.variants...)
}

// Segments returns the media segments. Every non-comment line that does not name
// another manifest is a segment; lines the resolver rejects are skipped without
// taking an index. It fails with EmptyMediaPlaylist when nothing remains.
func (d *Document) Segments() ([]SegmentReference, error) {
	var segments []SegmentReference
	for _, line := range d.lines {
		if isComment(line) || strings.Contains(strings.ToLower(line), manifestExt) {
			continue
		}
		u := Resolve(line, d.base)
		if u == nil {
			continue
		}
		segments = append(segments, SegmentReference{Index: len(segments), URI: u})
	}
	if len(segments) == 0 {
		return nil, errors.New(errors.EmptyMediaPlaylist, errors.GetErrorMessage(errors.ErrEmptyMediaPlaylist),
			d.baseString(), errors.ErrEmptyMediaPlaylist)
	}
	return segments, nil
}

// InitSegment returns the URI of the first #EXT-X-MAP directive with a quoted URI, or nil.
func (d *Document) InitSegment() *url.URL {
	for _, line := range d.lines {
		if !strings.HasPrefix(line, mapTag) {
			continue
		}
		m := mapURIRegex.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		return Resolve(m[1], d.base)
	}
	return nil
}

func (d *Document) baseString() string {
	if d.base == nil {
		return ""
	}
	return d.base.String()
}
