package hls

import (
	"cmp"
	"iter"
	"net/url"
	"slices"
)

// Candidate is a resolved variant in probe order.
type Candidate struct {
	Ref VariantReference
	URI *url.URL
}

// compareVariants orders HD-preferred references first, then by raw URI.
func compareVariants(a, b VariantReference) int {
	if ha, hb := a.PreferredHD(), b.PreferredHD(); ha != hb {
		if ha {
			return -1
		}
		return 1
	}
	return cmp.Compare(a.URI, b.URI)
}

// OrderedCandidates resolves every variant of doc, drops the unresolvable ones and
// sorts the rest stably: URIs containing "hd.m3u8" first, then lexicographically.
// A document with no variants yields itself as the only candidate.
func OrderedCandidates(doc *Document) []Candidate {
	refs := doc.Variants()
	if len(refs) == 0 {
		base := doc.BaseURI()
		if base == nil {
			return nil
		}
		return []Candidate{{Ref: VariantReference{URI: base.String()}, URI: base}}
	}

	candidates := make([]Candidate, 0, len(refs))
	for _, ref := range refs {
		if u := Resolve(ref.URI, doc.base); u != nil {
			candidates = append(candidates, Candidate{Ref: ref, URI: u})
		}
	}
	slices.SortStableFunc(candidates, func(a, b Candidate) int {
		return compareVariants(a.Ref, b.Ref)
	})
	return candidates
}

// Candidates yields the probe order of OrderedCandidates lazily, so callers can stop
// at the first variant that loads.
func Candidates(doc *Document) iter.Seq[*url.URL] {
	return func(yield func(*url.URL) bool) {
		for _, c := range OrderedCandidates(doc) {
			if !yield(c.URI) {
				return
			}
		}
	}
}
