package hls

import (
	"strings"

	"github.com/grafov/m3u8"
	"github.com/heyjunin/HLSgrab/pkg/logger"
)

// VariantInfo describes one variant of a master playlist.
type VariantInfo struct {
	URI        string `json:"uri"`
	Bandwidth  uint32 `json:"bandwidth,omitempty"`
	Resolution string `json:"resolution,omitempty"`
	Codecs     string `json:"codecs,omitempty"`
	Quality    string `json:"quality"`
	PreferHD   bool   `json:"preferHD"`
}

// Summary is a human oriented description of a playlist.
type Summary struct {
	Kind string `json:"kind"`
	URI  string `json:"uri"`
	// Variants are listed in probe order.
	Variants []VariantInfo `json:"variants,omitempty"`
	// Segments is the number of segments the downloader would fetch.
	Segments       int     `json:"segments,omitempty"`
	TargetDuration float64 `json:"targetDuration,omitempty"`
	Duration       float64 `json:"duration,omitempty"`
	InitSegment    string  `json:"initSegment,omitempty"`
}

// Describe summarizes doc. Classification, probe order and segment count come from
// this package's parser; bandwidth, resolution, codecs and durations are taken from
// a lenient m3u8 decode when it succeeds.
func Describe(doc *Document) *Summary {
	s := &Summary{Kind: doc.Kind().String()}
	if base := doc.BaseURI(); base != nil {
		s.URI = base.String()
	}

	playlist, listType, err := m3u8.DecodeFrom(strings.NewReader(doc.Text()), false)
	if err != nil {
		logger.Debug("Lenient m3u8 decode failed", "hls", map[string]interface{}{
			"uri":   s.URI,
			"error": err.Error(),
		})
		playlist = nil
	}

	if doc.Kind() == Master {
		params := map[string]m3u8.VariantParams{}
		if master, ok := playlist.(*m3u8.MasterPlaylist); ok && listType == m3u8.MASTER {
			for _, v := range master.Variants {
				if v != nil {
					params[strings.TrimSpace(v.URI)] = v.VariantParams
				}
			}
		}
		for _, c := range OrderedCandidates(doc) {
			p := params[c.Ref.URI]
			s.Variants = append(s.Variants, VariantInfo{
				URI:        c.URI.String(),
				Bandwidth:  p.Bandwidth,
				Resolution: p.Resolution,
				Codecs:     p.Codecs,
				Quality:    QualityLabel(p.Resolution, p.Bandwidth),
				PreferHD:   c.Ref.PreferredHD(),
			})
		}
		return s
	}

	if segments, err := doc.Segments(); err == nil {
		s.Segments = len(segments)
	}
	if u := doc.InitSegment(); u != nil {
		s.InitSegment = u.String()
	}
	if media, ok := playlist.(*m3u8.MediaPlaylist); ok && listType == m3u8.MEDIA {
		s.TargetDuration = media.TargetDuration
		for _, seg := range media.Segments {
			if seg != nil {
				s.Duration += seg.Duration
			}
		}
	}
	return s
}
