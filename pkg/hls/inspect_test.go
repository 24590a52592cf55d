package hls

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapFetcher map[string]string

func (m mapFetcher) Fetch(_ context.Context, uri string) (string, error) {
	if text, ok := m[uri]; ok {
		return text, nil
	}
	return "", stderrors.New("not found: " + uri)
}

func TestQualityLabel(t *testing.T) {
	tests := []struct {
		resolution string
		bandwidth  uint32
		want       string
	}{
		{"3840x2160", 0, "2160p"},
		{"1920x1080", 0, "1080p"},
		{"1080x1920", 0, "1080p"},
		{"1280x720", 0, "720p"},
		{"854x480", 0, "480p"},
		{"640x360", 0, "360p"},
		{"426x240", 0, "240p"},
		{"256x144", 0, "144p"},
		{"", 2500000, "2500k"},
		{"bogus", 0, "unknown"},
	}
	for _, tt := range tests {
		if got := QualityLabel(tt.resolution, tt.bandwidth); got != tt.want {
			t.Errorf("QualityLabel(%q, %d) = %q, want %q", tt.resolution, tt.bandwidth, got, tt.want)
		}
	}
}

func TestParseResolution(t *testing.T) {
	w, h, ok := ParseResolution("1280X720")
	assert.True(t, ok)
	assert.Equal(t, 1280, w)
	assert.Equal(t, 720, h)

	_, _, ok = ParseResolution("0x720")
	assert.False(t, ok)
}

func TestDescribeMaster(t *testing.T) {
	doc := Parse(masterText, mustParse(t, "https://cdn.example.com/show/master.m3u8"))
	s := Describe(doc)

	assert.Equal(t, "master", s.Kind)
	require.Len(t, s.Variants, 2)
	assert.Equal(t, "https://cdn.example.com/show/v_hd.m3u8", s.Variants[0].URI)
	assert.Equal(t, "1080p", s.Variants[0].Quality)
	assert.Equal(t, uint32(5000000), s.Variants[0].Bandwidth)
	assert.True(t, s.Variants[0].PreferHD)
	assert.Equal(t, "360p", s.Variants[1].Quality)
}

func TestDescribeMedia(t *testing.T) {
	doc := Parse(mediaWithInit(3), mustParse(t, "https://cdn.example.com/show/v_hd.m3u8"))
	s := Describe(doc)

	assert.Equal(t, "media", s.Kind)
	assert.Equal(t, 3, s.Segments)
	assert.Equal(t, "https://cdn.example.com/show/init.mp4", s.InitSegment)
	assert.InDelta(t, 12.0, s.Duration, 0.001)
	assert.InDelta(t, 4.0, s.TargetDuration, 0.001)
}

func TestLoad(t *testing.T) {
	f := mapFetcher{"https://h.example.com/master.m3u8": masterText}

	doc, err := Load(context.Background(), f, mustParse(t, "https://h.example.com/master.m3u8"))
	require.NoError(t, err)
	assert.Equal(t, Master, doc.Kind())
	assert.Equal(t, "https://h.example.com/master.m3u8", doc.BaseURI().String())

	_, err = Load(context.Background(), f, mustParse(t, "https://h.example.com/missing.m3u8"))
	assert.Error(t, err)
}
