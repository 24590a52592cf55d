package hls

import (
	"fmt"
	"strconv"
	"strings"
)

// qualityLadder maps the shorter picture dimension to a conventional label, largest first.
var qualityLadder = []struct {
	name   string
	minDim int
}{
	{"2160p", 2160},
	{"1440p", 1440},
	{"1080p", 1080},
	{"720p", 720},
	{"480p", 480},
	{"360p", 360},
	{"240p", 240},
}

// ParseResolution parses a RESOLUTION attribute such as "1920x1080".
func ParseResolution(s string) (width, height int, ok bool) {
	w, h, found := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !found {
		return 0, 0, false
	}
	width, errW := strconv.Atoi(w)
	height, errH := strconv.Atoi(h)
	if errW != nil || errH != nil || width <= 0 || height <= 0 {
		return 0, 0, false
	}
	return width, height, true
}

// QualityLabel names a variant by its resolution ("720p"), using the shorter side so
// vertical video gets the same label as its landscape counterpart. Without a usable
// resolution it falls back to the bandwidth in kb/s, or "unknown".
func QualityLabel(resolution string, bandwidth uint32) string {
	if w, h, ok := ParseResolution(resolution); ok {
		short := min(w, h)
		for _, q := range qualityLadder {
			if short >= q.minDim {
				return q.name
			}
		}
		return fmt.Sprintf("%dp", short)
	}
	if bandwidth > 0 {
		return fmt.Sprintf("%dk", bandwidth/1000)
	}
	return "unknown"
}
