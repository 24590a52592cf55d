package remux

import (
	"fmt"
	"testing"

	"github.com/heyjunin/HLSgrab/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type platformError struct {
	domain string
	code   int
}

func (e platformError) Error() string  { return fmt.Sprintf("%s %d", e.domain, e.code) }
func (e platformError) Domain() string { return e.domain }
func (e platformError) Code() int      { return e.code }

func TestContainerExtension(t *testing.T) {
	assert.Equal(t, ".mp4", MP4.Extension())
	assert.Equal(t, ".mov", QuickTime.Extension())
	assert.Equal(t, ".ts", MPEGTS.Extension())
	assert.Equal(t, ".mkv", Matroska.Extension())
	assert.Equal(t, ".webm", ContainerType("webm").Extension())
	assert.Equal(t, "", ContainerType("").Extension())
}

func TestChooseContainer(t *testing.T) {
	tests := []struct {
		name      string
		supported []ContainerType
		want      ContainerType
		ok        bool
	}{
		{"mp4 wins", []ContainerType{MPEGTS, QuickTime, MP4}, MP4, true},
		{"quicktime second", []ContainerType{Matroska, QuickTime}, QuickTime, true},
		{"first otherwise", []ContainerType{Matroska, MPEGTS}, Matroska, true},
		{"none", nil, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ChooseContainer(tt.supported)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsOperationStopped(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"typed", &StoppedError{Reason: "interrupted"}, true},
		{"wrapped typed", fmt.Errorf("remux: %w", &StoppedError{}), true},
		{"domain pair", platformError{StoppedDomain, StoppedCode}, true},
		{"other code in domain", platformError{StoppedDomain, -11800}, false},
		{"text operation stopped", fmt.Errorf("Operation Stopped"), true},
		{"text immediate exit", fmt.Errorf("Immediate exit requested"), true},
		{"text signal", fmt.Errorf("Exiting normally, received signal 2."), true},
		{"text reset", fmt.Errorf("read: Connection reset by peer"), true},
		{"structured with indicator in details", errors.New(errors.RemuxFailed, "FFmpeg command failed", "connection reset by peer", 1), true},
		{"content error", fmt.Errorf("Invalid data found when processing input"), false},
		{"permission error", fmt.Errorf("Permission denied"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsOperationStopped(tt.err))
		})
	}
}

func TestStoppedErrorMessage(t *testing.T) {
	err := &StoppedError{Domain: StoppedDomain, Code: StoppedCode, Reason: "interrupted"}
	assert.Equal(t, "remux operation stopped (AVFoundationErrorDomain -11838): interrupted", err.Error())
}

func TestParseMuxers(t *testing.T) {
	out := []byte(`Muxers:
 D. = Demuxing supported
 .E = Muxing supported
 --
  E 3g2             3GP2 (3GPP2 file format)
  E matroska        Matroska
  E mov             QuickTime / MOV
  E mp4             MP4 (MPEG-4 Part 14)
 D  hls             Apple HTTP Live Streaming
`)
	names := parseMuxers(out)
	assert.True(t, names["mp4"])
	assert.True(t, names["mov"])
	assert.True(t, names["matroska"])
	assert.False(t, names["hls"], "demux-only entries are not muxers")
	assert.False(t, names["mpegts"])
	assert.False(t, names["Muxing"], "header lines must be ignored")
}

func TestParseProgressTime(t *testing.T) {
	secs, ok := parseProgressTime("frame=  100 fps= 25 q=-1.0 size=  1024kB time=01:02:03.50 bitrate= 100kbits/s")
	require.True(t, ok)
	assert.InDelta(t, 3723.5, secs, 0.001)

	_, ok = parseProgressTime("Stream mapping:")
	assert.False(t, ok)
}

func TestBuildArgs(t *testing.T) {
	f := NewFFmpeg(FFmpegOptions{UserAgent: "agent/1", ExtraParams: []string{"-loglevel", "info"}})
	args := f.buildArgs("https://h.example.com/v.m3u8", "/tmp/out.mp4", MP4)

	assert.Equal(t, []string{
		"-hide_banner", "-nostdin", "-y",
		"-user_agent", "agent/1",
		"-i", "https://h.example.com/v.m3u8",
		"-map", "0",
		"-c", "copy",
		"-movflags", "+faststart",
		"-loglevel", "info",
		"-f", "mp4", "/tmp/out.mp4",
	}, args)

	ts := f.buildArgs("/local/v.m3u8", "/tmp/out.ts", MPEGTS)
	assert.NotContains(t, ts, "-movflags")
	assert.NotContains(t, ts, "-user_agent")
}

func TestParseProbeOutput(t *testing.T) {
	info, err := parseProbeOutput([]byte(`{"streams":[{"codec_type":"audio","codec_name":"aac"},{"codec_type":"video","codec_name":"h264","width":1280,"height":720}],"format":{"format_name":"hls","duration":"42.5"}}`))
	require.NoError(t, err)
	assert.Equal(t, 1280, info.Width)
	assert.Equal(t, 720, info.Height)
	assert.Equal(t, "h264", info.VideoCodec)
	assert.Equal(t, "aac", info.AudioCodec)
	assert.InDelta(t, 42.5, info.Duration, 0.001)

	_, err = parseProbeOutput([]byte(`{"streams":[],"format":{}}`))
	assert.Error(t, err)

	_, err = parseProbeOutput([]byte(`not json`))
	assert.Error(t, err)
}
