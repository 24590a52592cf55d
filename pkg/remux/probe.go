package remux

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
)

// MediaInfo holds what ffprobe reports about a source.
type MediaInfo struct {
	Width      int     `json:"width,omitempty"`
	Height     int     `json:"height,omitempty"`
	Duration   float64 `json:"duration,omitempty"`
	VideoCodec string  `json:"videoCodec,omitempty"`
	AudioCodec string  `json:"audioCodec,omitempty"`
	FormatName string  `json:"formatName,omitempty"`
}

// FFprobeOutput represents the JSON output of ffprobe -show_format -show_streams.
type FFprobeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width,omitempty"`
		Height    int    `json:"height,omitempty"`
	} `json:"streams"`
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
	} `json:"format"`
}

// Probe runs ffprobe on source and returns its stream summary.
func (f *FFmpeg) Probe(ctx context.Context, source string) (*MediaInfo, error) {
	args := []string{"-v", "quiet", "-print_format", "json", "-show_format", "-show_streams"}
	if f.options.UserAgent != "" && isRemote(source) {
		args = append(args, "-user_agent", f.options.UserAgent)
	}
	args = append(args, source)

	output, err := exec.CommandContext(ctx, f.options.ProbeBinary, args...).Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}
	return parseProbeOutput(output)
}

func parseProbeOutput(output []byte) (*MediaInfo, error) {
	var probe FFprobeOutput
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	info := &MediaInfo{FormatName: probe.Format.FormatName}
	for _, stream := range probe.Streams {
		switch stream.CodecType {
		case "video":
			if info.VideoCodec == "" {
				info.VideoCodec = stream.CodecName
				info.Width = stream.Width
				info.Height = stream.Height
			}
		case "audio":
			if info.AudioCodec == "" {
				info.AudioCodec = stream.CodecName
			}
		}
	}

	if probe.Format.Duration != "" {
		if d, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
			info.Duration = d
		}
	}
	if info.VideoCodec == "" && info.AudioCodec == "" {
		return nil, fmt.Errorf("no audio or video stream found")
	}
	return info, nil
}
