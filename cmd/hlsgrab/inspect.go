package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/heyjunin/HLSgrab/pkg/acquire"
	"github.com/heyjunin/HLSgrab/pkg/downloader"
	"github.com/heyjunin/HLSgrab/pkg/hls"
	"github.com/heyjunin/HLSgrab/pkg/logger"
	"github.com/heyjunin/HLSgrab/pkg/remux"
	"github.com/spf13/cobra"
)

var (
	inspectJSON  bool
	inspectProbe bool
)

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <url>",
		Short: "Show the variants or segments of a playlist",
		Long: `inspect fetches a playlist and prints what hlsgrab would do with it: the variants of a
master playlist in the order they are probed, or the segment count, target duration and
init segment of a media playlist.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		Run:           runInspect,
	}
	cmd.Flags().BoolVar(&inspectJSON, "json", false, "Print the summary as JSON")
	cmd.Flags().BoolVar(&inspectProbe, "probe", false, "Run ffprobe on the first candidate stream")
	cmd.Flags().StringVar(&ffprobeBinary, "ffprobe", "ffprobe", "Path to ffprobe binary")
	return cmd
}

func runInspect(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		fail(err)
		return
	}
	ctx, cancel := signalContext()
	defer cancel()

	u, err := acquire.NormalizeInput(args[0])
	if err != nil {
		fail(err)
		return
	}

	client := downloader.New(cfg.DownloaderOptions(nil))
	doc, err := hls.Load(ctx, client, u)
	if err != nil {
		fail(err)
		return
	}
	summary := hls.Describe(doc)

	var info *remux.MediaInfo
	if inspectProbe {
		for candidate := range hls.Candidates(doc) {
			ff := remux.NewFFmpeg(remux.FFmpegOptions{ProbeBinary: cfg.FFprobePath, UserAgent: cfg.UserAgent})
			info, err = ff.Probe(ctx, candidate.String())
			if err != nil {
				logger.Warn("Probe failed", "main", map[string]interface{}{
					"url":   candidate.String(),
					"error": err.Error(),
				})
			}
			break
		}
	}

	if inspectJSON {
		out := struct {
			*hls.Summary
			Probe *remux.MediaInfo `json:"probe,omitempty"`
		}{summary, info}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			fail(err)
			return
		}
		fmt.Println(string(data))
		return
	}

	printSummary(summary, info)
}

func printSummary(s *hls.Summary, info *remux.MediaInfo) {
	fmt.Printf("Playlist: %s\n", s.URI)
	fmt.Printf("Type:     %s\n", s.Kind)

	if len(s.Variants) > 0 {
		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "#\tQUALITY\tBANDWIDTH\tRESOLUTION\tURI")
		for i, v := range s.Variants {
			bandwidth := "-"
			if v.Bandwidth > 0 {
				bandwidth = fmt.Sprintf("%d", v.Bandwidth)
			}
			resolution := v.Resolution
			if resolution == "" {
				resolution = "-"
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", i+1, v.Quality, bandwidth, resolution, v.URI)
		}
		w.Flush()
	} else {
		fmt.Printf("Segments: %d\n", s.Segments)
		if s.TargetDuration > 0 {
			fmt.Printf("Target:   %s\n", time.Duration(s.TargetDuration*float64(time.Second)))
		}
		if s.Duration > 0 {
			fmt.Printf("Duration: %s\n", time.Duration(s.Duration*float64(time.Second)).Round(time.Second))
		}
		if s.InitSegment != "" {
			fmt.Printf("Init:     %s\n", s.InitSegment)
		}
	}

	if info != nil {
		fmt.Println()
		fmt.Printf("Probe:    %s, %dx%d, video %s, audio %s\n",
			info.FormatName, info.Width, info.Height, orDash(info.VideoCodec), orDash(info.AudioCodec))
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
