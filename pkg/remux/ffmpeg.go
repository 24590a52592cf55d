package remux

import (
	"bufio"
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/heyjunin/HLSgrab/pkg/errors"
	"github.com/heyjunin/HLSgrab/pkg/logger"
)

var timeRegex = regexp.MustCompile(`time=(\d+):(\d+):(\d+(?:\.\d+)?)`)

// stderrTail is how many trailing ffmpeg stderr lines are kept for error details.
const stderrTail = 12

// FFmpegOptions configures the ffmpeg backed Service.
type FFmpegOptions struct {
	// Binary is the ffmpeg executable. Defaults to "ffmpeg".
	Binary string
	// ProbeBinary is the ffprobe executable. Defaults to "ffprobe".
	ProbeBinary string
	// UserAgent is passed to ffmpeg's HTTP protocol when set.
	UserAgent string
	// ExtraParams are appended before the output path.
	ExtraParams []string
	// Logger receives ffmpeg output at debug level. Defaults to logger.NewLogger().
	Logger logger.Logger
}

// FFmpeg implements Service with "ffmpeg -c copy".
type FFmpeg struct {
	options FFmpegOptions
	logger  logger.Logger

	mu      sync.Mutex
	muxers  []ContainerType
	scanned bool
}

// NewFFmpeg creates an ffmpeg backed Service.
func NewFFmpeg(options FFmpegOptions) *FFmpeg {
	if options.Binary == "" {
		options.Binary = "ffmpeg"
	}
	if options.ProbeBinary == "" {
		options.ProbeBinary = "ffprobe"
	}
	if options.Logger == nil {
		options.Logger = logger.NewLogger()
	}
	return &FFmpeg{options: options, logger: options.Logger}
}

// Check verifies that the ffmpeg binary can be executed.
func (f *FFmpeg) Check(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, f.options.Binary, "-version")
	if err := cmd.Run(); err != nil {
		return errors.Wrap(err, errors.SystemError, "FFmpeg is not available", errors.ErrRemuxUnavailable)
	}
	return nil
}

// SupportedContainerTypes lists the known containers ffmpeg can mux, in preference order.
// The muxer list does not depend on source and is cached after the first call.
func (f *FFmpeg) SupportedContainerTypes(ctx context.Context, source string) ([]ContainerType, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.scanned {
		return append([]ContainerType(nil), f.muxers...), nil
	}

	out, err := exec.CommandContext(ctx, f.options.Binary, "-hide_banner", "-muxers").Output()
	if err != nil {
		return nil, errors.Wrap(err, errors.RemuxFailed, "Failed to list FFmpeg muxers", errors.ErrRemuxUnavailable)
	}

	available := parseMuxers(out)
	for _, c := range []ContainerType{MP4, QuickTime, MPEGTS, Matroska} {
		if available[string(c)] {
			f.muxers = append(f.muxers, c)
		}
	}
	f.scanned = true

	f.logger.Debug("FFmpeg muxers detected", "remux", map[string]interface{}{
		"source":     source,
		"containers": f.muxers,
	})
	return append([]ContainerType(nil), f.muxers...), nil
}

// parseMuxers reads "ffmpeg -muxers" output and returns the set of muxer names.
func parseMuxers(out []byte) map[string]bool {
	names := map[string]bool{}
	listing := false
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "--" {
			listing = true
			continue
		}
		if !listing {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 || !strings.Contains(fields[0], "E") {
			continue
		}
		for _, name := range strings.Split(fields[1], ",") {
			names[name] = true
		}
	}
	return names
}

// buildArgs returns the ffmpeg arguments for a stream copy of source into output.
func (f *FFmpeg) buildArgs(source, output string, container ContainerType) []string {
	args := []string{"-hide_banner", "-nostdin", "-y"}
	if f.options.UserAgent != "" && isRemote(source) {
		args = append(args, "-user_agent", f.options.UserAgent)
	}
	args = append(args,
		"-i", source,
		"-map", "0",
		"-c", "copy",
	)
	if container == MP4 || container == QuickTime {
		args = append(args, "-movflags", "+faststart")
	}
	args = append(args, f.options.ExtraParams...)
	args = append(args, "-f", string(container), output)
	return args
}

func isRemote(source string) bool {
	s := strings.ToLower(source)
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// Remux stream-copies source into output. Progress is derived from ffmpeg's time=
// output against the probed duration. A run that ends by signal or reports one of
// the stop indicators returns *StoppedError; other failures are RemuxFailed.
// The partial output is removed on any failure.
func (f *FFmpeg) Remux(ctx context.Context, source, output string, container ContainerType, onProgress ProgressFunc) error {
	if err := ctx.Err(); err != nil {
		return errors.NewCancelled(err.Error())
	}

	args := f.buildArgs(source, output, container)
	f.logger.Debug("Executing FFmpeg command", "ffmpeg", map[string]interface{}{
		"command": f.options.Binary + " " + strings.Join(args, " "),
	})

	totalDuration := 0.0
	if info, err := f.Probe(ctx, source); err == nil {
		totalDuration = info.Duration
	} else {
		f.logger.Debug("Duration probe failed, progress will jump to completion", "remux", map[string]interface{}{
			"error": err.Error(),
		})
	}

	cmd := exec.CommandContext(ctx, f.options.Binary, args...)
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = 5 * time.Second

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return errors.Wrap(err, errors.RemuxFailed, "Failed to create stderr pipe", errors.ErrRemuxFailed)
	}
	if err := cmd.Start(); err != nil {
		return errors.Wrap(err, errors.RemuxFailed, "Failed to start FFmpeg", errors.ErrRemuxUnavailable)
	}

	var tail []string
	done := make(chan struct{})
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(stderr)
		scanner.Split(scanLinesOrCR)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			f.logger.Debug(line, "ffmpeg", nil)

			tail = append(tail, line)
			if len(tail) > stderrTail {
				tail = tail[1:]
			}

			if onProgress != nil && totalDuration > 0 {
				if current, ok := parseProgressTime(line); ok {
					fraction := current / totalDuration
					if fraction > 0.99 {
						fraction = 0.99
					}
					onProgress(fraction)
				}
			}
		}
	}()

	<-done
	waitErr := cmd.Wait()
	if waitErr == nil {
		if onProgress != nil {
			onProgress(1)
		}
		return nil
	}

	_ = os.Remove(output)
	details := strings.Join(tail, "\n")

	if ctx.Err() != nil {
		return errors.NewCancelled(ctx.Err().Error())
	}

	var exitErr *exec.ExitError
	signalled := stderrors.As(waitErr, &exitErr) && exitErr.ProcessState != nil && exitErr.ProcessState.ExitCode() == -1
	if signalled || hasStopIndicator(details) {
		return &StoppedError{Reason: lastLine(tail, waitErr), Err: waitErr}
	}

	se := errors.Wrap(waitErr, errors.RemuxFailed, "FFmpeg command failed", errors.ErrRemuxFailed)
	if details != "" {
		se.Details = fmt.Sprintf("%s: %s", waitErr, details)
	}
	return se
}

func lastLine(tail []string, fallback error) string {
	if len(tail) > 0 {
		return tail[len(tail)-1]
	}
	return fallback.Error()
}

// parseProgressTime extracts the seconds from an ffmpeg "time=HH:MM:SS.xx" status line.
func parseProgressTime(line string) (float64, bool) {
	matches := timeRegex.FindStringSubmatch(line)
	if len(matches) < 4 {
		return 0, false
	}
	hours, _ := strconv.Atoi(matches[1])
	minutes, _ := strconv.Atoi(matches[2])
	seconds, _ := strconv.ParseFloat(matches[3], 64)
	return float64(hours*3600) + float64(minutes*60) + seconds, true
}

// scanLinesOrCR splits on \n or \r, since ffmpeg redraws its status line with \r.
func scanLinesOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
