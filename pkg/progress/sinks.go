package progress

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/heyjunin/HLSgrab/pkg/logger"
	"github.com/schollz/progressbar/v3"
)

// barScale is the resolution of the console bar; fractions are drawn in thousandths.
const barScale = 1000

// BarSink renders events as a console progress bar.
type BarSink struct {
	bar   *progressbar.ProgressBar
	stage string
}

// NewBarSink creates a bar writing to w (os.Stderr when nil) with the given initial description.
func NewBarSink(w io.Writer, description string) *BarSink {
	if w == nil {
		w = os.Stderr
	}
	bar := progressbar.NewOptions64(barScale,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
	return &BarSink{bar: bar}
}

// Handle implements Sink.
func (b *BarSink) Handle(e Event) {
	if b.bar == nil {
		return
	}
	if e.Stage != "" && e.Stage != b.stage {
		b.stage = e.Stage
		b.bar.Describe(e.Stage)
	}
	_ = b.bar.Set64(int64(e.Fraction * barScale))

	if e.Status.Terminal() {
		if e.Status == StatusCompleted {
			_ = b.bar.Finish()
		} else {
			_ = b.bar.Exit()
		}
		b.bar = nil
	}
}

// FileSink writes the latest event to a file on every update, either as a bare
// percentage ("text") or as the full JSON event ("json").
type FileSink struct {
	path   string
	format string
}

// NewFileSink creates a progress file sink. Unknown formats fall back to "text".
func NewFileSink(path, format string) *FileSink {
	if format != "json" && format != "text" {
		logger.Warn("Invalid progress file format specified, defaulting to 'text'", "progress", map[string]interface{}{
			"format": format,
		})
		format = "text"
	}
	return &FileSink{path: path, format: format}
}

// Handle implements Sink.
func (f *FileSink) Handle(e Event) {
	if f.path == "" {
		return
	}

	var content []byte
	switch f.format {
	case "json":
		var err error
		content, err = json.MarshalIndent(e, "", "  ")
		if err != nil {
			logger.Warn("Failed to marshal progress event to JSON", "progress", map[string]interface{}{
				"path":  f.path,
				"error": err.Error(),
			})
			return
		}
	default:
		content = []byte(fmt.Sprintf("%.2f", e.Percentage))
	}

	if err := os.WriteFile(f.path, content, 0644); err != nil {
		logger.Warn("Failed to write progress file", "progress", map[string]interface{}{
			"path":   f.path,
			"format": f.format,
			"error":  err.Error(),
		})
	}
}

// FuncSink adapts a plain function to the Sink interface.
type FuncSink func(Event)

// Handle implements Sink.
func (fn FuncSink) Handle(e Event) { fn(e) }
