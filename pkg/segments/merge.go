package segments

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/heyjunin/HLSgrab/pkg/errors"
)

const mergeBufferSize = 1 << 20

// OutputExtension guesses the merged container from file names alone: ".mp4" when an
// init segment exists or the first segment is ".m4s", otherwise ".ts".
func OutputExtension(initPath string, segmentPaths []string) string {
	if initPath != "" {
		return ".mp4"
	}
	if len(segmentPaths) > 0 && strings.EqualFold(filepath.Ext(segmentPaths[0]), ".m4s") {
		return ".mp4"
	}
	return ".ts"
}

// TotalSize returns the summed size of the given files, skipping empty paths.
func TotalSize(initPath string, segmentPaths []string) (int64, error) {
	var total int64
	for _, p := range append([]string{initPath}, segmentPaths...) {
		if p == "" {
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			return 0, err
		}
		total += info.Size()
	}
	return total, nil
}

// Merge writes the init segment, if any, then every segment in slice order into
// outputStem + OutputExtension. An existing file at that path is truncated.
// The partial output is removed on error.
func Merge(initPath string, segmentPaths []string, outputStem string) (string, error) {
	output := outputStem + OutputExtension(initPath, segmentPaths)

	out, err := os.Create(output)
	if err != nil {
		return "", errors.Wrap(err, errors.SystemError, "Failed to create merged output", errors.ErrMergeFailed)
	}

	if err := writeAll(out, initPath, segmentPaths); err != nil {
		out.Close()
		_ = os.Remove(output)
		return "", errors.Wrap(err, errors.SystemError, "Failed to merge segments", errors.ErrMergeFailed)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(output)
		return "", errors.Wrap(err, errors.SystemError, "Failed to close merged output", errors.ErrMergeFailed)
	}
	return output, nil
}

func writeAll(out *os.File, initPath string, segmentPaths []string) error {
	w := bufio.NewWriterSize(out, mergeBufferSize)
	if initPath != "" {
		if err := appendFile(w, initPath); err != nil {
			return err
		}
	}
	for _, p := range segmentPaths {
		if err := appendFile(w, p); err != nil {
			return err
		}
	}
	return w.Flush()
}

func appendFile(w io.Writer, path string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()
	_, err = io.Copy(w, in)
	return err
}
