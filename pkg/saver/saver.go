// Package saver moves a finished job's temporary file to its permanent location.
package saver

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/heyjunin/HLSgrab/pkg/errors"
	"github.com/heyjunin/HLSgrab/pkg/logger"
)

var (
	invalidChars  = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	trailingDots  = regexp.MustCompile(`\.+$`)
	multipleSpace = regexp.MustCompile(`\s+`)
)

// maxCollisionSuffix bounds the "name (n).ext" search.
const maxCollisionSuffix = 10000

// SanitizeFileName replaces characters that are invalid in file names on common
// platforms with "_", collapses whitespace (tabs and newlines included) and drops
// trailing dots.
//
//	SanitizeFileName("Show: Part 1/2")  // "Show_ Part 1_2"
func SanitizeFileName(name string) string {
	name = multipleSpace.ReplaceAllString(name, " ")
	name = strings.TrimSpace(name)
	name = invalidChars.ReplaceAllString(name, "_")
	name = trailingDots.ReplaceAllString(name, "")
	return strings.TrimRight(name, " ")
}

// Save moves src into dir under name and returns the final path. When overwrite is
// false and the name is taken, "name (n).ext" with the smallest free n is used.
// The move is a rename when possible, otherwise a copy followed by removal of src.
func Save(ctx context.Context, src, dir, name string, overwrite bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errors.NewCancelled(err.Error())
	}

	name = SanitizeFileName(name)
	if name == "" {
		name = filepath.Base(src)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.Wrap(err, errors.SystemError, "Failed to create output directory", errors.ErrSaveFailed)
	}

	dest := filepath.Join(dir, name)
	if !overwrite {
		var err error
		dest, err = uniquePath(dir, name)
		if err != nil {
			return "", err
		}
	}

	if err := moveFile(src, dest); err != nil {
		return "", errors.Wrap(err, errors.SystemError, errors.GetErrorMessage(errors.ErrSaveFailed), errors.ErrSaveFailed)
	}

	logger.Info("Output saved", "saver", map[string]interface{}{
		"path": dest,
	})
	return dest, nil
}

// uniquePath returns dir/name, or dir/"stem (n)ext" for the first n that does not exist.
func uniquePath(dir, name string) (string, error) {
	candidate := filepath.Join(dir, name)
	if _, err := os.Lstat(candidate); os.IsNotExist(err) {
		return candidate, nil
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 1; n <= maxCollisionSuffix; n++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, n, ext))
		if _, err := os.Lstat(candidate); os.IsNotExist(err) {
			return candidate, nil
		}
	}
	return "", errors.New(errors.SystemError, errors.GetErrorMessage(errors.ErrSaveFailed),
		fmt.Sprintf("no free name for %s in %s", name, dir), errors.ErrSaveFailed)
}

func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	// rename fails across devices; fall back to copying
	if err := copyFile(src, dst); err != nil {
		_ = os.Remove(dst)
		return err
	}
	return os.Remove(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
