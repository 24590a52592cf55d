// Package diskspace checks free space on the volume that will hold a merged file.
package diskspace

import (
	stderrors "errors"
	"fmt"

	"github.com/heyjunin/HLSgrab/pkg/errors"
	"github.com/heyjunin/HLSgrab/pkg/logger"
)

// ErrUnsupported is returned by Available on platforms without a free-space query.
var ErrUnsupported = stderrors.New("free space query not supported on this platform")

// Available returns the bytes available to the current user on the volume holding path.
func Available(path string) (uint64, error) {
	return available(path)
}

// Ensure fails with DiskSpaceError when the volume holding dir has less than need bytes free.
// When free space cannot be determined the check is skipped.
func Ensure(dir string, need int64) error {
	if need <= 0 {
		return nil
	}
	free, err := Available(dir)
	if err != nil {
		logger.Debug("Skipping disk space check", "diskspace", map[string]interface{}{
			"dir":   dir,
			"error": err.Error(),
		})
		return nil
	}
	if free < uint64(need) {
		return errors.New(errors.DiskSpaceError, errors.GetErrorMessage(errors.ErrDiskSpaceInsufficient),
			fmt.Sprintf("need %d bytes in %s, %d available", need, dir, free), errors.ErrDiskSpaceInsufficient)
	}
	return nil
}
