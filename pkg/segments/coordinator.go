// Package segments downloads the media segments of a playlist in bounded batches
// and concatenates them into one file.
package segments

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/heyjunin/HLSgrab/pkg/errors"
	"github.com/heyjunin/HLSgrab/pkg/hls"
	"github.com/heyjunin/HLSgrab/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// DefaultBatchSize is the number of segments downloaded concurrently per batch.
const DefaultBatchSize = 8

// Downloader fetches one URI into a local file. *downloader.Client implements it.
type Downloader interface {
	Download(ctx context.Context, uri, dest string) (int64, error)
}

// Canceller exposes the job's cancellation flag. *progress.Channel implements it.
type Canceller interface {
	Cancelled() bool
}

// Options configures a Coordinator.
type Options struct {
	// BatchSize bounds concurrent downloads. Defaults to DefaultBatchSize.
	BatchSize int
	// Logger defaults to logger.NewLogger().
	Logger logger.Logger
}

// Coordinator downloads segment lists in consecutive batches.
type Coordinator struct {
	client    Downloader
	batchSize int
	logger    logger.Logger
}

// NewCoordinator creates a Coordinator that fetches through client.
func NewCoordinator(client Downloader, options Options) *Coordinator {
	if options.BatchSize <= 0 {
		options.BatchSize = DefaultBatchSize
	}
	if options.Logger == nil {
		options.Logger = logger.NewLogger()
	}
	return &Coordinator{client: client, batchSize: options.BatchSize, logger: options.Logger}
}

// Job tracks one download call. Completed only changes on the coordinating
// goroutine, after a batch has been joined.
type Job struct {
	Dir       string
	Total     int
	Completed int
}

// Fraction returns Completed/Total, or 0 for an empty job.
func (j *Job) Fraction() float64 {
	if j.Total == 0 {
		return 0
	}
	return float64(j.Completed) / float64(j.Total)
}

// Downloaded lists the local files of a finished download, by index.
type Downloaded struct {
	Job      Job
	InitPath string
	Paths    []string
	Bytes    int64
}

type result struct {
	path  string
	bytes int64
}

// Download fetches the optional init segment, then every segment in batches of at
// most BatchSize concurrent requests, writing each to dir as "%06d<ext>".
// Cancellation is checked before the init segment and before every batch; once set,
// no new request is issued and a Cancelled error is returned after the current batch
// unwinds. Any failed request fails the call with SegmentFetchFailed carrying the
// segment index (-1 for the init segment). onProgress runs after each batch with a
// non-decreasing fraction. Files written by a failed call are removed.
func (c *Coordinator) Download(ctx context.Context, segments []hls.SegmentReference, init *url.URL, dir string, cancel Canceller, onProgress func(float64)) (*Downloaded, error) {
	job := Job{Dir: dir, Total: len(segments)}
	out := &Downloaded{Paths: make([]string, len(segments))}

	cancelled := func() bool {
		return (cancel != nil && cancel.Cancelled()) || ctx.Err() != nil
	}
	fail := func(err error) (*Downloaded, error) {
		removeAll(out)
		return nil, err
	}

	if cancelled() {
		return nil, errors.NewCancelled("before first segment request")
	}

	if init != nil {
		initPath := filepath.Join(dir, "init"+segmentExt(init, ".mp4"))
		n, err := c.client.Download(ctx, init.String(), initPath)
		if err != nil {
			if cancelled() {
				return fail(errors.NewCancelled("during init segment"))
			}
			return fail(withIndex(err, -1))
		}
		out.InitPath = initPath
		out.Bytes += n
	}

	for start := 0; start < len(segments); start += c.batchSize {
		if cancelled() {
			return fail(errors.NewCancelled(fmt.Sprintf("after %d of %d segments", job.Completed, job.Total)))
		}

		end := min(start+c.batchSize, len(segments))
		batch := segments[start:end]
		results := make([]result, len(batch))

		g, gctx := errgroup.WithContext(ctx)
		for i, seg := range batch {
			dest := filepath.Join(dir, fmt.Sprintf("%06d%s", seg.Index, segmentExt(seg.URI, ".seg")))
			g.Go(func() error {
				n, err := c.client.Download(gctx, seg.URI.String(), dest)
				if err != nil {
					return withIndex(err, seg.Index)
				}
				results[i] = result{path: dest, bytes: n}
				return nil
			})
		}
		err := g.Wait()

		for i, r := range results {
			if r.path != "" {
				out.Paths[start+i] = r.path
				out.Bytes += r.bytes
			}
		}
		if err != nil {
			if cancelled() {
				return fail(errors.NewCancelled("during segment batch"))
			}
			return fail(err)
		}

		job.Completed += len(batch)
		c.logger.Debug("Segment batch completed", "segments", map[string]interface{}{
			"completed": job.Completed,
			"total":     job.Total,
		})
		if onProgress != nil {
			onProgress(job.Fraction())
		}
	}

	out.Job = job
	return out, nil
}

// withIndex tags err with the segment index, keeping its type when it is already structured.
func withIndex(err error, index int) error {
	var se *errors.StructuredError
	if errors.As(err, &se) {
		if se.Type == errors.SegmentFetchFailed {
			return se.WithIndex(index)
		}
		return errors.Wrap(se, errors.SegmentFetchFailed, se.Message, se.Code).WithIndex(index).WithStatus(se.Status)
	}
	return errors.Wrap(err, errors.SegmentFetchFailed, "Failed to download segment", errors.ErrSegmentRequest).WithIndex(index)
}

// segmentExt keeps a short alphanumeric extension from the URI path, or returns fallback.
func segmentExt(u *url.URL, fallback string) string {
	ext := path.Ext(u.Path)
	if len(ext) < 2 || len(ext) > 6 {
		return fallback
	}
	for _, r := range strings.ToLower(ext[1:]) {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return fallback
		}
	}
	return ext
}

func removeAll(d *Downloaded) {
	if d.InitPath != "" {
		_ = os.Remove(d.InitPath)
	}
	for _, p := range d.Paths {
		if p != "" {
			_ = os.Remove(p)
		}
	}
}
