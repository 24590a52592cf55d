// Package acquire turns a playlist URL into one local media file: it probes the
// playlist, tries a whole-stream remux and falls back to downloading and merging
// the segments when the remux is stopped.
package acquire

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/heyjunin/HLSgrab/pkg/diskspace"
	"github.com/heyjunin/HLSgrab/pkg/errors"
	"github.com/heyjunin/HLSgrab/pkg/hls"
	"github.com/heyjunin/HLSgrab/pkg/logger"
	"github.com/heyjunin/HLSgrab/pkg/metrics"
	"github.com/heyjunin/HLSgrab/pkg/progress"
	"github.com/heyjunin/HLSgrab/pkg/remux"
	"github.com/heyjunin/HLSgrab/pkg/segments"
)

// Progress stages reported on the channel.
const (
	StageProbing  = "probing"
	StageRemux    = "remux"
	StageSegments = "segments"
	StageMerge    = "merge"
)

// Options configures an Orchestrator.
type Options struct {
	// SkipPrimary goes straight from probing to the segment fallback.
	SkipPrimary bool
	// WorkDir holds one temporary directory per job. Defaults to os.TempDir()/hlsgrab.
	WorkDir string
	// BatchSize bounds concurrent segment downloads. Defaults to segments.DefaultBatchSize.
	BatchSize int
	// Logger defaults to logger.NewLogger().
	Logger logger.Logger
	// Metrics may be nil.
	Metrics *metrics.Metrics
	// OnStateChange, when set, observes every state transition of every job.
	OnStateChange func(jobID string, state State)
}

// Orchestrator runs acquisition jobs.
type Orchestrator struct {
	fetcher     hls.Fetcher
	service     remux.Service
	coordinator *segments.Coordinator
	options     Options
	logger      logger.Logger
}

// New creates an Orchestrator. fetcher and downloader are usually the same
// *downloader.Client. A nil service implies Options.SkipPrimary.
func New(fetcher hls.Fetcher, downloader segments.Downloader, service remux.Service, options Options) *Orchestrator {
	if options.WorkDir == "" {
		options.WorkDir = filepath.Join(os.TempDir(), "hlsgrab")
	}
	if options.Logger == nil {
		options.Logger = logger.NewLogger()
	}
	if service == nil {
		options.SkipPrimary = true
	}
	return &Orchestrator{
		fetcher: fetcher,
		service: service,
		coordinator: segments.NewCoordinator(downloader, segments.Options{
			BatchSize: options.BatchSize,
			Logger:    options.Logger,
		}),
		options: options,
		logger:  options.Logger,
	}
}

// Result is a finished job's local file, ready to be handed to the save step.
type Result struct {
	JobID         string
	URL           string
	MediaURL      string
	Path          string
	SuggestedName string
	Container     remux.ContainerType
	UsedFallback  bool
	Segments      int
	Bytes         int64

	dir string
}

// Cleanup removes the job's temporary directory, including Path if it was not moved.
func (r *Result) Cleanup() error {
	if r == nil || r.dir == "" {
		return nil
	}
	return os.RemoveAll(r.dir)
}

// Notification is the single end-of-job report.
type Notification struct {
	JobID        string
	URL          string
	MediaURL     string
	Outcome      Outcome
	Result       *Result
	Err          error
	UsedFallback bool
	Segments     int
	Bytes        int64
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Acquire runs one job to completion. It reports progress on ch (a fresh channel is
// used when ch is nil) and finishes it with exactly one terminal event. Cancelling ch or
// ctx stops the job at the next checkpoint. On success the caller owns Result and must
// call Cleanup once the file has been saved.
func (o *Orchestrator) Acquire(ctx context.Context, rawURL string, ch *progress.Channel) (*Result, error) {
	n := o.run(ctx, rawURL, ch)
	return n.Result, n.Err
}

// job holds the per-run state; only the goroutine running the job touches it.
type job struct {
	id  string
	ch  *progress.Channel
	dir string
	n   *Notification
}

func (o *Orchestrator) setState(j *job, s State) {
	o.logger.Debug("State changed", "acquire", map[string]interface{}{
		"job":   j.id,
		"state": s.String(),
	})
	if o.options.OnStateChange != nil {
		o.options.OnStateChange(j.id, s)
	}
}

func (o *Orchestrator) run(parent context.Context, rawURL string, ch *progress.Channel) *Notification {
	if ch == nil {
		ch = progress.NewChannel()
	}
	ctx, cancel := progress.Context(parent, ch)
	defer cancel()

	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	j := &job{
		id: id.String(),
		ch: ch,
		n:  &Notification{JobID: id.String(), URL: rawURL, StartedAt: time.Now()},
	}
	o.setState(j, Idle)

	result, err := o.execute(ctx, j, rawURL)
	if parent.Err() != nil {
		ch.Cancel()
	}
	j.n.FinishedAt = time.Now()
	j.n.Outcome = OutcomeOf(err)
	j.n.Err = err
	j.n.Result = result

	if err != nil {
		if j.dir != "" {
			_ = os.RemoveAll(j.dir)
		}
		o.setState(j, Failed)
		o.logger.Warn("Job ended", "acquire", map[string]interface{}{
			"job":     j.id,
			"outcome": string(j.n.Outcome),
			"error":   err.Error(),
		})
	} else {
		o.setState(j, Succeeded)
		o.logger.Info("Job succeeded", "acquire", map[string]interface{}{
			"job":      j.id,
			"path":     result.Path,
			"fallback": result.UsedFallback,
		})
	}
	o.options.Metrics.JobFinished(string(j.n.Outcome), j.n.UsedFallback, j.n.FinishedAt.Sub(j.n.StartedAt))
	ch.Finish(err)
	return j.n
}

func (o *Orchestrator) execute(ctx context.Context, j *job, rawURL string) (*Result, error) {
	u, err := NormalizeInput(rawURL)
	if err != nil {
		return nil, err
	}
	j.n.URL = u.String()

	o.setState(j, Probing)
	j.ch.SetStage(StageProbing)
	j.ch.SetStatus("Loading playlist")
	media, err := o.probe(ctx, j, u)
	if err != nil {
		return nil, err
	}
	mediaURL := media.BaseURI()
	j.n.MediaURL = mediaURL.String()

	if err := checkpoint(ctx, j.ch); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(o.options.WorkDir, 0755); err != nil {
		return nil, errors.Wrap(err, errors.SystemError, errors.GetErrorMessage(errors.ErrWorkDirCreate), errors.ErrWorkDirCreate)
	}
	j.dir, err = os.MkdirTemp(o.options.WorkDir, "job-"+j.id+"-")
	if err != nil {
		return nil, errors.Wrap(err, errors.SystemError, errors.GetErrorMessage(errors.ErrWorkDirCreate), errors.ErrWorkDirCreate)
	}

	res := &Result{
		JobID:    j.id,
		URL:      u.String(),
		MediaURL: mediaURL.String(),
		dir:      j.dir,
	}
	name := SuggestedName(mediaURL)

	if !o.options.SkipPrimary {
		o.setState(j, PrimaryAttempt)
		j.ch.SetStage(StageRemux)
		j.ch.SetStatus("Remuxing stream")

		container, err := o.primary(ctx, j, mediaURL)
		if err == nil {
			res.Path = filepath.Join(j.dir, "output"+container.Extension())
			res.Container = container
			res.SuggestedName = name + container.Extension()
			return res, nil
		}
		if !remux.IsOperationStopped(err) || checkpoint(ctx, j.ch) != nil {
			return nil, classifyRemuxError(ctx, j.ch, err)
		}

		o.options.Metrics.FallbackTriggered()
		o.logger.Info("Remux stopped, downloading segments", "acquire", map[string]interface{}{
			"job":   j.id,
			"error": err.Error(),
		})
	}

	path, err := o.fallback(ctx, j, media)
	if err != nil {
		return nil, err
	}
	ext := filepath.Ext(path)
	res.Path = path
	res.UsedFallback = true
	res.Segments = j.n.Segments
	res.Bytes = j.n.Bytes
	res.SuggestedName = name + ext
	if ext == ".mp4" {
		res.Container = remux.MP4
	} else {
		res.Container = remux.MPEGTS
	}
	return res, nil
}

// probe fetches u and, for a master playlist, walks the variant candidates in
// preference order until one loads as a media playlist.
func (o *Orchestrator) probe(ctx context.Context, j *job, u *url.URL) (*hls.Document, error) {
	if err := checkpoint(ctx, j.ch); err != nil {
		return nil, err
	}
	doc, err := hls.Load(ctx, o.fetcher, u)
	if err != nil {
		if cerr := checkpoint(ctx, j.ch); cerr != nil {
			return nil, cerr
		}
		return nil, err
	}
	if doc.Kind() == hls.Media {
		return doc, nil
	}

	for candidate := range hls.Candidates(doc) {
		if err := checkpoint(ctx, j.ch); err != nil {
			return nil, err
		}
		variant, err := hls.Load(ctx, o.fetcher, candidate)
		if err != nil {
			if cerr := checkpoint(ctx, j.ch); cerr != nil {
				return nil, cerr
			}
			o.logger.Warn("Skipping variant", "acquire", map[string]interface{}{
				"job":     j.id,
				"variant": candidate.String(),
				"error":   err.Error(),
			})
			continue
		}
		if variant.Kind() == hls.Master {
			o.logger.Warn("Skipping nested master playlist", "acquire", map[string]interface{}{
				"job":     j.id,
				"variant": candidate.String(),
			})
			continue
		}
		return variant, nil
	}

	return nil, errors.New(errors.NoPlayableVariant, errors.GetErrorMessage(errors.ErrNoPlayableVariant),
		u.String(), errors.ErrNoPlayableVariant)
}

// primary remuxes the whole media playlist into the job directory.
func (o *Orchestrator) primary(ctx context.Context, j *job, media *url.URL) (remux.ContainerType, error) {
	supported, err := o.service.SupportedContainerTypes(ctx, media.String())
	if err != nil {
		return "", err
	}
	container, ok := remux.ChooseContainer(supported)
	if !ok {
		return "", errors.New(errors.NoSupportedOutputType, errors.GetErrorMessage(errors.ErrNoSupportedOutputType),
			media.String(), errors.ErrNoSupportedOutputType)
	}
	if err := checkpoint(ctx, j.ch); err != nil {
		return "", err
	}

	output := filepath.Join(j.dir, "output"+container.Extension())
	err = o.service.Remux(ctx, media.String(), output, container, func(f float64) {
		j.ch.Report(f, "")
	})
	if err != nil {
		_ = os.Remove(output)
		return "", err
	}
	return container, nil
}

// classifyRemuxError maps a primary-path failure that did not trigger the fallback.
func classifyRemuxError(ctx context.Context, ch *progress.Channel, err error) error {
	if cerr := checkpoint(ctx, ch); cerr != nil {
		return cerr
	}
	switch errors.TypeOf(err) {
	case errors.RemuxFailed, errors.NoSupportedOutputType, errors.Cancelled:
		return err
	}
	return errors.Wrap(err, errors.RemuxFailed, errors.GetErrorMessage(errors.ErrRemuxFailed), errors.ErrRemuxFailed)
}

// fallback downloads the segments of the already-fetched media playlist and merges them.
// Progress continues from the last reported fraction up to 1.
func (o *Orchestrator) fallback(ctx context.Context, j *job, media *hls.Document) (string, error) {
	o.setState(j, FallbackAttempt)
	j.n.UsedFallback = true
	j.ch.SetStage(StageSegments)

	// re-parse the retained text; the playlist is never fetched again
	doc := hls.Parse(media.Text(), media.BaseURI())
	refs, err := doc.Segments()
	if err != nil {
		return "", err
	}
	j.n.Segments = len(refs)
	j.ch.SetStatus("Downloading segments")

	base := j.ch.Fraction()
	downloaded, err := o.coordinator.Download(ctx, refs, doc.InitSegment(), j.dir, j.ch, func(f float64) {
		j.ch.Report(base+f*(1-base), "")
	})
	if err != nil {
		return "", err
	}
	j.n.Bytes = downloaded.Bytes

	if err := checkpoint(ctx, j.ch); err != nil {
		return "", err
	}
	j.ch.SetStage(StageMerge)
	j.ch.SetStatus("Merging segments")

	need, err := segments.TotalSize(downloaded.InitPath, downloaded.Paths)
	if err != nil {
		return "", errors.Wrap(err, errors.SystemError, errors.GetErrorMessage(errors.ErrMergeFailed), errors.ErrMergeFailed)
	}
	if err := diskspace.Ensure(j.dir, need); err != nil {
		return "", err
	}

	output, err := segments.Merge(downloaded.InitPath, downloaded.Paths, filepath.Join(j.dir, "output"))
	if err != nil {
		return "", err
	}
	for _, p := range append([]string{downloaded.InitPath}, downloaded.Paths...) {
		if p != "" && !strings.EqualFold(p, output) {
			_ = os.Remove(p)
		}
	}
	return output, nil
}

// checkpoint returns a Cancelled error once the job has been cancelled through
// the channel or the context.
func checkpoint(ctx context.Context, ch *progress.Channel) error {
	if ch.Cancelled() {
		return errors.NewCancelled("")
	}
	if err := ctx.Err(); err != nil {
		return errors.NewCancelled(err.Error())
	}
	return nil
}
