package segments

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/heyjunin/HLSgrab/pkg/downloader"
	"github.com/heyjunin/HLSgrab/pkg/errors"
	"github.com/heyjunin/HLSgrab/pkg/hls"
	"github.com/heyjunin/HLSgrab/pkg/logger"
	"github.com/heyjunin/HLSgrab/pkg/progress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// segmentServer serves /seg<N>.ts with body "S<N>" and /init.mp4 with body "INIT".
type segmentServer struct {
	*httptest.Server
	requests    atomic.Int32
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	failIndex   int
	delay       func(index int) time.Duration
}

func newSegmentServer(t *testing.T) *segmentServer {
	s := &segmentServer{failIndex: -1}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		cur := s.inFlight.Add(1)
		defer s.inFlight.Add(-1)
		for {
			prev := s.maxInFlight.Load()
			if cur <= prev || s.maxInFlight.CompareAndSwap(prev, cur) {
				break
			}
		}

		name := strings.TrimPrefix(r.URL.Path, "/")
		if name == "init.mp4" {
			fmt.Fprint(w, "INIT")
			return
		}
		idx, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "seg"), filepath.Ext(name)))
		if err != nil {
			http.NotFound(w, r)
			return
		}
		if s.delay != nil {
			select {
			case <-time.After(s.delay(idx)):
			case <-r.Context().Done():
				return
			}
		}
		if idx == s.failIndex {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, "S%d", idx)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *segmentServer) refs(t *testing.T, n int, ext string) []hls.SegmentReference {
	refs := make([]hls.SegmentReference, n)
	for i := range refs {
		u, err := url.Parse(fmt.Sprintf("%s/seg%d%s", s.URL, i, ext))
		require.NoError(t, err)
		refs[i] = hls.SegmentReference{Index: i, URI: u}
	}
	return refs
}

func newTestCoordinator() *Coordinator {
	return NewCoordinator(downloader.New(downloader.Options{}), Options{Logger: logger.Nop()})
}

func TestDownloadAllSegmentsInIndexOrder(t *testing.T) {
	srv := newSegmentServer(t)
	// earlier segments finish last
	srv.delay = func(i int) time.Duration { return time.Duration(20-i) * time.Millisecond }
	dir := t.TempDir()

	var fractions []float64
	got, err := newTestCoordinator().Download(context.Background(), srv.refs(t, 20, ".ts"), nil, dir, progress.NewChannel(), func(f float64) {
		fractions = append(fractions, f)
	})
	require.NoError(t, err)

	require.Len(t, got.Paths, 20)
	for i, p := range got.Paths {
		assert.Equal(t, filepath.Join(dir, fmt.Sprintf("%06d.ts", i)), p)
		data, err := os.ReadFile(p)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("S%d", i), string(data))
	}
	assert.Equal(t, 20, got.Job.Completed)

	// batches of 8: 8, 16, 20
	assert.Equal(t, []float64{0.4, 0.8, 1.0}, fractions)
	assert.LessOrEqual(t, srv.maxInFlight.Load(), int32(DefaultBatchSize))
}

func TestDownloadRespectsBatchSize(t *testing.T) {
	srv := newSegmentServer(t)
	srv.delay = func(int) time.Duration { return 10 * time.Millisecond }

	c := NewCoordinator(downloader.New(downloader.Options{}), Options{BatchSize: 3, Logger: logger.Nop()})
	_, err := c.Download(context.Background(), srv.refs(t, 10, ".ts"), nil, t.TempDir(), nil, nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, srv.maxInFlight.Load(), int32(3))
	assert.Equal(t, int32(10), srv.requests.Load())
}

func TestDownloadInitSegmentFirst(t *testing.T) {
	srv := newSegmentServer(t)
	dir := t.TempDir()
	init, _ := url.Parse(srv.URL + "/init.mp4")

	got, err := newTestCoordinator().Download(context.Background(), srv.refs(t, 10, ".m4s"), init, dir, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "init.mp4"), got.InitPath)
	assert.Equal(t, filepath.Join(dir, "000009.m4s"), got.Paths[9])

	merged, err := Merge(got.InitPath, got.Paths, filepath.Join(dir, "out"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "out.mp4"), merged)
	data, err := os.ReadFile(merged)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "INITS0S1"))
}

func TestDownloadInitSegmentFailure(t *testing.T) {
	srv := newSegmentServer(t)
	init, _ := url.Parse(srv.URL + "/missing-init.mp4")

	_, err := newTestCoordinator().Download(context.Background(), srv.refs(t, 3, ".m4s"), init, t.TempDir(), nil, nil)
	require.Error(t, err)

	var se *errors.StructuredError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, errors.SegmentFetchFailed, se.Type)
	assert.Equal(t, -1, se.Index)
	assert.Equal(t, http.StatusNotFound, se.Status)
	// segments are never requested after the init failure
	assert.Equal(t, int32(1), srv.requests.Load())
}

func TestDownloadOne404AmongTwenty(t *testing.T) {
	srv := newSegmentServer(t)
	srv.failIndex = 13
	dir := t.TempDir()

	got, err := newTestCoordinator().Download(context.Background(), srv.refs(t, 20, ".ts"), nil, dir, nil, nil)
	require.Error(t, err)
	assert.Nil(t, got)

	var se *errors.StructuredError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, errors.SegmentFetchFailed, se.Type)
	assert.Equal(t, 13, se.Index)
	assert.Equal(t, http.StatusNotFound, se.Status)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no segment files should remain after a failed download")
}

func TestDownloadCancelledBeforeStartIssuesNoRequests(t *testing.T) {
	srv := newSegmentServer(t)
	ch := progress.NewChannel()
	ch.Cancel()
	init, _ := url.Parse(srv.URL + "/init.mp4")

	_, err := newTestCoordinator().Download(context.Background(), srv.refs(t, 20, ".ts"), init, t.TempDir(), ch, nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.Cancelled))
	assert.Equal(t, int32(0), srv.requests.Load())
}

func TestDownloadCancelledBetweenBatches(t *testing.T) {
	srv := newSegmentServer(t)
	ch := progress.NewChannel()
	dir := t.TempDir()

	var calls int
	_, err := newTestCoordinator().Download(context.Background(), srv.refs(t, 20, ".ts"), nil, dir, ch, func(float64) {
		calls++
		ch.Cancel()
	})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.Cancelled))
	assert.Equal(t, 1, calls)
	assert.Equal(t, int32(DefaultBatchSize), srv.requests.Load())

	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)
}

func TestDownloadCancelledMidBatchUnwinds(t *testing.T) {
	srv := newSegmentServer(t)
	srv.delay = func(int) time.Duration { return 5 * time.Second }
	ch := progress.NewChannel()
	ctx, cancel := progress.Context(context.Background(), ch)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	var err error
	go func() {
		defer wg.Done()
		_, err = newTestCoordinator().Download(ctx, srv.refs(t, 4, ".ts"), nil, t.TempDir(), ch, nil)
	}()

	time.Sleep(50 * time.Millisecond)
	ch.Cancel()
	wg.Wait()
	assert.True(t, errors.IsType(err, errors.Cancelled))
}

func TestSegmentExt(t *testing.T) {
	mk := func(s string) *url.URL {
		u, err := url.Parse(s)
		require.NoError(t, err)
		return u
	}
	assert.Equal(t, ".ts", segmentExt(mk("https://h/a/seg1.ts?token=1"), ".seg"))
	assert.Equal(t, ".m4s", segmentExt(mk("https://h/a/seg1.m4s"), ".seg"))
	assert.Equal(t, ".seg", segmentExt(mk("https://h/a/segment"), ".seg"))
	assert.Equal(t, ".seg", segmentExt(mk("https://h/a/file.toolongext"), ".seg"))
	assert.Equal(t, ".seg", segmentExt(mk("https://h/a/file.t-s"), ".seg"))
}

func TestJobFraction(t *testing.T) {
	assert.Zero(t, (&Job{}).Fraction())
	assert.Equal(t, 0.5, (&Job{Total: 4, Completed: 2}).Fraction())
}
