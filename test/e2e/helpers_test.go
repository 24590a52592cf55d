package e2e

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

const (
	// Path to the compiled binary (go build -o hlsgrab ./cmd/hlsgrab)
	binaryPath = "../../hlsgrab"
)

// fixtureServer serves an in-memory set of files and counts requests per path.
type fixtureServer struct {
	*httptest.Server
	mu    sync.Mutex
	files map[string]string
	hits  map[string]int
}

func newFixtureServer(t *testing.T, files map[string]string) *fixtureServer {
	t.Helper()
	s := &fixtureServer{files: files, hits: map[string]int{}}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		body, ok := s.files[r.URL.Path]
		s.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, body)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *fixtureServer) count(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// vodFixture returns files for a master playlist at /master.m3u8 listing a_sd.m3u8
// and z_hd.m3u8, each with n .ts segments, and the merged bytes of the hd variant.
// The hd variant is probed first even though it sorts last.
func vodFixture(n int) (map[string]string, string) {
	files := map[string]string{
		"/master.m3u8": "#EXTM3U\n" +
			"#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=640x360\na_sd.m3u8\n" +
			"#EXT-X-STREAM-INF:BANDWIDTH=2800000,RESOLUTION=1280x720\nz_hd.m3u8\n",
	}
	var want strings.Builder
	for _, variant := range []string{"a_sd", "z_hd"} {
		var b strings.Builder
		b.WriteString("#EXTM3U\n#EXT-X-TARGETDURATION:2\n")
		for i := 0; i < n; i++ {
			name := fmt.Sprintf("%s_%d.ts", variant, i)
			fmt.Fprintf(&b, "#EXTINF:2.0,\n%s\n", name)
			body := fmt.Sprintf("[%s-%d]", variant, i)
			files["/"+name] = body
			if variant == "z_hd" {
				want.WriteString(body)
			}
		}
		b.WriteString("#EXT-X-ENDLIST\n")
		files["/"+variant+".m3u8"] = b.String()
	}
	return files, want.String()
}

func binaryExists() bool {
	_, err := os.Stat(binaryPath)
	return err == nil
}

func checkFFmpegInstalled() bool {
	_, err := exec.LookPath("ffmpeg")
	return err == nil
}

// runBinary runs hlsgrab with an isolated config and history location.
func runBinary(t *testing.T, timeout time.Duration, args ...string) (string, int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	dir := t.TempDir()
	base := []string{"--config", filepath.Join(dir, "config.json"), "--log-level", "error"}
	cmd := exec.CommandContext(ctx, binaryPath, append(args, base...)...)
	cmd.Env = append(os.Environ(),
		"HLSGRAB_HISTORY_DB="+filepath.Join(dir, "history.db"),
		"HLSGRAB_WORK_DIR="+filepath.Join(dir, "work"),
	)
	cmd.Stderr = os.Stderr

	out, err := cmd.Output()
	if ctx.Err() != nil {
		t.Fatalf("hlsgrab %v timed out after %s", args, timeout)
	}
	code := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		code = exitErr.ExitCode()
	} else if err != nil {
		t.Fatalf("failed to run hlsgrab: %v", err)
	}
	return strings.TrimSpace(string(out)), code
}

// generateHLS uses ffmpeg to write a short MPEG-TS HLS stream into dir.
func generateHLS(t *testing.T, dir string) {
	t.Helper()
	cmd := exec.Command("ffmpeg", "-hide_banner", "-loglevel", "error", "-y",
		"-f", "lavfi", "-i", "testsrc=duration=4:size=320x240:rate=25",
		"-c:v", "mpeg2video",
		"-f", "hls", "-hls_time", "1", "-hls_list_size", "0",
		"-hls_segment_filename", filepath.Join(dir, "seg%03d.ts"),
		filepath.Join(dir, "index.m3u8"))
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Skipf("ffmpeg could not generate a test stream: %v\n%s", err, out)
	}
}
