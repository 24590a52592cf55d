package saver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/heyjunin/HLSgrab/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFileName(t *testing.T) {
	tests := map[string]string{
		"Show: Part 1/2":      "Show_ Part 1_2",
		"Track...":            "Track",
		"Name   with  tabs\t": "Name with tabs",
		"Line\nbreak\r\n":     "Line break",
		"bell\x07char":        "bell_char",
		"a<b>c|d?e*f\"g":      "a_b_c_d_e_f_g",
		"  padded  ":          "padded",
		"...":                 "",
	}
	for in, want := range tests {
		if got := SanitizeFileName(in); got != want {
			t.Errorf("SanitizeFileName(%q) = %q, want %q", in, got, want)
		}
	}
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	src := filepath.Join(t.TempDir(), "job.mp4")
	require.NoError(t, os.WriteFile(src, []byte(content), 0644))
	return src
}

func TestSaveMovesFile(t *testing.T) {
	src := writeTemp(t, "data")
	dir := filepath.Join(t.TempDir(), "nested", "out")

	dest, err := Save(context.Background(), src, dir, "video.mp4", false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "video.mp4"), dest)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))

	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err), "source should be gone after the move")
}

func TestSavePicksFreeNameWithoutOverwrite(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "video.mp4"), []byte("old"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "video (1).mp4"), []byte("old"), 0644))

	dest, err := Save(context.Background(), writeTemp(t, "new"), dir, "video.mp4", false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "video (2).mp4"), dest)

	old, err := os.ReadFile(filepath.Join(dir, "video.mp4"))
	require.NoError(t, err)
	assert.Equal(t, "old", string(old))
}

func TestSaveOverwrite(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "video.mp4"), []byte("old"), 0644))

	dest, err := Save(context.Background(), writeTemp(t, "new"), dir, "video.mp4", true)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "video.mp4"), dest)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestSaveSanitizesName(t *testing.T) {
	dir := t.TempDir()
	dest, err := Save(context.Background(), writeTemp(t, "x"), dir, "a/b:c.ts", false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a_b_c.ts"), dest)
}

func TestSaveCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Save(ctx, writeTemp(t, "x"), t.TempDir(), "v.mp4", false)
	assert.True(t, errors.IsType(err, errors.Cancelled))
}

func TestCopyFile(t *testing.T) {
	src := writeTemp(t, "payload")
	dst := filepath.Join(t.TempDir(), "copy.mp4")
	require.NoError(t, copyFile(src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}
