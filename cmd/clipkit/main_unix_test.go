//go:build !windows

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/clipkit/internal/errs"
	"github.com/maauso/clipkit/internal/mediatest"
	"github.com/maauso/clipkit/internal/video"
)

func TestProbe(t *testing.T) {
	dir := isolateEnv(t)
	t.Setenv("FFPROBE_PATH", mediatest.FakeFFprobe(t, "width=1920\nheight=1080\navg_frame_rate=30000/1001\n"))
	src := mediatest.WriteFile(t, dir, "talk.mp4", "video")

	out, err := execute(t, "probe", src)
	require.NoError(t, err)

	assert.Contains(t, out, "width:  1920\n")
	assert.Contains(t, out, "height: 1080\n")
	assert.Contains(t, out, "fps:    29.970\n")
}

func TestProbe_Unreadable(t *testing.T) {
	dir := isolateEnv(t)
	t.Setenv("FFPROBE_PATH", mediatest.FakeFFprobe(t, "width=1\nheight=1\navg_frame_rate=1/1\n"))

	_, err := execute(t, "probe", filepath.Join(dir, "missing.mp4"))
	assert.ErrorIs(t, err, video.ErrSourceUnreadable)
}

func TestRender_WithFakeTools(t *testing.T) {
	dir := isolateEnv(t)
	ffmpeg := mediatest.NewFakeFFmpeg(t, "")
	t.Setenv("FFMPEG_PATH", ffmpeg.Path)
	t.Setenv("FFPROBE_PATH", mediatest.FakeFFprobe(t, "width=1280\nheight=720\navg_frame_rate=25/1\n"))

	src := mediatest.WriteFile(t, dir, "talk.mp4", "video")
	dst := filepath.Join(dir, "highlight.gif")
	doc := writeDoc(t, dir, joinGIFDoc)

	_, err := execute(t, "render", src, dst, "-f", doc)
	require.NoError(t, err)

	calls := ffmpeg.Calls(t)
	require.Len(t, calls, 4)
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "fake ffmpeg output: "+calls[3]+"\n", string(data))

	runs, err := filepath.Glob(filepath.Join(dir, "work", "run-*"))
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRender_DestinationExists(t *testing.T) {
	dir := isolateEnv(t)
	ffmpeg := mediatest.NewFakeFFmpeg(t, "")
	t.Setenv("FFMPEG_PATH", ffmpeg.Path)
	t.Setenv("FFPROBE_PATH", mediatest.FakeFFprobe(t, "width=1280\nheight=720\navg_frame_rate=25/1\n"))

	src := mediatest.WriteFile(t, dir, "talk.mp4", "video")
	dst := mediatest.WriteFile(t, dir, "taken.mp4", "keep me")
	doc := writeDoc(t, dir, "actions:\n  - join: [{}]\n")

	_, err := execute(t, "render", src, dst, "-f", doc)
	require.Error(t, err)
	assert.True(t, errs.IsValidation(err))
	assert.Empty(t, ffmpeg.Calls(t))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "keep me", string(data))
}
