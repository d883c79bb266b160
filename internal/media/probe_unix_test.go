//go:build !windows

package media

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/clipkit/internal/errs"
	"github.com/maauso/clipkit/internal/mediatest"
)

func TestProber_FakeTool(t *testing.T) {
	ffprobe := mediatest.FakeFFprobe(t, "width=1280\nheight=720\navg_frame_rate=60/1\n")

	meta, err := NewProber(ffprobe, nil).Probe(context.Background(), "/videos/any clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, Metadata{Width: 1280, Height: 720, FPS: 60}, meta)
}

func TestProber_FakeToolIncomplete(t *testing.T) {
	ffprobe := mediatest.FakeFFprobe(t, "width=1280\n")

	_, err := NewProber(ffprobe, nil).Probe(context.Background(), "in.mp4")
	assert.ErrorIs(t, err, ErrProbeIncomplete)
}

func TestProber_BackendFailure(t *testing.T) {
	dir := t.TempDir()
	ffprobe := mediatest.WriteScript(t, dir, "ffprobe", "echo 'in.mp4: Invalid data found when processing input' >&2; exit 1")

	_, err := NewProber(ffprobe, nil).Probe(context.Background(), "in.mp4")
	require.Error(t, err)
	assert.True(t, errs.IsBackend(err))
	assert.Contains(t, err.Error(), "Invalid data found")
}

func TestProber_RealFFprobe(t *testing.T) {
	mediatest.SkipIfNoFFmpeg(t)

	src := filepath.Join(t.TempDir(), "source clip.mp4")
	mediatest.CreateTestVideo(t, src, 1, "blue")

	meta, err := NewProber("", nil).Probe(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 64, meta.Width)
	assert.Equal(t, 64, meta.Height)
	assert.InDelta(t, 25.0, meta.FPS, 0.01)
}
