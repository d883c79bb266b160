// Package mediatest provides helpers for tests that exercise the external
// media tools: real ffmpeg when it is installed, and fake tool scripts when
// a test only needs to observe the commands it was given.
package mediatest

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// SkipIfNoFFmpeg skips the test if ffmpeg or ffprobe is not available.
func SkipIfNoFFmpeg(t testing.TB) {
	t.Helper()
	for _, tool := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(tool); err != nil {
			t.Skipf("%s not found in PATH, skipping test", tool)
		}
	}
}

// CreateTestVideo renders a solid-colour 64x64 clip with silent audio.
func CreateTestVideo(t testing.TB, path string, duration float64, color string) {
	t.Helper()

	cmd := exec.Command("ffmpeg",
		"-y",
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=c=%s:s=64x64:r=25:d=%.1f", color, duration),
		"-f", "lavfi",
		"-i", fmt.Sprintf("anullsrc=r=44100:cl=mono:d=%.1f", duration),
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-c:a", "aac",
		"-shortest",
		path,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("failed to create test video: %v\noutput: %s", err, output)
	}
}

// WriteFile creates a file with the given content and returns its path.
func WriteFile(t testing.TB, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// WriteScript writes an executable /bin/sh script and returns its path.
func WriteScript(t testing.TB, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil { // #nosec G306 - test tool must be executable
		t.Fatalf("write script %s: %v", path, err)
	}
	return path
}

// FakeFFprobe returns a script that prints output on stdout.
func FakeFFprobe(t testing.TB, output string) string {
	t.Helper()
	dir := t.TempDir()
	data := WriteFile(t, dir, "probe-output.txt", output)
	return WriteScript(t, dir, "ffprobe", fmt.Sprintf("cat '%s'", data))
}

// FakeFFmpeg is an ffmpeg stand-in. Each invocation is appended to a log;
// the last argument is treated as the output file and written with a line
// describing the call. When the joined arguments contain FailOn the script
// prints an error to stderr and exits 1 without writing anything.
type FakeFFmpeg struct {
	Path    string
	LogPath string
}

// NewFakeFFmpeg writes the stand-in script into a fresh temp dir.
func NewFakeFFmpeg(t testing.TB, failOn string) *FakeFFmpeg {
	t.Helper()
	dir := t.TempDir()
	logPath := filepath.Join(dir, "calls.log")

	var b strings.Builder
	fmt.Fprintf(&b, "printf '%%s\\n' \"$*\" >> '%s'\n", logPath)
	if failOn != "" {
		fmt.Fprintf(&b, "case \"$*\" in *'%s'*) echo 'Invalid argument: %s' >&2; exit 1;; esac\n", failOn, failOn)
	}
	b.WriteString("for last; do :; done\n")
	b.WriteString("printf 'fake ffmpeg output: %s\\n' \"$*\" > \"$last\"\n")

	return &FakeFFmpeg{
		Path:    WriteScript(t, dir, "ffmpeg", b.String()),
		LogPath: logPath,
	}
}

// Calls returns the argument lines of every invocation so far.
func (f *FakeFFmpeg) Calls(t testing.TB) []string {
	t.Helper()
	data, err := os.ReadFile(f.LogPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatalf("read fake ffmpeg log: %v", err)
	}
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}
