package recording

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	path := filepath.Join(t.TempDir(), "fake-ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestFFmpegCapturer_PassesArguments(t *testing.T) {
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args")
	bin := writeScript(t, `echo "$@" > `+argsFile+"\n"+`for last; do :; done; echo data > "$last"`+"\n")

	out := filepath.Join(dir, "out.mp4")
	err := FFmpegCapturer{Path: bin}.Capture(context.Background(), "rtmp://src/live", 90*time.Second, out)
	require.NoError(t, err)

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Equal(t, "-i rtmp://src/live -t 90 -y "+out, strings.TrimSpace(string(args)))
	assert.FileExists(t, out)
}

func TestFFmpegCapturer_ReportsStderr(t *testing.T) {
	bin := writeScript(t, "echo 'Connection refused' >&2\nexit 1\n")

	err := FFmpegCapturer{Path: bin}.Capture(context.Background(), "rtmp://src/live", time.Second, filepath.Join(t.TempDir(), "out.mp4"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Connection refused")
}

func TestFFmpegCapturer_Cancelled(t *testing.T) {
	bin := writeScript(t, "exec sleep 5\n")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := FFmpegCapturer{Path: bin}.Capture(ctx, "rtmp://src/live", time.Second, filepath.Join(t.TempDir(), "out.mp4"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
