package recording

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Capturer records sourceURL for at most dur into outPath.
type Capturer interface {
	Capture(ctx context.Context, sourceURL string, dur time.Duration, outPath string) error
}

// FFmpegCapturer shells out to ffmpeg:
//
//	ffmpeg -i <src> -t <seconds> -y <out>
type FFmpegCapturer struct {
	Path string
}

const stderrTail = 512

func (c FFmpegCapturer) Capture(ctx context.Context, sourceURL string, dur time.Duration, outPath string) error {
	bin := c.Path
	if bin == "" {
		bin = "ffmpeg"
	}
	seconds := strconv.FormatFloat(dur.Seconds(), 'f', -1, 64)

	cmd := exec.CommandContext(ctx, bin, "-i", sourceURL, "-t", seconds, "-y", outPath)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = 5 * time.Second
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("ffmpeg: %w", ctxErr)
		}
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > stderrTail {
			msg = msg[len(msg)-stderrTail:]
		}
		if msg == "" {
			return fmt.Errorf("ffmpeg: %w", err)
		}
		return fmt.Errorf("ffmpeg: %w: %s", err, msg)
	}
	return nil
}
