package mediatool

import (
	"context"
	"fmt"
	"os"
	"time"
)

// ThumbnailOffset is the position of the extracted frame, in seconds.
const ThumbnailOffset = "5"

type Thumbnailer struct {
	runner  ToolRunner
	path    string
	timeout time.Duration
}

func NewThumbnailer(runner ToolRunner, ffmpegPath string, timeout time.Duration) *Thumbnailer {
	return &Thumbnailer{runner: runner, path: ffmpegPath, timeout: timeout}
}

// Extract writes a single JPEG frame of src to out. ffmpeg exits cleanly
// without writing anything when the offset is past the end of the input,
// so an empty or missing output is also an error.
func (t *Thumbnailer) Extract(ctx context.Context, src, out string) error {
	_, err := t.runner.Run(ctx, Invocation{
		Tool: "ffmpeg",
		Path: t.path,
		Args: []string{
			"-y",
			"-i", src,
			"-ss", ThumbnailOffset,
			"-vframes", "1",
			"-q:v", "2",
			out,
		},
		Timeout: t.timeout,
	})
	if err != nil {
		return err
	}

	fi, err := os.Stat(out)
	if err != nil {
		return fmt.Errorf("thumbnail not written: %w", err)
	}
	if fi.Size() == 0 {
		return fmt.Errorf("thumbnail is empty")
	}
	return nil
}
