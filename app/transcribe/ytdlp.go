package transcribe

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

const watchURL = "https://www.youtube.com/watch?v="

// YtDlp downloads audio with the yt-dlp command line tool.
type YtDlp struct {
	binary string
	ffmpeg string
}

// NewYtDlp resolves the yt-dlp binary on PATH. ffmpeg is optional and only
// passed through when found.
func NewYtDlp(binary, ffmpeg string) (*YtDlp, error) {
	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp not available: %w", err)
	}

	y := &YtDlp{binary: path}
	if ffmpeg != "" {
		if ff, err := exec.LookPath(ffmpeg); err == nil {
			y.ffmpeg = ff
		}
	}
	return y, nil
}

func (y *YtDlp) FetchAudio(ctx context.Context, videoID, dir string) (string, error) {
	args := []string{
		"--quiet", "--no-playlist", "--no-progress",
		"-f", "bestaudio[abr<=64]/bestaudio/best",
		"-x", "--audio-format", "mp3", "--audio-quality", "64K",
		"-o", filepath.Join(dir, "%(id)s.%(ext)s"),
	}
	if y.ffmpeg != "" {
		args = append(args, "--ffmpeg-location", y.ffmpeg)
	}
	args = append(args, watchURL+videoID)

	cmd := exec.CommandContext(ctx, y.binary, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("yt-dlp failed: %w (output: %s)", err, strings.TrimSpace(string(output)))
	}

	matches, err := filepath.Glob(filepath.Join(dir, videoID+".*"))
	if err != nil || len(matches) == 0 {
		return "", fmt.Errorf("yt-dlp produced no audio file for %s", videoID)
	}
	return matches[0], nil
}
