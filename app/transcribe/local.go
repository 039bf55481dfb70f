package transcribe

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Local runs the openai-whisper command line tool on this machine.
type Local struct {
	binary string
	model  string
}

func NewLocal(binary, model string) (*Local, error) {
	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("whisper not available: %w", err)
	}
	// whisper-1 is the hosted model name; the local tool has no such model.
	if model == "" || model == "whisper-1" {
		model = "base"
	}
	return &Local{binary: path, model: model}, nil
}

func (l *Local) Transcribe(ctx context.Context, audioPath string) (string, error) {
	dir := filepath.Dir(audioPath)

	cmd := exec.CommandContext(ctx, l.binary, audioPath,
		"--model", l.model,
		"--output_format", "txt",
		"--output_dir", dir,
		"--verbose", "False")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("whisper failed: %w (output: %s)", err, strings.TrimSpace(string(output)))
	}

	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	text, err := os.ReadFile(filepath.Join(dir, base+".txt"))
	if err != nil {
		return "", fmt.Errorf("failed to read whisper output: %w", err)
	}
	return strings.TrimSpace(string(text)), nil
}
