package transcriber

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"otis/recorder"
)

const defaultWhisperModel = "tiny"

// Whisper runs local inference through a whisper.cpp CLI binary. The
// binary is resolved at construction so a broken install surfaces as a
// ConfigError before any recording is thrown at it.
type Whisper struct {
	model    string
	language string
	binPath  string
	modelDir string
}

func NewWhisper(model, language string) (*Whisper, error) {
	if model == "" {
		model = defaultWhisperModel
	}

	bin := os.Getenv("OTIS_WHISPER_BIN")
	if bin == "" {
		found, err := exec.LookPath("whisper-cli")
		if err != nil {
			return nil, &ConfigError{Reason: "whisper-cli not found in PATH (set OTIS_WHISPER_BIN)"}
		}
		bin = found
	}

	modelDir := os.Getenv("OTIS_WHISPER_MODELS")
	if modelDir == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			modelDir = filepath.Join(home, ".otis", "models")
		}
	}

	return &Whisper{
		model:    model,
		language: language,
		binPath:  bin,
		modelDir: modelDir,
	}, nil
}

func (w *Whisper) Name() string  { return EngineWhisper }
func (w *Whisper) Model() string { return w.model }

func (w *Whisper) modelPath() string {
	return filepath.Join(w.modelDir, "ggml-"+w.model+".bin")
}

func (w *Whisper) Transcribe(ctx context.Context, clip *recorder.Clip) (*Result, error) {
	args := []string{
		"-m", w.modelPath(),
		"-f", clip.Path,
		"--no-prints",
		"--no-timestamps",
	}
	if w.language != "" && w.language != "auto" {
		args = append(args, "-l", w.language)
	}

	cmd := exec.CommandContext(ctx, w.binPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return nil, &BackendError{Backend: EngineWhisper, Err: fmt.Errorf("whisper-cli: %s", detail)}
	}

	return &Result{
		Text:     strings.TrimSpace(stdout.String()),
		Duration: elapsed,
		Engine:   EngineWhisper,
		Model:    w.model,
	}, nil
}
