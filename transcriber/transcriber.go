// Package transcriber dispatches a finished recording to one of a closed
// set of speech-to-text engines and normalizes their results.
package transcriber

import (
	"context"
	"fmt"
	"os"
	"time"

	"otis/recorder"
)

const (
	EngineWhisper = "whisper"
	EngineGemini  = "gemini"
	EngineGroq    = "groq"
)

// ConfigError means the engine selection itself is invalid — unknown
// engine name or missing credential. Raised before any network call.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return "config: " + e.Reason }

// BackendError wraps a failure of the transcription call itself:
// network, quota, malformed response, or a failed local inference run.
type BackendError struct {
	Backend string
	Err     error
}

func (e *BackendError) Error() string { return e.Backend + ": " + e.Err.Error() }
func (e *BackendError) Unwrap() error { return e.Err }

// Usage is advisory token/cost telemetry from metered cloud backends.
// Only populated when debug instrumentation is enabled.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	InputCost    float64
	OutputCost   float64
	TotalCost    float64
}

// Result is the normalized output of any backend. Text is always set
// (possibly empty); Duration covers the inference/network call only and
// is never negative.
type Result struct {
	Text     string
	Duration time.Duration
	Engine   string
	Model    string
	Usage    *Usage
}

type Transcriber interface {
	Name() string
	Model() string
	Transcribe(ctx context.Context, clip *recorder.Clip) (*Result, error)
}

type Config struct {
	Engine   string
	Model    string // whisper model variant; ignored by cloud engines
	Language string
	Debug    bool // enables token/cost accounting on metered backends
}

// New maps an engine name to its backend. Unknown names and missing
// credentials fail fast with a ConfigError rather than silently
// defaulting.
func New(cfg Config) (Transcriber, error) {
	switch cfg.Engine {
	case EngineWhisper:
		return NewWhisper(cfg.Model, cfg.Language)
	case EngineGemini:
		key := os.Getenv("GEMINI_API_KEY")
		if key == "" {
			return nil, &ConfigError{Reason: "GEMINI_API_KEY not set"}
		}
		return NewGemini(key, cfg.Language, cfg.Debug), nil
	case EngineGroq:
		key := os.Getenv("GROQ_API_KEY")
		if key == "" {
			return nil, &ConfigError{Reason: "GROQ_API_KEY not set"}
		}
		return NewGroq(key, cfg.Language), nil
	default:
		return nil, &ConfigError{Reason: fmt.Sprintf("unknown engine %q", cfg.Engine)}
	}
}
