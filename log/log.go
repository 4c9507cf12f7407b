// Package log writes app diagnostics to a file under the user config
// dir. Transcript text never goes through here — sensitive content lives
// only in the history store, where it can be wiped.
package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	diagLog  zerolog.Logger
	diagFile *os.File
	logMu    sync.Mutex
	logReady bool
	dir      string
)

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: -logpath flag
	if flagPath != "" {
		return absPath(flagPath)
	}

	// Priority 2: OTIS_LOG_PATH environment variable
	if envPath := os.Getenv("OTIS_LOG_PATH"); envPath != "" {
		return absPath(envPath)
	}

	// Priority 3: OS config location
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "otis"), nil
}

func absPath(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	diagPath := filepath.Join(dir, "diagnostics_log.txt")
	f, err := os.OpenFile(diagPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	diagFile = f

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().Timestamp().Int("pid", os.Getpid()).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	logReady = false
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

// Transcription records the anonymous metrics of one attempt.
func Transcription(engine, model, language string, audioS, transcribeS, rtf float64, failed bool) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("engine", engine).
		Str("model", model).
		Str("language", language).
		Float64("audio_s", audioS).
		Float64("transcribe_s", transcribeS).
		Float64("rtf", rtf).
		Bool("failed", failed).
		Msg("transcription")
}

// NetworkTrace records the phase breakdown of a cloud backend request.
func NetworkTrace(url string, connWait, dns, tcp, tls, ttfb, total time.Duration, reused bool) {
	if !logReady {
		return
	}
	connStatus := "new"
	if reused {
		connStatus = "reused"
	}
	diagLog.Info().
		Str("url", url).
		Str("conn", connStatus).
		Int64("conn_wait_ms", connWait.Milliseconds()).
		Int64("dns_ms", dns.Milliseconds()).
		Int64("tcp_ms", tcp.Milliseconds()).
		Int64("tls_ms", tls.Milliseconds()).
		Int64("ttfb_ms", ttfb.Milliseconds()).
		Int64("total_ms", total.Milliseconds()).
		Msg("network")
}

func SessionStart(engine, model string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("engine", engine).
		Str("model", model).
		Msg("session_start")
}

func SessionEnd(count int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Int("count", count).
		Msg("session_end")
}
