// Package recorder runs one microphone capture session: frames from the
// capture device are buffered and fed to the endpoint detector, and the
// session ends on detector completion, manual stop, or the watchdog.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"otis/audio"
	"otis/encoder"
	"otis/vad"
)

// ErrNoAudio means the stream started but nothing usable was captured.
var ErrNoAudio = errors.New("recorder: no audio captured")

// CaptureError wraps a device failure: reported to the user, never fatal
// to the controller.
type CaptureError struct {
	Err error
}

func (e *CaptureError) Error() string { return "capture: " + e.Err.Error() }
func (e *CaptureError) Unwrap() error { return e.Err }

// Clip is the finalized audio artifact of one session.
type Clip struct {
	PCM        []byte
	SampleRate int
	Channels   int
	Duration   time.Duration
	Path       string // transient WAV file, deleted by the caller after transcription
}

type Config struct {
	SampleRate uint32
	Channels   uint32
	// MaxDuration is the absolute cutoff. The detector never completes
	// without speech, so the session must bound itself.
	MaxDuration time.Duration
	TempDir     string
}

func DefaultConfig() Config {
	return Config{
		SampleRate:  encoder.SampleRate,
		Channels:    encoder.Channels,
		MaxDuration: 2 * time.Minute,
		TempDir:     os.TempDir(),
	}
}

// Session records exactly once. The capture callback is the single
// producer into the frame buffer; the recording goroutine only reads it
// after the stream has stopped.
type Session struct {
	capture audio.CaptureDevice
	det     *vad.Detector
	cfg     Config

	mu          sync.Mutex
	buf         []byte
	totalFrames uint64
	stopped     bool

	stopCh    chan struct{}
	stopOnce  sync.Once
	recording atomic.Bool
}

func New(capture audio.CaptureDevice, det *vad.Detector, cfg Config) *Session {
	return &Session{
		capture: capture,
		det:     det,
		cfg:     cfg,
		stopCh:  make(chan struct{}),
	}
}

// Stop ends the session manually, overriding the detector. Audio captured
// so far is still finalized.
func (s *Session) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *Session) Recording() bool {
	return s.recording.Load()
}

// Record captures until the detector declares the utterance complete, Stop
// is called, ctx is cancelled, or MaxDuration elapses. A device that fails
// to start yields a CaptureError; a session that captured nothing yields
// ErrNoAudio.
func (s *Session) Record(ctx context.Context) (*Clip, error) {
	if !s.recording.CompareAndSwap(false, true) {
		return nil, errors.New("recorder: session already recording")
	}
	defer s.recording.Store(false)

	s.det.Reset()

	done := make(chan struct{})
	var closeOnce sync.Once
	closeDone := func() { closeOnce.Do(func() { close(done) }) }

	s.capture.SetCallback(func(data []byte, frameCount uint32) {
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return
		}
		s.buf = append(s.buf, data...)
		s.totalFrames += uint64(frameCount)
		s.mu.Unlock()

		if s.det.Feed(data) == vad.UtteranceComplete {
			closeDone()
		}
	})

	if err := s.capture.Start(); err != nil {
		s.capture.ClearCallback()
		return nil, &CaptureError{Err: err}
	}

	watchdog := time.NewTimer(s.cfg.MaxDuration)
	defer watchdog.Stop()

	select {
	case <-done:
	case <-s.stopCh:
	case <-ctx.Done():
	case <-watchdog.C:
	}

	s.capture.Stop()
	s.capture.ClearCallback()

	s.mu.Lock()
	s.stopped = true
	pcm := s.buf
	frames := s.totalFrames
	s.mu.Unlock()

	// Under a tenth of a second is a misfire, not an utterance.
	if frames < uint64(s.cfg.SampleRate/10) {
		return nil, ErrNoAudio
	}

	duration := time.Duration(float64(frames) / float64(s.cfg.SampleRate) * float64(time.Second))

	path, err := writeWav(pcm, s.cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("writing clip: %w", err)
	}

	return &Clip{
		PCM:        pcm,
		SampleRate: int(s.cfg.SampleRate),
		Channels:   int(s.cfg.Channels),
		Duration:   duration,
		Path:       path,
	}, nil
}

func writeWav(pcm []byte, dir string) (string, error) {
	data, err := encoder.EncodePCM(encoder.NewWav(), pcm)
	if err != nil {
		return "", err
	}
	f, err := os.CreateTemp(dir, "otis-*.wav")
	if err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
