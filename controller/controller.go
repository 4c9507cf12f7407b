// Package controller owns the dictation state machine: it turns hotkey
// and tray events into recording sessions, hands finished clips to the
// configured transcriber, and routes results to the clipboard, the
// history store, and the notifier.
package controller

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"otis/audio"
	"otis/history"
	"otis/log"
	"otis/recorder"
	"otis/settings"
	"otis/transcriber"
	"otis/vad"
)

// State is the controller's lifecycle phase.
type State int

const (
	Idle State = iota
	Recording
	Transcribing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Transcribing:
		return "transcribing"
	default:
		return "unknown"
	}
}

const previewLen = 100

type SettingsRepo interface {
	Load() (settings.Settings, error)
	Save(settings.Settings) error
}

type Notifier interface {
	Notify(title, message string) error
}

type Clipboard interface {
	Copy(text string) error
}

type Config struct {
	Recorder recorder.Config
	// KeepAudio leaves the temp WAV on disk after transcription.
	KeepAudio bool
	Debug     bool
}

// Controller serializes all dictation work: at most one session runs at
// a time, and Start while busy is a no-op.
type Controller struct {
	capture  audio.CaptureDevice
	det      *vad.Detector
	store    *history.Store
	repo     SettingsRepo
	notifier Notifier
	clip     Clipboard
	cfg      Config

	// Swapped in tests to avoid real credentials and binaries.
	newTranscriber func(transcriber.Config) (transcriber.Transcriber, error)

	mu      sync.Mutex
	state   State
	session *recorder.Session
	last    *transcriber.Result
	lastErr error

	completed atomic.Int64
}

func New(capture audio.CaptureDevice, det *vad.Detector, store *history.Store,
	repo SettingsRepo, notifier Notifier, clip Clipboard, cfg Config) *Controller {
	return &Controller{
		capture:        capture,
		det:            det,
		store:          store,
		repo:           repo,
		notifier:       notifier,
		clip:           clip,
		cfg:            cfg,
		newTranscriber: transcriber.New,
	}
}

func (c *Controller) Status() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) LastResult() *transcriber.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// LastError is the failure of the most recent session, nil after a
// successful one.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Completed counts transcriptions finished since startup.
func (c *Controller) Completed() int64 {
	return c.completed.Load()
}

func (c *Controller) setLastError(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}

// Start begins a recording session. Ignored unless the controller is
// idle, so a second hotkey press during transcription cannot stack
// sessions.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	if c.state != Idle {
		c.mu.Unlock()
		return
	}
	sess := recorder.New(c.capture, c.det, c.cfg.Recorder)
	c.session = sess
	c.state = Recording
	c.mu.Unlock()

	go c.run(ctx, sess)
}

// Stop ends the active recording early; the captured audio still goes
// through transcription. A no-op outside the Recording state.
func (c *Controller) Stop() {
	c.mu.Lock()
	sess := c.session
	state := c.state
	c.mu.Unlock()
	if state == Recording && sess != nil {
		sess.Stop()
	}
}

func (c *Controller) run(ctx context.Context, sess *recorder.Session) {
	defer c.setIdle()

	cfg, err := c.repo.Load()
	if err != nil {
		log.Errorf("settings load: %v", err)
		cfg = settings.Default()
	}
	log.SessionStart(cfg.Engine, cfg.Model)

	clip, err := sess.Record(ctx)
	if err != nil {
		c.setLastError(err)
		c.reportRecordError(err)
		return
	}

	c.mu.Lock()
	c.state = Transcribing
	c.mu.Unlock()

	tr, err := c.newTranscriber(transcriber.Config{
		Engine:   cfg.Engine,
		Model:    cfg.Model,
		Language: cfg.Language,
		Debug:    c.cfg.Debug,
	})
	if err != nil {
		// Misconfiguration, not a transcription attempt: nothing is
		// persisted and no backend is contacted.
		c.removeClip(clip)
		c.setLastError(err)
		c.notifier.Notify("Otis", "Configuration error: "+err.Error())
		log.Errorf("transcriber config: %v", err)
		return
	}

	res, err := tr.Transcribe(ctx, clip)
	c.removeClip(clip)

	audioS := clip.Duration.Seconds()
	if err != nil {
		c.setLastError(err)
		c.notifier.Notify("Otis", "Transcription failed: "+err.Error())
		log.Errorf("transcription: %v", err)
		log.Transcription(cfg.Engine, cfg.Model, cfg.Language, audioS, 0, 0, true)
		if _, serr := c.store.Save(&history.Record{
			DurationSec: audioS,
			Engine:      tr.Name(),
			Model:       tr.Model(),
			Language:    cfg.Language,
			Error:       err.Error(),
		}, cfg.Telemetry); serr != nil {
			log.Errorf("history save: %v", serr)
		}
		return
	}

	procS := res.Duration.Seconds()
	rtf := RealtimeFactor(audioS, procS)
	log.Transcription(res.Engine, res.Model, cfg.Language, audioS, procS, rtf, false)
	if res.Usage != nil {
		log.Info(fmt.Sprintf("tokens in=%d out=%d cost=$%.6f",
			res.Usage.InputTokens, res.Usage.OutputTokens, res.Usage.TotalCost))
	}

	if err := c.clip.Copy(res.Text); err != nil {
		log.Errorf("clipboard: %v", err)
	}

	rec := &history.Record{
		DurationSec:    audioS,
		TranscribeSec:  procS,
		RealtimeFactor: rtf,
		Engine:         res.Engine,
		Model:          res.Model,
		Language:       cfg.Language,
		Text:           res.Text,
	}
	if res.Usage != nil {
		rec.TokensTotal = res.Usage.InputTokens + res.Usage.OutputTokens
		rec.CostTotal = res.Usage.TotalCost
	}
	if _, err := c.store.Save(rec, cfg.Telemetry); err != nil {
		log.Errorf("history save: %v", err)
	}

	c.mu.Lock()
	c.last = res
	c.lastErr = nil
	c.mu.Unlock()
	c.completed.Add(1)

	c.notifier.Notify("Otis", Preview(res.Text))
}

func (c *Controller) setIdle() {
	c.mu.Lock()
	c.state = Idle
	c.session = nil
	c.mu.Unlock()
}

func (c *Controller) reportRecordError(err error) {
	var capErr *recorder.CaptureError
	switch {
	case errors.Is(err, recorder.ErrNoAudio):
		c.notifier.Notify("Otis", "No speech detected")
	case errors.As(err, &capErr):
		c.notifier.Notify("Otis", "Microphone error: "+capErr.Err.Error())
		log.Errorf("capture: %v", err)
	default:
		c.notifier.Notify("Otis", "Recording failed: "+err.Error())
		log.Errorf("recording: %v", err)
	}
}

func (c *Controller) removeClip(clip *recorder.Clip) {
	if c.cfg.KeepAudio || clip.Path == "" {
		return
	}
	if err := os.Remove(clip.Path); err != nil {
		log.Warnf("removing clip %s: %v", clip.Path, err)
	}
}

// History lists the latest successful transcriptions.
func (c *Controller) History(limit int) ([]history.Record, error) {
	return c.store.History(limit)
}

// FullText fetches one complete transcript by id.
func (c *Controller) FullText(id int64) (string, error) {
	return c.store.Text(id)
}

// ClearHistoryText wipes stored transcript text, keeping the usage
// metadata.
func (c *Controller) ClearHistoryText() (int64, error) {
	n, err := c.store.ClearSensitive()
	if err != nil {
		return 0, err
	}
	log.Info(fmt.Sprintf("cleared %d transcripts", n))
	return n, nil
}

// UpdateSettings applies a mutation to the persisted settings.
func (c *Controller) UpdateSettings(apply func(*settings.Settings)) error {
	cfg, err := c.repo.Load()
	if err != nil {
		return err
	}
	apply(&cfg)
	return c.repo.Save(cfg)
}

// Settings returns the current persisted settings.
func (c *Controller) Settings() (settings.Settings, error) {
	return c.repo.Load()
}

// Preview shortens transcript text for a notification.
func Preview(text string) string {
	r := []rune(text)
	if len(r) <= previewLen {
		return text
	}
	return string(r[:previewLen]) + "..."
}

// RealtimeFactor is processing time per second of audio. Zero-length
// audio yields 0 rather than dividing by zero.
func RealtimeFactor(audioS, procS float64) float64 {
	if audioS <= 0 {
		return 0
	}
	return procS / audioS
}

// SpeedMultiplier is how many times faster than realtime the engine
// ran. Instantaneous processing yields 0 rather than infinity.
func SpeedMultiplier(audioS, procS float64) float64 {
	if procS <= 0 {
		return 0
	}
	return audioS / procS
}
