package controller

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"otis/audio"
	"otis/history"
	"otis/notify"
	"otis/recorder"
	"otis/settings"
	"otis/transcriber"
	"otis/vad"
)

// loudClassifier calls any frame with a nonzero lead byte speech.
type loudClassifier struct{}

func (loudClassifier) Classify(frame []byte, _ int) (float64, error) {
	if frame[0] != 0 {
		return 1.0, nil
	}
	return 0, nil
}

func (loudClassifier) Reset() {}

func speechPCM(seconds float64) []byte {
	pcm := make([]byte, int(seconds*16000)*2)
	for i := range pcm {
		pcm[i] = 0x10
	}
	return pcm
}

type fakeClipboard struct {
	mu   sync.Mutex
	text string
}

func (f *fakeClipboard) Copy(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.text = text
	return nil
}

func (f *fakeClipboard) Text() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.text
}

type fixture struct {
	ctl      *Controller
	store    *history.Store
	repo     *settings.Repo
	notifier *notify.Fake
	clip     *fakeClipboard
	backend  *transcriber.Fake
	capture  *audio.FakeCapture
}

func newFixture(t *testing.T, pcm []byte, s settings.Settings) *fixture {
	t.Helper()

	ctx := audio.NewFakeContext(pcm, 16000)
	capture, err := ctx.NewCapture(nil, audio.CaptureConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatal(err)
	}

	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	repo := settings.NewRepo(filepath.Join(t.TempDir(), "settings.ini"))
	if err := repo.Save(s); err != nil {
		t.Fatal(err)
	}

	notifier := notify.NewFake()
	clip := &fakeClipboard{}
	backend := transcriber.NewFake("the quick brown fox", nil)

	recCfg := recorder.DefaultConfig()
	recCfg.TempDir = t.TempDir()

	det := vad.New(loudClassifier{}, vad.DefaultConfig(), 16000)
	ctl := New(capture, det, store, repo, notifier, clip, Config{Recorder: recCfg})
	ctl.newTranscriber = func(transcriber.Config) (transcriber.Transcriber, error) {
		return backend, nil
	}

	return &fixture{
		ctl:      ctl,
		store:    store,
		repo:     repo,
		notifier: notifier,
		clip:     clip,
		backend:  backend,
		capture:  capture.(*audio.FakeCapture),
	}
}

func waitIdle(t *testing.T, c *Controller) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if c.Status() == Idle {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("controller stuck in %v", c.Status())
}

func defaultSettings() settings.Settings {
	s := settings.Default()
	return s
}

func TestFullSession(t *testing.T) {
	f := newFixture(t, speechPCM(0.6), defaultSettings())

	f.ctl.Start(context.Background())
	if got := f.ctl.Status(); got != Recording {
		t.Fatalf("Status after Start = %v", got)
	}
	waitIdle(t, f.ctl)

	if got := f.clip.Text(); got != "the quick brown fox" {
		t.Errorf("clipboard = %q", got)
	}

	recs, err := f.store.History(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("history has %d entries, want 1", len(recs))
	}
	if recs[0].Text != "the quick brown fox" || recs[0].Engine != "fake" {
		t.Errorf("history entry = %+v", recs[0])
	}
	if recs[0].DurationSec < 3.0 {
		t.Errorf("DurationSec = %v, want speech plus trailing silence", recs[0].DurationSec)
	}
	if recs[0].RealtimeFactor <= 0 {
		t.Errorf("RealtimeFactor = %v, want > 0", recs[0].RealtimeFactor)
	}
	if recs[0].TranscribeSec <= 0 {
		t.Errorf("TranscribeSec = %v, want > 0", recs[0].TranscribeSec)
	}

	last := f.ctl.LastResult()
	if last == nil || last.Text != "the quick brown fox" {
		t.Errorf("LastResult = %+v", last)
	}

	msgs := f.notifier.Messages()
	if len(msgs) == 0 || !strings.Contains(msgs[len(msgs)-1], "the quick brown fox") {
		t.Errorf("notifications = %v", msgs)
	}
}

func TestUsageTotalsPersisted(t *testing.T) {
	f := newFixture(t, speechPCM(0.6), defaultSettings())
	f.backend.Usage = &transcriber.Usage{
		InputTokens:  1000,
		OutputTokens: 40,
		TotalCost:    0.000116,
	}

	f.ctl.Start(context.Background())
	waitIdle(t, f.ctl)

	recs, err := f.store.History(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("history has %d entries", len(recs))
	}
	if recs[0].TokensTotal != 1040 {
		t.Errorf("TokensTotal = %d, want 1040", recs[0].TokensTotal)
	}
	if recs[0].CostTotal != 0.000116 {
		t.Errorf("CostTotal = %v, want 0.000116", recs[0].CostTotal)
	}
}

func TestLastErrorClearedOnSuccess(t *testing.T) {
	f := newFixture(t, speechPCM(0.6), defaultSettings())
	f.backend.Err = errors.New("quota exceeded")

	f.ctl.Start(context.Background())
	waitIdle(t, f.ctl)
	if f.ctl.LastError() == nil {
		t.Fatal("LastError nil after failed session")
	}
	if f.ctl.Completed() != 0 {
		t.Errorf("Completed = %d after failure", f.ctl.Completed())
	}

	f.backend.Err = nil
	f.ctl.Start(context.Background())
	waitIdle(t, f.ctl)
	if err := f.ctl.LastError(); err != nil {
		t.Errorf("LastError = %v after success, want nil", err)
	}
	if f.ctl.Completed() != 1 {
		t.Errorf("Completed = %d, want 1", f.ctl.Completed())
	}
}

func TestClipFileRemovedAfterTranscription(t *testing.T) {
	f := newFixture(t, speechPCM(0.6), defaultSettings())

	var clipPath string
	f.backend.Delay = 20 * time.Millisecond

	f.ctl.Start(context.Background())
	// Grab the temp path while the clip still exists.
	deadline := time.Now().Add(10 * time.Second)
	for clipPath == "" && time.Now().Before(deadline) {
		entries, _ := os.ReadDir(f.ctl.cfg.Recorder.TempDir)
		for _, e := range entries {
			if strings.HasPrefix(e.Name(), "otis-") {
				clipPath = filepath.Join(f.ctl.cfg.Recorder.TempDir, e.Name())
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	if clipPath == "" {
		t.Fatal("clip file never appeared")
	}
	waitIdle(t, f.ctl)

	if _, err := os.Stat(clipPath); !os.IsNotExist(err) {
		t.Errorf("clip file %s survived transcription", clipPath)
	}
}

func TestStartWhileBusyIsNoop(t *testing.T) {
	f := newFixture(t, speechPCM(0.6), defaultSettings())
	f.backend.Delay = time.Second

	f.ctl.Start(context.Background())

	// Hammer Start through the Recording/Transcribing window.
	for i := 0; i < 20; i++ {
		f.ctl.Start(context.Background())
		time.Sleep(5 * time.Millisecond)
	}
	waitIdle(t, f.ctl)

	if calls := f.backend.Calls(); calls != 1 {
		t.Errorf("backend called %d times, want 1", calls)
	}
}

func TestManualStopStillTranscribes(t *testing.T) {
	// Endless speech: only Stop can end this one.
	f := newFixture(t, speechPCM(30), defaultSettings())
	f.capture.Interval = time.Millisecond

	f.ctl.Start(context.Background())
	time.Sleep(100 * time.Millisecond)
	f.ctl.Stop()
	waitIdle(t, f.ctl)

	if calls := f.backend.Calls(); calls != 1 {
		t.Errorf("backend called %d times, want 1", calls)
	}
	if got := f.clip.Text(); got != "the quick brown fox" {
		t.Errorf("clipboard = %q", got)
	}
}

func TestConfigErrorSkipsBackendAndStore(t *testing.T) {
	s := defaultSettings()
	s.Engine = "bogus"
	f := newFixture(t, speechPCM(0.6), s)
	// Dispatch through the real factory so the unknown engine is rejected.
	f.ctl.newTranscriber = transcriber.New

	f.ctl.Start(context.Background())
	waitIdle(t, f.ctl)

	if calls := f.backend.Calls(); calls != 0 {
		t.Errorf("backend reached despite config error: %d calls", calls)
	}
	st, err := f.store.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if st.Sessions != 0 {
		t.Errorf("config error persisted %d sessions, want 0", st.Sessions)
	}
	found := false
	for _, m := range f.notifier.Messages() {
		if strings.Contains(m, "Configuration error") {
			found = true
		}
	}
	if !found {
		t.Errorf("no configuration error notification: %v", f.notifier.Messages())
	}
}

func TestBackendErrorSavedWithoutText(t *testing.T) {
	f := newFixture(t, speechPCM(0.6), defaultSettings())
	f.backend.Err = errors.New("quota exceeded")

	f.ctl.Start(context.Background())
	waitIdle(t, f.ctl)

	st, err := f.store.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if st.Sessions != 1 || st.FailedCount != 1 || st.Transcripts != 0 {
		t.Errorf("Stats = %+v, want one failed session, no transcript", st)
	}
	recs, err := f.store.History(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 0 {
		t.Errorf("failed attempt visible in history: %+v", recs)
	}
	found := false
	for _, m := range f.notifier.Messages() {
		if strings.Contains(m, "Transcription failed") {
			found = true
		}
	}
	if !found {
		t.Errorf("no failure notification: %v", f.notifier.Messages())
	}
}

func TestTelemetryDisabledHidesMetadata(t *testing.T) {
	s := defaultSettings()
	s.Telemetry = false
	f := newFixture(t, speechPCM(0.6), s)

	f.ctl.Start(context.Background())
	waitIdle(t, f.ctl)

	if got := f.clip.Text(); got != "the quick brown fox" {
		t.Errorf("clipboard = %q", got)
	}
	st, err := f.store.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if st.SentinelRows != 1 || st.Transcripts != 1 || st.TotalAudioS != 0 {
		t.Errorf("Stats = %+v, want sentinel session carrying the text", st)
	}
}

func TestNoAudioNotifiesWithoutSaving(t *testing.T) {
	f := newFixture(t, nil, defaultSettings())
	f.capture.Interval = time.Hour // one 64ms chunk, under the misfire floor

	recCfg := recorder.DefaultConfig()
	recCfg.TempDir = t.TempDir()
	recCfg.MaxDuration = 50 * time.Millisecond
	f.ctl.cfg.Recorder = recCfg

	f.ctl.Start(context.Background())
	waitIdle(t, f.ctl)

	if calls := f.backend.Calls(); calls != 0 {
		t.Errorf("backend called for an empty recording")
	}
	st, err := f.store.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if st.Sessions != 0 {
		t.Errorf("empty recording persisted %d sessions", st.Sessions)
	}
	found := false
	for _, m := range f.notifier.Messages() {
		if strings.Contains(m, "No speech detected") {
			found = true
		}
	}
	if !found {
		t.Errorf("no misfire notification: %v", f.notifier.Messages())
	}
}

func TestCaptureErrorNotifies(t *testing.T) {
	f := newFixture(t, nil, defaultSettings())

	ctx := audio.NewFailingContext()
	capture, _ := ctx.NewCapture(nil, audio.CaptureConfig{SampleRate: 16000, Channels: 1})
	f.ctl.capture = capture

	f.ctl.Start(context.Background())
	waitIdle(t, f.ctl)

	found := false
	for _, m := range f.notifier.Messages() {
		if strings.Contains(m, "Microphone error") {
			found = true
		}
	}
	if !found {
		t.Errorf("no microphone error notification: %v", f.notifier.Messages())
	}
	st, err := f.store.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if st.Sessions != 0 {
		t.Errorf("capture error persisted %d sessions", st.Sessions)
	}
}

func TestUpdateSettingsRoundTrip(t *testing.T) {
	f := newFixture(t, nil, defaultSettings())

	err := f.ctl.UpdateSettings(func(s *settings.Settings) {
		s.Engine = "gemini"
		s.Telemetry = false
	})
	if err != nil {
		t.Fatal(err)
	}

	s, err := f.ctl.Settings()
	if err != nil {
		t.Fatal(err)
	}
	if s.Engine != "gemini" || s.Telemetry {
		t.Errorf("Settings = %+v", s)
	}
}

func TestPreview(t *testing.T) {
	if got := Preview("short"); got != "short" {
		t.Errorf("Preview(short) = %q", got)
	}
	long := strings.Repeat("a", 150)
	got := Preview(long)
	if got != strings.Repeat("a", 100)+"..." {
		t.Errorf("Preview truncated to %d chars", len(got))
	}
}

func TestTimingGuards(t *testing.T) {
	if got := RealtimeFactor(0, 5); got != 0 {
		t.Errorf("RealtimeFactor(0, 5) = %v", got)
	}
	if got := RealtimeFactor(10, 5); got != 0.5 {
		t.Errorf("RealtimeFactor(10, 5) = %v", got)
	}
	if got := SpeedMultiplier(10, 0); got != 0 {
		t.Errorf("SpeedMultiplier(10, 0) = %v", got)
	}
	if got := SpeedMultiplier(10, 5); got != 2 {
		t.Errorf("SpeedMultiplier(10, 5) = %v", got)
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{Idle: "idle", Recording: "recording", Transcribing: "transcribing"}
	for s, want := range cases {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", s, s.String(), want)
		}
	}
}
