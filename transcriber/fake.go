package transcriber

import (
	"context"
	"sync/atomic"
	"time"

	"otis/recorder"
)

// Fake is a test backend with scripted output.
type Fake struct {
	Text  string
	Err   error
	Delay time.Duration
	Usage *Usage

	calls atomic.Int64
}

func NewFake(text string, err error) *Fake {
	return &Fake{Text: text, Err: err}
}

func (f *Fake) Name() string  { return "fake" }
func (f *Fake) Model() string { return "fake-1" }

// Calls reports how many times Transcribe ran; used to assert that
// configuration errors never reach a backend.
func (f *Fake) Calls() int64 { return f.calls.Load() }

func (f *Fake) Transcribe(_ context.Context, _ *recorder.Clip) (*Result, error) {
	f.calls.Add(1)
	if f.Delay > 0 {
		time.Sleep(f.Delay)
	}
	if f.Err != nil {
		return nil, &BackendError{Backend: "fake", Err: f.Err}
	}
	return &Result{
		Text:     f.Text,
		Duration: f.Delay + time.Millisecond,
		Engine:   "fake",
		Model:    "fake-1",
		Usage:    f.Usage,
	}, nil
}
