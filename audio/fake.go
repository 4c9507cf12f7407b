package audio

import (
	"errors"
	"sync"
	"time"
)

const (
	fakeFrameSize     = 1024
	fakeBytesPerFrame = 2 // 16-bit mono
)

// FakeContext replays canned PCM through the CaptureDevice interface.
// Once the PCM runs out the capture keeps delivering silence frames, so
// trailing-silence detection behaves as it does against a live mic.
type FakeContext struct {
	pcm        []byte
	sampleRate uint32
	failStart  bool
}

func NewFakeContext(pcm []byte, sampleRate uint32) *FakeContext {
	return &FakeContext{pcm: pcm, sampleRate: sampleRate}
}

// NewFailingContext returns a context whose captures fail on Start.
func NewFailingContext() *FakeContext {
	return &FakeContext{failStart: true}
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) { return nil, nil }
func (f *FakeContext) Close()                         {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	return &FakeCapture{
		pcm:        f.pcm,
		sampleRate: f.sampleRate,
		failStart:  f.failStart,
	}, nil
}

type FakeCapture struct {
	pcm        []byte
	sampleRate uint32
	failStart  bool

	// Interval between delivered chunks; zero means as fast as possible.
	Interval time.Duration

	mu       sync.Mutex
	cb       DataCallback
	stopCh   chan struct{}
	feedDone chan struct{}
}

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) DeviceName() string { return "fake" }

func (f *FakeCapture) loadCallback() DataCallback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cb
}

func (f *FakeCapture) Start() error {
	if f.failStart {
		return errors.New("fake capture: device unavailable")
	}

	f.stopCh = make(chan struct{})
	f.feedDone = make(chan struct{})
	chunkBytes := fakeFrameSize * fakeBytesPerFrame

	go func() {
		defer close(f.feedDone)
		pos := 0
		silence := make([]byte, chunkBytes)
		for {
			select {
			case <-f.stopCh:
				return
			default:
			}

			cb := f.loadCallback()
			if cb == nil {
				time.Sleep(time.Millisecond)
				continue
			}

			if pos < len(f.pcm) {
				end := min(pos+chunkBytes, len(f.pcm))
				chunk := make([]byte, end-pos)
				copy(chunk, f.pcm[pos:end])
				cb(chunk, uint32(len(chunk)/fakeBytesPerFrame))
				pos = end
			} else {
				cb(silence, fakeFrameSize)
			}

			if f.Interval > 0 {
				select {
				case <-f.stopCh:
					return
				case <-time.After(f.Interval):
				}
			}
		}
	}()

	return nil
}

func (f *FakeCapture) Stop() {
	if f.stopCh == nil {
		return
	}
	select {
	case <-f.stopCh:
	default:
		close(f.stopCh)
	}
	<-f.feedDone
}

func (f *FakeCapture) Close() {
	f.Stop()
}
