// Package vad turns a stream of PCM frames into an utterance boundary
// decision. Frame classification is delegated to a Classifier; the
// detector only runs the threshold/duration state machine on top of it.
package vad

import "time"

const (
	FrameMs    = 20
	frameBytes = 16000 * FrameMs / 1000 * 2 // 640 bytes at 16 kHz PCM16 mono
)

type Decision int

const (
	Continue Decision = iota
	UtteranceComplete
)

// Classifier scores a single fixed-size frame with a speech probability
// in [0, 1].
type Classifier interface {
	Classify(frame []byte, sampleRate int) (float64, error)
	Reset()
}

type Config struct {
	SpeechThreshold    float64       // probability at or above which a frame counts as speech
	MinSpeech          time.Duration // shorter utterances are discarded as noise
	MaxTrailingSilence time.Duration // continuous silence after speech that ends the utterance
}

func DefaultConfig() Config {
	return Config{
		SpeechThreshold:    0.5,
		MinSpeech:          500 * time.Millisecond,
		MaxTrailingSilence: 2500 * time.Millisecond,
	}
}

// Detector is owned by exactly one recording session and is not safe for
// concurrent use.
type Detector struct {
	cls        Classifier
	cfg        Config
	sampleRate int

	buf            []byte
	speechElapsed  time.Duration
	silenceElapsed time.Duration
	speechObserved bool
	done           bool
}

func New(cls Classifier, cfg Config, sampleRate int) *Detector {
	return &Detector{cls: cls, cfg: cfg, sampleRate: sampleRate}
}

// Feed consumes a chunk of PCM16 audio of any size, splitting it into
// classifier frames. It returns UtteranceComplete exactly once, at the
// frame where the trailing-silence threshold is first crossed. Silence
// before any speech has been observed is leading silence and never ends
// the utterance; a detector that sees no speech never completes, so the
// caller must enforce its own absolute duration cutoff.
func (d *Detector) Feed(pcm []byte) Decision {
	if d.done {
		return Continue
	}

	d.buf = append(d.buf, pcm...)
	for len(d.buf) >= frameBytes {
		frame := d.buf[:frameBytes]
		d.buf = d.buf[frameBytes:]

		prob, err := d.cls.Classify(frame, d.sampleRate)
		if err != nil {
			continue
		}

		frameDur := FrameMs * time.Millisecond
		if prob >= d.cfg.SpeechThreshold {
			d.speechElapsed += frameDur
			d.silenceElapsed = 0
			if d.speechElapsed >= d.cfg.MinSpeech {
				d.speechObserved = true
			}
		} else if d.speechObserved {
			d.silenceElapsed += frameDur
			if d.silenceElapsed >= d.cfg.MaxTrailingSilence {
				d.done = true
				return UtteranceComplete
			}
		}
	}
	return Continue
}

// SpeechObserved reports whether at least MinSpeech of speech has been
// classified since the last Reset.
func (d *Detector) SpeechObserved() bool {
	return d.speechObserved
}

// Done reports whether the detector has already emitted completion.
func (d *Detector) Done() bool {
	return d.done
}

func (d *Detector) Reset() {
	d.buf = d.buf[:0]
	d.speechElapsed = 0
	d.silenceElapsed = 0
	d.speechObserved = false
	d.done = false
	d.cls.Reset()
}
