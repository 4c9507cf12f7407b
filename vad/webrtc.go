package vad

import webrtcvad "github.com/maxhawkins/go-webrtcvad"

// Aggressiveness 3 keeps keyboard and fan noise out of the speech count.
const webrtcMode = 3

// WebRTCClassifier adapts the binary webrtcvad decision to the
// probability contract: 1.0 for speech frames, 0.0 otherwise.
type WebRTCClassifier struct {
	vad *webrtcvad.VAD
}

func NewWebRTC() (*WebRTCClassifier, error) {
	v, err := webrtcvad.New()
	if err != nil {
		return nil, err
	}
	if err := v.SetMode(webrtcMode); err != nil {
		return nil, err
	}
	return &WebRTCClassifier{vad: v}, nil
}

func (c *WebRTCClassifier) Classify(frame []byte, sampleRate int) (float64, error) {
	active, err := c.vad.Process(sampleRate, frame)
	if err != nil {
		return 0, err
	}
	if active {
		return 1.0, nil
	}
	return 0, nil
}

func (c *WebRTCClassifier) Reset() {}
