package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"time"

	"otis/encoder"
	"otis/log"
	"otis/recorder"
)

const groqModel = "whisper-large-v3-turbo"

// Groq posts the clip to Groq's hosted Whisper endpoint, FLAC-compressed.
type Groq struct {
	apiKey   string
	language string
	apiURL   string
	client   *TracedClient
}

func NewGroq(apiKey, language string) *Groq {
	return &Groq{
		apiKey:   apiKey,
		language: language,
		apiURL:   "https://api.groq.com/openai/v1/audio/transcriptions",
		client:   NewTracedClient(),
	}
}

func (g *Groq) Name() string  { return EngineGroq }
func (g *Groq) Model() string { return groqModel }

type groqResponse struct {
	Text     string  `json:"text"`
	Duration float64 `json:"duration"`
}

func (g *Groq) Transcribe(ctx context.Context, clip *recorder.Clip) (*Result, error) {
	flacEnc, err := encoder.NewFlac()
	if err != nil {
		return nil, &BackendError{Backend: EngineGroq, Err: err}
	}
	audioData, err := encoder.EncodePCM(flacEnc, clip.PCM)
	if err != nil {
		return nil, &BackendError{Backend: EngineGroq, Err: fmt.Errorf("encoding upload: %w", err)}
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "audio.flac")
	if err != nil {
		return nil, &BackendError{Backend: EngineGroq, Err: err}
	}
	if _, err := part.Write(audioData); err != nil {
		return nil, &BackendError{Backend: EngineGroq, Err: err}
	}

	writer.WriteField("model", groqModel)
	writer.WriteField("response_format", "json")
	if g.language != "" && g.language != "auto" {
		writer.WriteField("language", g.language)
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, "POST", g.apiURL, &body)
	if err != nil {
		return nil, &BackendError{Backend: EngineGroq, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	start := time.Now()
	resp, err := g.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return nil, &BackendError{Backend: EngineGroq, Err: err}
	}

	if resp.StatusCode != 200 {
		return nil, &BackendError{
			Backend: EngineGroq,
			Err:     fmt.Errorf("API error %d: %s", resp.StatusCode, string(resp.Body)),
		}
	}

	var gResp groqResponse
	if err := json.Unmarshal(resp.Body, &gResp); err != nil {
		return nil, &BackendError{Backend: EngineGroq, Err: fmt.Errorf("response parse error: %w", err)}
	}

	m := resp.Metrics
	log.NetworkTrace(g.apiURL, m.ConnWait, m.DNS, m.TCP, m.TLS, m.TTFB, m.Total, m.ConnReused)

	return &Result{
		Text:     gResp.Text,
		Duration: elapsed,
		Engine:   EngineGroq,
		Model:    groqModel,
	}, nil
}
