package transcriber

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"otis/encoder"
	"otis/recorder"
)

const (
	geminiModel  = "gemini-2.5-flash-lite"
	geminiPrompt = "Transcribe this audio exactly as spoken. Only return the transcription, nothing else."

	// Published per-million-token rates for flash-lite. Advisory only.
	geminiInputCostPerMTok  = 0.10
	geminiOutputCostPerMTok = 0.40
)

// Gemini sends the clip as inline audio to the Gemini API. The upload is
// FLAC-compressed to roughly halve the request size.
type Gemini struct {
	apiKey   string
	language string
	debug    bool
}

func NewGemini(apiKey, language string, debug bool) *Gemini {
	return &Gemini{apiKey: apiKey, language: language, debug: debug}
}

func (g *Gemini) Name() string  { return EngineGemini }
func (g *Gemini) Model() string { return geminiModel }

func (g *Gemini) Transcribe(ctx context.Context, clip *recorder.Clip) (*Result, error) {
	flacEnc, err := encoder.NewFlac()
	if err != nil {
		return nil, &BackendError{Backend: EngineGemini, Err: err}
	}
	audioData, err := encoder.EncodePCM(flacEnc, clip.PCM)
	if err != nil {
		return nil, &BackendError{Backend: EngineGemini, Err: fmt.Errorf("encoding upload: %w", err)}
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  g.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, &BackendError{Backend: EngineGemini, Err: err}
	}

	prompt := geminiPrompt
	if g.language != "" && g.language != "auto" {
		prompt += " The audio is in language " + g.language + "."
	}

	contents := []*genai.Content{
		genai.NewContentFromParts(
			[]*genai.Part{
				genai.NewPartFromText(prompt),
				genai.NewPartFromBytes(audioData, "audio/flac"),
			},
			genai.RoleUser,
		),
	}

	start := time.Now()
	resp, err := client.Models.GenerateContent(ctx, geminiModel, contents, nil)
	elapsed := time.Since(start)
	if err != nil {
		return nil, &BackendError{Backend: EngineGemini, Err: err}
	}

	result := &Result{
		Text:     strings.TrimSpace(resp.Text()),
		Duration: elapsed,
		Engine:   EngineGemini,
		Model:    geminiModel,
	}
	if g.debug && resp.UsageMetadata != nil {
		um := resp.UsageMetadata
		in := int64(um.PromptTokenCount)
		out := int64(um.CandidatesTokenCount)
		usage := &Usage{
			InputTokens:  in,
			OutputTokens: out,
			InputCost:    float64(in) / 1e6 * geminiInputCostPerMTok,
			OutputCost:   float64(out) / 1e6 * geminiOutputCostPerMTok,
		}
		usage.TotalCost = usage.InputCost + usage.OutputCost
		result.Usage = usage
	}
	return result, nil
}
