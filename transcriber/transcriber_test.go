package transcriber

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"otis/recorder"
)

func testClip(t *testing.T) *recorder.Clip {
	t.Helper()
	pcm := make([]byte, 16000*2) // one second of silence
	return &recorder.Clip{
		PCM:        pcm,
		SampleRate: 16000,
		Channels:   1,
		Duration:   time.Second,
		Path:       filepath.Join(t.TempDir(), "clip.wav"),
	}
}

// fakeWhisperBin writes a shell script that stands in for whisper-cli.
func fakeWhisperBin(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "whisper-cli")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNewUnknownEngine(t *testing.T) {
	_, err := New(Config{Engine: "parakeet"})
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want ConfigError", err)
	}
}

func TestNewGeminiRequiresKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	_, err := New(Config{Engine: EngineGemini})
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want ConfigError", err)
	}

	t.Setenv("GEMINI_API_KEY", "test-key")
	tr, err := New(Config{Engine: EngineGemini})
	if err != nil {
		t.Fatalf("New with key: %v", err)
	}
	if tr.Name() != EngineGemini {
		t.Errorf("Name = %q", tr.Name())
	}
}

func TestNewGroqRequiresKey(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "")
	_, err := New(Config{Engine: EngineGroq})
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want ConfigError", err)
	}

	t.Setenv("GROQ_API_KEY", "test-key")
	tr, err := New(Config{Engine: EngineGroq})
	if err != nil {
		t.Fatalf("New with key: %v", err)
	}
	if tr.Model() != groqModel {
		t.Errorf("Model = %q", tr.Model())
	}
}

func TestNewWhisperMissingBinary(t *testing.T) {
	t.Setenv("OTIS_WHISPER_BIN", "")
	t.Setenv("PATH", t.TempDir())
	_, err := New(Config{Engine: EngineWhisper})
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want ConfigError", err)
	}
}

func TestWhisperTranscribe(t *testing.T) {
	bin := fakeWhisperBin(t, `echo "  hello from whisper  "`)
	t.Setenv("OTIS_WHISPER_BIN", bin)

	tr, err := New(Config{Engine: EngineWhisper, Model: "tiny", Language: "en"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := tr.Transcribe(context.Background(), testClip(t))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "hello from whisper" {
		t.Errorf("Text = %q, want trimmed output", res.Text)
	}
	if res.Engine != EngineWhisper || res.Model != "tiny" {
		t.Errorf("result = %+v", res)
	}
	if res.Duration <= 0 {
		t.Errorf("Duration = %v", res.Duration)
	}
}

func TestWhisperFailureCarriesStderr(t *testing.T) {
	bin := fakeWhisperBin(t, `echo "model file not found" >&2; exit 1`)
	t.Setenv("OTIS_WHISPER_BIN", bin)

	tr, err := New(Config{Engine: EngineWhisper})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = tr.Transcribe(context.Background(), testClip(t))
	var be *BackendError
	if !errors.As(err, &be) {
		t.Fatalf("err = %v, want BackendError", err)
	}
	if be.Backend != EngineWhisper {
		t.Errorf("Backend = %q", be.Backend)
	}
}

func TestGroqTranscribe(t *testing.T) {
	var gotAuth, gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Errorf("multipart parse: %v", err)
		}
		gotModel = r.FormValue("model")
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file part: %v", err)
		} else {
			f.Close()
		}
		w.Write([]byte(`{"text": "hello from groq", "duration": 1.0}`))
	}))
	defer srv.Close()

	g := NewGroq("test-key", "en")
	g.apiURL = srv.URL

	res, err := g.Transcribe(context.Background(), testClip(t))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "hello from groq" {
		t.Errorf("Text = %q", res.Text)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotModel != groqModel {
		t.Errorf("model field = %q", gotModel)
	}
}

func TestGroqAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(429)
		w.Write([]byte(`{"error": "rate limit"}`))
	}))
	defer srv.Close()

	g := NewGroq("test-key", "")
	g.apiURL = srv.URL

	_, err := g.Transcribe(context.Background(), testClip(t))
	var be *BackendError
	if !errors.As(err, &be) {
		t.Fatalf("err = %v, want BackendError", err)
	}
	if be.Backend != EngineGroq {
		t.Errorf("Backend = %q", be.Backend)
	}
}

func TestFakeCountsCalls(t *testing.T) {
	f := NewFake("x", nil)
	if f.Calls() != 0 {
		t.Fatal("fresh fake has calls")
	}
	if _, err := f.Transcribe(context.Background(), testClip(t)); err != nil {
		t.Fatal(err)
	}
	if f.Calls() != 1 {
		t.Errorf("Calls = %d", f.Calls())
	}
}
