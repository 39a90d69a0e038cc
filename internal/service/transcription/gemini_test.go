package transcription

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"repairscribe/internal/models"
)

type geminiStub struct {
	mu     sync.Mutex
	paths  []string
	status int
	reply  string
}

func (s *geminiStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_, _ = io.Copy(io.Discard, r.Body)
	s.mu.Lock()
	s.paths = append(s.paths, r.URL.Path)
	s.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(s.status)
	_, _ = io.WriteString(w, s.reply)
}

func newGeminiStub(t *testing.T, stub *geminiStub) *GeminiProvider {
	t.Helper()
	ts := httptest.NewServer(stub)
	t.Cleanup(ts.Close)
	p, err := NewGeminiProvider(context.Background(), "test-key", ts.URL, "gemini-2.0-flash")
	if err != nil {
		t.Fatalf("NewGeminiProvider: %v", err)
	}
	return p
}

func TestGeminiProviderUsesConfiguredBaseURL(t *testing.T) {
	stub := &geminiStub{
		status: http.StatusOK,
		reply: `{"candidates":[{"content":{"role":"model","parts":[
			{"text":"Speaker 1: the brakes squeal\nSpeaker 2: we will check the pads"}]}}]}`,
	}
	p := newGeminiStub(t, stub)

	raw, err := p.Transcribe(context.Background(), Audio{Data: []byte("RIFF"), MimeType: "audio/wav"},
		models.TranscriptionOptions{Diarization: true})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if raw.Text != "the brakes squeal we will check the pads" {
		t.Fatalf("text = %q", raw.Text)
	}
	if len(raw.Segments) != 2 || raw.Segments[1].Speaker != "Speaker 2" {
		t.Fatalf("segments = %+v", raw.Segments)
	}

	stub.mu.Lock()
	defer stub.mu.Unlock()
	if len(stub.paths) != 1 || !strings.Contains(stub.paths[0], "gemini-2.0-flash:generateContent") {
		t.Fatalf("requests = %v", stub.paths)
	}
}

func TestGeminiProviderRateLimit(t *testing.T) {
	stub := &geminiStub{
		status: http.StatusTooManyRequests,
		reply:  `{"error":{"code":429,"message":"Resource has been exhausted","status":"RESOURCE_EXHAUSTED"}}`,
	}
	svc := NewService(newGeminiStub(t, stub), 1<<20, nil)

	_, err := svc.Transcribe(context.Background(), &models.TranscriptionRequest{
		Audio:    []byte("RIFF"),
		MimeType: "audio/wav",
		Filename: "bay3.wav",
	})
	if !errors.Is(err, ErrProviderRateLimited) {
		t.Fatalf("expected ErrProviderRateLimited, got %v", err)
	}
}
