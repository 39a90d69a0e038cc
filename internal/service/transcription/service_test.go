package transcription

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"repairscribe/internal/apperr"
	"repairscribe/internal/models"
)

type fakeProvider struct {
	calls int
	got   Audio
	opts  models.TranscriptionOptions
	out   *RawTranscript
	err   error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Transcribe(_ context.Context, audio Audio, opts models.TranscriptionOptions) (*RawTranscript, error) {
	f.calls++
	f.got = audio
	f.opts = opts
	return f.out, f.err
}

func ptr(v float64) *float64 { return &v }

func TestTranscribeRejectsBeforeProviderCall(t *testing.T) {
	cases := []struct {
		name string
		req  models.TranscriptionRequest
		want *apperr.Error
	}{
		{"text/plain", models.TranscriptionRequest{Audio: []byte("hello"), MimeType: "text/plain"}, ErrUnsupportedMedia},
		{"video", models.TranscriptionRequest{Audio: []byte("x"), MimeType: "video/mp4"}, ErrUnsupportedMedia},
		{"unknown audio", models.TranscriptionRequest{Audio: []byte("x"), MimeType: "audio/ogg"}, ErrUnsupportedMedia},
		{"too large", models.TranscriptionRequest{Audio: make([]byte, 11), MimeType: "audio/wav"}, ErrFileTooLarge},
		{"empty", models.TranscriptionRequest{MimeType: "audio/wav"}, ErrEmptyAudio},
	}
	for _, tc := range cases {
		provider := &fakeProvider{out: &RawTranscript{Text: "unused"}}
		svc := NewService(provider, 10, nil)
		_, err := svc.Transcribe(context.Background(), &tc.req)
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
		if apperr.KindOf(err).Status() != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 status", tc.name)
		}
		if provider.calls != 0 {
			t.Fatalf("%s: provider called %d times", tc.name, provider.calls)
		}
	}
}

func TestAllowedMimeType(t *testing.T) {
	for _, mt := range []string{"audio/mpeg", "audio/wav", "audio/x-wav", "audio/wave", "audio/mp3", "audio/mp4", "audio/x-m4a", "audio/webm;codecs=opus", "audio/flac"} {
		if !AllowedMimeType(mt) {
			t.Fatalf("expected %s to be allowed", mt)
		}
	}
	for _, mt := range []string{"", "audio", "text/plain", "application/octet-stream", "audio/ogg", "video/webm"} {
		if AllowedMimeType(mt) {
			t.Fatalf("expected %s to be rejected", mt)
		}
	}
}

func TestTranscribeNormalizesProviderOutput(t *testing.T) {
	provider := &fakeProvider{out: &RawTranscript{
		Text:     "  Front bumper is cracked, replace the clip.  ",
		Language: "english",
		Duration: ptr(4.2),
		Model:    "whisper-1",
		Segments: []RawSegment{
			{Start: 0, End: 2, Text: " Front bumper is cracked, ", AvgLogprob: ptr(math.Log(0.9))},
			{Start: 2, End: 4.2, Text: "replace the clip.", AvgLogprob: ptr(math.Log(0.7))},
		},
	}}
	svc := NewService(provider, 0, nil)

	req := &models.TranscriptionRequest{
		Audio:    []byte("RIFF...."),
		MimeType: "audio/wav",
		Filename: "bay3.wav",
		Options:  models.TranscriptionOptions{Language: "en"},
	}
	res, err := svc.Transcribe(context.Background(), req)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "Front bumper is cracked, replace the clip." {
		t.Fatalf("unexpected text %q", res.Text)
	}
	if res.WordCount != 7 {
		t.Fatalf("word count %d, want 7", res.WordCount)
	}
	if res.Confidence == nil || math.Abs(*res.Confidence-0.8) > 1e-9 {
		t.Fatalf("confidence %v, want 0.8", res.Confidence)
	}
	if res.Segments != nil {
		t.Fatalf("segments returned without timestamps requested")
	}
	if provider.got.Filename != "bay3.wav" || provider.opts.Language != "en" {
		t.Fatalf("provider received %+v / %+v", provider.got, provider.opts)
	}

	req.Options.WantTimestamps = true
	res, err = svc.Transcribe(context.Background(), req)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if len(res.Segments) != 2 || res.Segments[0].Text != "Front bumper is cracked," {
		t.Fatalf("unexpected segments %+v", res.Segments)
	}
}

func TestTranscribeMapsProviderErrors(t *testing.T) {
	svc := NewService(&fakeProvider{err: &ProviderError{Provider: "fake", StatusCode: 429, Message: "slow down"}}, 0, nil)
	req := &models.TranscriptionRequest{Audio: []byte("x"), MimeType: "audio/mpeg"}

	_, err := svc.Transcribe(context.Background(), req)
	if !errors.Is(err, ErrProviderRateLimited) || apperr.KindOf(err).Status() != http.StatusTooManyRequests {
		t.Fatalf("expected provider rate limit, got %v", err)
	}

	svc = NewService(&fakeProvider{err: &ProviderError{Provider: "fake", StatusCode: 400, Message: "audio file is corrupt"}}, 0, nil)
	_, err = svc.Transcribe(context.Background(), req)
	if !errors.Is(err, ErrTranscriptionFailed) {
		t.Fatalf("expected ErrTranscriptionFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "audio file is corrupt") {
		t.Fatalf("provider message lost: %v", err)
	}
}

func TestOpenAIProviderVerboseJSON(t *testing.T) {
	var gotFields map[string][]string
	var gotFile []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" || r.Header.Get("Authorization") != "Bearer sk-test" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotFields = r.MultipartForm.Value
		f, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotFile, _ = io.ReadAll(f)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"text":"Oil change done.","language":"english","duration":1.5,
			"segments":[{"start":0,"end":1.5,"text":"Oil change done.","avg_logprob":-0.1}]}`)
	}))
	defer srv.Close()

	p := NewOpenAIProvider("sk-test", srv.URL, "", srv.Client())
	raw, err := p.Transcribe(context.Background(), Audio{Data: []byte("audio-bytes"), MimeType: "audio/mpeg", Filename: "a.mp3"},
		models.TranscriptionOptions{Language: "en"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if raw.Text != "Oil change done." || raw.Model != "whisper-1" || len(raw.Segments) != 1 {
		t.Fatalf("unexpected raw transcript %+v", raw)
	}
	if string(gotFile) != "audio-bytes" {
		t.Fatalf("file content %q", gotFile)
	}
	if gotFields["response_format"][0] != "verbose_json" || gotFields["language"][0] != "en" {
		t.Fatalf("unexpected form fields %v", gotFields)
	}
}

func TestOpenAIProviderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"Rate limit reached","type":"requests"}}`)
	}))
	defer srv.Close()

	p := NewOpenAIProvider("sk-test", srv.URL, "whisper-1", srv.Client())
	_, err := p.Transcribe(context.Background(), Audio{Data: []byte("x"), MimeType: "audio/mpeg"}, models.TranscriptionOptions{})
	var pe *ProviderError
	if !errors.As(err, &pe) || pe.StatusCode != http.StatusTooManyRequests || pe.Message != "Rate limit reached" {
		t.Fatalf("unexpected error %v", err)
	}
}
