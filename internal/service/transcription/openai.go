package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"repairscribe/internal/models"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIProvider calls the Whisper transcription endpoint.
type OpenAIProvider struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

func NewOpenAIProvider(apiKey, baseURL, model string, client *http.Client) *OpenAIProvider {
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	if model == "" {
		model = "whisper-1"
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &OpenAIProvider{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  client,
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

type whisperSegment struct {
	Start      float64  `json:"start"`
	End        float64  `json:"end"`
	Text       string   `json:"text"`
	AvgLogprob *float64 `json:"avg_logprob"`
}

type whisperResponse struct {
	Text     string           `json:"text"`
	Language string           `json:"language"`
	Duration *float64         `json:"duration"`
	Segments []whisperSegment `json:"segments"`
}

type whisperError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Transcribe uploads the audio as multipart form data and requests
// verbose_json so segment timings and log probabilities come back. The
// endpoint has no diarization, so opts.Diarization is ignored.
func (p *OpenAIProvider) Transcribe(ctx context.Context, audio Audio, opts models.TranscriptionOptions) (*RawTranscript, error) {
	model := p.model
	if opts.Model != "" {
		model = opts.Model
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fields := [][2]string{
		{"model", model},
		{"response_format", "verbose_json"},
		{"timestamp_granularities[]", "segment"},
	}
	if opts.Language != "" {
		fields = append(fields, [2]string{"language", opts.Language})
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, err
		}
	}
	filename := audio.Filename
	if filename == "" {
		filename = "audio"
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(audio.Data); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai transcription request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("read openai response: %w", err)
	}
	if resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(payload))
		var apiErr whisperError
		if json.Unmarshal(payload, &apiErr) == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		return nil, &ProviderError{Provider: p.Name(), StatusCode: resp.StatusCode, Message: msg}
	}

	var out whisperResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, &ProviderError{Provider: p.Name(), Message: "decode response: " + err.Error()}
	}
	raw := &RawTranscript{
		Text:     out.Text,
		Language: out.Language,
		Duration: out.Duration,
		Model:    model,
		Segments: make([]RawSegment, 0, len(out.Segments)),
	}
	for _, seg := range out.Segments {
		raw.Segments = append(raw.Segments, RawSegment{
			Start:      seg.Start,
			End:        seg.End,
			Text:       seg.Text,
			AvgLogprob: seg.AvgLogprob,
		})
	}
	return raw, nil
}
