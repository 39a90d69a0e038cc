package transcription

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"google.golang.org/genai"

	"repairscribe/internal/models"
)

// GeminiProvider sends the recording inline to a Gemini model and asks for
// a verbatim transcript.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

func NewGeminiProvider(ctx context.Context, apiKey, baseURL, model string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: baseURL},
	})
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &GeminiProvider{client: client, model: model}, nil
}

func (p *GeminiProvider) Name() string { return "gemini" }

var speakerLine = regexp.MustCompile(`^(Speaker\s*\d+)\s*:\s*(.*)$`)

func (p *GeminiProvider) Transcribe(ctx context.Context, audio Audio, opts models.TranscriptionOptions) (*RawTranscript, error) {
	model := p.model
	if opts.Model != "" {
		model = opts.Model
	}
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(audio.Data, audio.MimeType),
			genai.NewPartFromText(geminiPrompt(opts)),
		}, genai.RoleUser),
	}
	resp, err := p.client.Models.GenerateContent(ctx, model, contents, nil)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return nil, &ProviderError{Provider: p.Name(), StatusCode: apiErr.Code, Message: apiErr.Message}
		}
		return nil, &ProviderError{Provider: p.Name(), Message: err.Error()}
	}

	text := strings.TrimSpace(resp.Text())
	raw := &RawTranscript{Text: text, Language: opts.Language, Model: model}
	if opts.Diarization {
		var plain []string
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if m := speakerLine.FindStringSubmatch(line); m != nil {
				raw.Segments = append(raw.Segments, RawSegment{Speaker: m[1], Text: m[2]})
				plain = append(plain, m[2])
				continue
			}
			raw.Segments = append(raw.Segments, RawSegment{Text: line})
			plain = append(plain, line)
		}
		raw.Text = strings.Join(plain, " ")
	}
	return raw, nil
}

func geminiPrompt(opts models.TranscriptionOptions) string {
	var b strings.Builder
	b.WriteString("Transcribe this audio recording verbatim. Return only the transcript text with no commentary.")
	if opts.Language != "" {
		b.WriteString(" The spoken language is ")
		b.WriteString(opts.Language)
		b.WriteString(".")
	}
	if opts.Diarization {
		b.WriteString(" Put each speaker turn on its own line prefixed with \"Speaker N:\".")
	}
	return b.String()
}
