package transcription

import (
	"context"
	"fmt"

	"repairscribe/internal/models"
)

// Provider turns audio into a raw transcript.
type Provider interface {
	Name() string
	Transcribe(ctx context.Context, audio Audio, opts models.TranscriptionOptions) (*RawTranscript, error)
}

// Audio is the uploaded payload handed to a provider.
type Audio struct {
	Data     []byte
	MimeType string
	Filename string
}

// RawTranscript is what a provider reports before normalisation.
type RawTranscript struct {
	Text     string
	Language string
	Duration *float64
	Segments []RawSegment
	// Confidence is used when no segment carries log probabilities.
	Confidence *float64
	Model      string
}

type RawSegment struct {
	Start      float64
	End        float64
	Text       string
	Speaker    string
	AvgLogprob *float64
}

// ProviderError is a failed call to a remote speech-to-text API.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}
