package models

// TranscriptionOptions tune a single transcription call.
type TranscriptionOptions struct {
	Language       string
	Diarization    bool
	WantTimestamps bool
	// Model overrides the configured provider model when set.
	Model string
}

// TranscriptionRequest is an uploaded recording awaiting transcription.
type TranscriptionRequest struct {
	Audio    []byte
	MimeType string
	Filename string
	Options  TranscriptionOptions
}

// Segment is a timed portion of a transcript.
type Segment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Speaker string  `json:"speaker,omitempty"`
}

// TranscriptionResult is the canonical transcript returned to clients.
type TranscriptionResult struct {
	Text       string    `json:"text"`
	Language   string    `json:"language,omitempty"`
	Confidence *float64  `json:"confidence,omitempty"`
	Segments   []Segment `json:"segments,omitempty"`
	Model      string    `json:"model"`
	WordCount  int       `json:"wordCount"`
	Duration   *float64  `json:"duration,omitempty"`
}
