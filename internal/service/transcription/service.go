// Package transcription validates uploaded recordings and turns them into
// transcripts through a speech-to-text provider.
package transcription

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"strings"
	"time"

	"repairscribe/internal/apperr"
	"repairscribe/internal/logging"
	"repairscribe/internal/models"
)

const DefaultMaxBytes = 50 << 20

var (
	ErrUnsupportedMedia = apperr.New(apperr.KindUnsupportedMedia, "Invalid file type. Only audio files are allowed.")
	ErrFileTooLarge     = apperr.New(apperr.KindUnsupportedMedia, "File too large")
	ErrEmptyAudio       = apperr.New(apperr.KindUnsupportedMedia, "Audio file is empty")

	ErrTranscriptionFailed = apperr.New(apperr.KindProvider, "Transcription failed")
	ErrProviderRateLimited = apperr.New(apperr.KindProviderRateLimit, "Transcription provider rate limit exceeded")
)

var allowedSubtypes = map[string]bool{
	"mpeg": true,
	"wav":  true,
	"wave": true,
	"mp3":  true,
	"mp4":  true,
	"m4a":  true,
	"webm": true,
	"flac": true,
}

// Service runs the upload checks and normalises provider output.
type Service struct {
	provider Provider
	maxBytes int64
	logger   logging.Logger
	now      func() time.Time
}

func NewService(provider Provider, maxBytes int64, logger logging.Logger) *Service {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Service{provider: provider, maxBytes: maxBytes, logger: logger, now: time.Now}
}

// ProviderName reports which provider serves transcriptions.
func (s *Service) ProviderName() string { return s.provider.Name() }

// CheckUpload validates the declared type and size of an upload before its
// content is read.
func (s *Service) CheckUpload(mimeType string, size int64) error {
	if !AllowedMimeType(mimeType) {
		return ErrUnsupportedMedia
	}
	if size > s.maxBytes {
		return ErrFileTooLarge
	}
	return nil
}

// Transcribe validates req and forwards it to the provider.
func (s *Service) Transcribe(ctx context.Context, req *models.TranscriptionRequest) (*models.TranscriptionResult, error) {
	if err := s.CheckUpload(req.MimeType, int64(len(req.Audio))); err != nil {
		return nil, err
	}
	if len(req.Audio) == 0 {
		return nil, ErrEmptyAudio
	}

	start := s.now()
	raw, err := s.provider.Transcribe(ctx, Audio{Data: req.Audio, MimeType: req.MimeType, Filename: req.Filename}, req.Options)
	if err != nil {
		s.logger.Error(ctx, "transcription failed", "provider", s.provider.Name(), "file", req.Filename, "error", err)
		var pe *ProviderError
		if errors.As(err, &pe) && pe.StatusCode == http.StatusTooManyRequests {
			return nil, apperr.Sentinel(ErrProviderRateLimited, err)
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, apperr.Sentinel(ErrTranscriptionFailed, err)
	}

	result := normalize(raw, req.Options)
	s.logger.Info(ctx, "transcription finished",
		"provider", s.provider.Name(),
		"file", req.Filename,
		"bytes", len(req.Audio),
		"words", result.WordCount,
		"ms", s.now().Sub(start).Milliseconds(),
	)
	return result, nil
}

// AllowedMimeType reports whether mimeType names a supported audio format.
// Parameters and an x- subtype prefix are ignored.
func AllowedMimeType(mimeType string) bool {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return false
	}
	major, sub, ok := strings.Cut(mediaType, "/")
	if !ok || major != "audio" {
		return false
	}
	return allowedSubtypes[strings.TrimPrefix(sub, "x-")]
}
