// Package extraction asks a language model to pull structured repair-order
// fields out of a transcript.
package extraction

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"repairscribe/internal/apperr"
	"repairscribe/internal/logging"
	"repairscribe/internal/models"
)

const (
	minTranscriptLen  = 10
	coverageThreshold = 0.3
)

var (
	ErrMissingSchema       = apperr.Validation("Custom schema with fields and description is required for custom extraction", apperr.FieldError{Field: "customSchema", Message: "fields and description are required"})
	ErrUnknownType         = apperr.Validation("Invalid extraction type", apperr.FieldError{Field: "extractionType", Message: "must be one of repair_details, parts_inventory, labor_hours, customer_info, damage_assessment, custom"})
	ErrTranscriptTooShort  = apperr.Validation("Transcription must be at least 10 characters", apperr.FieldError{Field: "transcription", Message: "must be at least 10 characters"})
	ErrExtractionFailed    = apperr.New(apperr.KindProvider, "Extraction failed")
	ErrProviderRateLimited = apperr.New(apperr.KindProviderRateLimit, "Extraction provider rate limit exceeded. Please try again later.")
)

// Service runs extractions through a Completer.
type Service struct {
	completer Completer
	throttle  *rate.Limiter
	logger    logging.Logger
	now       func() time.Time
}

// NewService builds the extraction adapter. requestsPerMinute <= 0 disables
// the local provider budget.
func NewService(completer Completer, requestsPerMinute int, logger logging.Logger) *Service {
	if logger == nil {
		logger = logging.Nop()
	}
	s := &Service{completer: completer, logger: logger, now: time.Now}
	if requestsPerMinute > 0 {
		s.throttle = rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), requestsPerMinute)
	}
	return s
}

// CheckType validates the extraction type and, for custom extractions, the
// caller's schema.
func CheckType(typ models.ExtractionType, custom *models.CustomSchema) error {
	if !typ.Valid() {
		return ErrUnknownType
	}
	if typ != models.ExtractionCustom {
		return nil
	}
	if custom == nil || strings.TrimSpace(custom.Description) == "" || len(nonEmpty(custom.Fields)) == 0 {
		return ErrMissingSchema
	}
	return nil
}

// Extract validates req, prompts the model and post-processes its answer.
func (s *Service) Extract(ctx context.Context, req *models.ExtractionRequest) (*models.ExtractionResult, error) {
	if err := CheckType(req.Type, req.CustomSchema); err != nil {
		return nil, err
	}
	transcript := strings.TrimSpace(req.Transcript)
	if utf8.RuneCountInString(transcript) < minTranscriptLen {
		return nil, ErrTranscriptTooShort
	}
	fields := expectedFields(req.Type, req.CustomSchema)

	if s.throttle != nil && !s.throttle.Allow() {
		s.logger.Warn(ctx, "extraction throttled locally", "type", req.Type)
		return nil, ErrProviderRateLimited
	}

	start := s.now()
	completion, err := s.completer.Complete(ctx, CompletionRequest{
		System: systemPrompt,
		Prompt: buildPrompt(transcript, req.Type, fields, req.CustomSchema),
	})
	if err != nil {
		s.logger.Error(ctx, "extraction completion failed", "type", req.Type, "error", err)
		var status *ErrProviderStatus
		if errors.As(err, &status) && status.StatusCode == http.StatusTooManyRequests {
			return nil, apperr.Sentinel(ErrProviderRateLimited, err)
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, apperr.Sentinel(ErrExtractionFailed, err)
	}

	data, err := parseOutput(completion.Content)
	if err != nil {
		s.logger.Error(ctx, "extraction output unparseable", "type", req.Type, "error", err)
		return nil, apperr.Sentinel(ErrExtractionFailed, err)
	}
	confidence := takeConfidence(data)

	filled := 0
	for _, f := range fields {
		v, ok := data[f]
		if !ok || v == nil {
			data[f] = ""
			continue
		}
		if isFilled(v) {
			filled++
		}
	}

	elapsed := s.now().Sub(start)
	result := &models.ExtractionResult{
		Success:          true,
		Data:             data,
		Confidence:       confidence,
		Type:             req.Type,
		ProcessingTimeMs: elapsed.Milliseconds(),
		Usage:            completion.Usage,
		Validation:       validation(filled, len(fields)),
	}
	s.logger.Info(ctx, "extraction finished",
		"type", req.Type,
		"fields", len(fields),
		"filled", filled,
		"confidence", confidence,
		"ms", result.ProcessingTimeMs,
	)
	return result, nil
}

func validation(filled, expected int) models.ExtractionValidation {
	v := models.ExtractionValidation{FilledFields: filled, ExpectedFields: expected}
	if expected > 0 {
		v.Coverage = float64(filled) / float64(expected)
	}
	v.Valid = v.Coverage >= coverageThreshold
	return v
}

func expectedFields(typ models.ExtractionType, custom *models.CustomSchema) []string {
	if typ == models.ExtractionCustom {
		return nonEmpty(custom.Fields)
	}
	return FieldNames()
}

func nonEmpty(fields []string) []string {
	out := make([]string, 0, len(fields))
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}
