package transcription

import (
	"math"
	"strings"

	"repairscribe/internal/models"
)

func normalize(raw *RawTranscript, opts models.TranscriptionOptions) *models.TranscriptionResult {
	text := strings.TrimSpace(raw.Text)
	result := &models.TranscriptionResult{
		Text:      text,
		Language:  raw.Language,
		Model:     raw.Model,
		WordCount: len(strings.Fields(text)),
		Duration:  raw.Duration,
	}

	var (
		sum float64
		n   int
	)
	for _, seg := range raw.Segments {
		if seg.AvgLogprob != nil {
			sum += math.Exp(*seg.AvgLogprob)
			n++
		}
	}
	switch {
	case n > 0:
		c := clamp01(sum / float64(n))
		result.Confidence = &c
	case raw.Confidence != nil:
		c := clamp01(*raw.Confidence)
		result.Confidence = &c
	}

	if opts.WantTimestamps || opts.Diarization {
		result.Segments = make([]models.Segment, 0, len(raw.Segments))
		for _, seg := range raw.Segments {
			result.Segments = append(result.Segments, models.Segment{
				Start:   seg.Start,
				End:     seg.End,
				Text:    strings.TrimSpace(seg.Text),
				Speaker: seg.Speaker,
			})
		}
	}
	return result
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
