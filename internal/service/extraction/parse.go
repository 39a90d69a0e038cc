package extraction

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
)

const defaultConfidence = 0.8

var errNoJSONObject = errors.New("no JSON object in model output")

// parseOutput decodes the model's answer into a key/value map. Markdown code
// fences and text around the object are tolerated.
func parseOutput(content string) (map[string]any, error) {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start, end := strings.IndexByte(s, '{'), strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return nil, errNoJSONObject
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(s[start:end+1]), &out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, errNoJSONObject
	}
	return out, nil
}

// takeConfidence removes "confidence" from data and returns it clamped to
// [0,1], or the default when missing or unparseable.
func takeConfidence(data map[string]any) float64 {
	v, ok := data["confidence"]
	delete(data, "confidence")
	if !ok {
		return defaultConfidence
	}
	var c float64
	switch t := v.(type) {
	case float64:
		c = t
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return defaultConfidence
		}
		c = f
	default:
		return defaultConfidence
	}
	if math.IsNaN(c) {
		return defaultConfidence
	}
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

func isFilled(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(t) != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}
