package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"kycflow/internal/cases/models"
)

var (
	errNoJSON        = errors.New("no JSON object in agent response")
	errMissingScore  = errors.New("agent response has no confidence_score")
	codeFencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n(.+?)\\n\\s*```")
)

// wireResult is the agent answer; numbers may arrive as floats.
type wireResult struct {
	OverallMatch    *bool      `json:"overall_match"`
	ConfidenceScore *float64   `json:"confidence_score"`
	Discrepancies   []wireDisc `json:"discrepancies"`
	Warnings        []string   `json:"warnings"`
}

type wireDisc struct {
	Field         string `json:"field"`
	DocumentValue any    `json:"document_value"`
	UserValue     any    `json:"user_value"`
	Severity      string `json:"severity"`
	Reason        string `json:"reason"`
}

// ParseAgentResult decodes a validation agent answer. The answer is either the
// result object itself or a text envelope whose text embeds the object, in a
// fenced ```json block or as the span from the first '{' to the last '}'.
func ParseAgentResult(raw json.RawMessage) (models.ValidationResult, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return models.ValidationResult{}, fmt.Errorf("decode agent response: %w", err)
	}
	if _, ok := probe["confidence_score"]; ok {
		return decodeResult(raw)
	}
	text, ok := envelopeText(probe)
	if !ok {
		return models.ValidationResult{}, errMissingScore
	}
	obj, err := ExtractJSON(text)
	if err != nil {
		return models.ValidationResult{}, err
	}
	return decodeResult(obj)
}

// ExtractJSON finds the JSON object inside free text.
func ExtractJSON(text string) (json.RawMessage, error) {
	if m := codeFencePattern.FindStringSubmatch(text); m != nil {
		candidate := strings.TrimSpace(m[1])
		if !json.Valid([]byte(candidate)) {
			return nil, fmt.Errorf("invalid JSON in code block")
		}
		return json.RawMessage(candidate), nil
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, errNoJSON
	}
	candidate := text[start : end+1]
	if !json.Valid([]byte(candidate)) {
		return nil, fmt.Errorf("invalid JSON in agent text")
	}
	return json.RawMessage(candidate), nil
}

func decodeResult(raw []byte) (models.ValidationResult, error) {
	var w wireResult
	if err := json.Unmarshal(raw, &w); err != nil {
		return models.ValidationResult{}, fmt.Errorf("decode validation result: %w", err)
	}
	if w.ConfidenceScore == nil {
		return models.ValidationResult{}, errMissingScore
	}
	out := models.ValidationResult{
		ConfidenceScore: int(math.Round(*w.ConfidenceScore)),
		Warnings:        w.Warnings,
	}
	for _, d := range w.Discrepancies {
		out.Discrepancies = append(out.Discrepancies, models.Discrepancy{
			Field:         d.Field,
			DocumentValue: stringify(d.DocumentValue),
			UserValue:     stringify(d.UserValue),
			Severity:      models.ParseSeverity(d.Severity),
			Reason:        d.Reason,
		})
	}
	return out, nil
}

// envelopeText pulls model text out of the response envelopes reasoning
// services commonly return.
func envelopeText(probe map[string]json.RawMessage) (string, bool) {
	if raw, ok := probe["output"]; ok {
		var out struct {
			Message struct {
				Content []struct {
					Text string `json:"text"`
				} `json:"content"`
			} `json:"message"`
		}
		if json.Unmarshal(raw, &out) == nil && len(out.Message.Content) > 0 && out.Message.Content[0].Text != "" {
			return out.Message.Content[0].Text, true
		}
	}
	if raw, ok := probe["content"]; ok {
		var parts []json.RawMessage
		if json.Unmarshal(raw, &parts) == nil && len(parts) > 0 {
			var part struct {
				Text string `json:"text"`
			}
			if json.Unmarshal(parts[0], &part) == nil && part.Text != "" {
				return part.Text, true
			}
			var s string
			if json.Unmarshal(parts[0], &s) == nil && s != "" {
				return s, true
			}
		}
	}
	for _, key := range []string{"completion", "text", "response"} {
		if raw, ok := probe[key]; ok {
			var s string
			if json.Unmarshal(raw, &s) == nil && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
