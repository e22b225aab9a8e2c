package validation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kycflow/internal/cases/models"
)

func TestParseAgentResult(t *testing.T) {
	t.Run("direct object with float score", func(t *testing.T) {
		res, err := ParseAgentResult(json.RawMessage(`{"confidence_score": 87.6, "discrepancies": [{"field": "dob", "document_value": 1990, "user_value": "1991", "severity": "HIGH"}]}`))
		require.NoError(t, err)
		assert.Equal(t, 88, res.ConfidenceScore)
		require.Len(t, res.Discrepancies, 1)
		assert.Equal(t, "1990", res.Discrepancies[0].DocumentValue)
		assert.Equal(t, models.SeverityHigh, res.Discrepancies[0].Severity)
	})

	t.Run("output message envelope", func(t *testing.T) {
		raw := `{"output": {"message": {"content": [{"text": "Result: {\"confidence_score\": 81, \"warnings\": [\"blurry\"]} done"}]}}}`
		res, err := ParseAgentResult(json.RawMessage(raw))
		require.NoError(t, err)
		assert.Equal(t, 81, res.ConfidenceScore)
		assert.Equal(t, []string{"blurry"}, res.Warnings)
	})

	t.Run("content list of strings", func(t *testing.T) {
		res, err := ParseAgentResult(json.RawMessage(`{"content": ["{\"confidence_score\": 50}"]}`))
		require.NoError(t, err)
		assert.Equal(t, 50, res.ConfidenceScore)
	})

	t.Run("missing score is malformed", func(t *testing.T) {
		_, err := ParseAgentResult(json.RawMessage(`{"response": "{\"overall_match\": true}"}`))
		require.Error(t, err)
	})

	t.Run("broken fenced json is malformed", func(t *testing.T) {
		_, err := ParseAgentResult(json.RawMessage(`{"text": "` + "```json\\n{nope}\\n```" + `"}`))
		require.Error(t, err)
	})
}
