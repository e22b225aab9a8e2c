package models

// MatchThreshold is the minimum confidence for overall_match.
const MatchThreshold = 80

// Discrepancy is one field that disagrees between document and declaration.
type Discrepancy struct {
	Field         string   `json:"field"`
	DocumentValue string   `json:"document_value"`
	UserValue     string   `json:"user_value"`
	Severity      Severity `json:"severity"`
	Reason        string   `json:"reason"`
}

// ValidationResult is the verdict of comparing one document against user data.
// Both the agent path and the rule fallback produce this shape.
type ValidationResult struct {
	OverallMatch    bool          `json:"overall_match"`
	ConfidenceScore int           `json:"confidence_score"`
	Discrepancies   []Discrepancy `json:"discrepancies"`
	Warnings        []string      `json:"warnings"`
	Method          string        `json:"validation_method"`
}

// HasHighSeverity reports whether any discrepancy is graded high.
func (r ValidationResult) HasHighSeverity() bool {
	for _, d := range r.Discrepancies {
		if d.Severity == SeverityHigh {
			return true
		}
	}
	return false
}

// Normalize clamps the score and recomputes OverallMatch from the threshold
// rule: match iff score >= MatchThreshold and no high-severity discrepancy.
func (r ValidationResult) Normalize() ValidationResult {
	if r.ConfidenceScore < 0 {
		r.ConfidenceScore = 0
	}
	if r.ConfidenceScore > 100 {
		r.ConfidenceScore = 100
	}
	if r.Discrepancies == nil {
		r.Discrepancies = []Discrepancy{}
	}
	if r.Warnings == nil {
		r.Warnings = []string{}
	}
	r.OverallMatch = r.ConfidenceScore >= MatchThreshold && !r.HasHighSeverity()
	return r
}

// ValidationWarning is an unresolved pre-submission validation failure.
type ValidationWarning struct {
	DocumentType    DocumentType  `json:"document_type"`
	DocumentID      string        `json:"document_id"`
	ConfidenceScore int           `json:"confidence_score"`
	Discrepancies   []Discrepancy `json:"discrepancies,omitempty"`
	Warnings        []string      `json:"warnings,omitempty"`
}
