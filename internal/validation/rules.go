package validation

import (
	"context"
	"strings"

	"kycflow/internal/cases/models"
)

// DefaultFallbackCeiling caps rule-based confidence below a perfect agent score.
const DefaultFallbackCeiling = 90

// RuleComparator is the deterministic fallback: field-by-field normalised
// comparison with per-field severity.
type RuleComparator struct {
	ceiling int
}

func NewRuleComparator(ceiling int) *RuleComparator {
	if ceiling <= 0 || ceiling > 100 {
		ceiling = DefaultFallbackCeiling
	}
	return &RuleComparator{ceiling: ceiling}
}

func (c *RuleComparator) Name() string { return MethodRules }

func (c *RuleComparator) Compare(_ context.Context, req Request) (models.ValidationResult, error) {
	var (
		discrepancies []models.Discrepancy
		lowPenalty    int
		perField      = 10
	)
	switch req.DocumentType {
	case models.DocumentIDProof:
		discrepancies = compareIDProof(req.Extracted, req.User)
	case models.DocumentAddressProof:
		discrepancies = compareAddressProof(req.Extracted, req.User)
	case models.DocumentEmploymentProof:
		discrepancies = compareEmploymentProof(req.Extracted, req.User)
		lowPenalty, perField = 10, 5
	}

	score := 100
	for _, d := range discrepancies {
		switch d.Severity {
		case models.SeverityHigh:
			score -= 30
		case models.SeverityMedium:
			score -= 20
		case models.SeverityLow:
			score -= lowPenalty
		}
		score -= perField
	}
	if score < 0 {
		score = 0
	}
	if score > c.ceiling {
		score = c.ceiling
	}

	var warnings []string
	if len(req.Extracted) == 0 {
		warnings = append(warnings, "no extracted data available for comparison")
	}
	return models.ValidationResult{
		ConfidenceScore: score,
		Discrepancies:   discrepancies,
		Warnings:        warnings,
	}, nil
}

type fieldRule struct {
	field     string
	docKeys   []string
	userValue func(map[string]string) string
	severity  models.Severity
	compare   func(doc, user string) bool
}

func userKey(key string) func(map[string]string) string {
	return func(u map[string]string) string { return u[key] }
}

func fuzzy(threshold float64, kind matchKind) func(string, string) bool {
	return func(doc, user string) bool { return fuzzyMatch(doc, user, threshold, kind) }
}

func firstName(u map[string]string) string {
	if f := strings.Fields(u["name"]); len(f) > 0 {
		return f[0]
	}
	return ""
}

func lastName(u map[string]string) string {
	if f := strings.Fields(u["name"]); len(f) > 1 {
		return strings.Join(f[1:], " ")
	}
	return ""
}

func sameDate(doc, user string) bool {
	return normalizeDate(doc) == normalizeDate(user)
}

var (
	idProofRules = []fieldRule{
		{"first_name", []string{"first_name"}, firstName, models.SeverityMedium, fuzzy(0.8, matchName)},
		{"last_name", []string{"last_name"}, lastName, models.SeverityMedium, fuzzy(0.8, matchName)},
		{"date_of_birth", []string{"dob", "date_of_birth"}, userKey("dob"), models.SeverityHigh, sameDate},
		{"nationality", []string{"nationality"}, userKey("nationality"), models.SeverityLow, fuzzy(0.8, matchGeneral)},
	}
	addressProofRules = []fieldRule{
		{"address", []string{"full_address", "address"}, userKey("address"), models.SeverityHigh, fuzzy(0.8, matchAddress)},
		{"account_holder_name", []string{"account_holder_name"}, userKey("name"), models.SeverityHigh, fuzzy(0.8, matchName)},
	}
	employmentProofRules = []fieldRule{
		{"employer", []string{"employer_name", "employer"}, userKey("employer"), models.SeverityMedium, fuzzy(0.7, matchGeneral)},
		{"employee_name", []string{"employee_name"}, userKey("name"), models.SeverityHigh, fuzzy(0.8, matchName)},
		{"position", []string{"position"}, userKey("occupation"), models.SeverityLow, fuzzy(0.6, matchGeneral)},
	}
)

func compareIDProof(doc, user map[string]string) []models.Discrepancy {
	return applyRules(idProofRules, doc, user)
}

func compareAddressProof(doc, user map[string]string) []models.Discrepancy {
	return applyRules(addressProofRules, doc, user)
}

func compareEmploymentProof(doc, user map[string]string) []models.Discrepancy {
	return applyRules(employmentProofRules, doc, user)
}

// applyRules compares only fields present on both sides.
func applyRules(rules []fieldRule, doc, user map[string]string) []models.Discrepancy {
	var out []models.Discrepancy
	for _, r := range rules {
		docValue := ""
		for _, k := range r.docKeys {
			if v := strings.TrimSpace(doc[k]); v != "" {
				docValue = v
				break
			}
		}
		userValue := strings.TrimSpace(r.userValue(user))
		if docValue == "" || userValue == "" {
			continue
		}
		if r.compare(docValue, userValue) {
			continue
		}
		out = append(out, models.Discrepancy{
			Field:         r.field,
			DocumentValue: docValue,
			UserValue:     userValue,
			Severity:      r.severity,
			Reason:        r.field + " on document does not match declared value",
		})
	}
	return out
}
