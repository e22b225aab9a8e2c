// Package profile classifies customers and estimates their inherent risk from
// declared and document-extracted data. The estimate is informational: it is
// shown to reviewers and fed to the risk agent, it never seeds Case.RiskLevel.
package profile

import (
	"strconv"
	"strings"

	"kycflow/internal/cases/models"
)

// Customer types.
const (
	TypePEP          = "PEP"
	TypeBusiness     = "Business"
	TypeStudent      = "Student"
	TypeFreelancer   = "Freelancer"
	TypeHighNetWorth = "High_Net_Worth"
	TypeIndividual   = "Individual"
)

// Profile is the derived classification for a customer.
type Profile struct {
	CustomerType  string
	EstimatedRisk models.RiskLevel
	Score         int
	Factors       []string
}

// Enrich fills blank declared fields from extracted document data. Declared
// values are never overwritten since they are what documents are checked against.
func Enrich(customer models.CustomerData, docs []*models.Document) models.CustomerData {
	fill := func(dst *string, v string) {
		if strings.TrimSpace(*dst) == "" && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	for _, d := range docs {
		if d == nil || d.IsSuperseded() {
			continue
		}
		x := d.ExtractedData
		switch d.Type {
		case models.DocumentIDProof:
			fill(&customer.Name, strings.TrimSpace(x["first_name"]+" "+x["last_name"]))
			fill(&customer.DateOfBirth, firstNonEmpty(x["dob"], x["date_of_birth"]))
			fill(&customer.Nationality, x["nationality"])
		case models.DocumentAddressProof:
			fill(&customer.Address, x["full_address"])
		case models.DocumentEmploymentProof:
			fill(&customer.Employer, x["employer_name"])
			fill(&customer.Occupation, x["position"])
			if customer.AnnualIncome == 0 {
				if income, ok := ParseSalary(x["annual_salary"]); ok {
					customer.AnnualIncome = income
				}
			}
		}
	}
	return customer
}

// Classify derives the customer type and estimated risk. pep reports whether
// the customer is already known to be politically exposed.
func Classify(customer models.CustomerData, pep bool, docTypes []models.DocumentType) Profile {
	p := Profile{CustomerType: customerType(customer, pep)}

	if pep {
		p.Score += 50
		p.Factors = append(p.Factors, "politically exposed person")
	}
	switch {
	case customer.AnnualIncome > 500000:
		p.Score += 30
		p.Factors = append(p.Factors, "annual income above 500k")
	case customer.AnnualIncome > 200000:
		p.Score += 15
		p.Factors = append(p.Factors, "annual income above 200k")
	}
	if strings.TrimSpace(customer.BusinessName) != "" {
		p.Score += 20
		p.Factors = append(p.Factors, "business owner")
	}
	if strings.Contains(strings.ToLower(customer.Position), "government") {
		p.Score += 25
		p.Factors = append(p.Factors, "government position")
	}

	have := make(map[models.DocumentType]bool, len(docTypes))
	for _, t := range docTypes {
		have[t] = true
	}
	for _, req := range models.RequiredDocuments {
		if !have[req] {
			p.Score += 10
			p.Factors = append(p.Factors, "missing "+string(req))
		}
	}

	switch {
	case p.Score >= 50:
		p.EstimatedRisk = models.RiskHigh
	case p.Score >= 25:
		p.EstimatedRisk = models.RiskMedium
	default:
		p.EstimatedRisk = models.RiskLow
	}
	return p
}

func customerType(c models.CustomerData, pep bool) string {
	switch {
	case pep:
		return TypePEP
	case strings.TrimSpace(c.BusinessName) != "":
		return TypeBusiness
	case strings.TrimSpace(c.University) != "":
		return TypeStudent
	case strings.Contains(strings.ToLower(c.Occupation), "freelance"):
		return TypeFreelancer
	case c.AnnualIncome > 200000:
		return TypeHighNetWorth
	default:
		return TypeIndividual
	}
}

// ParseSalary reads amounts such as "$120,000" or "€85000.50".
func ParseSalary(s string) (float64, bool) {
	cleaned := strings.NewReplacer("$", "", ",", "", "£", "", "€", "", " ", "").Replace(strings.TrimSpace(s))
	if cleaned == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
