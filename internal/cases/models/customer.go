package models

import (
	"strconv"
	"strings"
)

// CustomerData is what the customer declared on the application form.
type CustomerData struct {
	Name          string  `json:"name"`
	Email         string  `json:"email"`
	Phone         string  `json:"phone,omitempty"`
	DateOfBirth   string  `json:"dob,omitempty"`
	Nationality   string  `json:"nationality,omitempty"`
	Address       string  `json:"address,omitempty"`
	Occupation    string  `json:"occupation,omitempty"`
	Employer      string  `json:"employer,omitempty"`
	AnnualIncome  float64 `json:"annual_income,omitempty"`
	SourceOfFunds string  `json:"source_of_funds,omitempty"`
	BusinessName  string  `json:"business_name,omitempty"`
	Position      string  `json:"position,omitempty"`
	University    string  `json:"university,omitempty"`
}

// Fields flattens the declaration into the field map compared against
// extracted document data.
func (c CustomerData) Fields() map[string]string {
	out := map[string]string{
		"name":            c.Name,
		"email":           c.Email,
		"phone":           c.Phone,
		"dob":             c.DateOfBirth,
		"nationality":     c.Nationality,
		"address":         c.Address,
		"occupation":      c.Occupation,
		"employer":        c.Employer,
		"source_of_funds": c.SourceOfFunds,
		"business_name":   c.BusinessName,
		"position":        c.Position,
		"university":      c.University,
	}
	if c.AnnualIncome > 0 {
		out["annual_income"] = strconv.FormatFloat(c.AnnualIncome, 'f', -1, 64)
	}
	for k, v := range out {
		if strings.TrimSpace(v) == "" {
			delete(out, k)
		}
	}
	return out
}
