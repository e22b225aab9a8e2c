package email

import (
	"net/mail"
	"strings"
	"unicode"

	dErrors "kycflow/pkg/domain-errors"
)

// Normalize validates a recipient address and returns its bare, lowercased
// form. Display names are dropped.
func Normalize(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", dErrors.NewField(dErrors.CodeValidation, "email", "is required")
	}
	parsed, err := mail.ParseAddress(addr)
	if err != nil {
		return "", dErrors.NewField(dErrors.CodeValidation, "email", "is not a valid address")
	}
	return strings.ToLower(parsed.Address), nil
}

// GreetingName picks the name used to address a customer: the declared name
// when present, otherwise one derived from the mailbox ("jane.doe@x" -> "Jane Doe").
func GreetingName(name, email string) string {
	if n := strings.Join(strings.Fields(name), " "); n != "" {
		return n
	}
	local := email
	if at := strings.IndexByte(email, '@'); at > 0 {
		local = email[:at]
	}
	parts := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+' || unicode.IsDigit(r)
	})
	if len(parts) == 0 {
		return "Customer"
	}
	for i, p := range parts {
		parts[i] = capitalize(p)
	}
	return strings.Join(parts, " ")
}

func capitalize(s string) string {
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
