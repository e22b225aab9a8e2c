package notify

import (
	"bytes"
	"strings"
	"text/template"

	dErrors "kycflow/pkg/domain-errors"
)

// Template names a customer-facing message kind.
type Template string

const (
	TemplateStatusUpdate    Template = "status_update"
	TemplateDocumentRequest Template = "document_request"
	TemplateApproval        Template = "approval"
	TemplateRejection       Template = "rejection"
	TemplateCustom          Template = "custom"
)

func ParseTemplate(s string) (Template, error) {
	t := Template(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := templates[t]; !ok {
		return "", dErrors.NewField(dErrors.CodeValidation, "template_type",
			"must be one of status_update, document_request, approval, rejection, custom")
	}
	return t, nil
}

// Params fills a template. Unused fields are ignored by the template.
type Params struct {
	CustomerName      string   `json:"customer_name"`
	CustomerID        string   `json:"customer_id"`
	CaseID            string   `json:"case_id"`
	Status            string   `json:"status,omitempty"`
	RiskLevel         string   `json:"risk_level,omitempty"`
	Date              string   `json:"date,omitempty"`
	Reason            string   `json:"reason,omitempty"`
	RequiredDocuments []string `json:"required_documents,omitempty"`
	AdditionalNotes   string   `json:"additional_notes,omitempty"`
	CompanyName       string   `json:"company_name"`
	Subject           string   `json:"subject,omitempty"`
	Message           string   `json:"message,omitempty"`
}

type messageTemplate struct {
	subject string
	body    *template.Template
}

const signature = `
Best regards,
{{.CompanyName}} KYC Team
`

var templates = map[Template]messageTemplate{
	TemplateStatusUpdate: {
		subject: "KYC Application Status Update",
		body: mustParse("status_update", `Dear {{.CustomerName}},

The status of your KYC application (ID: {{.CustomerID}}) has changed.

Current status: {{.Status}}
Risk level: {{.RiskLevel}}
Updated on: {{.Date}}
{{if .AdditionalNotes}}
{{.AdditionalNotes}}
{{end}}
Our support team can answer any questions about your application.
`+signature),
	},
	TemplateDocumentRequest: {
		subject: "Additional Documents Required",
		body: mustParse("document_request", `Dear {{.CustomerName}},

We need more documents to complete your KYC application (ID: {{.CustomerID}}).

Required documents:
{{range .RequiredDocuments}}- {{.}}
{{else}}- see the customer portal
{{end}}
Reason: {{if .Reason}}{{.Reason}}{{else}}additional verification{{end}}

Please upload them through the customer portal.
`+signature),
	},
	TemplateApproval: {
		subject: "KYC Application Approved",
		body: mustParse("approval", `Dear {{.CustomerName}},

Your KYC application (ID: {{.CustomerID}}) has been approved.

Risk level: {{.RiskLevel}}
Approved on: {{.Date}}
{{if .AdditionalNotes}}
{{.AdditionalNotes}}
{{end}}
You can now use your account.
`+signature),
	},
	TemplateRejection: {
		subject: "KYC Application Update",
		body: mustParse("rejection", `Dear {{.CustomerName}},

Your KYC application (ID: {{.CustomerID}}) could not be approved.

Current status: {{.Status}}
Reason: {{if .Reason}}{{.Reason}}{{else}}not specified{{end}}
{{if .AdditionalNotes}}
{{.AdditionalNotes}}
{{end}}
Please review the feedback and resubmit your application if needed.
`+signature),
	},
	TemplateCustom: {
		subject: "KYC Application Update",
		body: mustParse("custom", `Dear {{.CustomerName}},

{{.Message}}
`+signature),
	},
}

func mustParse(name, text string) *template.Template {
	return template.Must(template.New(name).Option("missingkey=zero").Parse(text))
}

// Render produces the subject and plain-text body for t.
func Render(t Template, p Params) (subject, body string, err error) {
	mt, ok := templates[t]
	if !ok {
		return "", "", dErrors.NewField(dErrors.CodeValidation, "template_type", "unknown template "+string(t))
	}
	if t == TemplateCustom && strings.TrimSpace(p.Message) == "" {
		return "", "", dErrors.NewField(dErrors.CodeValidation, "message", "is required for custom emails")
	}
	var buf bytes.Buffer
	if err := mt.body.Execute(&buf, p); err != nil {
		return "", "", dErrors.Wrap(err, dErrors.CodeInternal, "render email template")
	}
	subject = mt.subject
	if s := strings.TrimSpace(p.Subject); s != "" {
		subject = s
	}
	return subject, buf.String(), nil
}
