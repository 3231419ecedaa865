// Package notify delivers best-effort messages to buyers and the platform
// operator. Failures are reported to the caller for logging and never block
// order finalization.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"text/template"
)

// Template names understood by the bundled notifiers.
const (
	TemplatePaymentReceived = "payment_received"
	TemplateOperatorSummary = "operator_summary"
)

type Notifier interface {
	Send(ctx context.Context, templateName, recipient string, data map[string]any) error
}

var templates = template.Must(template.New("notify").Parse(`
{{define "payment_received_subject"}}Your carbon credit certificate {{.CertificateCode}}{{end}}
{{define "payment_received"}}Hello,

We received your payment of {{.Amount}} {{.Token}} (tx {{.TxID}}).

Your certificate {{.CertificateCode}} for {{.Quantity}} credit(s) has been
issued and is now active. You can verify it at any time using its code.

Thank you for supporting verified climate projects.
{{end}}
{{define "operator_summary_subject"}}Payment settled: order {{.OrderID}}{{end}}
{{define "operator_summary"}}Order {{.OrderID}} settled.

Amount: {{.Amount}} {{.Token}}
Transaction: {{.TxID}}
Certificate: {{.CertificateCode}}
Quantity: {{.Quantity}}
Buyer: {{.Buyer}}
{{end}}
`))

func render(templateName string, data map[string]any) (subject, body string, err error) {
	var subjBuf, bodyBuf bytes.Buffer
	if err := templates.ExecuteTemplate(&subjBuf, templateName+"_subject", data); err != nil {
		return "", "", fmt.Errorf("render subject %s: %w", templateName, err)
	}
	if err := templates.ExecuteTemplate(&bodyBuf, templateName, data); err != nil {
		return "", "", fmt.Errorf("render body %s: %w", templateName, err)
	}
	return subjBuf.String(), bodyBuf.String(), nil
}
