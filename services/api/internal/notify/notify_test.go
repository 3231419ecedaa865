package notify

import (
	"context"
	"log"
	"strings"
	"testing"
)

func TestRender_PaymentReceived(t *testing.T) {
	t.Parallel()

	subject, body, err := render(TemplatePaymentReceived, map[string]any{
		"CertificateCode": "CR-ABC123XYZ0",
		"Amount":          "12.5037",
		"Token":           "MATIC",
		"TxID":            "0xabc",
		"Quantity":        3,
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(subject, "CR-ABC123XYZ0") {
		t.Fatalf("subject missing certificate code: %q", subject)
	}
	if !strings.Contains(body, "12.5037 MATIC") {
		t.Fatalf("body missing amount: %q", body)
	}
}

func TestRender_UnknownTemplate(t *testing.T) {
	t.Parallel()

	if _, _, err := render("no_such_template", nil); err == nil {
		t.Fatalf("expected error for unknown template")
	}
}

func TestLogNotifier_Send(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	n := NewLog(log.New(&sb, "", 0))
	err := n.Send(context.Background(), TemplateOperatorSummary, "ops@example.com", map[string]any{
		"OrderID":         "order-1",
		"Amount":          "12.5037",
		"Token":           "MATIC",
		"TxID":            "0xabc",
		"CertificateCode": "CR-ABC123XYZ0",
		"Quantity":        3,
		"Buyer":           "buyer@example.com",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.Contains(sb.String(), "recipient=ops@example.com") {
		t.Fatalf("log output missing recipient: %q", sb.String())
	}
}
