package notify

import (
	"context"
	"fmt"
	"log"
	"net/smtp"
	"strings"
)

// SMTPNotifier sends rendered templates through a plain SMTP relay.
type SMTPNotifier struct {
	addr string
	from string
}

func NewSMTP(addr, from string) *SMTPNotifier {
	return &SMTPNotifier{addr: addr, from: from}
}

func (n *SMTPNotifier) Send(ctx context.Context, templateName, recipient string, data map[string]any) error {
	if recipient == "" {
		return fmt.Errorf("notify %s: empty recipient", templateName)
	}
	subject, body, err := render(templateName, data)
	if err != nil {
		return err
	}

	msg := strings.Join([]string{
		"From: " + n.from,
		"To: " + recipient,
		"Subject: " + subject,
		"",
		body,
	}, "\r\n")

	if err := smtp.SendMail(n.addr, nil, n.from, []string{recipient}, []byte(msg)); err != nil {
		return fmt.Errorf("send %s to %s: %w", templateName, recipient, err)
	}
	return nil
}

// LogNotifier writes notifications to the process log. Used when no SMTP
// relay is configured, and in tests.
type LogNotifier struct {
	logger *log.Logger
}

func NewLog(logger *log.Logger) *LogNotifier {
	if logger == nil {
		logger = log.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(ctx context.Context, templateName, recipient string, data map[string]any) error {
	subject, _, err := render(templateName, data)
	if err != nil {
		return err
	}
	n.logger.Printf("notify template=%s recipient=%s subject=%q", templateName, recipient, subject)
	return nil
}
