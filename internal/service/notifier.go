package service

import (
	"context"
	"fmt"
	"html"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/rongwang/propvera-server/internal/config"
	"github.com/rongwang/propvera-server/internal/utils"
)

// Notifier delivers out-of-band email. Delivery is best-effort: implementations
// report failure through the return value and never panic into the caller.
type Notifier interface {
	SendEmail(ctx context.Context, to, subject, body string) bool
}

// NewNotifier returns a SendGrid notifier, or a log-only notifier when no API key is configured
func NewNotifier(cfg config.EmailConfig) Notifier {
	if cfg.SendGridAPIKey == "" {
		utils.Logger.Warn("SENDGRID_API_KEY is empty, emails will only be logged")
		return LogNotifier{}
	}
	return NewSendGridNotifier(cfg)
}

// SendGridNotifier sends email through the SendGrid v3 API
type SendGridNotifier struct {
	client  *sendgrid.Client
	from    *mail.Email
	sandbox bool
}

// NewSendGridNotifier creates a SendGrid-backed notifier
func NewSendGridNotifier(cfg config.EmailConfig) *SendGridNotifier {
	return &SendGridNotifier{
		client:  sendgrid.NewSendClient(cfg.SendGridAPIKey),
		from:    mail.NewEmail(cfg.FromName, cfg.FromEmail),
		sandbox: cfg.SandboxMode,
	}
}

const emailHTML = `<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #1f2937;">
  <h2>%s</h2>
  <p>%s</p>
  <p style="color: #6b7280; font-size: 12px;">Propvera</p>
</body>
</html>`

func (n *SendGridNotifier) SendEmail(ctx context.Context, to, subject, body string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			utils.Logger.Errorf("Email send to %s panicked: %v", to, r)
			ok = false
		}
	}()

	if to == "" {
		utils.Logger.Warnf("Skipping email %q: no recipient", subject)
		return false
	}

	utils.Logger.Infof("Sending email to %s: %s", to, subject)

	htmlBody := fmt.Sprintf(emailHTML, html.EscapeString(subject), html.EscapeString(body))
	msg := mail.NewSingleEmail(n.from, subject, mail.NewEmail("", to), body, htmlBody)
	if n.sandbox {
		ms := mail.NewMailSettings()
		ms.SetSandboxMode(mail.NewSetting(true))
		msg.MailSettings = ms
	}

	resp, err := n.client.SendWithContext(ctx, msg)
	if err != nil {
		utils.Logger.WithError(err).Errorf("Email sending failed to %s", to)
		return false
	}
	if resp.StatusCode >= 300 {
		utils.Logger.Errorf("Email sending failed to %s: sendgrid status %d", to, resp.StatusCode)
		return false
	}

	return true
}

// LogNotifier only logs the email it would have sent
type LogNotifier struct{}

func (LogNotifier) SendEmail(ctx context.Context, to, subject, body string) bool {
	if to == "" {
		utils.Logger.Warnf("Skipping email %q: no recipient", subject)
		return false
	}
	utils.Logger.Infof("Sending email to %s: %s", to, subject)
	return true
}
