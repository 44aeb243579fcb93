package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const defaultSendGridHost = "https://api.sendgrid.com"

var emailTemplate = template.Must(template.New("certificate-email").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Helvetica, Arial, sans-serif; color: #1f2937;">
  <h2>Congratulations, {{.StudentName}}!</h2>
  <p>You completed <strong>{{.CourseName}}</strong> with grade <strong>{{.Grade}}</strong>.</p>
  {{- if .Achievements}}
  <p>Achievements: {{range $i, $a := .Achievements}}{{if $i}}, {{end}}{{$a}}{{end}}</p>
  {{- end}}
  <p>Certificate number: <code>{{.CertificateNumber}}</code></p>
  {{- if .DocumentURL}}
  <p><a href="{{.DocumentURL}}">Download your certificate</a></p>
  {{- end}}
  <p>Anyone can verify it at <a href="{{.VerificationURL}}">{{.VerificationURL}}</a>.</p>
  {{- if .ShareURL}}
  <p><a href="{{.ShareURL}}">Add it to your LinkedIn profile</a></p>
  {{- end}}
</body>
</html>
`))

// EmailConfig configures the SendGrid sender.
type EmailConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
	// Host overrides the SendGrid API host.
	Host string
}

// Email sends certificate emails through SendGrid.
type Email struct {
	cfg EmailConfig
}

func NewEmail(cfg EmailConfig) (*Email, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("sendgrid api key not configured")
	}
	if strings.TrimSpace(cfg.FromEmail) == "" {
		return nil, fmt.Errorf("email sender not configured")
	}
	if cfg.Host == "" {
		cfg.Host = defaultSendGridHost
	}
	return &Email{cfg: cfg}, nil
}

// Notify sends event to event.Email. Events without an address are skipped.
func (e *Email) Notify(ctx context.Context, event Event) error {
	if strings.TrimSpace(event.Email) == "" {
		return nil
	}

	var html bytes.Buffer
	if err := emailTemplate.Execute(&html, event); err != nil {
		return fmt.Errorf("render email: %w", err)
	}
	plain := fmt.Sprintf("Congratulations %s! You completed %s with grade %s. Verify your certificate at %s",
		event.StudentName, event.CourseName, event.Grade, event.VerificationURL)

	message := mail.NewSingleEmail(
		mail.NewEmail(e.cfg.FromName, e.cfg.FromEmail),
		"Your certificate for "+event.CourseName,
		mail.NewEmail(event.StudentName, event.Email),
		plain,
		html.String(),
	)
	message.SetHeader("X-Certificate-ID", event.CertificateID)

	request := sendgrid.GetRequest(e.cfg.APIKey, "/v3/mail/send", e.cfg.Host)
	request.Method = "POST"
	request.Body = mail.GetRequestBody(message)

	resp, err := sendgrid.MakeRequestWithContext(ctx, request)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("send email: sendgrid returned %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}
