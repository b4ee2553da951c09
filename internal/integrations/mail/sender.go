package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

// sendgridAPI is the part of *sendgrid.Client used by Sender.
type sendgridAPI interface {
	SendWithContext(ctx context.Context, email *sgmail.SGMailV3) (*rest.Response, error)
}

// Sender delivers account emails through SendGrid.
type Sender struct {
	api       sendgridAPI
	fromName  string
	fromEmail string
}

func NewSender(apiKey, fromName, fromEmail string) (*Sender, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("mail: sendgrid api key must not be empty")
	}
	return newSender(sendgrid.NewSendClient(apiKey), fromName, fromEmail)
}

func newSender(api sendgridAPI, fromName, fromEmail string) (*Sender, error) {
	if api == nil {
		return nil, errors.New("mail: api must not be nil")
	}
	if strings.TrimSpace(fromEmail) == "" {
		return nil, errors.New("mail: from address must not be empty")
	}
	return &Sender{api: api, fromName: fromName, fromEmail: fromEmail}, nil
}

// SendVerificationCode mails code to recipient.
func (s *Sender) SendVerificationCode(ctx context.Context, recipient, code string, ttl time.Duration) error {
	from := sgmail.NewEmail(s.fromName, s.fromEmail)
	to := sgmail.NewEmail(recipient, recipient)
	subject := "Код подтверждения"

	minutes := int(ttl.Minutes())
	if minutes < 1 {
		minutes = 1
	}
	plainText := fmt.Sprintf("Ваш код подтверждения: %s\n\nКод действует %d мин.", code, minutes)
	htmlContent := fmt.Sprintf(`<p>Ваш код подтверждения:</p><p style="font-size:24px;font-weight:bold;">%s</p><p>Код действует %d мин.</p>`, code, minutes)

	message := sgmail.NewSingleEmail(from, subject, to, plainText, htmlContent)
	res, err := s.api.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("mail: send verification code: %w", err)
	}
	if res == nil || res.StatusCode < 200 || res.StatusCode >= 300 {
		status, body := 0, ""
		if res != nil {
			status, body = res.StatusCode, res.Body
		}
		return fmt.Errorf("mail: sendgrid returned status %d: %s", status, body)
	}
	return nil
}
