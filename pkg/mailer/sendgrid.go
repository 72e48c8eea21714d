package mailer

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

// Message is one outbound email.
type Message struct {
	ToName  string
	ToEmail string
	Subject string
	HTML    string
	Text    string
}

// SendGridClient sends mail through the SendGrid API.
type SendGridClient struct {
	fromName string
	fromMail string
	client   *sendgrid.Client
	logger   *zap.Logger
}

func NewSendGridClient(apiKey, fromName, fromMail string, logger *zap.Logger) *SendGridClient {
	return &SendGridClient{
		fromName: fromName,
		fromMail: fromMail,
		client:   sendgrid.NewSendClient(apiKey),
		logger:   logger,
	}
}

// Send delivers one message. Timeouts and rate handling are the provider
// client's concern; this imposes none of its own.
func (c *SendGridClient) Send(ctx context.Context, msg Message) error {
	from := mail.NewEmail(c.fromName, c.fromMail)
	to := mail.NewEmail(msg.ToName, msg.ToEmail)
	m := mail.NewSingleEmail(from, msg.Subject, to, msg.Text, msg.HTML)

	resp, err := c.client.SendWithContext(ctx, m)
	if err != nil {
		c.logger.Error("SendGrid send failed",
			zap.String("to", msg.ToEmail),
			zap.Error(err),
		)
		return err
	}
	if resp.StatusCode >= 400 {
		c.logger.Error("SendGrid rejected message",
			zap.String("to", msg.ToEmail),
			zap.Int("status", resp.StatusCode),
		)
		return fmt.Errorf("sendgrid returned status %d", resp.StatusCode)
	}

	c.logger.Info("Email sent",
		zap.String("to", msg.ToEmail),
		zap.String("subject", msg.Subject),
	)
	return nil
}
