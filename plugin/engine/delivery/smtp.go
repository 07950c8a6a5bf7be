package delivery

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net/smtp"
	"strings"

	"github.com/yuin/goldmark"

	engineerrors "github.com/subpilot/subpilot/internal/errors"
)

// SMTPConfig holds the SMTP relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPDeliverer sends messages through an SMTP relay. Markdown bodies are
// rendered to HTML with a plain-text fallback in a multipart message.
type SMTPDeliverer struct {
	config   *SMTPConfig
	markdown goldmark.Markdown
}

// NewSMTPDeliverer creates an SMTP deliverer.
func NewSMTPDeliverer(config *SMTPConfig) (*SMTPDeliverer, error) {
	if config == nil || config.Host == "" {
		return nil, engineerrors.InvalidArgument("smtp host is required")
	}
	if config.Port == 0 {
		config.Port = 587
	}
	return &SMTPDeliverer{
		config:   config,
		markdown: goldmark.New(),
	}, nil
}

// Deliver sends one message. Any transport error maps to a delivery-failed
// error so callers can mark the action FAILED rather than EXECUTED.
func (d *SMTPDeliverer) Deliver(ctx context.Context, msg *Message) error {
	if msg.To == "" {
		return engineerrors.InvalidArgument("recipient is required")
	}

	payload, err := d.buildPayload(msg)
	if err != nil {
		return engineerrors.DeliveryFailed("failed to build message", err)
	}

	from := msg.From
	if from == "" {
		from = d.config.From
	}

	addr := fmt.Sprintf("%s:%d", d.config.Host, d.config.Port)
	var auth smtp.Auth
	if d.config.Username != "" {
		auth = smtp.PlainAuth("", d.config.Username, d.config.Password, d.config.Host)
	}

	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(addr, auth, from, []string{msg.To}, payload)
	}()

	select {
	case <-ctx.Done():
		return engineerrors.DeliveryFailed("delivery canceled", ctx.Err())
	case err := <-done:
		if err != nil {
			return engineerrors.DeliveryFailed("smtp send failed", err)
		}
	}
	return nil
}

// buildPayload renders a multipart/alternative message: markdown source as
// text/plain, goldmark-rendered HTML as text/html.
func (d *SMTPDeliverer) buildPayload(msg *Message) ([]byte, error) {
	var html bytes.Buffer
	if err := d.markdown.Convert([]byte(msg.Body), &html); err != nil {
		return nil, err
	}

	boundary := "subpilot-alt"
	var b strings.Builder
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(msg.Body)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
	b.Write(html.Bytes())
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return []byte(b.String()), nil
}

// Ensure SMTPDeliverer implements Deliverer.
var _ Deliverer = (*SMTPDeliverer)(nil)
