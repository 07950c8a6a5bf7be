package delivery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSMTPDeliverer(t *testing.T) {
	t.Run("requires host", func(t *testing.T) {
		_, err := NewSMTPDeliverer(&SMTPConfig{})
		assert.Error(t, err)
	})

	t.Run("defaults port", func(t *testing.T) {
		d, err := NewSMTPDeliverer(&SMTPConfig{Host: "smtp.example.com"})
		require.NoError(t, err)
		assert.Equal(t, 587, d.config.Port)
	})
}

func TestBuildPayload(t *testing.T) {
	d, err := NewSMTPDeliverer(&SMTPConfig{Host: "smtp.example.com", From: "noreply@example.com"})
	require.NoError(t, err)

	payload, err := d.buildPayload(&Message{
		To:      "sub@example.com",
		Subject: "We miss you",
		Body:    "Hello **there**, come back!",
	})
	require.NoError(t, err)

	s := string(payload)
	assert.Contains(t, s, "To: sub@example.com")
	assert.Contains(t, s, "Subject: We miss you")
	assert.Contains(t, s, "Content-Type: text/plain")
	assert.Contains(t, s, "Content-Type: text/html")
	// Markdown emphasis rendered in the HTML part.
	assert.Contains(t, s, "<strong>there</strong>")
	// Raw markdown preserved in the plain part.
	assert.Contains(t, s, "**there**")
}
