package mailer

import (
	"context"
	"errors"
	"testing"

	mail "github.com/go-mail/mail/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JRCMora/jms-api/pkg/config"
)

type recordingDialer struct {
	sent []*mail.Message
	err  error
}

func (d *recordingDialer) DialAndSend(m ...*mail.Message) error {
	d.sent = append(d.sent, m...)
	return d.err
}

func TestNewRequiresHostAndSender(t *testing.T) {
	_, err := New(config.SMTPConfig{Host: "smtp.journal.test"})
	assert.ErrorIs(t, err, ErrNotConfigured)

	m, err := New(config.SMTPConfig{Host: "smtp.journal.test", From: "Journal <no-reply@journal.test>"})
	require.NoError(t, err)
	assert.NotNil(t, m)
}

func TestSendBuildsHeaders(t *testing.T) {
	d := &recordingDialer{}
	m := &SMTPMailer{from: "no-reply@journal.test", dialer: d}

	err := m.Send(context.Background(), Message{To: []string{"r1@journal.test"}, Subject: "Review requested", HTML: "<p>hi</p>"})
	require.NoError(t, err)
	require.Len(t, d.sent, 1)
	assert.Equal(t, []string{"Review requested"}, d.sent[0].GetHeader("Subject"))
	assert.Equal(t, []string{"r1@journal.test"}, d.sent[0].GetHeader("To"))
}

func TestSendSkipsEmptyRecipientsAndWrapsErrors(t *testing.T) {
	d := &recordingDialer{err: errors.New("connection refused")}
	m := &SMTPMailer{from: "no-reply@journal.test", dialer: d}

	require.NoError(t, m.Send(context.Background(), Message{Subject: "nobody"}))
	assert.Empty(t, d.sent)

	err := m.Send(context.Background(), Message{To: []string{"a@journal.test"}, Subject: "x"})
	assert.ErrorContains(t, err, "connection refused")
}
