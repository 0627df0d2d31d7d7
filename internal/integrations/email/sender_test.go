package email

import (
	"context"
	"errors"
	"testing"
	"time"

	"classroom-attendance/config"
	"classroom-attendance/internal/attendance"
	"classroom-attendance/internal/i18n"
	"classroom-attendance/internal/util/timezone"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"
)

type fakeContacts map[string]*attendance.GuardianContact

func (f fakeContacts) GuardianContact(_ context.Context, id string) (*attendance.GuardianContact, error) {
	c, ok := f[id]
	if !ok {
		return nil, errors.New("student not found")
	}
	return c, nil
}

type fakeTransport struct {
	sent []*mail.Msg
	err  error
}

func (f *fakeTransport) Send(_ context.Context, msg *mail.Msg) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func validConfig() config.EmailConfig {
	return config.EmailConfig{
		Enabled:    true,
		SMTPServer: "smtp.example.com",
		SMTPPort:   587,
		Username:   "monitor@example.com",
		Password:   "secret",
		SenderName: "Sistema de Monitoramento",
		Language:   "en",
	}
}

func newTestSender(t *testing.T, cfg config.EmailConfig, transport Transport) *Sender {
	t.Helper()
	timezone.Initialize("UTC")
	tr, err := i18n.NewTranslator(config.I18nConfig{DefaultLanguage: "pt"})
	require.NoError(t, err)

	contacts := fakeContacts{
		"s1": {StudentName: "Ana <b>", GuardianName: "Maria", Email: "maria@example.com"},
		"s2": {StudentName: "Bruno"},
	}
	s := NewSenderWithTransport(cfg, contacts, tr, transport)
	s.now = func() time.Time { return time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC) }
	return s
}

func TestIsConfigured(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.EmailConfig)
		want   bool
	}{
		{"complete", func(*config.EmailConfig) {}, true},
		{"disabled", func(c *config.EmailConfig) { c.Enabled = false }, false},
		{"no server", func(c *config.EmailConfig) { c.SMTPServer = "" }, false},
		{"no password", func(c *config.EmailConfig) { c.Password = "" }, false},
		{"no port", func(c *config.EmailConfig) { c.SMTPPort = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			s := newTestSender(t, cfg, &fakeTransport{})
			assert.Equal(t, tt.want, s.IsConfigured())
		})
	}
}

func TestSenderEmailDefaultsToUsername(t *testing.T) {
	s := newTestSender(t, validConfig(), &fakeTransport{})
	assert.Equal(t, "monitor@example.com", s.Status()["sender_email"])
}

func TestComposeAbsenceAlert(t *testing.T) {
	s := newTestSender(t, validConfig(), &fakeTransport{})
	content := s.Compose(KindAbsence, &attendance.GuardianContact{StudentName: "Ana <b>", GuardianName: "Maria"})

	assert.Equal(t, "Absence alert: Ana <b>", content.Subject)
	assert.Contains(t, content.Text, "Hello Maria,")
	assert.Contains(t, content.Text, "last check at 09:30")
	assert.Contains(t, content.Text, "Sistema de Monitoramento")
	assert.Contains(t, content.HTML, "Ana &lt;b&gt;")
	assert.NotContains(t, content.HTML, "Ana <b>")
}

func TestComposeReturnNoticeInPortuguese(t *testing.T) {
	cfg := validConfig()
	cfg.Language = "pt"
	s := newTestSender(t, cfg, &fakeTransport{})
	content := s.Compose(KindReturn, &attendance.GuardianContact{StudentName: "Bruno"})

	assert.Equal(t, "Bruno voltou à sala de aula", content.Subject)
	assert.Contains(t, content.Text, "Olá responsável,")
}

func TestSendAbsenceAlert(t *testing.T) {
	transport := &fakeTransport{}
	s := newTestSender(t, validConfig(), transport)

	require.NoError(t, s.SendAbsenceAlert(context.Background(), "s1"))
	require.Len(t, transport.sent, 1)
	assert.Equal(t, []string{"<maria@example.com>"}, transport.sent[0].GetToString())
}

func TestSendErrors(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		cfg := validConfig()
		cfg.Enabled = false
		s := newTestSender(t, cfg, &fakeTransport{})
		assert.ErrorIs(t, s.SendAbsenceAlert(context.Background(), "s1"), ErrNotConfigured)
	})

	t.Run("no recipient", func(t *testing.T) {
		s := newTestSender(t, validConfig(), &fakeTransport{})
		assert.ErrorIs(t, s.SendReturnNotice(context.Background(), "s2"), ErrNoRecipient)
	})

	t.Run("unknown student", func(t *testing.T) {
		s := newTestSender(t, validConfig(), &fakeTransport{})
		assert.Error(t, s.SendAbsenceAlert(context.Background(), "missing"))
	})

	t.Run("transport failure", func(t *testing.T) {
		boom := errors.New("connection refused")
		s := newTestSender(t, validConfig(), &fakeTransport{err: boom})
		assert.ErrorIs(t, s.SendAbsenceAlert(context.Background(), "s1"), boom)
	})
}
