// Package email verschickt Abwesenheits- und Rückkehrbenachrichtigungen per SMTP.
package email

import (
	"context"
	"errors"
	"fmt"
	"html"
	"time"

	"classroom-attendance/config"
	"classroom-attendance/internal/attendance"
	"classroom-attendance/internal/util/timezone"

	log "github.com/sirupsen/logrus"
	"github.com/wneessen/go-mail"
)

var (
	// ErrNotConfigured wird zurückgegeben, wenn SMTP nicht (vollständig) konfiguriert ist
	ErrNotConfigured = errors.New("email alerts are not configured")
	// ErrNoRecipient wird zurückgegeben, wenn für den Schüler keine E-Mail-Adresse hinterlegt ist
	ErrNoRecipient = errors.New("no guardian email address")
)

// Kind unterscheidet die Benachrichtigungsarten
type Kind string

const (
	KindAbsence Kind = "absence"
	KindReturn  Kind = "return"
)

// ContactLookup liefert die Kontaktdaten der Erziehungsberechtigten
type ContactLookup interface {
	GuardianContact(ctx context.Context, studentID string) (*attendance.GuardianContact, error)
}

// Localizer übersetzt Nachrichten-IDs
type Localizer interface {
	T(lang, id string, data map[string]interface{}) string
}

// Transport stellt eine fertige Nachricht zu
type Transport interface {
	Send(ctx context.Context, msg *mail.Msg) error
}

// Content ist der sprachabhängige Inhalt einer Benachrichtigung
type Content struct {
	Subject string
	Text    string
	HTML    string
}

// Sender implementiert attendance.Alerter über SMTP
type Sender struct {
	cfg       config.EmailConfig
	contacts  ContactLookup
	tr        Localizer
	transport Transport
	now       func() time.Time
}

// NewSender erstellt einen Sender mit SMTP-Transport
func NewSender(cfg config.EmailConfig, contacts ContactLookup, tr Localizer) *Sender {
	return NewSenderWithTransport(cfg, contacts, tr, &smtpTransport{cfg: cfg})
}

// NewSenderWithTransport erlaubt einen eigenen Transport (z.B. für Tests)
func NewSenderWithTransport(cfg config.EmailConfig, contacts ContactLookup, tr Localizer, transport Transport) *Sender {
	if cfg.SenderEmail == "" {
		cfg.SenderEmail = cfg.Username
	}
	return &Sender{
		cfg:       cfg,
		contacts:  contacts,
		tr:        tr,
		transport: transport,
		now:       timezone.Now,
	}
}

// IsConfigured prüft, ob alle für den Versand nötigen Einstellungen vorhanden sind
func (s *Sender) IsConfigured() bool {
	return s.cfg.Enabled &&
		s.cfg.SMTPServer != "" &&
		s.cfg.SMTPPort > 0 &&
		s.cfg.Username != "" &&
		s.cfg.Password != "" &&
		s.cfg.SenderEmail != ""
}

// Status fasst die Konfiguration ohne Zugangsdaten zusammen
func (s *Sender) Status() map[string]interface{} {
	return map[string]interface{}{
		"enabled":      s.cfg.Enabled,
		"configured":   s.IsConfigured(),
		"smtp_server":  s.cfg.SMTPServer,
		"smtp_port":    s.cfg.SMTPPort,
		"sender_email": s.cfg.SenderEmail,
		"sender_name":  s.cfg.SenderName,
		"language":     s.cfg.Language,
	}
}

// SendAbsenceAlert benachrichtigt die Erziehungsberechtigten über eine Abwesenheit
func (s *Sender) SendAbsenceAlert(ctx context.Context, studentID string) error {
	return s.send(ctx, KindAbsence, studentID)
}

// SendReturnNotice benachrichtigt die Erziehungsberechtigten über die Rückkehr
func (s *Sender) SendReturnNotice(ctx context.Context, studentID string) error {
	return s.send(ctx, KindReturn, studentID)
}

func (s *Sender) send(ctx context.Context, kind Kind, studentID string) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}

	contact, err := s.contacts.GuardianContact(ctx, studentID)
	if err != nil {
		return err
	}
	if contact.Email == "" {
		return fmt.Errorf("%w for student %s", ErrNoRecipient, studentID)
	}

	msg, err := s.BuildMessage(kind, contact)
	if err != nil {
		return err
	}

	if err := s.transport.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send %s email for student %s: %w", kind, studentID, err)
	}

	log.WithFields(log.Fields{
		"student": studentID,
		"kind":    kind,
	}).Info("Guardian notification sent")
	return nil
}

// Compose erzeugt Betreff und Text (Klartext und HTML) in der konfigurierten Sprache
func (s *Sender) Compose(kind Kind, contact *attendance.GuardianContact) Content {
	lang := s.cfg.Language
	guardian := contact.GuardianName
	if guardian == "" {
		guardian = s.tr.T(lang, "email.guardian_fallback", nil)
	}
	student := contact.StudentName

	data := map[string]interface{}{
		"StudentName":  student,
		"GuardianName": guardian,
		"Time":         timezone.Format(s.now(), "15:04"),
		"SenderName":   s.cfg.SenderName,
	}
	prefix := "email." + string(kind)
	subject := s.tr.T(lang, prefix+".subject", data)
	greeting := s.tr.T(lang, prefix+".greeting", data)
	body := s.tr.T(lang, prefix+".body", data)
	footer := s.tr.T(lang, "email.footer", data)

	// Für HTML werden die Platzhalter escaped
	htmlData := map[string]interface{}{
		"StudentName":  html.EscapeString(student),
		"GuardianName": html.EscapeString(guardian),
		"Time":         data["Time"],
		"SenderName":   html.EscapeString(s.cfg.SenderName),
	}
	htmlBody := fmt.Sprintf(
		"<html><body><p>%s</p><p><strong>%s</strong></p><hr><p><small>%s</small></p></body></html>",
		s.tr.T(lang, prefix+".greeting", htmlData),
		s.tr.T(lang, prefix+".body", htmlData),
		s.tr.T(lang, "email.footer", htmlData),
	)

	return Content{
		Subject: subject,
		Text:    greeting + "\n\n" + body + "\n\n--\n" + footer + "\n",
		HTML:    htmlBody,
	}
}

// BuildMessage erstellt die E-Mail für einen Erziehungsberechtigten
func (s *Sender) BuildMessage(kind Kind, contact *attendance.GuardianContact) (*mail.Msg, error) {
	content := s.Compose(kind, contact)

	msg := mail.NewMsg()
	if err := msg.FromFormat(s.cfg.SenderName, s.cfg.SenderEmail); err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(contact.Email); err != nil {
		return nil, fmt.Errorf("invalid recipient address %q: %w", contact.Email, err)
	}
	msg.Subject(content.Subject)
	msg.SetBodyString(mail.TypeTextPlain, content.Text)
	msg.AddAlternativeString(mail.TypeTextHTML, content.HTML)
	return msg, nil
}

// smtpTransport verschickt Nachrichten über den konfigurierten SMTP-Server (STARTTLS)
type smtpTransport struct {
	cfg config.EmailConfig
}

func (t *smtpTransport) Send(ctx context.Context, msg *mail.Msg) error {
	client, err := mail.NewClient(t.cfg.SMTPServer,
		mail.WithPort(t.cfg.SMTPPort),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(t.cfg.Username),
		mail.WithPassword(t.cfg.Password),
		mail.WithTLSPortPolicy(mail.TLSMandatory),
		mail.WithTimeout(30*time.Second),
	)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}

var _ attendance.Alerter = (*Sender)(nil)
