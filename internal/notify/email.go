package notify

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"strings"
	"text/template"
	"time"

	"daimaescape/internal/models"

	"github.com/shopspring/decimal"
	"gopkg.in/mail.v2"
)

//go:embed "templates"
var templateFS embed.FS

var templateFiles = map[Kind]string{
	KindBookingConfirmation: "templates/booking_confirmation.tmpl",
	KindBookingCancellation: "templates/booking_cancellation.tmpl",
	KindCheckInReminder:     "templates/checkin_reminder.tmpl",
}

// EmailConfig holds SMTP settings for guest emails.
type EmailConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	From        string
	FromName    string
	SiteBaseURL string
	Currency    string
	Timeout     time.Duration
}

// EmailSender renders guest notifications and sends them over SMTP.
type EmailSender struct {
	cfg       EmailConfig
	templates map[Kind]*template.Template
	send      func(*mail.Message) error
}

func NewEmailSender(cfg EmailConfig) (*EmailSender, error) {
	if cfg.Currency == "" {
		cfg.Currency = "TSh"
	}

	s := &EmailSender{cfg: cfg, templates: make(map[Kind]*template.Template)}
	funcs := template.FuncMap{
		"date":  func(t time.Time) string { return t.Format(models.DateLayout) },
		"money": func(d decimal.Decimal) string { return cfg.Currency + " " + d.StringFixed(2) },
	}
	for kind, file := range templateFiles {
		tmpl, err := template.New("email").Funcs(funcs).ParseFS(templateFS, file)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", file, err)
		}
		s.templates[kind] = tmpl
	}

	dialer := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	if cfg.Timeout > 0 {
		dialer.Timeout = cfg.Timeout
	}
	s.send = func(m *mail.Message) error { return dialer.DialAndSend(m) }
	return s, nil
}

func (s *EmailSender) Channel() string {
	return "email"
}

type emailData struct {
	Booking    models.Booking
	Extra      map[string]string
	ManageURL  string
	TaxPercent string
}

// Render produces the subject and plain-text body for msg.
func (s *EmailSender) Render(msg Message) (subject, body string, err error) {
	tmpl, ok := s.templates[msg.Kind]
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrNoChannel, msg.Kind)
	}

	data := emailData{
		Booking:    msg.Booking,
		Extra:      msg.Extra,
		ManageURL:  strings.TrimSuffix(s.cfg.SiteBaseURL, "/") + "/booking/detail/" + msg.Booking.Reference + "/",
		TaxPercent: taxPercent(msg.Booking),
	}

	var subj, text bytes.Buffer
	if err := tmpl.ExecuteTemplate(&subj, "subject", data); err != nil {
		return "", "", err
	}
	if err := tmpl.ExecuteTemplate(&text, "body", data); err != nil {
		return "", "", err
	}
	return strings.TrimSpace(subj.String()), text.String(), nil
}

func (s *EmailSender) Send(ctx context.Context, msg Message) error {
	if msg.Recipient == "" {
		return ErrNoRecipient
	}

	subject, body, err := s.Render(msg)
	if err != nil {
		return err
	}

	m := mail.NewMessage()
	m.SetAddressHeader("From", s.cfg.From, s.cfg.FromName)
	m.SetHeader("To", msg.Recipient)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.send(m); err != nil {
		return fmt.Errorf("failed to send %s email: %w", msg.Kind, err)
	}
	return nil
}

// taxPercent recovers the applied rate from the booking snapshot.
func taxPercent(b models.Booking) string {
	if !b.Subtotal.IsPositive() {
		return "0"
	}
	return b.TaxAmount.Div(b.Subtotal).Mul(decimal.NewFromInt(100)).Round(0).String()
}
