package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// Message is one outgoing email.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Mailer delivers verification codes.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPConfig configures SMTPMailer.
type SMTPConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	FromAddress string `yaml:"from_address"`
	FromName    string `yaml:"from_name"`
	// SSL dials with implicit TLS. Otherwise STARTTLS is used when offered.
	SSL bool `yaml:"ssl"`
}

// SMTPMailer sends mail through an SMTP relay.
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
	name   string
}

func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Host == "" || cfg.FromAddress == "" {
		return nil, fmt.Errorf("smtp configuration incomplete")
	}
	port := cfg.Port
	if port == 0 {
		port = 587
	}
	dialer := gomail.NewDialer(cfg.Host, port, cfg.Username, cfg.Password)
	dialer.SSL = cfg.SSL
	return &SMTPMailer{dialer: dialer, from: cfg.FromAddress, name: cfg.FromName}, nil
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	gm := gomail.NewMessage()
	if m.name != "" {
		gm.SetAddressHeader("From", m.from, m.name)
	} else {
		gm.SetHeader("From", m.from)
	}
	gm.SetHeader("To", msg.To)
	gm.SetHeader("Subject", msg.Subject)
	gm.SetBody("text/plain", msg.Text)
	if msg.HTML != "" {
		gm.AddAlternative("text/html", msg.HTML)
	}

	if err := m.dialer.DialAndSend(gm); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", msg.To, err)
	}
	return nil
}

// LogMailer writes messages to the log instead of sending them. It is meant
// for development, where the code is read from the log.
type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer(logger *zap.Logger) *LogMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogMailer{logger: logger.Named("mail")}
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.logger.Info("email",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Text),
	)
	return nil
}

// codeMessage renders the email carrying code for purpose.
func codeMessage(site, to, purpose, code string, ttl time.Duration) Message {
	minutes := int(ttl / time.Minute)
	var subject, action string
	switch purpose {
	case PurposeResetPassword:
		subject = fmt.Sprintf("[%s] Password reset", site)
		action = fmt.Sprintf("You requested a password reset on %s", site)
	default:
		subject = fmt.Sprintf("[%s] Email verification", site)
		action = fmt.Sprintf("You are registering on %s", site)
	}

	var text strings.Builder
	fmt.Fprintf(&text, "Hello,\n\n%s. Your verification code is:\n\n    %s\n\n", action, code)
	fmt.Fprintf(&text, "The code is valid for %d minutes.\n\n", minutes)
	text.WriteString("If this was not you, please ignore this email.")

	html := fmt.Sprintf(
		`<p>Hello,</p><p>%s. Your verification code is:</p>`+
			`<p style="font-size:24px;font-weight:bold;letter-spacing:4px">%s</p>`+
			`<p>The code is valid for %d minutes.</p>`+
			`<p style="color:#888">If this was not you, please ignore this email.</p>`,
		action, code, minutes,
	)

	return Message{To: to, Subject: subject, Text: text.String(), HTML: html}
}
