package workers

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"text/template"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/soulnet-app/soulnet/internal/config"
	"github.com/soulnet-app/soulnet/internal/tasks"
)

// Mailer delivers a plain-text message.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// NewMailer returns an SMTP mailer, or a mailer that only logs when no SMTP
// host is configured.
func NewMailer(cfg config.SMTPConfig, logger zerolog.Logger) Mailer {
	if cfg.Host == "" {
		return &LogMailer{logger: logger}
	}
	return &SMTPMailer{cfg: cfg}
}

// SMTPMailer sends through an SMTP relay with PLAIN auth when a username is
// set.
type SMTPMailer struct {
	cfg config.SMTPConfig
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	msg.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))

	if err := smtp.SendMail(addr, auth, m.cfg.From, []string{to}, msg.Bytes()); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", to, err)
	}
	return nil
}

// LogMailer writes messages to the log instead of delivering them.
type LogMailer struct {
	logger zerolog.Logger
}

func (m *LogMailer) Send(ctx context.Context, to, subject, body string) error {
	m.logger.Warn().
		Str("to", to).
		Str("subject", subject).
		Str("body", body).
		Msg("SMTP not configured, logging message instead of sending")
	return nil
}

var resetMessage = template.Must(template.New("reset").Parse(`Hello,

Someone asked to reset the password of your SoulNet account ({{.Email}}).
Open the link below within one hour to choose a new password:

{{.ResetURL}}

If you did not ask for this, you can ignore this message.
`))

const resetSubject = "Reset your SoulNet password"

// HandlePasswordResetEmail renders and delivers a password reset message.
func HandlePasswordResetEmail(ctx context.Context, t *asynq.Task, mailer Mailer, logger zerolog.Logger) error {
	payload, err := tasks.ParsePasswordResetPayload(t)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to parse password reset payload")
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	var body bytes.Buffer
	if err := resetMessage.Execute(&body, payload); err != nil {
		return fmt.Errorf("failed to render reset message: %w", err)
	}

	if err := mailer.Send(ctx, payload.Email, resetSubject, body.String()); err != nil {
		logger.Error().
			Err(err).
			Str("user_id", payload.UserID).
			Msg("Failed to deliver password reset message")
		return err
	}

	logger.Info().
		Str("user_id", payload.UserID).
		Msg("Password reset message delivered")
	return nil
}
