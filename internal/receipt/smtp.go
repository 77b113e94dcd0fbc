package receipt

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

const smtpAttempts = 3

// SMTPConfig задаёт параметры почтового сервера.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender отправляет квитанции по электронной почте.
type SMTPSender struct {
	cfg      SMTPConfig
	logger   *zap.Logger
	backoff  time.Duration
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender создаёт отправителя квитанций через SMTP.
func NewSMTPSender(cfg SMTPConfig, logger *zap.Logger) *SMTPSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SMTPSender{
		cfg:      cfg,
		logger:   logger,
		backoff:  time.Second,
		sendMail: smtp.SendMail,
	}
}

// SendReceipt отправляет квитанцию работнику, повторяя попытку при ошибке.
func (s *SMTPSender) SendReceipt(ctx context.Context, r Receipt) error {
	if s.cfg.Host == "" {
		return fmt.Errorf("smtp not configured")
	}

	msg, err := Render(r)
	if err != nil {
		return err
	}

	headers := fmt.Sprintf("From: %s\r\n", s.cfg.From)
	headers += fmt.Sprintf("To: %s\r\n", msg.To)
	headers += fmt.Sprintf("Subject: %s\r\n", msg.Subject)
	headers += "MIME-Version: 1.0\r\n"
	headers += "Content-Type: text/plain; charset=\"UTF-8\"\r\n"
	headers += "\r\n"
	raw := []byte(headers + msg.Body)

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))

	attempt := 0
	backoff := retry.WithMaxRetries(smtpAttempts-1, retry.NewExponential(s.backoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := s.sendMail(addr, auth, s.cfg.From, []string{msg.To}, raw); err != nil {
			s.logger.Error("failed to send receipt email",
				zap.String("to", msg.To),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("send receipt email after %d attempts: %w", attempt, err)
	}

	s.logger.Info("receipt email sent", zap.String("to", msg.To), zap.Int64("payroll_id", r.Record.ID))
	return nil
}
