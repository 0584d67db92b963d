// Package mail отправляет письма поставщикам и читает их ответы из почтового ящика.
package mail

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"

	"procurement/internal/config"

	"go.uber.org/zap"
)

// Sender отправляет готовое RFC 822 сообщение.
// rawMessage уже содержит все заголовки и тело.
type Sender interface {
	Send(ctx context.Context, to []string, subject string, rawMessage []byte) error
}

type SMTPSender struct {
	addr string
	from string
	auth smtp.Auth
	log  *zap.Logger
}

func NewSMTPSender(cfg config.SMTPConfig, log *zap.Logger) *SMTPSender {
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &SMTPSender{
		addr: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		from: cfg.From,
		auth: auth,
		log:  log.Named("smtp"),
	}
}

// Send блокирует до ответа сервера; net/smtp не принимает контекст,
// поэтому отмена проверяется до и после отправки.
func (s *SMTPSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(s.addr, s.auth, s.from, to, rawMessage)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("smtp send to %v: %w", to, ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp error: %w", err)
		}
	}
	s.log.Debug("email sent", zap.Strings("to", to), zap.String("subject", subject))
	return nil
}

// LoggingSender ничего не отправляет, только пишет письмо в лог.
// Используется, когда SMTP не настроен.
type LoggingSender struct {
	log *zap.Logger
}

func NewLoggingSender(log *zap.Logger) *LoggingSender {
	return &LoggingSender{log: log.Named("mail")}
}

func (s *LoggingSender) Send(_ context.Context, to []string, subject string, rawMessage []byte) error {
	s.log.Info("email not sent, smtp is not configured",
		zap.Strings("to", to),
		zap.String("subject", subject),
		zap.ByteString("raw", rawMessage),
	)
	return nil
}

// NewSender собирает отправителя из конфигурации: SMTP или лог,
// плюс копия в файл, если задан smtp.log_file.
func NewSender(cfg config.SMTPConfig, log *zap.Logger) (Sender, error) {
	var primary Sender
	if cfg.Host == "" {
		log.Warn("smtp host not configured, using logging email sender")
		primary = NewLoggingSender(log)
	} else {
		primary = NewSMTPSender(cfg, log)
	}

	if cfg.LogFile == "" {
		return primary, nil
	}
	fileSender, err := NewFileSender(cfg.LogFile)
	if err != nil {
		return nil, err
	}
	return NewCompositeSender(primary, log, fileSender), nil
}
