package xcom

import (
	"fmt"
	"net/smtp"

	"perpmonitor/internal/logger"

	"go.uber.org/zap"
)

// EmailSender delivers over SMTP. It also backs the SMS channel via
// carrier email-to-text gateways.
type EmailSender struct {
	cfg SMTPConfig
}

// NewEmailSender returns a sender, or nil when SMTP is unconfigured.
func NewEmailSender(cfg SMTPConfig) *EmailSender {
	if cfg.Server == "" || cfg.Username == "" {
		logger.Log.Warn("SMTP not configured, email channel disabled")
		return nil
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &EmailSender{cfg: cfg}
}

// Send delivers one message. Returns false on any transport failure.
func (s *EmailSender) Send(to, subject, body string) bool {
	if to == "" {
		to = s.cfg.DefaultRecipient
	}
	if to == "" {
		logger.Log.Warn("Email send skipped, no recipient")
		return false
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		s.cfg.Username, to, subject, body)

	addr := fmt.Sprintf("%s:%d", s.cfg.Server, s.cfg.Port)
	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Server)
	if err := smtp.SendMail(addr, auth, s.cfg.Username, []string{to}, []byte(msg)); err != nil {
		logger.Log.Error("Email send failed",
			zap.String("to", to),
			zap.Error(err),
		)
		return false
	}

	logger.Log.Info("Email sent", zap.String("to", to), zap.String("subject", subject))
	return true
}
