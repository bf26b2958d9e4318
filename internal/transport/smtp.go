// Package transport delivers assembled messages.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	mail "github.com/xhit/go-simple-mail/v2"

	"github.com/oarkflow/sendlist/internal/config"
	"github.com/oarkflow/sendlist/internal/message"
)

// SMTP sends messages over one SMTP session that is opened on the first
// send and reused for the rest of the run. It is not safe for concurrent use.
type SMTP struct {
	server *mail.SMTPServer
	client *mail.SMTPClient
}

// NewSMTP configures the SMTP server from cfg. No connection is made yet.
func NewSMTP(cfg *config.Config) *SMTP {
	return &SMTP{server: smtpServer(cfg)}
}

func smtpServer(cfg *config.Config) *mail.SMTPServer {
	srv := mail.NewSMTPClient()

	srv.ConnectTimeout = 30 * time.Second
	srv.SendTimeout = 30 * time.Second
	srv.KeepAlive = true
	srv.Host = cfg.Host
	srv.Port = cfg.Port
	srv.Username = cfg.User
	srv.Password = cfg.Password

	switch cfg.Encryption {
	case config.EncryptionTLS:
		srv.Encryption = mail.EncryptionSSLTLS
	case config.EncryptionStartTLS:
		srv.Encryption = mail.EncryptionSTARTTLS
	default: // EncryptionNone
		srv.Encryption = mail.EncryptionNone
	}
	srv.TLSConfig = &tls.Config{ServerName: srv.Host}

	switch cfg.Auth {
	case config.AuthPlain:
		srv.Authentication = mail.AuthPlain
	case config.AuthLogin:
		srv.Authentication = mail.AuthLogin
	case config.AuthCramMD5:
		srv.Authentication = mail.AuthCRAMMD5
	case config.AuthNone:
		srv.Authentication = mail.AuthNone
	default: // AuthAuto
		srv.Authentication = mail.AuthAuto
	}

	return srv
}

// Send delivers msg. Connection failures are reported as the error of the
// message being sent.
func (s *SMTP) Send(ctx context.Context, msg *message.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	email, err := msg.Email()
	if err != nil {
		return err
	}

	if s.client == nil {
		log.Debug("Connecting to SMTP server", "host", s.server.Host, "port", s.server.Port)
		client, err := s.server.Connect()
		if err != nil {
			return fmt.Errorf("failed to connect to SMTP server: %w", err)
		}
		s.client = client
	}

	if err := email.Send(s.client); err != nil {
		// The session state is unknown after a failed transaction
		s.drop()
		return fmt.Errorf("failed to send email: %w", err)
	}
	log.Debug("Sent email", "rcpt", msg.Recipients())
	return nil
}

// Close ends the SMTP session if one is open.
func (s *SMTP) Close() error {
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

func (s *SMTP) drop() {
	if err := s.Close(); err != nil {
		log.Debug("Failed to close SMTP session", "error", err)
	}
}
