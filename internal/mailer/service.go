package mailer

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"mime"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phuslu/log"

	"jobtrack-engine/internal/config"
)

// Config is everything needed to authenticate and send.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	To       string
	UseTLS   bool
}

// Attachment is one file carried by an outgoing message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Service sends report mail over authenticated SMTP.
type Service struct {
	cfg Config
}

func New(cfg Config) *Service {
	return &Service{cfg: cfg}
}

// FromEnv builds a Service from the config file plus the env contract.
// SMTP_SERVER overrides the configured host (and may carry a port);
// the recipient has already been defaulted to the sender by Sanitize.
func FromEnv(cfg config.Config, e config.Env, password string) (*Service, error) {
	if strings.TrimSpace(e.EmailAddress) == "" {
		return nil, fmt.Errorf("mailer: EMAIL_ADDRESS not set")
	}
	if password == "" {
		return nil, fmt.Errorf("mailer: no password for %s", e.EmailAddress)
	}

	host, port := e.SMTPHostPort(cfg.Mail.SMTPHost, cfg.Mail.SMTPPort)

	return New(Config{
		Host:     host,
		Port:     port,
		Username: strings.TrimSpace(e.EmailAddress),
		Password: password,
		From:     strings.TrimSpace(e.EmailAddress),
		FromName: cfg.Mail.SubjectPrefix,
		To:       e.RecipientEmail,
		UseTLS:   true,
	}), nil
}

// Send builds and submits one message. Attachments are optional.
func (s *Service) Send(ctx context.Context, subject, htmlBody, textBody string, atts []Attachment) error {
	cfg := s.cfg
	if cfg.Host == "" {
		return fmt.Errorf("mailer: SMTP host not configured")
	}
	if cfg.Username == "" || cfg.Password == "" {
		return fmt.Errorf("mailer: SMTP credentials not configured")
	}
	if cfg.To == "" {
		return fmt.Errorf("mailer: no recipient")
	}

	msgID := fmt.Sprintf("<%s@%s>", uuid.NewString(), cfg.Host)
	msg := buildMessage(cfg, subject, htmlBody, textBody, atts, time.Now(), msgID)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	auth := smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)

	log.Debug().
		Str("to", cfg.To).
		Str("subject", subject).
		Int("attachments", len(atts)).
		Msg("sending mail")

	if cfg.UseTLS {
		return s.sendWithTLS(ctx, addr, auth, cfg.From, cfg.To, msg)
	}
	return smtp.SendMail(addr, auth, cfg.From, []string{cfg.To}, []byte(msg))
}

// buildMessage assembles the full RFC822 payload. Attachments force a
// multipart/mixed wrapper around the multipart/alternative body; without
// them the alternative (or bare text) is the top level.
func buildMessage(cfg Config, subject, htmlBody, textBody string, atts []Attachment, now time.Time, msgID string) string {
	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s <%s>\r\n", cfg.FromName, cfg.From))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", cfg.To))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject)))
	msg.WriteString(fmt.Sprintf("Date: %s\r\n", now.Format(time.RFC1123Z)))
	msg.WriteString(fmt.Sprintf("Message-ID: %s\r\n", msgID))
	msg.WriteString("MIME-Version: 1.0\r\n")

	writeAlternative := func(boundary string) {
		if textBody != "" {
			msg.WriteString(fmt.Sprintf("--%s\r\n", boundary))
			msg.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
			msg.WriteString("Content-Transfer-Encoding: base64\r\n")
			msg.WriteString("\r\n")
			msg.WriteString(encodeBase64WithLineBreaks([]byte(textBody)))
			msg.WriteString("\r\n")
		}
		if htmlBody != "" {
			msg.WriteString(fmt.Sprintf("--%s\r\n", boundary))
			msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
			msg.WriteString("Content-Transfer-Encoding: base64\r\n")
			msg.WriteString("\r\n")
			msg.WriteString(encodeBase64WithLineBreaks([]byte(htmlBody)))
			msg.WriteString("\r\n")
		}
		msg.WriteString(fmt.Sprintf("--%s--\r\n", boundary))
	}

	switch {
	case len(atts) > 0:
		mixedBoundary := generateBoundary()
		altBoundary := generateBoundary()

		msg.WriteString(fmt.Sprintf("Content-Type: multipart/mixed; boundary=\"%s\"\r\n", mixedBoundary))
		msg.WriteString("\r\n")

		msg.WriteString(fmt.Sprintf("--%s\r\n", mixedBoundary))
		msg.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=\"%s\"\r\n", altBoundary))
		msg.WriteString("\r\n")
		writeAlternative(altBoundary)

		for _, att := range atts {
			contentType := att.ContentType
			if contentType == "" {
				contentType = "application/octet-stream"
			}
			msg.WriteString(fmt.Sprintf("--%s\r\n", mixedBoundary))
			msg.WriteString(fmt.Sprintf("Content-Type: %s; name=\"%s\"\r\n", contentType, att.Filename))
			msg.WriteString("Content-Transfer-Encoding: base64\r\n")
			msg.WriteString(fmt.Sprintf("Content-Disposition: attachment; filename=\"%s\"\r\n", att.Filename))
			msg.WriteString("\r\n")
			msg.WriteString(encodeBase64WithLineBreaks(att.Content))
			msg.WriteString("\r\n")
		}
		msg.WriteString(fmt.Sprintf("--%s--\r\n", mixedBoundary))

	case htmlBody != "":
		altBoundary := generateBoundary()
		msg.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=\"%s\"\r\n", altBoundary))
		msg.WriteString("\r\n")
		writeAlternative(altBoundary)

	default:
		msg.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
		msg.WriteString("\r\n")
		msg.WriteString(textBody)
	}

	return msg.String()
}

// sendWithTLS dials implicit TLS first (465-style) and falls back to
// STARTTLS, which is what most submission ports actually speak.
func (s *Service) sendWithTLS(ctx context.Context, addr string, auth smtp.Auth, from, to, msg string) error {
	host := strings.Split(addr, ":")[0]

	d := tls.Dialer{Config: &tls.Config{ServerName: host}}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return s.sendWithSTARTTLS(addr, auth, from, to, msg)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	defer client.Close()

	return submit(client, auth, from, to, msg)
}

func (s *Service) sendWithSTARTTLS(addr string, auth smtp.Auth, from, to, msg string) error {
	host := strings.Split(addr, ":")[0]

	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	defer client.Close()

	if err := client.StartTLS(&tls.Config{ServerName: host}); err != nil {
		return fmt.Errorf("starttls: %w", err)
	}

	return submit(client, auth, from, to, msg)
}

func submit(client *smtp.Client, auth smtp.Auth, from, to, msg string) error {
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close data: %w", err)
	}

	return client.Quit()
}

// generateBoundary returns a random MIME boundary that will not collide
// with encoded content.
func generateBoundary() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "jobtrack_boundary_fallback"
	}
	return fmt.Sprintf("jobtrack_%x", b)
}

// encodeBase64WithLineBreaks wraps base64 output at 76 columns per RFC 2045
// so large attachments survive servers that enforce line limits.
func encodeBase64WithLineBreaks(content []byte) string {
	encoded := base64.StdEncoding.EncodeToString(content)

	var result strings.Builder
	const lineLen = 76

	for i := 0; i < len(encoded); i += lineLen {
		end := i + lineLen
		if end > len(encoded) {
			end = len(encoded)
		}
		result.WriteString(encoded[i:end])
		if end < len(encoded) {
			result.WriteString("\r\n")
		}
	}

	return result.String()
}
