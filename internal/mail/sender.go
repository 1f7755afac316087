package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/smtp"
	"time"

	"github.com/wopr-systems/beacon-orchestrator/pkg/logger"
)

// Renderer turns a TemplateKind + data into a subject and HTML/text body.
// Template rendering internals are out of scope (spec.md §1); this
// interface is the narrow seam a real templating collaborator plugs into.
type Renderer interface {
	Render(kind TemplateKind, data map[string]any) (subject, htmlBody, textBody string, err error)
}

// HTTPConfig configures the HTTP mail API transport (e.g. Postmark,
// SendGrid, or a similar transactional mail API exposing a simple
// bearer-authenticated JSON send endpoint).
type HTTPConfig struct {
	Endpoint string
	APIKey   string
	FromAddr string
}

// SMTPConfig configures the STARTTLS fallback transport.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	FromAddr string
}

// HTTPThenSMTPSender tries the HTTP mail API first and falls back to SMTP
// on any failure, so a transactional-mail-API outage never blocks
// provisioning notifications as long as SMTP credentials are configured.
// Message.Attachments are not transmitted by either transport.
type HTTPThenSMTPSender struct {
	http       HTTPConfig
	smtp       SMTPConfig
	renderer   Renderer
	httpClient *http.Client
	log        *logger.Logger
}

func NewHTTPThenSMTPSender(httpCfg HTTPConfig, smtpCfg SMTPConfig, renderer Renderer, log *logger.Logger) *HTTPThenSMTPSender {
	return &HTTPThenSMTPSender{
		http: httpCfg, smtp: smtpCfg, renderer: renderer,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log,
	}
}

var _ Sender = (*HTTPThenSMTPSender)(nil)

func (s *HTTPThenSMTPSender) Send(ctx context.Context, msg Message) error {
	msg.To = dedupeRecipients(msg.To)
	if len(msg.To) == 0 {
		return fmt.Errorf("mail: message has no recipients")
	}

	subject, htmlBody, textBody, err := s.renderer.Render(msg.Template, msg.Data)
	if err != nil {
		return fmt.Errorf("mail: render template %s: %w", msg.Template, err)
	}
	if msg.Subject != "" {
		subject = msg.Subject
	}

	if s.http.Endpoint != "" {
		if err := s.sendHTTP(ctx, msg, subject, htmlBody, textBody); err == nil {
			return nil
		} else if s.log != nil {
			s.log.WithField("template", string(msg.Template)).WithField("error", err.Error()).
				Warn("mail: HTTP API send failed, falling back to SMTP")
		}
	}

	if s.smtp.Host == "" {
		return fmt.Errorf("mail: HTTP API unavailable and no SMTP fallback configured")
	}
	return s.sendSMTP(msg, subject, htmlBody, textBody)
}

func (s *HTTPThenSMTPSender) sendHTTP(ctx context.Context, msg Message, subject, htmlBody, textBody string) error {
	payload := map[string]any{
		"from":     s.http.FromAddr,
		"to":       msg.To,
		"subject":  subject,
		"html":     htmlBody,
		"text":     textBody,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("mail: encode HTTP payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.http.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("mail: build HTTP request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.http.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mail: HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("mail: HTTP API returned status %d", resp.StatusCode)
	}
	return nil
}

func (s *HTTPThenSMTPSender) sendSMTP(msg Message, subject, htmlBody, _ string) error {
	addr := fmt.Sprintf("%s:%d", s.smtp.Host, s.smtp.Port)
	auth := smtp.PlainAuth("", s.smtp.Username, s.smtp.Password, s.smtp.Host)

	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("mail: dial smtp %s: %w", addr, err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.smtp.Host)
	if err != nil {
		return fmt.Errorf("mail: smtp client: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: s.smtp.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("mail: starttls: %w", err)
		}
	}

	if s.smtp.Username != "" {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("mail: smtp auth: %w", err)
		}
	}

	if err := client.Mail(s.smtp.FromAddr); err != nil {
		return fmt.Errorf("mail: MAIL FROM: %w", err)
	}
	for _, rcpt := range msg.To {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("mail: RCPT TO %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("mail: DATA: %w", err)
	}
	defer w.Close()

	headers := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n",
		s.smtp.FromAddr, msg.To[0], subject)
	if _, err := w.Write([]byte(headers + htmlBody)); err != nil {
		return fmt.Errorf("mail: write body: %w", err)
	}
	return nil
}
