package filter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net"
	"net/mail"
	"os"
	"strings"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/mikey/phish-detector/internal/config"
	"github.com/mikey/phish-detector/internal/core"
	"github.com/mikey/phish-detector/internal/whitelist"
	"go.uber.org/zap"
)

const defaultSubjectPrefix = "[**PHISHING**] "

// PostfixFilter implements a Postfix after-queue content filter. Messages are
// received over SMTP, classified, tagged with headers and re-injected into
// Postfix.
type PostfixFilter struct {
	screener *Screener
	logger   *zap.Logger
	cfg      config.ServerConfig
	server   *smtp.Server
	forward  func(sender string, recipients []string, data []byte) error
	timeout  time.Duration
}

// NewPostfixFilter creates a new Postfix content filter
func NewPostfixFilter(screener *Screener, logger *zap.Logger, cfg config.ServerConfig) *PostfixFilter {
	if cfg.SubjectPrefix == "" && cfg.ModifySubject {
		cfg.SubjectPrefix = defaultSubjectPrefix
	}

	f := &PostfixFilter{
		screener: screener,
		logger:   logger,
		cfg:      cfg,
		timeout:  10 * time.Second,
	}
	f.forward = f.sendToPostfix
	return f
}

// Start starts the Postfix filter service
func (f *PostfixFilter) Start() error {
	f.server = smtp.NewServer(&smtpBackend{filter: f})

	f.server.Addr = f.cfg.ListenAddress
	f.server.Domain = "localhost"
	f.server.ReadTimeout = 30 * time.Second
	f.server.WriteTimeout = 30 * time.Second
	f.server.MaxMessageBytes = 30 * 1024 * 1024
	f.server.MaxRecipients = 50
	f.server.AllowInsecureAuth = true

	f.logger.Info("Postfix filter starting", zap.String("address", f.cfg.ListenAddress))

	go func() {
		if err := f.server.ListenAndServe(); err != nil && err != smtp.ErrServerClosed {
			f.logger.Error("SMTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop stops the Postfix filter service
func (f *PostfixFilter) Stop() error {
	if f.server != nil {
		return f.server.Close()
	}
	return nil
}

// ProcessEmail classifies an email without any SMTP handling
func (f *PostfixFilter) ProcessEmail(ctx context.Context, email *core.Email) (*core.AnalysisResult, error) {
	return f.screener.Screen(ctx, email)
}

// handleMessage classifies one raw message and either rejects it or forwards
// the tagged copy. Analysis failures never stop delivery.
func (f *PostfixFilter) handleMessage(sender string, recipients []string, raw []byte) error {
	email, parseErr := parseEmail(raw, sender, recipients)

	var result *core.AnalysisResult
	analysisErr := parseErr
	if analysisErr == nil {
		ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
		result, analysisErr = f.screener.Screen(ctx, email)
		cancel()
	}

	senderDomain := whitelist.SenderDomain(sender)
	if analysisErr != nil {
		f.logger.Error("Failed to analyze email",
			zap.Error(analysisErr),
			zap.String("sender", sender),
			zap.String("sender_domain", senderDomain))
	}

	phishing := analysisErr == nil && result.IsPhishing()
	if phishing && f.cfg.BlockPhishing {
		f.logger.Info("Rejecting phishing email",
			zap.String("from", sender),
			zap.String("sender_domain", senderDomain),
			zap.Float64("confidence", result.Confidence),
			zap.String("model", result.ModelID))
		return &smtp.SMTPError{
			Code:         550,
			EnhancedCode: smtp.EnhancedCode{5, 7, 1},
			Message:      fmt.Sprintf("Rejected as phishing (confidence: %.2f)", result.Confidence),
		}
	}

	tagged := f.rewriteMessage(raw, result, analysisErr)

	if f.cfg.PostfixEnabled {
		if err := f.forward(sender, recipients, tagged); err != nil {
			f.logger.Error("Failed to send email back to Postfix",
				zap.Error(err),
				zap.String("sender", sender))
			return err
		}
	} else {
		f.logger.Warn("Postfix forwarding disabled, this is likely a misconfiguration")
	}

	fields := []zap.Field{
		zap.String("from", sender),
		zap.String("sender_domain", senderDomain),
		zap.Bool("is_phishing", phishing),
	}
	if result != nil {
		fields = append(fields,
			zap.Float64("confidence", result.Confidence),
			zap.String("model", result.ModelID))
	}
	f.logger.Info("Processed email", fields...)
	return nil
}

// rewriteMessage prepends the classification headers and, for phishing
// messages, optionally prefixes the subject. The body is left untouched.
func (f *PostfixFilter) rewriteMessage(raw []byte, result *core.AnalysisResult, analysisErr error) []byte {
	var out bytes.Buffer

	if analysisErr != nil || result == nil {
		fmt.Fprintf(&out, "%s: Unknown\r\n", f.cfg.StatusHeader)
		if analysisErr != nil {
			fmt.Fprintf(&out, "X-Phishing-Analysis-Error: %s\r\n", sanitizeHeaderValue(analysisErr.Error()))
		}
	} else {
		fmt.Fprintf(&out, "%s: %s\r\n", f.cfg.StatusHeader, result.Prediction)
		fmt.Fprintf(&out, "%s: %.4f\r\n", f.cfg.ConfidenceHeader, result.Confidence)
		fmt.Fprintf(&out, "%s: %s\r\n", f.cfg.ModelHeader, result.ModelID)
	}

	end := headerEnd(raw)
	header, rest := raw, []byte(nil)
	if end >= 0 {
		header, rest = raw[:end], raw[end:]
	}

	if result != nil && analysisErr == nil && result.IsPhishing() && f.cfg.ModifySubject && f.cfg.SubjectPrefix != "" {
		header = prefixSubject(header, f.cfg.SubjectPrefix)
	}

	out.Write(header)
	if end >= 0 {
		out.Write(rest)
	} else {
		out.WriteString("\r\n\r\n")
	}
	return out.Bytes()
}

// prefixSubject returns header with prefix added to the Subject field. A
// missing Subject field is added.
func prefixSubject(header []byte, prefix string) []byte {
	eol := "\n"
	if bytes.Contains(header, []byte("\r\n")) {
		eol = "\r\n"
	}

	lines := strings.Split(string(header), eol)
	start := -1
	for i, line := range lines {
		if len(line) >= 8 && strings.EqualFold(line[:8], "subject:") {
			start = i
			break
		}
	}

	if start < 0 {
		encoded := mime.QEncoding.Encode("utf-8", prefix)
		return []byte(string(header) + eol + "Subject: " + strings.TrimSpace(encoded))
	}

	stop := start + 1
	for stop < len(lines) && len(lines[stop]) > 0 && (lines[stop][0] == ' ' || lines[stop][0] == '\t') {
		stop++
	}

	value := strings.TrimSpace(lines[start][8:])
	for _, cont := range lines[start+1 : stop] {
		value += " " + strings.TrimSpace(cont)
	}
	decoded, err := decodeEncodedHeader(value)
	if err != nil {
		decoded = value
	}
	if strings.HasPrefix(decoded, prefix) {
		return header
	}

	replaced := make([]string, 0, len(lines)-(stop-start)+1)
	replaced = append(replaced, lines[:start]...)
	replaced = append(replaced, "Subject: "+mime.QEncoding.Encode("utf-8", prefix+decoded))
	replaced = append(replaced, lines[stop:]...)
	return []byte(strings.Join(replaced, eol))
}

func sanitizeHeaderValue(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}

// parseEmail builds the email seen by the classifier from a raw message
func parseEmail(raw []byte, sender string, recipients []string) (*core.Email, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse email message: %w", err)
	}

	body, err := extractTextFromMessage(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to extract text content: %w", err)
	}

	subject := msg.Header.Get("Subject")
	if decoded, err := decodeEncodedHeader(subject); err == nil {
		subject = decoded
	}

	email := &core.Email{
		From:    sender,
		To:      recipients,
		Subject: subject,
		Body:    body,
		Headers: make(map[string][]string, len(msg.Header)),
	}
	if email.From == "" {
		email.From = msg.Header.Get("From")
	}
	for key, values := range msg.Header {
		email.Headers[key] = values
	}
	return email, nil
}

// sendToPostfix sends the processed email back to Postfix on the configured port
func (f *PostfixFilter) sendToPostfix(sender string, recipients []string, emailData []byte) error {
	postfixAddr := net.JoinHostPort(f.cfg.PostfixAddress, fmt.Sprint(f.cfg.PostfixPort))

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	conn, err := net.DialTimeout("tcp", postfixAddr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("failed to connect to Postfix: %w", err)
	}
	if err := conn.SetDeadline(time.Now().Add(30 * time.Second)); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set connection deadline: %w", err)
	}

	c := smtp.NewClient(conn)
	defer c.Close()

	if err := c.Hello(hostname); err != nil {
		return fmt.Errorf("EHLO failed: %w", err)
	}
	if err := c.Mail(sender, nil); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}

	recipientOK := false
	for _, recipient := range recipients {
		if err := c.Rcpt(recipient, nil); err != nil {
			f.logger.Warn("RCPT TO failed for recipient",
				zap.String("recipient", recipient),
				zap.Error(err))
			continue
		}
		recipientOK = true
	}
	if !recipientOK {
		return fmt.Errorf("all recipients were rejected")
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}
	if _, err := wc.Write(emailData); err != nil {
		wc.Close()
		return fmt.Errorf("failed to send email data: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	if err := c.Quit(); err != nil {
		// The message has been accepted at this point.
		f.logger.Warn("QUIT command failed", zap.Error(err))
	}
	return nil
}

// smtpBackend implements the go-smtp Backend interface
type smtpBackend struct {
	filter *PostfixFilter
}

// NewSession creates a new SMTP session
func (b *smtpBackend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	return &smtpSession{filter: b.filter}, nil
}

// smtpSession implements the go-smtp Session interface
type smtpSession struct {
	filter     *PostfixFilter
	sender     string
	recipients []string
}

// Reset resets the session state
func (s *smtpSession) Reset() {
	s.sender = ""
	s.recipients = nil
}

// Mail sets the sender address
func (s *smtpSession) Mail(from string, _ *smtp.MailOptions) error {
	s.sender = from
	return nil
}

// Rcpt adds a recipient
func (s *smtpSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.recipients = append(s.recipients, to)
	return nil
}

// Data reads the message and hands it to the filter
func (s *smtpSession) Data(r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		s.filter.logger.Error("Failed to read message data", zap.Error(err))
		return err
	}
	return s.filter.handleMessage(s.sender, s.recipients, raw)
}

// Logout handles SMTP logout
func (s *smtpSession) Logout() error {
	return nil
}
