package filter

import (
	"bytes"
	"context"
	"errors"
	"net/mail"
	"strings"
	"testing"

	"github.com/emersion/go-smtp"
	"github.com/mikey/phish-detector/internal/config"
	"github.com/mikey/phish-detector/internal/core"
	"github.com/mikey/phish-detector/internal/utils"
	"github.com/mikey/phish-detector/internal/whitelist"
	"go.uber.org/zap/zaptest"
)

// keywordAnalyzer flags any text containing "verify" as phishing
type keywordAnalyzer struct {
	texts []string
	err   error
}

func (a *keywordAnalyzer) Analyze(ctx context.Context, text string) (*core.AnalysisResult, error) {
	a.texts = append(a.texts, text)
	if a.err != nil {
		return nil, a.err
	}
	if strings.Contains(strings.ToLower(text), "verify") {
		return &core.AnalysisResult{Label: core.LabelPhishing, Prediction: "Phishing", Confidence: 0.93, ModelID: "pair-1", Recorded: true, RecordID: 7}, nil
	}
	return &core.AnalysisResult{Label: core.LabelLegitimate, Prediction: "Legitimate", Confidence: 0.81, ModelID: "pair-1", Recorded: true, RecordID: 8}, nil
}

func serverConfig() config.ServerConfig {
	return config.ServerConfig{
		StatusHeader:     "X-Phishing-Status",
		ConfidenceHeader: "X-Phishing-Confidence",
		ModelHeader:      "X-Phishing-Model",
		PostfixEnabled:   true,
	}
}

type captured struct {
	sender     string
	recipients []string
	data       []byte
	calls      int
}

func newTestFilter(t *testing.T, analyzer Analyzer, cfg config.ServerConfig, domains ...string) (*PostfixFilter, *captured) {
	logger := zaptest.NewLogger(t)
	screener := NewScreener(analyzer, whitelist.NewChecker(domains, logger), utils.NewTextProcessor(logger), 1<<20, logger)
	f := NewPostfixFilter(screener, logger, cfg)
	c := &captured{}
	f.forward = func(sender string, recipients []string, data []byte) error {
		c.sender, c.recipients, c.data = sender, recipients, data
		c.calls++
		return nil
	}
	return f, c
}

const phishingMessage = "From: Bank <alerts@bank.example>\r\n" +
	"To: user@example.com\r\n" +
	"Subject: Action required\r\n" +
	"\r\n" +
	"Please verify your account now.\r\n"

const legitimateMessage = "From: boss@corp.example\r\n" +
	"Subject: Lunch\r\n" +
	"\r\n" +
	"Lunch at noon?\r\n"

func TestHandleMessageTagsPhishing(t *testing.T) {
	analyzer := &keywordAnalyzer{}
	f, c := newTestFilter(t, analyzer, serverConfig())

	if err := f.handleMessage("alerts@bank.example", []string{"user@example.com"}, []byte(phishingMessage)); err != nil {
		t.Fatalf("handleMessage: %v", err)
	}
	if c.calls != 1 || c.sender != "alerts@bank.example" || len(c.recipients) != 1 {
		t.Fatalf("unexpected forward %+v", c)
	}

	out := string(c.data)
	for _, want := range []string{
		"X-Phishing-Status: Phishing\r\n",
		"X-Phishing-Confidence: 0.9300\r\n",
		"X-Phishing-Model: pair-1\r\n",
		"Subject: Action required\r\n",
		"\r\n\r\nPlease verify your account now.\r\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("forwarded message lacks %q:\n%s", want, out)
		}
	}

	if len(analyzer.texts) != 1 || analyzer.texts[0] != "Action required\nPlease verify your account now.\r\n" {
		t.Fatalf("unexpected analyzed text %q", analyzer.texts)
	}
}

func TestHandleMessageModifiesSubject(t *testing.T) {
	cfg := serverConfig()
	cfg.ModifySubject = true
	f, c := newTestFilter(t, &keywordAnalyzer{}, cfg)

	if err := f.handleMessage("alerts@bank.example", []string{"user@example.com"}, []byte(phishingMessage)); err != nil {
		t.Fatalf("handleMessage: %v", err)
	}
	msg, err := mail.ReadMessage(bytes.NewReader(c.data))
	if err != nil {
		t.Fatalf("forwarded message does not parse: %v", err)
	}
	if got := msg.Header.Get("Subject"); got != "[**PHISHING**] Action required" {
		t.Fatalf("subject %q", got)
	}
	if got := msg.Header.Get("X-Phishing-Status"); got != "Phishing" {
		t.Fatalf("status header %q", got)
	}

	// Legitimate mail keeps its subject.
	if err := f.handleMessage("boss@corp.example", []string{"user@example.com"}, []byte(legitimateMessage)); err != nil {
		t.Fatalf("handleMessage: %v", err)
	}
	msg, _ = mail.ReadMessage(bytes.NewReader(c.data))
	if got := msg.Header.Get("Subject"); got != "Lunch" {
		t.Fatalf("legitimate subject changed to %q", got)
	}
}

func TestHandleMessageBlocksPhishing(t *testing.T) {
	cfg := serverConfig()
	cfg.BlockPhishing = true
	f, c := newTestFilter(t, &keywordAnalyzer{}, cfg)

	err := f.handleMessage("alerts@bank.example", []string{"user@example.com"}, []byte(phishingMessage))
	var smtpErr *smtp.SMTPError
	if !errors.As(err, &smtpErr) || smtpErr.Code != 550 {
		t.Fatalf("expected a 550 rejection, got %v", err)
	}
	if c.calls != 0 {
		t.Fatal("rejected message must not be forwarded")
	}

	if err := f.handleMessage("boss@corp.example", []string{"user@example.com"}, []byte(legitimateMessage)); err != nil {
		t.Fatalf("legitimate message rejected: %v", err)
	}
	if c.calls != 1 {
		t.Fatal("legitimate message was not forwarded")
	}
}

func TestHandleMessageAnalysisErrorStillDelivers(t *testing.T) {
	cfg := serverConfig()
	cfg.BlockPhishing = true
	f, c := newTestFilter(t, &keywordAnalyzer{err: core.ErrArtifactsNotFound}, cfg)

	if err := f.handleMessage("alerts@bank.example", []string{"user@example.com"}, []byte(phishingMessage)); err != nil {
		t.Fatalf("analysis errors must not block delivery: %v", err)
	}
	out := string(c.data)
	if !strings.Contains(out, "X-Phishing-Status: Unknown\r\n") || !strings.Contains(out, "X-Phishing-Analysis-Error: ") {
		t.Fatalf("missing error headers:\n%s", out)
	}
}

func TestHandleMessageWhitelistedSender(t *testing.T) {
	analyzer := &keywordAnalyzer{}
	cfg := serverConfig()
	cfg.BlockPhishing = true
	f, c := newTestFilter(t, analyzer, cfg, "bank.example")

	if err := f.handleMessage("alerts@bank.example", []string{"user@example.com"}, []byte(phishingMessage)); err != nil {
		t.Fatalf("handleMessage: %v", err)
	}
	if len(analyzer.texts) != 0 {
		t.Fatal("whitelisted mail should not be analyzed")
	}
	if !strings.Contains(string(c.data), "X-Phishing-Model: whitelist\r\n") {
		t.Fatalf("expected whitelist model header:\n%s", c.data)
	}
}

func TestSessionData(t *testing.T) {
	f, c := newTestFilter(t, &keywordAnalyzer{}, serverConfig())
	b := &smtpBackend{filter: f}
	session, err := b.NewSession(nil)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	session.Mail("boss@corp.example", nil)
	session.Rcpt("a@example.com", nil)
	session.Rcpt("b@example.com", nil)
	if err := session.Data(strings.NewReader(legitimateMessage)); err != nil {
		t.Fatalf("Data: %v", err)
	}
	if len(c.recipients) != 2 || !strings.Contains(string(c.data), "X-Phishing-Status: Legitimate") {
		t.Fatalf("unexpected forward %+v", c)
	}

	session.Reset()
	if s := session.(*smtpSession); s.sender != "" || len(s.recipients) != 0 {
		t.Fatal("Reset did not clear the session")
	}
}

func TestPrefixSubject(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"plain", "From: a@b\nSubject: Hi", "From: a@b\nSubject: [P] Hi"},
		{"folded", "Subject: Hello\n  world\nTo: c@d", "Subject: [P] Hello world\nTo: c@d"},
		{"already prefixed", "Subject: [P] Hi", "Subject: [P] Hi"},
		{"missing", "From: a@b", "From: a@b\nSubject: [P]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(prefixSubject([]byte(tt.header), "[P] ")); got != tt.want {
				t.Errorf("prefixSubject = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractTextFromMessage(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "single part",
			raw:  "Subject: x\r\n\r\nhello there",
			want: "hello there",
		},
		{
			name: "multipart prefers plain",
			raw: "Content-Type: multipart/alternative; boundary=XX\r\n\r\n" +
				"--XX\r\nContent-Type: text/html\r\n\r\n<p>html body</p>\r\n" +
				"--XX\r\nContent-Type: text/plain; charset=utf-8\r\n\r\nplain body\r\n" +
				"--XX--\r\n",
			want: "plain body",
		},
		{
			name: "html only",
			raw: "Content-Type: multipart/mixed; boundary=XX\r\n\r\n" +
				"--XX\r\nContent-Type: text/html\r\n\r\n<p>click</p>\r\n" +
				"--XX--\r\n",
			want: " click ",
		},
		{
			name: "latin1 quoted printable",
			raw: "Content-Type: text/plain; charset=iso-8859-1\r\n" +
				"Content-Transfer-Encoding: quoted-printable\r\n\r\n" +
				"caf=E9",
			want: "café",
		},
		{
			name: "base64",
			raw: "Content-Type: text/plain\r\nContent-Transfer-Encoding: base64\r\n\r\n" +
				"dmVyaWZ5IHlv\r\ndXIgYWNjb3VudA==\r\n",
			want: "verify your account",
		},
		{
			name: "attachment skipped",
			raw: "Content-Type: multipart/mixed; boundary=XX\r\n\r\n" +
				"--XX\r\nContent-Type: text/plain\r\n\r\nbody\r\n" +
				"--XX\r\nContent-Type: text/plain\r\nContent-Disposition: attachment; filename=a.txt\r\n\r\nsecret\r\n" +
				"--XX--\r\n",
			want: "body",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := mail.ReadMessage(strings.NewReader(tt.raw))
			if err != nil {
				t.Fatalf("ReadMessage: %v", err)
			}
			got, err := extractTextFromMessage(msg)
			if err != nil {
				t.Fatalf("extractTextFromMessage: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecodeEncodedHeader(t *testing.T) {
	got, err := decodeEncodedHeader("=?iso-8859-1?q?V=E9rifiez?= votre compte")
	if err != nil {
		t.Fatalf("decodeEncodedHeader: %v", err)
	}
	if got != "Vérifiez votre compte" {
		t.Fatalf("got %q", got)
	}
}

func TestCliFilter(t *testing.T) {
	logger := zaptest.NewLogger(t)
	screener := NewScreener(&keywordAnalyzer{}, whitelist.NewChecker(nil, logger), utils.NewTextProcessor(logger), 0, logger)
	f, err := NewCliFilter(screener, logger, false)
	if err != nil {
		t.Fatalf("NewCliFilter: %v", err)
	}
	var out bytes.Buffer
	f.out = &out

	result, err := f.ProcessEmail(context.Background(), &core.Email{Body: "please verify"})
	if err != nil {
		t.Fatalf("ProcessEmail: %v", err)
	}
	if !result.IsPhishing() {
		t.Fatal("expected phishing")
	}
	for _, want := range []string{"[RESULT] Prediction: Phishing", "[CONFIDENCE] 93.00%", "record 7"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output lacks %q:\n%s", want, out.String())
		}
	}

	failing := NewScreener(&keywordAnalyzer{err: core.ErrArtifactsNotFound}, nil, utils.NewTextProcessor(logger), 0, logger)
	f, _ = NewCliFilter(failing, logger, false)
	f.out = &out
	if _, err := f.ProcessEmail(context.Background(), &core.Email{Body: "x"}); !errors.Is(err, core.ErrArtifactsNotFound) {
		t.Fatalf("expected ErrArtifactsNotFound, got %v", err)
	}
}

func TestScreenerBodyLimit(t *testing.T) {
	logger := zaptest.NewLogger(t)
	long := strings.Repeat("meeting agenda ", 100000) + "please verify your account"

	tests := []struct {
		name    string
		maxBody int
		want    string
	}{
		{"limited", 1 << 20, long[:1<<20]},
		{"unlimited", 0, long},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analyzer := &keywordAnalyzer{}
			s := NewScreener(analyzer, nil, utils.NewTextProcessor(logger), tt.maxBody, logger)
			if _, err := s.Screen(context.Background(), &core.Email{Body: long}); err != nil {
				t.Fatalf("Screen: %v", err)
			}
			if len(analyzer.texts) != 1 {
				t.Fatalf("analyzer called %d times", len(analyzer.texts))
			}
			if analyzer.texts[0] != tt.want {
				t.Fatalf("analyzer received %d bytes, want %d", len(analyzer.texts[0]), len(tt.want))
			}
		})
	}
}

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
		want    string
	}{
		{"single line with colon", "URGENT: verify your account now or lose access\n", true, ""},
		{"colon line then body", "Note: read this\n\nverify your account\n", true, ""},
		{"plain prose", "Dear user,\n\nplease verify your account\n", true, ""},
		{"mail message", legitimateMessage, false, "Lunch\nLunch at noon?\r\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			email, err := ParseMessage([]byte(tt.raw))
			if tt.wantErr {
				if !errors.Is(err, ErrNotMessage) {
					t.Fatalf("expected ErrNotMessage, got %v", err)
				}
				if got := EmailFromInput([]byte(tt.raw)).Text(); got != tt.raw {
					t.Fatalf("plain text fallback = %q, want the input", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseMessage: %v", err)
			}
			if email.Text() != tt.want {
				t.Fatalf("Text() = %q, want %q", email.Text(), tt.want)
			}
			if email.From != "boss@corp.example" {
				t.Fatalf("From = %q", email.From)
			}
		})
	}
}
