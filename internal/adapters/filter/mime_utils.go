package filter

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"regexp"
	"strings"

	"github.com/mikey/phish-detector/internal/core"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

const maxMultipartDepth = 5

var htmlTagRegex = regexp.MustCompile(`<[^>]*>`)

var headerDecoder = &mime.WordDecoder{CharsetReader: charsetReader}

// extractTextFromMessage returns the readable text of a message. text/plain
// parts are preferred; text/html parts are used with their tags removed when
// no plain part exists.
func extractTextFromMessage(msg *mail.Message) (string, error) {
	var plain, html strings.Builder
	if err := collectText(textproto.MIMEHeader(msg.Header), msg.Body, &plain, &html, 0); err != nil {
		return "", err
	}

	if plain.Len() > 0 {
		return plain.String(), nil
	}
	if html.Len() > 0 {
		return htmlTagRegex.ReplaceAllString(html.String(), " "), nil
	}
	return "", nil
}

func collectText(header textproto.MIMEHeader, body io.Reader, plain, html *strings.Builder, depth int) error {
	contentType := header.Get("Content-Type")
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		// Missing or broken Content-Type means text/plain.
		mediaType, params = "text/plain", map[string]string{}
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" || depth >= maxMultipartDepth {
			return nil
		}
		mr := multipart.NewReader(body, boundary)
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				// Keep whatever was collected from the parts before the broken one.
				return nil
			}
			if err := collectText(part.Header, part, plain, html, depth+1); err != nil {
				return err
			}
		}
	}

	var target *strings.Builder
	switch mediaType {
	case "text/plain":
		target = plain
	case "text/html":
		target = html
	default:
		return nil
	}
	if strings.HasPrefix(strings.ToLower(header.Get("Content-Disposition")), "attachment") {
		return nil
	}

	text, err := decodeBody(body, header.Get("Content-Transfer-Encoding"), params["charset"])
	if err != nil {
		return fmt.Errorf("failed to decode %s part: %w", mediaType, err)
	}
	if target.Len() > 0 {
		target.WriteString("\n")
	}
	target.WriteString(text)
	return nil
}

// decodeBody undoes the transfer encoding and converts the charset to UTF-8
func decodeBody(body io.Reader, transferEncoding, charset string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(transferEncoding)) {
	case "quoted-printable":
		body = quotedprintable.NewReader(body)
	case "base64":
		body = base64.NewDecoder(base64.StdEncoding, body)
	}

	if cs := strings.ToLower(strings.TrimSpace(charset)); cs != "" && cs != "utf-8" && cs != "us-ascii" {
		if enc, err := htmlindex.Get(cs); err == nil {
			body = transform.NewReader(body, enc.NewDecoder())
		}
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// decodeEncodedHeader decodes RFC 2047 encoded words such as =?iso-8859-1?q?...?=
func decodeEncodedHeader(value string) (string, error) {
	return headerDecoder.DecodeHeader(value)
}

func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", charset, err)
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}

// headerEnd returns the offset of the blank line that ends the header block, or -1
func headerEnd(raw []byte) int {
	crlf := bytes.Index(raw, []byte("\r\n\r\n"))
	lf := bytes.Index(raw, []byte("\n\n"))
	switch {
	case crlf >= 0 && (lf < 0 || crlf < lf):
		return crlf
	default:
		return lf
	}
}

// ErrNotMessage is returned by ParseMessage for input that has no header
// block recognisable as a mail message
var ErrNotMessage = errors.New("input is not a mail message")

// messageHeaders are the header fields that mark input as a mail message
var messageHeaders = []string{
	"From", "To", "Subject", "Date", "Message-Id", "Mime-Version",
	"Content-Type", "Received", "Return-Path", "Reply-To",
}

// ParseMessage builds an email from a raw RFC 5322 message, taking the sender
// from the From header. Input without a header/body separator or without any
// standard message header is rejected with ErrNotMessage.
func ParseMessage(raw []byte) (*core.Email, error) {
	if headerEnd(raw) < 0 {
		return nil, ErrNotMessage
	}
	email, err := parseEmail(raw, "", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotMessage, err)
	}
	for _, key := range messageHeaders {
		if _, ok := email.Headers[key]; ok {
			return email, nil
		}
	}
	return nil, ErrNotMessage
}

// EmailFromInput returns the parsed message when raw is a mail message and
// the untouched text as the body otherwise
func EmailFromInput(raw []byte) *core.Email {
	if email, err := ParseMessage(raw); err == nil {
		return email
	}
	return &core.Email{Body: string(raw)}
}
