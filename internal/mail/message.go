package mail

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
	"strings"
	"time"
)

var ErrMalformedMessage = errors.New("malformed message")

// Outgoing - исходящее текстовое письмо одному получателю
type Outgoing struct {
	FromName string
	From     string
	To       string
	Subject  string
	Body     string
}

// BuildMessage собирает RFC 822 сообщение: text/plain в UTF-8, quoted-printable.
func BuildMessage(m Outgoing, date time.Time) []byte {
	from := (&mail.Address{Name: m.FromName, Address: m.From}).String()
	to := (&mail.Address{Address: m.To}).String()

	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", m.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", date.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("Content-Transfer-Encoding: quoted-printable\r\n")
	b.WriteString("\r\n")

	qp := quotedprintable.NewWriter(&b)
	body := strings.ReplaceAll(m.Body, "\r\n", "\n")
	_, _ = qp.Write([]byte(strings.ReplaceAll(body, "\n", "\r\n")))
	_ = qp.Close()
	b.WriteString("\r\n")
	return b.Bytes()
}

// Inbound - разобранное входящее письмо
type Inbound struct {
	MessageID string
	// From - только адрес, в нижнем регистре
	From    string
	Subject string
	Body    string
}

// ParseMessage разбирает сырое сообщение. Ошибки формата оборачивают ErrMalformedMessage.
func ParseMessage(raw []byte) (*Inbound, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	from, err := msg.Header.AddressList("From")
	if err != nil || len(from) == 0 {
		return nil, fmt.Errorf("%w: bad From header: %v", ErrMalformedMessage, err)
	}

	body, err := extractBody(msg.Header, msg.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	return &Inbound{
		MessageID: strings.TrimSpace(msg.Header.Get("Message-Id")),
		From:      strings.ToLower(from[0].Address),
		Subject:   decodeHeader(msg.Header.Get("Subject")),
		Body:      strings.TrimSpace(body),
	}, nil
}

func decodeHeader(header string) string {
	if header == "" {
		return ""
	}
	dec := new(mime.WordDecoder)
	decoded, err := dec.DecodeHeader(header)
	if err != nil {
		return header
	}
	return decoded
}

type headerGetter interface {
	Get(key string) string
}

func extractBody(h headerGetter, r io.Reader) (string, error) {
	contentType := h.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		// битый Content-Type читаем как текст
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		return extractMultipartBody(r, params["boundary"])
	}

	content, err := io.ReadAll(decodeTransfer(r, h.Get("Content-Transfer-Encoding")))
	if err != nil {
		return "", err
	}
	if mediaType == "text/html" {
		return stripHTMLTags(string(content)), nil
	}
	return string(content), nil
}

func extractMultipartBody(r io.Reader, boundary string) (string, error) {
	if boundary == "" {
		return "", errors.New("multipart message without boundary")
	}

	mr := multipart.NewReader(r, boundary)
	var textParts, htmlParts []string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		// вложения не читаем
		if part.FileName() != "" {
			part.Close()
			continue
		}

		mediaType, _, perr := mime.ParseMediaType(part.Header.Get("Content-Type"))
		if perr != nil {
			mediaType = "text/plain"
		}
		switch {
		case strings.HasPrefix(mediaType, "multipart/"):
			nested, err := extractBody(part.Header, part)
			if err == nil && nested != "" {
				textParts = append(textParts, nested)
			}
		case mediaType == "text/plain" || mediaType == "text/html":
			// quoted-printable multipart снимает сам, base64 - нет
			content, err := io.ReadAll(decodeTransfer(part, part.Header.Get("Content-Transfer-Encoding")))
			if err != nil {
				part.Close()
				return "", err
			}
			if mediaType == "text/plain" {
				textParts = append(textParts, string(content))
			} else {
				htmlParts = append(htmlParts, stripHTMLTags(string(content)))
			}
		}
		part.Close()
	}

	if len(textParts) > 0 {
		return strings.Join(textParts, "\n"), nil
	}
	return strings.Join(htmlParts, "\n"), nil
}

func decodeTransfer(r io.Reader, encoding string) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, r)
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	default:
		return r
	}
}

func stripHTMLTags(html string) string {
	var result strings.Builder
	inTag := false
	for _, r := range html {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			result.WriteRune(r)
		}
	}

	lines := strings.Split(result.String(), "\n")
	cleaned := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}
