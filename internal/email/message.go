package email

import (
	"bytes"
	"fmt"
	"strings"
	"time"
)

// BuildMessage assembles a plain-text RFC 5322 message.
func BuildMessage(from string, to []string, subject, body string, date time.Time) []byte {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(to, ", ")))
	sb.WriteString(fmt.Sprintf("From: %s\r\n", from))
	sb.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	sb.WriteString("Date: " + date.Format(time.RFC1123Z) + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(body)
	if !strings.HasSuffix(body, "\r\n") {
		sb.WriteString("\r\n")
	}
	return []byte(sb.String())
}

// MessageBody returns the part of rawMessage after the header block.
// A message without headers is returned whole.
func MessageBody(rawMessage []byte) string {
	if i := bytes.Index(rawMessage, []byte("\r\n\r\n")); i >= 0 {
		return string(rawMessage[i+4:])
	}
	return string(rawMessage)
}
