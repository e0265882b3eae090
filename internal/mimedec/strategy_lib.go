package mimedec

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	// Registers charset decoders with go-message so 8-bit headers and
	// bodies are converted by the library itself.
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/atomine-elektrine/elektrine-haraka/internal/email"
)

// libStrategy decodes via emersion/go-message, which applies declared
// charsets through its registered conversion tables.
type libStrategy struct{}

func (s *libStrategy) Name() string { return "go-message" }

func (s *libStrategy) Decode(raw []byte) (*email.Message, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("create reader: %w", err)
	}
	defer mr.Close()

	msg := &email.Message{
		Headers: make(map[string]string),
	}

	msg.From, _ = mr.Header.Text("From")
	msg.To, _ = mr.Header.Text("To")
	msg.Subject, _ = mr.Header.Subject()

	fields := mr.Header.Fields()
	for fields.Next() {
		key := fields.Key()
		if _, seen := msg.Headers[key]; seen {
			// First value wins for repeated headers.
			continue
		}
		if text, err := fields.Text(); err == nil {
			msg.Headers[key] = text
		} else {
			msg.Headers[key] = fields.Value()
		}
	}

	index := 0
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read part: %w", err)
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			mediaType, _, _ := h.ContentType()
			body, err := io.ReadAll(part.Body)
			if err != nil {
				return nil, fmt.Errorf("read part body: %w", err)
			}
			switch mediaType {
			case "text/plain", "":
				if msg.TextBody == "" {
					msg.TextBody = string(body)
				}
			case "text/html":
				if msg.HtmlBody == "" {
					msg.HtmlBody = string(body)
				}
			default:
				// Inline non-text parts (typically embedded images)
				// are kept as attachments with their content id.
				msg.Attachments = append(msg.Attachments, email.Attachment{
					Filename:    fmt.Sprintf("inline-%d", index+1),
					ContentType: mediaType,
					Size:        len(body),
					ContentID:   contentID(h.Get("Content-Id")),
					Content:     body,
					Index:       index,
				})
				index++
			}

		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			mediaType, _, _ := h.ContentType()
			content, err := io.ReadAll(part.Body)
			if err != nil {
				return nil, fmt.Errorf("read attachment: %w", err)
			}
			msg.Attachments = append(msg.Attachments, email.Attachment{
				Filename:    filename,
				ContentType: mediaType,
				Size:        len(content),
				ContentID:   contentID(h.Get("Content-Id")),
				Content:     content,
				Index:       index,
			})
			index++
		}
	}

	return msg, nil
}

// contentID strips the angle brackets from a Content-Id header value.
func contentID(v string) string {
	return strings.Trim(strings.TrimSpace(v), "<>")
}
