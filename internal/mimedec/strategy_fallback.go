package mimedec

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/atomine-elektrine/elektrine-haraka/internal/email"
)

// fallbackStrategy parses with the standard library and maps any 8-bit
// text that is not already valid UTF-8 byte-for-byte through ISO 8859-1.
// That mapping never fails and never loses bytes, which makes this the
// strategy of last resort; visibly wrong output is repaired afterwards by
// the charset normalizer or outscored by the primary strategy.
type fallbackStrategy struct{}

func (s *fallbackStrategy) Name() string { return "latin1" }

func (s *fallbackStrategy) Decode(raw []byte) (*email.Message, error) {
	parsed, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}

	msg := &email.Message{
		Headers: make(map[string]string),
	}

	for key, values := range parsed.Header {
		if len(values) > 0 {
			msg.Headers[key] = decodeHeaderText(values[0])
		}
	}
	msg.From = decodeHeaderText(parsed.Header.Get("From"))
	msg.To = decodeHeaderText(parsed.Header.Get("To"))
	msg.Subject = decodeHeaderText(parsed.Header.Get("Subject"))

	contentType := parsed.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		// Unparseable content type: treat the whole body as plain text.
		body, readErr := io.ReadAll(parsed.Body)
		if readErr != nil {
			return nil, fmt.Errorf("read body: %w", readErr)
		}
		msg.TextBody = latin1String(body)
		return msg, nil
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return nil, fmt.Errorf("multipart message missing boundary")
		}
		index := 0
		if err := s.parseMultipart(parsed.Body, boundary, msg, &index); err != nil {
			return nil, fmt.Errorf("parse multipart: %w", err)
		}
		return msg, nil
	}

	body, err := decodeTransferEncoding(parsed.Body, parsed.Header.Get("Content-Transfer-Encoding"))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	switch mediaType {
	case "text/html":
		msg.HtmlBody = latin1String(body)
	default:
		msg.TextBody = latin1String(body)
	}
	return msg, nil
}

// parseMultipart walks a multipart body, collecting text parts and
// attachments. Nested multiparts recurse; unreadable parts are skipped
// rather than failing the whole message.
func (s *fallbackStrategy) parseMultipart(body io.Reader, boundary string, msg *email.Message, index *int) error {
	reader := multipart.NewReader(body, boundary)

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("next part: %w", err)
		}

		partType := part.Header.Get("Content-Type")
		if partType == "" {
			partType = "text/plain"
		}
		mediaType, params, err := mime.ParseMediaType(partType)
		if err != nil {
			continue
		}

		if strings.HasPrefix(mediaType, "multipart/") {
			nested := params["boundary"]
			if nested == "" {
				continue
			}
			if err := s.parseMultipart(part, nested, msg, index); err != nil {
				continue
			}
			continue
		}

		content, err := decodeTransferEncoding(part, part.Header.Get("Content-Transfer-Encoding"))
		if err != nil {
			continue
		}

		disposition := part.Header.Get("Content-Disposition")
		isAttachment := strings.HasPrefix(disposition, "attachment")
		filename := partFilename(part, params)

		if isAttachment || (filename != "" && mediaType != "text/plain" && mediaType != "text/html") {
			msg.Attachments = append(msg.Attachments, email.Attachment{
				Filename:    filename,
				ContentType: mediaType,
				Size:        len(content),
				ContentID:   contentID(part.Header.Get("Content-Id")),
				Content:     content,
				Index:       *index,
			})
			*index++
			continue
		}

		switch mediaType {
		case "text/plain":
			if msg.TextBody == "" {
				msg.TextBody = latin1String(content)
			}
		case "text/html":
			if msg.HtmlBody == "" {
				msg.HtmlBody = latin1String(content)
			}
		default:
			msg.Attachments = append(msg.Attachments, email.Attachment{
				Filename:    filename,
				ContentType: mediaType,
				Size:        len(content),
				ContentID:   contentID(part.Header.Get("Content-Id")),
				Content:     content,
				Index:       *index,
			})
			*index++
		}
	}

	return nil
}

// decodeTransferEncoding reads a body applying its declared
// Content-Transfer-Encoding. Go's multipart reader handles
// quoted-printable for parts; this covers base64 and top-level bodies.
func decodeTransferEncoding(r io.Reader, encoding string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		raw, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		cleaned := strings.NewReplacer("\r", "", "\n", "").Replace(string(raw))
		decoded, err := base64.StdEncoding.DecodeString(cleaned)
		if err != nil {
			// Unpadded base64 shows up often enough to warrant a retry.
			decoded, err = base64.RawStdEncoding.DecodeString(cleaned)
			if err != nil {
				return nil, fmt.Errorf("decode base64 content: %w", err)
			}
		}
		return decoded, nil
	case "quoted-printable":
		return io.ReadAll(quotedprintable.NewReader(r))
	default:
		// 7bit, 8bit, binary, or absent.
		return io.ReadAll(r)
	}
}

// partFilename extracts a filename from Content-Disposition or the
// Content-Type "name" parameter.
func partFilename(part *multipart.Part, params map[string]string) string {
	if fn := part.FileName(); fn != "" {
		return fn
	}
	if name, ok := params["name"]; ok && name != "" {
		return name
	}
	return ""
}

// latin1String maps bytes to a string: valid UTF-8 passes through,
// anything else is read byte-for-byte as ISO 8859-1 so every input maps
// to some code point.
func latin1String(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}
