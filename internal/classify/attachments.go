package classify

import (
	"encoding/base64"
	"fmt"

	"github.com/atomine-elektrine/elektrine-haraka/internal/email"
	"github.com/atomine-elektrine/elektrine-haraka/internal/queue"
)

// defaultContentType is reported when an attachment carries no declared
// content type.
const defaultContentType = "application/octet-stream"

// AttachmentSummary is the reduced attachment view sent downstream.
type AttachmentSummary struct {
	Attachments    []email.PayloadAttachment
	Count          int
	HasAttachments bool
}

// ExtractAttachments reduces the decoder's structured attachment list to
// the delivery representation. Raw bytes are included (base64) only when
// includeContent is set; omitting them keeps payloads small when the
// downstream application does not need the content. When the decoder
// produced no attachments, metadata recorded by the upstream scanning
// stage is used as a fallback source.
func ExtractAttachments(msg *email.Message, scanned []queue.ScannedAttachment, includeContent bool) AttachmentSummary {
	var out []email.PayloadAttachment

	if msg != nil {
		for i, att := range msg.Attachments {
			filename := att.Filename
			if filename == "" {
				filename = fmt.Sprintf("attachment-%d", i+1)
			}
			contentType := att.ContentType
			if contentType == "" {
				contentType = defaultContentType
			}
			size := att.Size
			if size == 0 {
				size = len(att.Content)
			}

			p := email.PayloadAttachment{
				Filename:    filename,
				ContentType: contentType,
				Size:        size,
				ContentID:   att.ContentID,
			}
			if includeContent && len(att.Content) > 0 {
				p.Content = base64.StdEncoding.EncodeToString(att.Content)
			}
			out = append(out, p)
		}
	}

	if len(out) == 0 {
		for i, s := range scanned {
			filename := s.Filename
			if filename == "" {
				filename = fmt.Sprintf("attachment-%d", i+1)
			}
			contentType := s.ContentType
			if contentType == "" {
				contentType = defaultContentType
			}
			out = append(out, email.PayloadAttachment{
				Filename:    filename,
				ContentType: contentType,
				Size:        s.Size,
			})
		}
	}

	return AttachmentSummary{
		Attachments:    out,
		Count:          len(out),
		HasAttachments: len(out) > 0,
	}
}
