package email

// PayloadAttachment is the attachment representation sent downstream.
// Content carries base64 bytes only when content inclusion is enabled.
type PayloadAttachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
	ContentID   string `json:"content_id,omitempty"`
	Content     string `json:"content,omitempty"`
}

// Payload is the normalized representation delivered to the downstream
// application. It is built fresh per message and never persisted; the
// dead-letter entry wraps the original queue entry instead.
type Payload struct {
	MessageID      string              `json:"message_id"`
	From           string              `json:"from"`
	To             string              `json:"to"`
	Recipients     []string            `json:"recipients"`
	Subject        string              `json:"subject"`
	TextBody       string              `json:"text_body"`
	HtmlBody       string              `json:"html_body"`
	Headers        map[string]string   `json:"headers"`
	Attachments    []PayloadAttachment `json:"attachments"`
	AttachmentNum  int                 `json:"attachment_count"`
	HasAttachments bool                `json:"has_attachments"`
	SpamStatus     string              `json:"spam_status"`
	SpamScore      float64             `json:"spam_score"`
	SpamThreshold  float64             `json:"spam_threshold"`
	SpamReport     string              `json:"spam_report,omitempty"`
	IsBounce       bool                `json:"is_bounce"`
	Size           int                 `json:"size"`
	Timestamp      string              `json:"timestamp"`
}
