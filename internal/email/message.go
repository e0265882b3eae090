// Package email defines the decoded-message and delivery-payload data
// models shared by the decoder, classifiers, and delivery client.
package email

// Message represents a decoded email message with all its components.
// It is derived from the raw octets of a queue entry and never persisted.
type Message struct {
	From        string
	To          string
	Subject     string
	TextBody    string
	HtmlBody    string
	Headers     map[string]string
	Attachments []Attachment
}

// Attachment represents a file attached to an email message.
type Attachment struct {
	Filename    string
	ContentType string
	Size        int
	ContentID   string
	Content     []byte
	Index       int
}
