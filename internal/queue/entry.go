// Package queue implements the durable queue layer of the inbound-mail
// pipeline: the queue entry and dead-letter models, and the Redis-backed
// client used to move them.
package queue

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrMessageTooLarge is returned when the decoded raw message exceeds the
// configured size ceiling.
var ErrMessageTooLarge = errors.New("raw message exceeds size limit")

// SpamVerdict is a pre-computed spam-engine result carried with the entry.
type SpamVerdict struct {
	Score     float64  `json:"score"`
	Threshold float64  `json:"threshold"`
	IsSpam    bool     `json:"is_spam"`
	Rules     []string `json:"rules,omitempty"`
}

// RemoteInfo describes the peer that submitted the message upstream.
type RemoteInfo struct {
	IP       string `json:"ip"`
	Hostname string `json:"hostname,omitempty"`
	Info     string `json:"info,omitempty"`
}

// ScannedAttachment is attachment metadata recorded by an upstream
// scanning stage. It is the fallback source when full MIME attachments
// are unavailable from the decoder.
type ScannedAttachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type,omitempty"`
	Size        int    `json:"size,omitempty"`
}

// Entry is the unit stored in the inbound queue. It is created once by
// the mail-acceptance stage and immutable thereafter.
type Entry struct {
	Version    int                 `json:"version"`
	MessageID  string              `json:"message_id"`
	EnqueuedAt time.Time           `json:"enqueued_at"`
	MailFrom   string              `json:"mail_from"`
	RcptTo     []string            `json:"rcpt_to"`
	Size       int64               `json:"size"`
	Remote     RemoteInfo          `json:"remote"`
	Helo       string              `json:"helo,omitempty"`
	TLS        bool                `json:"tls"`
	Spam       *SpamVerdict        `json:"spam,omitempty"`
	Scanned    []ScannedAttachment `json:"scanned_attachments,omitempty"`
	TxnNotes   string              `json:"txn_notes,omitempty"`
	Raw        string              `json:"raw"`
}

// Validate checks the structural invariants a consumable entry must hold.
func (e *Entry) Validate() error {
	if e.MessageID == "" {
		return errors.New("entry missing message_id")
	}
	if len(e.RcptTo) == 0 {
		return errors.New("entry has no recipients")
	}
	if e.Raw == "" {
		return errors.New("entry has empty raw payload")
	}
	return nil
}

// DecodeRaw decodes the transport-safe raw field back into message
// octets. maxSize of zero disables the size ceiling.
func (e *Entry) DecodeRaw(maxSize int64) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(e.Raw)
	if err != nil {
		return nil, fmt.Errorf("decode raw payload: %w", err)
	}
	if maxSize > 0 && int64(len(data)) > maxSize {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrMessageTooLarge, len(data), maxSize)
	}
	return data, nil
}

// Marshal serializes the entry for the queue store.
func (e *Entry) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalEntry deserializes a queue-store payload into an Entry.
func UnmarshalEntry(data []byte) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("unmarshal queue entry: %w", err)
	}
	return &e, nil
}

// DeadLetterEntry wraps a failed queue entry with failure metadata. It is
// consumed out-of-band by operators, never by the worker.
type DeadLetterEntry struct {
	ID         string    `json:"id"`
	FailedAt   time.Time `json:"failed_at"`
	StatusCode int       `json:"status_code,omitempty"`
	Error      string    `json:"error"`
	Entry      Entry     `json:"entry"`
}

// NewDeadLetterEntry builds a dead-letter record for the given entry.
// statusCode is zero when no HTTP status is available.
func NewDeadLetterEntry(entry Entry, statusCode int, errMsg string) *DeadLetterEntry {
	return &DeadLetterEntry{
		ID:         uuid.NewString(),
		FailedAt:   time.Now().UTC(),
		StatusCode: statusCode,
		Error:      errMsg,
		Entry:      entry,
	}
}

// Marshal serializes the dead-letter entry for the DLQ.
func (d *DeadLetterEntry) Marshal() ([]byte, error) {
	return json.Marshal(d)
}

// UnmarshalDeadLetter deserializes a DLQ payload, used by the dlq
// inspection command.
func UnmarshalDeadLetter(data []byte) (*DeadLetterEntry, error) {
	var d DeadLetterEntry
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("unmarshal dead-letter entry: %w", err)
	}
	return &d, nil
}
