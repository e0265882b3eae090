package queue

import (
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEntry() *Entry {
	return &Entry{
		Version:    1,
		MessageID:  "m-42",
		EnqueuedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		MailFrom:   "sender@example.com",
		RcptTo:     []string{"rcpt@elektrine.com"},
		Size:       5,
		Remote: RemoteInfo{
			IP:       "203.0.113.9",
			Hostname: "mx.remote.example",
			Info:     "esmtp",
		},
		Helo: "remote.example",
		TLS:  true,
		Spam: &SpamVerdict{Score: 1.2, Threshold: 5.0, IsSpam: false, Rules: []string{"SPF_PASS"}},
		Raw:  base64.StdEncoding.EncodeToString([]byte("hello")),
	}
}

func TestEntryRoundTrip(t *testing.T) {
	t.Parallel()

	in := sampleEntry()
	data, err := in.Marshal()
	require.NoError(t, err)

	out, err := UnmarshalEntry(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestEntryValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Entry)
		ok     bool
	}{
		{"valid", func(*Entry) {}, true},
		{"missing message id", func(e *Entry) { e.MessageID = "" }, false},
		{"no recipients", func(e *Entry) { e.RcptTo = nil }, false},
		{"empty raw", func(e *Entry) { e.Raw = "" }, false},
	}
	for _, tt := range tests {
		e := sampleEntry()
		tt.mutate(e)
		err := e.Validate()
		if tt.ok {
			assert.NoError(t, err, tt.name)
		} else {
			assert.Error(t, err, tt.name)
		}
	}
}

func TestEntryDecodeRaw(t *testing.T) {
	t.Parallel()

	e := sampleEntry()
	data, err := e.DecodeRaw(0)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
}

func TestEntryDecodeRawSizeLimit(t *testing.T) {
	t.Parallel()

	e := sampleEntry()
	_, err := e.DecodeRaw(4)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMessageTooLarge))
}

func TestEntryDecodeRawInvalidBase64(t *testing.T) {
	t.Parallel()

	e := sampleEntry()
	e.Raw = "%%% not base64 %%%"
	_, err := e.DecodeRaw(0)
	assert.Error(t, err)
}

func TestUnmarshalEntryGarbage(t *testing.T) {
	t.Parallel()

	_, err := UnmarshalEntry([]byte("{{{"))
	assert.Error(t, err)
}

func TestDeadLetterEntryRoundTrip(t *testing.T) {
	t.Parallel()

	dle := NewDeadLetterEntry(*sampleEntry(), 502, "upstream exploded")
	require.NotEmpty(t, dle.ID)
	require.False(t, dle.FailedAt.IsZero())

	data, err := dle.Marshal()
	require.NoError(t, err)

	out, err := UnmarshalDeadLetter(data)
	require.NoError(t, err)
	assert.Equal(t, dle.ID, out.ID)
	assert.Equal(t, 502, out.StatusCode)
	assert.Equal(t, "upstream exploded", out.Error)
	assert.Equal(t, "m-42", out.Entry.MessageID)
}
