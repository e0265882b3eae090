// Package worker ties the pipeline together: it pulls entries from the
// inbound queue, decodes and classifies them, and either delivers the
// resulting payload downstream or writes the entry to the dead-letter
// queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/atomine-elektrine/elektrine-haraka/internal/classify"
	"github.com/atomine-elektrine/elektrine-haraka/internal/config"
	"github.com/atomine-elektrine/elektrine-haraka/internal/delivery"
	"github.com/atomine-elektrine/elektrine-haraka/internal/directory"
	"github.com/atomine-elektrine/elektrine-haraka/internal/email"
	"github.com/atomine-elektrine/elektrine-haraka/internal/metrics"
	"github.com/atomine-elektrine/elektrine-haraka/internal/mimedec"
	"github.com/atomine-elektrine/elektrine-haraka/internal/queue"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// dlqWriteTimeout bounds the dead-letter write. It is independent of the
// per-message deadline, which may already be spent by the time the write
// happens.
const dlqWriteTimeout = 5 * time.Second

// State is the worker lifecycle state.
type State int32

const (
	StateStarting State = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// QueueClient is the queue surface the worker consumes. Satisfied by
// *queue.Client.
type QueueClient interface {
	Dequeue(ctx context.Context, queueName string, timeout time.Duration) ([]byte, error)
	EnqueueDLQ(ctx context.Context, dlqName string, payload []byte) error
	Close() error
}

// Deliverer posts a payload downstream. Satisfied by *delivery.Client.
type Deliverer interface {
	Deliver(ctx context.Context, p *email.Payload) (int, error)
}

// Worker is the single-threaded consumer process. At most one message is
// mid-flight at a time; scale-out runs multiple worker processes against
// the same queue and relies on the store's atomic pop to partition work.
type Worker struct {
	cfg       *config.Config
	queue     QueueClient
	decoder   *mimedec.Decoder
	deliverer Deliverer
	domains   *directory.Cache

	counters Counters
	state    atomic.Int32
}

// New creates a worker. domains may be nil when no directory service is
// configured.
func New(cfg *config.Config, qc QueueClient, dec *mimedec.Decoder, del Deliverer, domains *directory.Cache) *Worker {
	return &Worker{
		cfg:       cfg,
		queue:     qc,
		decoder:   dec,
		deliverer: del,
		domains:   domains,
	}
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

// Counters returns a snapshot of the process-lifetime counters.
func (w *Worker) Counters() map[string]uint64 {
	return w.counters.Snapshot()
}

// Run validates configuration, enters the consume loop, and blocks until
// the context is cancelled and the in-flight entry (if any) has
// finished. Shutdown is cooperative: cancellation sets the draining
// state but never aborts processing already underway.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.cfg.Validate(); err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}
	w.state.Store(int32(StateRunning))
	slog.Info("worker running",
		"queue", w.cfg.Queue.Name,
		"dlq", w.cfg.Queue.DLQName,
		"webhook", w.cfg.Delivery.WebhookURL,
	)

	if interval := w.cfg.ReportInterval(); interval > 0 {
		go w.reportLoop(ctx, interval)
	}

	// Draining begins the moment the shutdown signal lands, even while an
	// in-flight message is still being processed.
	stopWatch := context.AfterFunc(ctx, func() {
		if w.state.CompareAndSwap(int32(StateRunning), int32(StateDraining)) {
			slog.Info("worker draining")
		}
	})
	defer stopWatch()

	for {
		if ctx.Err() != nil {
			break
		}

		data, err := w.queue.Dequeue(ctx, w.cfg.Queue.Name, w.cfg.DequeueTimeout())
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			metrics.IncQueueError("dequeue")
			slog.Error("dequeue failed", "error", err)
			// The client reconnects lazily; back off so a down store
			// does not spin the loop.
			sleepCtx(ctx, time.Second)
			continue
		}
		if data == nil {
			// Dequeue timeout with no traffic; loop to re-check the
			// draining flag.
			continue
		}

		w.counters.incConsumed()
		metrics.IncConsumed()

		// Processing of a dequeued entry always completes, even when
		// shutdown begins mid-flight.
		w.processEntry(context.WithoutCancel(ctx), data)
	}

	w.state.Store(int32(StateDraining))

	err := w.queue.Close()
	w.state.Store(int32(StateStopped))
	w.report()
	slog.Info("worker stopped")
	return err
}

// processEntry handles one dequeued payload end to end.
func (w *Worker) processEntry(ctx context.Context, data []byte) {
	entry, err := queue.UnmarshalEntry(data)
	if err == nil {
		err = entry.Validate()
	}
	if err != nil {
		// A payload that does not parse as a queue entry cannot be
		// reliably re-enqueued or dead-lettered; drop with a diagnostic.
		w.counters.incMalformed()
		metrics.IncMalformed()
		slog.Error("dropping malformed queue entry", "error", err, "bytes", len(data))
		return
	}

	if t := w.cfg.ProcessTimeout(); t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}

	payload, err := w.buildPayload(entry)
	if err != nil {
		w.counters.incFailed()
		slog.Error("processing failed", "message_id", entry.MessageID, "error", err)
		w.deadLetter(ctx, entry, 0, err)
		return
	}

	if payload.IsBounce && !w.cfg.Worker.ForwardBounces {
		w.counters.incSkippedBounce()
		metrics.IncBouncesSkipped()
		slog.Info("skipping bounce message", "message_id", entry.MessageID, "from", payload.From)
		return
	}

	w.checkRecipients(entry)

	start := time.Now()
	attempts, err := w.deliverer.Deliver(ctx, payload)
	metrics.ObserveDeliveryDuration(time.Since(start))
	if attempts > 1 {
		w.counters.addRetried(uint64(attempts - 1))
		metrics.AddDeliveryRetries(attempts - 1)
	}
	if err != nil {
		w.counters.incFailed()
		statusCode := 0
		var dErr *delivery.Error
		if errors.As(err, &dErr) {
			statusCode = dErr.StatusCode
		}
		slog.Error("delivery failed", "message_id", entry.MessageID, "attempts", attempts, "error", err)
		w.deadLetter(ctx, entry, statusCode, err)
		return
	}

	w.counters.incDelivered()
	metrics.IncDelivered()
	slog.Info("message delivered",
		"message_id", entry.MessageID,
		"attempts", attempts,
		"attachments", payload.AttachmentNum,
		"spam_status", payload.SpamStatus,
	)
}

// buildPayload decodes the raw octets and assembles the delivery payload.
func (w *Worker) buildPayload(entry *queue.Entry) (*email.Payload, error) {
	raw, err := entry.DecodeRaw(w.cfg.Worker.MaxMessageSize)
	if err != nil {
		return nil, err
	}
	if entry.Size > 0 && entry.Size != int64(len(raw)) {
		// The declared size is producer-controlled and advisory only.
		slog.Debug("declared size mismatch",
			"message_id", entry.MessageID,
			"declared", entry.Size,
			"actual", len(raw),
		)
	}

	msg, err := w.decoder.Decode(raw)
	if err != nil {
		return nil, err
	}

	envelopeFrom := entry.MailFrom
	isBounce := classify.IsBounce(msg.From, msg.Subject, msg.TextBody, classify.BounceOptions{
		EnvelopeFrom: &envelopeFrom,
		Strict:       w.cfg.Worker.StrictBounce,
	})

	txnNotes := entry.TxnNotes
	if txnNotes == "" && entry.Spam != nil {
		if b, err := json.Marshal(entry.Spam); err == nil {
			txnNotes = string(b)
		}
	}
	spam := classify.ExtractSpam(entry.Remote.Info, txnNotes, msg.Headers)

	atts := classify.ExtractAttachments(msg, entry.Scanned, w.cfg.Worker.IncludeAttachment)

	return &email.Payload{
		MessageID:      entry.MessageID,
		From:           msg.From,
		To:             msg.To,
		Recipients:     entry.RcptTo,
		Subject:        msg.Subject,
		TextBody:       msg.TextBody,
		HtmlBody:       msg.HtmlBody,
		Headers:        msg.Headers,
		Attachments:    atts.Attachments,
		AttachmentNum:  atts.Count,
		HasAttachments: atts.HasAttachments,
		SpamStatus:     spam.Status,
		SpamScore:      spam.Score,
		SpamThreshold:  spam.Threshold,
		SpamReport:     spam.Report,
		IsBounce:       isBounce,
		Size:           len(raw),
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// checkRecipients logs recipients whose domain is not in the directory's
// local-domain list. Advisory only; delivery never blocks on it.
func (w *Worker) checkRecipients(entry *queue.Entry) {
	if w.domains == nil || !w.domains.Enabled() {
		return
	}
	for _, rcpt := range entry.RcptTo {
		at := strings.LastIndex(rcpt, "@")
		if at < 0 {
			continue
		}
		if domain := rcpt[at+1:]; !w.domains.IsLocal(domain) {
			slog.Warn("recipient domain not in local directory",
				"message_id", entry.MessageID,
				"recipient", rcpt,
			)
		}
	}
}

// deadLetter writes a failed entry to the dead-letter queue. A failed
// DLQ write is logged loudly; nothing else can be done with the entry.
func (w *Worker) deadLetter(ctx context.Context, entry *queue.Entry, statusCode int, cause error) {
	// An expired processing deadline is a common reason to be here, so
	// the write runs on its own deadline, detached from the message's.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dlqWriteTimeout)
	defer cancel()

	dle := queue.NewDeadLetterEntry(*entry, statusCode, cause.Error())
	payload, err := dle.Marshal()
	if err != nil {
		slog.Error("marshal dead-letter entry", "message_id", entry.MessageID, "error", err)
		return
	}
	if err := w.queue.EnqueueDLQ(ctx, w.cfg.Queue.DLQName, payload); err != nil {
		metrics.IncQueueError("enqueue_dlq")
		slog.Error("dead-letter write failed, entry lost",
			"message_id", entry.MessageID,
			"error", err,
		)
		return
	}
	w.counters.incDeadLettered()
	metrics.IncDeadLettered()
	slog.Warn("entry dead-lettered", "message_id", entry.MessageID, "status", statusCode)
}

// reportLoop emits the counters on a fixed interval, independent of
// message traffic.
func (w *Worker) reportLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.report()
		}
	}
}

func (w *Worker) report() {
	snap := w.counters.Snapshot()
	slog.Info("worker counters",
		"state", w.State().String(),
		"consumed", snap["consumed"],
		"delivered", snap["delivered"],
		"skipped_bounces", snap["skipped_bounces"],
		"retried", snap["retried"],
		"malformed", snap["malformed"],
		"failed", snap["failed"],
		"dead_lettered", snap["dead_lettered"],
	)
}

// sleepCtx waits for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
