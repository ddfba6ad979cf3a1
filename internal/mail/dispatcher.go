package mail

import (
	"github.com/getsentry/sentry-go"

	"github.com/nominliyanage/camera-shop-back-end/internal/observability"
)

type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Dispatcher decouples email delivery from the request path. Messages are
// handed to a single worker goroutine; delivery failures are logged and
// reported but never surface to the request that queued the message.
type Dispatcher struct {
	sender Sender
	logger *observability.Logger
	queue  chan Message
	done   chan struct{}
}

const defaultQueueSize = 64

func NewDispatcher(sender Sender, logger *observability.Logger) *Dispatcher {
	d := &Dispatcher{
		sender: sender,
		logger: logger,
		queue:  make(chan Message, defaultQueueSize),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

// Enqueue never blocks. When the queue is saturated the message is dropped
// with a warning rather than stalling the request.
func (d *Dispatcher) Enqueue(msg Message) {
	if msg.To == "" {
		return
	}

	select {
	case d.queue <- msg:
	default:
		d.logger.Warn("mail_queue_full", map[string]any{
			"to":      msg.To,
			"subject": msg.Subject,
		})
	}
}

// Close drains pending messages and stops the worker.
func (d *Dispatcher) Close() {
	close(d.queue)
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)

	for msg := range d.queue {
		if err := d.sender.Send(msg.To, msg.Subject, msg.Text, msg.HTML); err != nil {
			sentry.CaptureException(err)
			d.logger.Error("mail_delivery_failed", map[string]any{
				"to":      msg.To,
				"subject": msg.Subject,
				"error":   err.Error(),
			})
			continue
		}

		d.logger.Info("mail_sent", map[string]any{
			"to":      msg.To,
			"subject": msg.Subject,
		})
	}
}
