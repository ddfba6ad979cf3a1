package mail

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nominliyanage/camera-shop-back-end/internal/observability"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []Message
	fail map[string]error // by recipient
}

func (s *recordingSender) Send(to, subject, text, html string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.fail[to]; ok {
		return err
	}
	s.sent = append(s.sent, Message{To: to, Subject: subject, Text: text, HTML: html})
	return nil
}

func (s *recordingSender) delivered() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.sent...)
}

func TestDispatcherDelivers(t *testing.T) {
	sender := &recordingSender{}
	d := NewDispatcher(sender, observability.NewLogger())

	d.Enqueue(Message{To: "a@example.com", Subject: "Hello", Text: "hi"})
	d.Enqueue(Message{To: "b@example.com", Subject: "Hello", Text: "hi"})
	d.Close()

	got := sender.delivered()
	require.Len(t, got, 2)
	assert.Equal(t, "a@example.com", got[0].To)
	assert.Equal(t, "b@example.com", got[1].To)
}

func TestDispatcherSkipsEmptyRecipient(t *testing.T) {
	sender := &recordingSender{}
	d := NewDispatcher(sender, observability.NewLogger())

	d.Enqueue(Message{To: "", Subject: "Hello"})
	d.Close()

	assert.Empty(t, sender.delivered())
}

func TestDispatcherFailureDoesNotStopWorker(t *testing.T) {
	sender := &recordingSender{fail: map[string]error{
		"bad@example.com": errors.New("smtp refused"),
	}}
	d := NewDispatcher(sender, observability.NewLogger())

	d.Enqueue(Message{To: "bad@example.com", Subject: "One"})
	d.Enqueue(Message{To: "good@example.com", Subject: "Two"})
	d.Close()

	got := sender.delivered()
	require.Len(t, got, 1)
	assert.Equal(t, "good@example.com", got[0].To)
}
