package memory

import (
	"context"
	"fmt"
	"sync"
)

// SentMessage records one Send call against a fake transport.
type SentMessage struct {
	To      string
	Subject string
	Body    string
}

// FakeTransport implements ports.Transport without touching a provider.
// Tests script failures by setting Err before a run.
type FakeTransport struct {
	mu     sync.Mutex
	sent   []SentMessage
	nextID int

	// Err, when non-nil, is returned from Send instead of recording.
	Err error
}

func NewFakeTransport() *FakeTransport {
	return &FakeTransport{}
}

func (t *FakeTransport) Send(_ context.Context, to, subject, body string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.Err != nil {
		return "", t.Err
	}
	t.nextID++
	t.sent = append(t.sent, SentMessage{To: to, Subject: subject, Body: body})
	return fmt.Sprintf("fake-msg-%d", t.nextID), nil
}

// Sent returns a copy of all recorded messages.
func (t *FakeTransport) Sent() []SentMessage {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]SentMessage, len(t.sent))
	copy(out, t.sent)
	return out
}

// PublishedMessage records one Publish call against the fake publisher.
type PublishedMessage struct {
	Topic   string
	Payload any
}

// FakePublisher implements ports.OutcomePublisher in memory.
type FakePublisher struct {
	mu        sync.Mutex
	published []PublishedMessage
}

func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

func (p *FakePublisher) Publish(_ context.Context, topic string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, PublishedMessage{Topic: topic, Payload: payload})
	return nil
}

// Published returns a copy of all recorded messages.
func (p *FakePublisher) Published() []PublishedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]PublishedMessage, len(p.published))
	copy(out, p.published)
	return out
}
