package live

import (
	"context"
	"errors"
	"sync"

	"google.golang.org/genai"
)

var ErrQueueClosed = errors.New("live request queue closed")

// Request is a single client input. Exactly one field is set.
type Request struct {
	Content *genai.Content
	Blob    *genai.Blob
}

// RequestQueue carries client input into a live session. It is safe for
// concurrent senders; the runner is its only consumer.
type RequestQueue struct {
	ch   chan Request
	done chan struct{}
	once sync.Once
}

func NewRequestQueue(buffer int) *RequestQueue {
	if buffer <= 0 {
		buffer = 64
	}
	return &RequestQueue{
		ch:   make(chan Request, buffer),
		done: make(chan struct{}),
	}
}

// SendContent enqueues a complete content turn.
func (q *RequestQueue) SendContent(ctx context.Context, content *genai.Content) error {
	if content == nil {
		return errors.New("nil content")
	}
	return q.send(ctx, Request{Content: content})
}

// SendRealtime enqueues a realtime media blob.
func (q *RequestQueue) SendRealtime(ctx context.Context, blob *genai.Blob) error {
	if blob == nil {
		return errors.New("nil blob")
	}
	return q.send(ctx, Request{Blob: blob})
}

func (q *RequestQueue) send(ctx context.Context, r Request) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}
	select {
	case q.ch <- r:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Requests is the consumer side of the queue.
func (q *RequestQueue) Requests() <-chan Request { return q.ch }

// Done is closed once Close has been called.
func (q *RequestQueue) Done() <-chan struct{} { return q.done }

// Close stops the queue. It is idempotent.
func (q *RequestQueue) Close() {
	q.once.Do(func() { close(q.done) })
}

func (q *RequestQueue) Closed() bool {
	select {
	case <-q.done:
		return true
	default:
		return false
	}
}
