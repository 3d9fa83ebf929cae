package queue

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/hookflow/internal/model"
)

var _ model.EventQueue = (*MemoryQueue)(nil)

// MemoryQueue is a channel-backed queue with the same surface as RedisQueue,
// used by tests and single-node setups.
type MemoryQueue struct {
	ch   chan Message
	next atomic.Int64
}

// NewMemoryQueue creates a queue with the given buffer size.
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 128
	}
	return &MemoryQueue{ch: make(chan Message, size)}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, task model.Task) error {
	msg := Message{ID: strconv.FormatInt(q.next.Add(1), 10), Task: task}
	select {
	case q.ch <- msg:
		return nil
	default:
		return errm.New("queue full")
	}
}

// Read returns buffered messages, waiting briefly for the first one.
func (q *MemoryQueue) Read(ctx context.Context) ([]Message, error) {
	var out []Message
	select {
	case msg := <-q.ch:
		out = append(out, msg)
	case <-time.After(50 * time.Millisecond):
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	for {
		select {
		case msg := <-q.ch:
			out = append(out, msg)
		default:
			return out, nil
		}
	}
}

func (q *MemoryQueue) Ack(ctx context.Context, messageID string) error {
	return nil
}

func (q *MemoryQueue) Requeue(ctx context.Context, msg Message) error {
	task := msg.Task
	task.Attempt++
	return q.Enqueue(ctx, task)
}
