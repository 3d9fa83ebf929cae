// Package queue carries tasks between the webhook boundary and the workers
// over a redis stream with a consumer group.
package queue

import (
	"context"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/lang"
	"github.com/maxbolgarin/logze/v2"
	"github.com/maxbolgarin/hookflow/internal/model"
	"github.com/redis/go-redis/v9"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	defaultStream    = "hookflow:tasks"
	defaultGroup     = "hookflow-workers"
	defaultBatchSize = 10
	defaultBlock     = 5 * time.Second

	fieldTask    = "task"
	fieldAttempt = "attempt"
)

// Config tunes the stream consumer side.
type Config struct {
	Stream    string
	Group     string
	Consumer  string
	BatchSize int64
	Block     time.Duration
}

func (cfg *Config) setDefaults() {
	cfg.Stream = lang.Check(cfg.Stream, defaultStream)
	cfg.Group = lang.Check(cfg.Group, defaultGroup)
	cfg.Consumer = lang.Check(cfg.Consumer, "worker-1")
	cfg.BatchSize = lang.Check(cfg.BatchSize, int64(defaultBatchSize))
	cfg.Block = lang.Check(cfg.Block, defaultBlock)
}

// Message is one delivered task with its stream position.
type Message struct {
	ID   string
	Task model.Task
}

var _ model.EventQueue = (*RedisQueue)(nil)

// RedisQueue is both the producer and the consumer over one stream.
type RedisQueue struct {
	client *redis.Client
	cfg    Config
	log    logze.Logger
}

// NewRedisQueue creates the queue and its consumer group. Group creation is
// idempotent and starts from the beginning so restarts lose nothing.
func NewRedisQueue(client *redis.Client, cfg Config) (*RedisQueue, error) {
	cfg.setDefaults()
	q := &RedisQueue{
		client: client,
		cfg:    cfg,
		log:    logze.With("module", "queue"),
	}
	err := client.XGroupCreateMkStream(context.Background(), cfg.Stream, cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return nil, errm.Wrap(err, "create consumer group")
	}
	return q, nil
}

// Enqueue appends a task to the stream.
func (q *RedisQueue) Enqueue(ctx context.Context, task model.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return errm.Wrap(err, "encode task")
	}
	err = q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.cfg.Stream,
		Values: map[string]any{
			fieldTask:    string(data),
			fieldAttempt: task.Attempt,
		},
	}).Err()
	if err != nil {
		return errm.Wrap(err, "enqueue task")
	}
	q.log.Debug("task enqueued", "task_id", task.TaskID, "kind", task.Kind, "attempt", task.Attempt)
	return nil
}

// Read blocks up to the configured duration for the next batch of tasks.
func (q *RedisQueue) Read(ctx context.Context) ([]Message, error) {
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.cfg.Group,
		Consumer: q.cfg.Consumer,
		Streams:  []string{q.cfg.Stream, ">"},
		Count:    q.cfg.BatchSize,
		Block:    q.cfg.Block,
	}).Result()
	if err != nil {
		if errm.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, errm.Wrap(err, "read from stream")
	}

	var messages []Message
	for _, stream := range streams {
		for _, raw := range stream.Messages {
			msg, err := parseMessage(raw)
			if err != nil {
				q.log.Err(err, "drop unparseable message", "message_id", raw.ID)
				_ = q.Ack(ctx, raw.ID)
				continue
			}
			messages = append(messages, msg)
		}
	}
	return messages, nil
}

// Ack removes a delivered message from the pending set.
func (q *RedisQueue) Ack(ctx context.Context, messageID string) error {
	if err := q.client.XAck(ctx, q.cfg.Stream, q.cfg.Group, messageID).Err(); err != nil {
		return errm.Wrap(err, "ack message")
	}
	return nil
}

// Requeue acks the delivered message and appends the task again with the
// attempt counter advanced.
func (q *RedisQueue) Requeue(ctx context.Context, msg Message) error {
	task := msg.Task
	task.Attempt++
	if err := q.Enqueue(ctx, task); err != nil {
		return err
	}
	return q.Ack(ctx, msg.ID)
}

func parseMessage(raw redis.XMessage) (Message, error) {
	data, ok := raw.Values[fieldTask].(string)
	if !ok {
		return Message{}, errm.New("message missing task field")
	}
	var task model.Task
	if err := json.Unmarshal([]byte(data), &task); err != nil {
		return Message{}, errm.Wrap(err, "decode task")
	}
	if task.Attempt <= 0 {
		task.Attempt = 1
	}
	return Message{ID: raw.ID, Task: task}, nil
}
