package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/TheFuji/mpp-solar-v0.9.01/pkg/protocol"
)

// ErrNotFound is returned by Latest when nothing was stored for a command.
var ErrNotFound = errors.New("storage: no reading stored")

// Record is the stored form of one reading.
type Record struct {
	Device    string            `json:"device"`
	Timestamp time.Time         `json:"timestamp"`
	Reading   *protocol.Reading `json:"reading"`
}

type Options struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	Channel  string
	// History caps the per-command list; 0 disables the list.
	History int
}

type MessageQueue struct {
	client  *redis.Client
	channel string
	history int
	log     *logrus.Logger
}

func NewMessageQueue(ctx context.Context, opts Options, log *logrus.Logger) (*MessageQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		PoolSize: opts.PoolSize,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", opts.Addr, err)
	}

	log.Infof("redis connected: %s", opts.Addr)

	return &MessageQueue{
		client:  client,
		channel: opts.Channel,
		history: opts.History,
		log:     log,
	}, nil
}

// ListKey is the history list of one device command.
func ListKey(device, command string) string {
	return fmt.Sprintf("inverter:%s:%s", device, command)
}

// Publish sends the reading to the channel and prepends it to the
// command's history list.
func (mq *MessageQueue) Publish(ctx context.Context, device string, reading *protocol.Reading) error {
	data, err := json.Marshal(Record{Device: device, Timestamp: time.Now().UTC(), Reading: reading})
	if err != nil {
		return fmt.Errorf("marshal reading: %w", err)
	}

	if err := mq.client.Publish(ctx, mq.channel, data).Err(); err != nil {
		return fmt.Errorf("publish reading: %w", err)
	}

	if mq.history > 0 {
		key := ListKey(device, reading.Command)
		if err := mq.client.LPush(ctx, key, data).Err(); err != nil {
			return fmt.Errorf("push history %s: %w", key, err)
		}
		if err := mq.client.LTrim(ctx, key, 0, int64(mq.history-1)).Err(); err != nil {
			return fmt.Errorf("trim history %s: %w", key, err)
		}
	}
	return nil
}

// PublishBatch publishes several readings in one pipeline.
func (mq *MessageQueue) PublishBatch(ctx context.Context, device string, readings []*protocol.Reading) error {
	pipe := mq.client.Pipeline()
	now := time.Now().UTC()

	for _, reading := range readings {
		data, err := json.Marshal(Record{Device: device, Timestamp: now, Reading: reading})
		if err != nil {
			mq.log.Errorf("marshal reading %s: %v", reading.Command, err)
			continue
		}

		pipe.Publish(ctx, mq.channel, data)
		if mq.history > 0 {
			key := ListKey(device, reading.Command)
			pipe.LPush(ctx, key, data)
			pipe.LTrim(ctx, key, 0, int64(mq.history-1))
		}
	}

	_, err := pipe.Exec(ctx)
	return err
}

// Latest returns the raw JSON of the newest stored reading for a command.
func (mq *MessageQueue) Latest(ctx context.Context, device, command string) ([]byte, error) {
	data, err := mq.client.LIndex(ctx, ListKey(device, command), 0).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read latest %s: %w", command, err)
	}
	return data, nil
}

// History returns up to n stored readings for a command, newest first.
func (mq *MessageQueue) History(ctx context.Context, device, command string, n int) ([]json.RawMessage, error) {
	if n <= 0 {
		return nil, nil
	}
	items, err := mq.client.LRange(ctx, ListKey(device, command), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read history %s: %w", command, err)
	}
	out := make([]json.RawMessage, len(items))
	for i, item := range items {
		out[i] = json.RawMessage(item)
	}
	return out, nil
}

func (mq *MessageQueue) Close() error {
	return mq.client.Close()
}
