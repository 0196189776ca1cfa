package socket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/PabloG6/medscan-intellibus/internal/logger"
)

type RedisPubSub struct {
	log        *logger.Logger
	client     *redis.Client
	channel    string
	cancelFunc context.CancelFunc
	mu         sync.Mutex
}

func NewRedisPubSub(log *logger.Logger, address, password, channel string) (*RedisPubSub, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisPubSub{
		log:     log.With("component", "RedisPubSub"),
		client:  rdb,
		channel: channel,
	}, nil
}

// Run relays messages published by other nodes to the local hub until ctx is done.
func (rp *RedisPubSub) Run(ctx context.Context, hub *Hub) error {
	ctx, cancel := context.WithCancel(ctx)
	rp.mu.Lock()
	rp.cancelFunc = cancel
	rp.mu.Unlock()
	defer cancel()

	pubsub := rp.client.Subscribe(ctx, rp.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to redis channel: %w", err)
	}
	rp.log.Info("RedisPubSub subscribed successfully", "channel", rp.channel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			rp.log.Debug("Redis pubsub context done, stopping subscription")
			return nil
		case msg, ok := <-ch:
			if !ok {
				rp.log.Debug("PubSub channel closed, stopping subscription")
				return nil
			}
			broadcastMsg, err := decodePubSubMessage(msg.Payload)
			if err != nil {
				rp.log.Warn("Failed to decode pubsub message", "error", err)
				continue
			}
			if broadcastMsg.Origin == hub.nodeID {
				continue
			}
			hub.localBroadcast(broadcastMsg)
		}
	}
}

func (rp *RedisPubSub) Publish(ctx context.Context, msg Message) error {
	payload, err := encodePubSubMessage(msg)
	if err != nil {
		rp.log.Warn("failed to encode message for redis", "error", err)
		return err
	}
	return rp.client.Publish(ctx, rp.channel, payload).Err()
}

func (rp *RedisPubSub) Stop() error {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	if rp.cancelFunc != nil {
		rp.cancelFunc()
		rp.cancelFunc = nil
	}
	return rp.client.Close()
}

func encodePubSubMessage(m Message) (string, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodePubSubMessage(payload string) (Message, error) {
	var msg Message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return msg, fmt.Errorf("json unmarshal failed: %w", err)
	}
	return msg, nil
}
