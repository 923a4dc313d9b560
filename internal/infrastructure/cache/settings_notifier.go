package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/meterly/backend/internal/domain/settings"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultSettingsChannel is the pub/sub channel for settings changes
const DefaultSettingsChannel = "meterly:settings:changed"

type settingsChangedMessage struct {
	Timestamp int64 `json:"timestamp"`
}

// RedisSettingsNotifier publishes settings changes over Redis pub/sub so
// every instance can drop its cached snapshot.
type RedisSettingsNotifier struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

var _ settings.ChangeNotifier = (*RedisSettingsNotifier)(nil)

// NewRedisSettingsNotifier uses a shared client. The caller owns the client.
func NewRedisSettingsNotifier(client *redis.Client, channel string, logger *zap.Logger) *RedisSettingsNotifier {
	if channel == "" {
		channel = DefaultSettingsChannel
	}
	return &RedisSettingsNotifier{client: client, channel: channel, logger: logger}
}

// NotifyChanged publishes a change message
func (n *RedisSettingsNotifier) NotifyChanged(ctx context.Context) error {
	data, err := json.Marshal(settingsChangedMessage{Timestamp: time.Now().UnixNano()})
	if err != nil {
		return fmt.Errorf("failed to marshal settings message: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel, data).Err(); err != nil {
		n.logger.Error("Failed to publish settings change",
			zap.String("channel", n.channel),
			zap.Error(err))
		return fmt.Errorf("failed to publish settings change: %w", err)
	}
	return nil
}

// Listen subscribes to the channel and calls fn per message until ctx ends.
// A panicking fn is logged and does not stop the subscription.
func (n *RedisSettingsNotifier) Listen(ctx context.Context, fn func()) error {
	pubsub := n.client.Subscribe(ctx, n.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", n.channel, err)
	}
	n.logger.Info("Subscribed to settings channel", zap.String("channel", n.channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			n.logger.Info("Settings subscription stopped")
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				n.logger.Warn("Settings channel closed")
				return nil
			}
			var m settingsChangedMessage
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				n.logger.Warn("Ignoring malformed settings message",
					zap.String("payload", msg.Payload),
					zap.Error(err))
				continue
			}
			n.invoke(fn)
		}
	}
}

func (n *RedisSettingsNotifier) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("Panic in settings change callback", zap.Any("panic", r))
		}
	}()
	fn()
}

// LocalSettingsNotifier delivers changes in-process. It backs single
// instance deployments where Redis is disabled.
type LocalSettingsNotifier struct {
	mu        sync.Mutex
	listeners map[chan struct{}]struct{}
}

var _ settings.ChangeNotifier = (*LocalSettingsNotifier)(nil)

// NewLocalSettingsNotifier creates an in-process notifier
func NewLocalSettingsNotifier() *LocalSettingsNotifier {
	return &LocalSettingsNotifier{listeners: make(map[chan struct{}]struct{})}
}

// NotifyChanged signals every listener without blocking. Signals coalesce.
func (n *LocalSettingsNotifier) NotifyChanged(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for l := range n.listeners {
		select {
		case l <- struct{}{}:
		default:
		}
	}
	return nil
}

// Listen calls fn for each notification until ctx ends
func (n *LocalSettingsNotifier) Listen(ctx context.Context, fn func()) error {
	l := make(chan struct{}, 1)
	n.mu.Lock()
	n.listeners[l] = struct{}{}
	n.mu.Unlock()
	defer func() {
		n.mu.Lock()
		delete(n.listeners, l)
		n.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l:
			fn()
		}
	}
}
