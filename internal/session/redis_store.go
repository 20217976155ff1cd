package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisStorage keeps session values in a redis hash and publishes a message on every write
// so other processes sharing the namespace can react.
type RedisStorage struct {
	client  *redis.Client
	key     string
	channel string
	logger  zerolog.Logger
}

// NewRedisStorage creates a storage under the given namespace.
func NewRedisStorage(client *redis.Client, namespace string, logger zerolog.Logger) *RedisStorage {
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		namespace = "classroom"
	}
	key := namespace + ":session"
	return &RedisStorage{
		client:  client,
		key:     key,
		channel: key + ":changed",
		logger:  logger.With().Str("component", "session_redis").Logger(),
	}
}

func (r *RedisStorage) Load(ctx context.Context) (map[string]string, error) {
	values, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	return values, nil
}

func (r *RedisStorage) Save(ctx context.Context, values map[string]string) error {
	fields := make(map[string]interface{}, len(values))
	for k, v := range values {
		fields[k] = v
	}
	if err := r.client.HSet(ctx, r.key, fields).Err(); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	r.publish(ctx, "saved")
	return nil
}

func (r *RedisStorage) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	r.publish(ctx, "cleared")
	return nil
}

// Changes subscribes to the namespace's change channel until ctx is done.
func (r *RedisStorage) Changes(ctx context.Context) (<-chan struct{}, error) {
	pubsub := r.client.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe to session changes: %w", err)
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer pubsub.Close()

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-messages:
				if !ok {
					return
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()

	return out, nil
}

func (r *RedisStorage) publish(ctx context.Context, event string) {
	if err := r.client.Publish(ctx, r.channel, event).Err(); err != nil {
		r.logger.Warn().Err(err).Str("event", event).Msg("failed to publish session change")
	}
}
