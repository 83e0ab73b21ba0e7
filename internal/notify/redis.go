package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/onboard-cli/internal/config"
)

// RedisSource subscribes to a Redis pub/sub channel of workspace changes.
// It is also the Publisher other instances hear from.
type RedisSource struct {
	rdb     *redis.Client
	channel string
}

// NewRedisSource creates a Redis client from config. It does not connect
// until Ping or Run.
func NewRedisSource(cfg config.NotifyConfig) *RedisSource {
	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.RedisAddr,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		DialTimeout: 5 * time.Second,
	})
	channel := cfg.RedisChannel
	if channel == "" {
		channel = "onboard:changes"
	}
	return &RedisSource{rdb: rdb, channel: channel}
}

func (s *RedisSource) Name() string { return "redis" }

// Ping checks the connection.
func (s *RedisSource) Ping(ctx context.Context) error {
	return eris.Wrap(s.rdb.Ping(ctx).Err(), "notify: redis ping")
}

// Publish announces a change to workspaceID.
func (s *RedisSource) Publish(ctx context.Context, workspaceID, table string) error {
	raw, err := json.Marshal(Message{WorkspaceID: workspaceID, Table: table})
	if err != nil {
		return eris.Wrap(err, "notify: marshal message")
	}
	return eris.Wrap(s.rdb.Publish(ctx, s.channel, raw).Err(), "notify: redis publish")
}

// Run forwards channel messages to hub until ctx is done.
func (s *RedisSource) Run(ctx context.Context, hub *Hub) error {
	log := zap.L().With(zap.String("component", "notify.redis"), zap.String("channel", s.channel))

	sub := s.rdb.Subscribe(ctx, s.channel)
	defer sub.Close() //nolint:errcheck

	if _, err := sub.Receive(ctx); err != nil {
		return eris.Wrap(err, "notify: redis subscribe")
	}
	log.Info("notify: subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok || m == nil {
				return nil
			}
			ws := ParsePayload(m.Payload)
			if ws == "" {
				log.Warn("notify: bad payload", zap.String("payload", m.Payload))
				continue
			}
			hub.Notify(ws)
		}
	}
}

// Close closes the Redis client.
func (s *RedisSource) Close() error {
	return s.rdb.Close()
}
