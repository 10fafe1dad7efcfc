// Package push hands offline notifications to an external delivery backend.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"
	"unicode/utf8"

	"github.com/Shopify/sarama"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"matchchat/internal/config"
)

const previewRunes = 100

// Payload describes a message the receiver missed while offline.
type Payload struct {
	Kind           string    `json:"kind"`
	ConversationID string    `json:"conversationId"`
	MessageID      string    `json:"messageId"`
	SenderID       string    `json:"senderId"`
	Preview        string    `json:"preview"`
	Timestamp      time.Time `json:"timestamp"`
}

// Notifier delivers an offline notification for userID.
type Notifier interface {
	PushOffline(ctx context.Context, userID string, p Payload) error
}

// Preview shortens content for a notification body.
func Preview(content string) string {
	if utf8.RuneCountInString(content) <= previewRunes {
		return content
	}
	r := []rune(content)
	return string(r[:previewRunes]) + "…"
}

type record struct {
	UserID  string  `json:"userId"`
	Payload Payload `json:"payload"`
}

func encode(userID string, p Payload) ([]byte, error) {
	b, err := json.Marshal(record{UserID: userID, Payload: p})
	if err != nil {
		return nil, fmt.Errorf("encode push payload: %w", err)
	}
	return b, nil
}

// New builds the notifier selected by cfg.PushBackend. The returned closer
// releases the backend connection.
func New(cfg *config.Config, log *zap.Logger) (Notifier, io.Closer, error) {
	switch cfg.PushBackend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return NewRedisNotifier(rdb, 0), rdb, nil
	case "nats":
		nc, err := nats.Connect(cfg.NATSURL,
			nats.Name(cfg.AppName),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(500*time.Millisecond),
			nats.Timeout(3*time.Second),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("connect nats: %w", err)
		}
		return NewNATSNotifier(nc, cfg.NATSSubject), closerFunc(func() error {
			return nc.Drain()
		}), nil
	case "kafka":
		sc := sarama.NewConfig()
		sc.Version = sarama.V2_8_0_0
		sc.Producer.Return.Successes = true
		sc.Producer.Return.Errors = true
		sc.Producer.RequiredAcks = sarama.WaitForAll
		sc.Producer.Retry.Max = 1
		sc.Producer.Partitioner = sarama.NewHashPartitioner
		producer, err := sarama.NewSyncProducer(cfg.KafkaBrokers, sc)
		if err != nil {
			return nil, nil, fmt.Errorf("create kafka producer: %w", err)
		}
		return NewKafkaNotifier(producer, cfg.KafkaTopic), producer, nil
	default:
		return NewLogNotifier(log), closerFunc(func() error { return nil }), nil
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
