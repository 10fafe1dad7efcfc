package push

import (
	"context"
	"fmt"

	"github.com/Shopify/sarama"
)

// KafkaNotifier produces one record per notification keyed by the receiver,
// so a user's notifications stay on one partition in order.
type KafkaNotifier struct {
	producer sarama.SyncProducer
	topic    string
}

func NewKafkaNotifier(producer sarama.SyncProducer, topic string) *KafkaNotifier {
	return &KafkaNotifier{producer: producer, topic: topic}
}

func (n *KafkaNotifier) PushOffline(_ context.Context, userID string, p Payload) error {
	data, err := encode(userID, p)
	if err != nil {
		return err
	}
	_, _, err = n.producer.SendMessage(&sarama.ProducerMessage{
		Topic: n.topic,
		Key:   sarama.StringEncoder(userID),
		Value: sarama.ByteEncoder(data),
	})
	if err != nil {
		return fmt.Errorf("kafka offline push: %w", err)
	}
	return nil
}
