package publish

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"nurscan/pkg/domain"
)

type KafkaPublisher struct {
	w *kafka.Writer
}

func NewKafka(cfg Config) (*KafkaPublisher, error) {
	if len(cfg.KafkaBrokers) == 0 || cfg.KafkaBrokers[0] == "" {
		return nil, errors.New("kafka brokers must not be empty")
	}

	w := &kafka.Writer{
		Addr:     kafka.TCP(cfg.KafkaBrokers...),
		Topic:    cfg.KafkaTopic,
		Balancer: &kafka.Hash{}, // same epc, same partition

		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,

		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Compression:  kafka.Snappy,

		Completion: func(messages []kafka.Message, err error) {
			if err == nil {
				return
			}
			log.Err(err).Int("messages", len(messages)).Msg("kafka write failed")
			if cfg.OnError != nil {
				cfg.OnError(err)
			}
		},
	}

	return &KafkaPublisher{w: w}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, evt domain.TagEvent) error {
	buf, err := Encode(evt)
	if err != nil {
		return err
	}

	if err := p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.Tag.EPC),
		Value: buf,
		Headers: []kafka.Header{
			{Key: "session", Value: []byte(evt.SessionID)},
		},
	}); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}
