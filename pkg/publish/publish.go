// Package publish hands first-seen tag events to an external sink.
// Publish must not block the caller on the network: the MQTT and Kafka
// sinks both queue and report delivery failures asynchronously.
package publish

import (
	"context"
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"nurscan/pkg/domain"
)

type Publisher interface {
	Publish(ctx context.Context, evt domain.TagEvent) error
	Close() error
}

// Encode wire form of a tag event
func Encode(evt domain.TagEvent) ([]byte, error) {
	buf, err := msgpack.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tag event: %w", err)
	}
	return buf, nil
}

func Decode(b []byte) (domain.TagEvent, error) {
	var evt domain.TagEvent
	if err := msgpack.Unmarshal(b, &evt); err != nil {
		return domain.TagEvent{}, fmt.Errorf("failed to unmarshal tag event: %w", err)
	}
	return evt, nil
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, domain.TagEvent) error { return nil }
func (Nop) Close() error                                    { return nil }

type Config struct {
	Sink string // none, mqtt, kafka

	MQTTBrokerURL string
	MQTTClientID  string
	MQTTUsername  string
	MQTTPassword  string
	MQTTTopic     string
	MQTTQoS       byte

	KafkaBrokers []string
	KafkaTopic   string

	// OnError is called for events that failed after Publish returned.
	OnError func(err error)
}

// New builds the sink cfg.Sink names.
func New(cfg Config) (Publisher, error) {
	switch strings.ToLower(cfg.Sink) {
	case "", "none":
		return Nop{}, nil
	case "mqtt":
		return NewMQTT(cfg)
	case "kafka":
		return NewKafka(cfg)
	default:
		return nil, fmt.Errorf("unknown sink %q", cfg.Sink)
	}
}
