package publish

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"nurscan/pkg/domain"
)

type MQTTPublisher struct {
	client  mqtt.Client
	topic   string
	qos     byte
	onError func(error)
}

func NewMQTT(cfg Config) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBrokerURL).
		SetClientID(cfg.MQTTClientID).
		SetKeepAlive(30 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	if cfg.MQTTUsername != "" {
		opts.SetUsername(cfg.MQTTUsername)
	}
	if cfg.MQTTPassword != "" {
		opts.SetPassword(cfg.MQTTPassword)
	}

	opts.OnConnect = func(mqtt.Client) {
		log.Info().Str("broker", cfg.MQTTBrokerURL).Msg("mqtt connected")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("mqtt connection lost")
	}

	client := mqtt.NewClient(opts)
	// with connect retry on the token completes once connected, do not block start on it
	if token := client.Connect(); token.WaitTimeout(10*time.Second) && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.MQTTBrokerURL, token.Error())
	}

	return &MQTTPublisher{
		client:  client,
		topic:   cfg.MQTTTopic,
		qos:     cfg.MQTTQoS,
		onError: cfg.OnError,
	}, nil
}

// Publish topic is <topic>/<session id>.
func (p *MQTTPublisher) Publish(ctx context.Context, evt domain.TagEvent) error {
	buf, err := Encode(evt)
	if err != nil {
		return err
	}

	token := p.client.Publish(p.topic+"/"+evt.SessionID, p.qos, false, buf)
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			log.Err(err).Str("epc", evt.Tag.EPC).Msg("mqtt publish failed")
			if p.onError != nil {
				p.onError(err)
			}
		}
	}()

	return nil
}

func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(250)
	return nil
}
