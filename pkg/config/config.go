package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"nurscan/pkg/reader"
)

type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogPretty bool

	Mode     reader.Mode
	Q        int
	Session  int
	Rounds   int
	TIDWords uint32

	Sink          string // none, mqtt, kafka
	MQTTBrokerURL string
	MQTTClientID  string
	MQTTUsername  string
	MQTTPassword  string
	MQTTTopic     string
	MQTTQoS       byte
	KafkaBrokers  []string
	KafkaTopic    string

	SimPopulation     int
	SimBatchSize      int
	SimInterval       time.Duration
	SimStreamRounds   int
	SimMalformedEvery int
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	mode, err := reader.ParseMode(getenv("INVENTORY_MODE", "stream"))
	if err != nil {
		return nil, err
	}

	qos := getenvInt("MQTT_QOS", 1)
	if qos < 0 {
		qos = 0
	}
	if qos > 2 {
		qos = 2
	}

	cfg := &Config{
		HTTPAddr:  getenv("HTTP_ADDR", "localhost:8080"),
		LogLevel:  getenv("LOG_LEVEL", "info"),
		LogPretty: getenvBool("LOG_PRETTY", true),

		Mode:     mode,
		Q:        getenvInt("INVENTORY_Q", 0),
		Session:  getenvInt("INVENTORY_SESSION", 0),
		Rounds:   getenvInt("INVENTORY_ROUNDS", 0),
		TIDWords: uint32(getenvInt("TID_WORDS", 6)),

		Sink:          strings.ToLower(getenv("TAG_SINK", "none")),
		MQTTBrokerURL: getenv("MQTT_BROKER_URL", "tcp://localhost:1883"),
		MQTTClientID:  getenv("MQTT_CLIENT_ID", "nurscan"),
		MQTTUsername:  os.Getenv("MQTT_USERNAME"),
		MQTTPassword:  os.Getenv("MQTT_PASSWORD"),
		MQTTTopic:     getenv("MQTT_TOPIC", "nurscan/tags"),
		MQTTQoS:       byte(qos),
		KafkaBrokers:  strings.Split(getenv("KAFKA_BROKERS", "localhost:9092"), ","),
		KafkaTopic:    getenv("KAFKA_TOPIC", "nurscan-tags"),

		SimPopulation:     getenvInt("SIM_POPULATION", 40),
		SimBatchSize:      getenvInt("SIM_BATCH_SIZE", 8),
		SimInterval:       getenvDuration("SIM_INTERVAL", 250*time.Millisecond),
		SimStreamRounds:   getenvInt("SIM_STREAM_ROUNDS", 20),
		SimMalformedEvery: getenvInt("SIM_MALFORMED_EVERY", 0),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Q < 0 || c.Q > 15 {
		return fmt.Errorf("INVENTORY_Q must be 0..15, got %d", c.Q)
	}
	if c.Session < 0 || c.Session > 3 {
		return fmt.Errorf("INVENTORY_SESSION must be 0..3, got %d", c.Session)
	}
	if c.Rounds < 0 {
		return fmt.Errorf("INVENTORY_ROUNDS must not be negative, got %d", c.Rounds)
	}
	// tid bytes must fit the record data buffer
	if c.TIDWords == 0 || c.TIDWords > 31 {
		return fmt.Errorf("TID_WORDS must be 1..31, got %d", c.TIDWords)
	}

	switch c.Sink {
	case "none", "mqtt":
	case "kafka":
		if len(c.KafkaBrokers) == 0 || c.KafkaBrokers[0] == "" {
			return errors.New("KAFKA_BROKERS must not be empty")
		}
	default:
		return fmt.Errorf("unknown TAG_SINK %q", c.Sink)
	}

	return nil
}
