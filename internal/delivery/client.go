package delivery

import (
	"strings"
	"time"

	"codeberg.org/mutker/vitalsim/internal/errors"
	"codeberg.org/mutker/vitalsim/internal/logger"
)

const (
	TransportHTTP = "http"
	TransportMQTT = "mqtt"

	DefaultTimeout     = 10 * time.Second
	DefaultTopicPrefix = "vitalsim"
)

type Config struct {
	Transport string
	Timeout   time.Duration

	// HTTP
	Endpoint string

	// MQTT
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
}

// NewClient builds the client for the configured transport.
func NewClient(cfg Config, log logger.Logger) (Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	switch strings.ToLower(cfg.Transport) {
	case TransportHTTP, "":
		return NewHTTPClient(cfg, log), nil
	case TransportMQTT:
		return NewMQTTClient(cfg, log), nil
	default:
		return nil, errors.New().WithData(ErrUnsupportedTransport, cfg.Transport)
	}
}
