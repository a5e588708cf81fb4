package delivery

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"codeberg.org/mutker/vitalsim/internal/errors"
	"codeberg.org/mutker/vitalsim/internal/generator"
	"codeberg.org/mutker/vitalsim/internal/logger"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const disconnectQuiesce = 250 // ms

type mqttClient struct {
	client  mqtt.Client
	prefix  string
	qos     byte
	timeout time.Duration
	log     logger.Logger
	mu      sync.RWMutex
	token   string
}

type assignMessage struct {
	DeviceID  string `json:"device_id"`
	PatientID string `json:"patient_id"`
	Notes     string `json:"notes,omitempty"`
	Token     string `json:"token"`
}

// NewMQTTClient returns a Client publishing payloads to the broker. The
// connection is established by TestConnection.
func NewMQTTClient(cfg Config, log logger.Logger) Client {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(cfg.Timeout)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	})

	return newMQTTClient(mqtt.NewClient(opts), cfg, log)
}

func newMQTTClient(client mqtt.Client, cfg Config, log logger.Logger) *mqttClient {
	prefix := cfg.TopicPrefix
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &mqttClient{
		client:  client,
		prefix:  prefix,
		qos:     cfg.QoS,
		timeout: timeout,
		log:     log,
	}
}

func (c *mqttClient) topic(deviceID, kind string) string {
	return c.prefix + "/" + deviceID + "/" + kind
}

func (c *mqttClient) SetAuthToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *mqttClient) authToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *mqttClient) SendData(ctx context.Context, payload *generator.Payload) Result {
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{Err: errors.New().Wrap(ErrEncodePayload, err)}
	}

	return c.publish(ctx, c.topic(payload.DeviceID, "vitals"), body)
}

func (c *mqttClient) TestConnection(ctx context.Context) bool {
	if c.client.IsConnected() {
		return true
	}

	if err := c.wait(ctx, c.client.Connect()); err != nil {
		c.log.Debug().Err(err).Msg("MQTT connect failed")
		return false
	}

	return c.client.IsConnected()
}

func (c *mqttClient) AssignDevice(ctx context.Context, deviceID, patientID, notes string) Result {
	token := c.authToken()
	if token == "" {
		return Result{Err: errors.New().New(ErrAuthenticationRequired)}
	}

	body, err := json.Marshal(assignMessage{
		DeviceID:  deviceID,
		PatientID: patientID,
		Notes:     notes,
		Token:     token,
	})
	if err != nil {
		return Result{Err: errors.New().Wrap(ErrEncodePayload, err)}
	}

	return c.publish(ctx, c.topic(deviceID, "assign"), body)
}

func (c *mqttClient) Close() error {
	if c.client.IsConnected() {
		c.client.Disconnect(disconnectQuiesce)
	}
	return nil
}

func (c *mqttClient) publish(ctx context.Context, topic string, body []byte) Result {
	if !c.client.IsConnected() {
		return Result{Err: errors.New().WithData(ErrNotConnected, topic)}
	}

	if err := c.wait(ctx, c.client.Publish(topic, c.qos, false, body)); err != nil {
		return Result{Err: err}
	}

	return Result{Success: true}
}

// wait blocks until the token completes, the client timeout elapses or ctx
// is done.
func (c *mqttClient) wait(ctx context.Context, token mqtt.Token) error {
	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return errors.New().New(errors.ErrTimeout)
	case <-ctx.Done():
		return errors.New().Wrap(errors.ErrTimeout, ctx.Err())
	}
}
