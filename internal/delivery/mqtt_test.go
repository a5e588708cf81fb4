package delivery

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/vitalsim/internal/errors"
	"codeberg.org/mutker/vitalsim/internal/generator"
	"codeberg.org/mutker/vitalsim/internal/logger"
	"codeberg.org/mutker/vitalsim/internal/scenario"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func completedToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { <-t.done; return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

// fakeBroker implements the parts of mqtt.Client the delivery client uses.
type fakeBroker struct {
	mqtt.Client

	mu         sync.Mutex
	connected  bool
	connectErr error
	publishTok mqtt.Token
	messages   []published
}

func (b *fakeBroker) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *fakeBroker) Connect() mqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.connectErr == nil {
		b.connected = true
	}
	return completedToken(b.connectErr)
}

func (b *fakeBroker) Disconnect(uint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = false
}

func (b *fakeBroker) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, published{topic: topic, qos: qos, payload: payload.([]byte)})
	if b.publishTok != nil {
		return b.publishTok
	}
	return completedToken(nil)
}

func newTestMQTT(b *fakeBroker, timeout time.Duration) *mqttClient {
	return newMQTTClient(b, Config{TopicPrefix: "ward3", QoS: 1, Timeout: timeout}, logger.New("mqtt_test"))
}

func mqttPayload() *generator.Payload {
	return generator.NewPayload("7", "SIM-007", time.Unix(0, 0), generator.Reading{scenario.SpO2: 95})
}

func TestMQTTTestConnection(t *testing.T) {
	b := &fakeBroker{connectErr: stderrors.New("refused")}
	c := newTestMQTT(b, time.Second)
	assert.False(t, c.TestConnection(context.Background()))

	b.connectErr = nil
	assert.True(t, c.TestConnection(context.Background()))
}

func TestMQTTSendData(t *testing.T) {
	b := &fakeBroker{connected: true}
	c := newTestMQTT(b, time.Second)

	res := c.SendData(context.Background(), mqttPayload())
	require.True(t, res.Success)
	require.Len(t, b.messages, 1)

	msg := b.messages[0]
	assert.Equal(t, "ward3/SIM-007/vitals", msg.topic)
	assert.Equal(t, byte(1), msg.qos)
	assert.Contains(t, string(msg.payload), `"spo2":95`)
}

func TestMQTTSendDataNotConnected(t *testing.T) {
	c := newTestMQTT(&fakeBroker{}, time.Second)

	res := c.SendData(context.Background(), mqttPayload())
	assert.False(t, res.Success)
	assert.True(t, errors.HasCode(res.Err, ErrNotConnected))
	assert.Equal(t, ErrNetwork, Classify(res))
}

func TestMQTTSendDataTimeout(t *testing.T) {
	b := &fakeBroker{connected: true, publishTok: &fakeToken{done: make(chan struct{})}}
	c := newTestMQTT(b, 20*time.Millisecond)

	res := c.SendData(context.Background(), mqttPayload())
	assert.False(t, res.Success)
	assert.True(t, errors.HasCode(res.Err, errors.ErrTimeout))
	assert.Equal(t, ErrNetwork, Classify(res))
}

func TestMQTTAssignDevice(t *testing.T) {
	b := &fakeBroker{connected: true}
	c := newTestMQTT(b, time.Second)

	res := c.AssignDevice(context.Background(), "SIM-007", "7", "")
	assert.True(t, errors.HasCode(res.Err, ErrAuthenticationRequired))
	assert.Empty(t, b.messages)

	c.SetAuthToken("secret")
	res = c.AssignDevice(context.Background(), "SIM-007", "7", "icu")
	require.True(t, res.Success)
	require.Len(t, b.messages, 1)
	assert.Equal(t, "ward3/SIM-007/assign", b.messages[0].topic)

	var msg assignMessage
	require.NoError(t, json.Unmarshal(b.messages[0].payload, &msg))
	assert.Equal(t, assignMessage{DeviceID: "SIM-007", PatientID: "7", Notes: "icu", Token: "secret"}, msg)
}

func TestMQTTClose(t *testing.T) {
	b := &fakeBroker{connected: true}
	c := newTestMQTT(b, time.Second)

	require.NoError(t, c.Close())
	assert.False(t, b.IsConnected())
}
