package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resqmeals/gateway/core/factory"
	"github.com/resqmeals/gateway/core/fault"
	coremon "github.com/resqmeals/gateway/core/monitoring"
	"github.com/resqmeals/gateway/core/notify"
)

type recordMonitor struct {
	err  error
	tags map[string]string
}

func (r *recordMonitor) CaptureException(err error, tags map[string]string) {
	r.err = err
	r.tags = tags
}
func (r *recordMonitor) Recover()                 {}
func (r *recordMonitor) Flush(time.Duration) bool { return true }

func withMockClient(t *testing.T, mc *mockClient) {
	t.Helper()
	newMQTTClient = func(o *paho.ClientOptions) pahoClient { mc.opts = o; return mc }
	t.Cleanup(func() {
		newMQTTClient = func(opts *paho.ClientOptions) pahoClient { return paho.NewClient(opts) }
	})
}

func testOffer() notify.Offer {
	return notify.Offer{
		OfferID:       "offer-1",
		JobID:         "job_1",
		DriverID:      "driver:b",
		Message:       "Pickup at 3 Kitchen St by 10 PM",
		AcceptLink:    "https://resqmeals.app/accept/demo",
		PickupAddress: "3 Kitchen St",
		Deadline:      "10 PM",
		Timestamp:     time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC),
	}
}

func TestNotifyPublishesToDriverTopic(t *testing.T) {
	mc := &mockClient{}
	withMockClient(t, mc)
	p, err := NewOfferPublisher(Config{Broker: "tcp://localhost:1883", QoS: 1})
	require.NoError(t, err)

	require.NoError(t, p.Notify(context.Background(), testOffer()))
	require.Len(t, mc.published, 1)
	assert.Equal(t, "resqmeals/drivers/driver:b/offers", mc.published[0].topic)
	assert.Equal(t, byte(1), mc.published[0].qos)

	var got map[string]any
	require.NoError(t, json.Unmarshal(mc.published[0].payload, &got))
	assert.Equal(t, "offer-1", got["offer_id"])
	assert.Equal(t, "job_1", got["job_id"])
	assert.Equal(t, "https://resqmeals.app/accept/demo", got["accept_link"])
	assert.Equal(t, "mqtt", p.Channel())
}

func TestNotifyRetries(t *testing.T) {
	mc := &mockClient{publishErrs: []error{fmt.Errorf("net fail"), nil}}
	withMockClient(t, mc)
	p, err := NewOfferPublisher(Config{Broker: "tcp://localhost:1883", MaxRetries: 1, BackoffMS: 1})
	require.NoError(t, err)

	require.NoError(t, p.Notify(context.Background(), testOffer()))
	assert.Len(t, mc.published, 2)
}

func TestNotifyErrorCaptured(t *testing.T) {
	fail := fmt.Errorf("net fail")
	mc := &mockClient{publishErrs: []error{fail, fail}}
	withMockClient(t, mc)
	mon := &recordMonitor{}
	coremon.Init(mon)
	defer coremon.Init(coremon.NopMonitor{})

	p, err := NewOfferPublisher(Config{Broker: "tcp://localhost:1883", MaxRetries: 1, BackoffMS: 1})
	require.NoError(t, err)

	err = p.Notify(context.Background(), testOffer())
	require.ErrorIs(t, err, fault.ErrTransport)
	require.Error(t, mon.err)
	assert.Equal(t, "mqtt", mon.tags["module"])
	assert.Equal(t, "driver:b", mon.tags["driver_id"])
}

func TestNotifyWithoutDriverIsUnreachable(t *testing.T) {
	withMockClient(t, &mockClient{})
	p, err := NewOfferPublisher(Config{Broker: "tcp://localhost:1883"})
	require.NoError(t, err)

	offer := testOffer()
	offer.DriverID = ""
	assert.ErrorIs(t, p.Notify(context.Background(), offer), notify.ErrUnreachable)
}

func TestAcceptTopicDispatchesToHandler(t *testing.T) {
	mc := &mockClient{}
	withMockClient(t, mc)
	p, err := NewOfferPublisher(Config{Broker: "tcp://localhost:1883", AcceptTopic: "resqmeals/drivers/+/accept", QoS: 1})
	require.NoError(t, err)
	require.Len(t, mc.subscribed, 1)
	assert.Equal(t, "resqmeals/drivers/+/accept", mc.subscribed[0].topic)

	var mu sync.Mutex
	var got []Acceptance
	p.OnAccept(func(a Acceptance) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, a)
		if a.JobID == "job_taken" {
			return errors.New("already accepted")
		}
		return nil
	})

	p.handleAccept(nil, mockMessage{p: []byte(`{"job_id":"job_1","driver_id":"driver:b","driver_name":"Ben"}`)})
	p.handleAccept(nil, mockMessage{p: []byte(`{"job_id":"job_taken","driver_id":"driver:c"}`)})
	p.handleAccept(nil, mockMessage{p: []byte(`not json`)})
	p.handleAccept(nil, mockMessage{p: []byte(`{"job_id":"job_2"}`)})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.Equal(t, Acceptance{JobID: "job_1", DriverID: "driver:b", DriverName: "Ben"}, got[0])
}

func TestFactoryRegistersMQTT(t *testing.T) {
	withMockClient(t, &mockClient{})
	multi, err := notify.New([]factory.ModuleConfig{{Type: "mqtt", Conf: map[string]any{"broker": "tcp://localhost:1883", "topic_prefix": "fleet"}}})
	require.NoError(t, err)
	require.Len(t, multi, 1)
	p, ok := multi[0].(*OfferPublisher)
	require.True(t, ok)
	assert.Equal(t, "fleet/d1/offers", p.Topic("d1"))
}

// mockClient implements pahoClient and paho.Client for tests
type mockClient struct {
	opts       *paho.ClientOptions
	subscribed []struct {
		topic string
		qos   byte
	}
	published []struct {
		topic   string
		qos     byte
		payload []byte
	}
	publishErrs []error
}

func (m *mockClient) IsConnected() bool { return true }
func (m *mockClient) Connect() paho.Token {
	if m.opts != nil && m.opts.OnConnect != nil {
		m.opts.OnConnect(m)
	}
	return &dummyToken{}
}
func (m *mockClient) Disconnect(uint) {}
func (m *mockClient) Publish(topic string, qos byte, _ bool, payload interface{}) paho.Token {
	b, _ := payload.([]byte)
	m.published = append(m.published, struct {
		topic   string
		qos     byte
		payload []byte
	}{topic, qos, b})
	if len(m.publishErrs) > 0 {
		err := m.publishErrs[0]
		m.publishErrs = m.publishErrs[1:]
		return &dummyToken{err: err}
	}
	return &dummyToken{}
}
func (m *mockClient) Subscribe(topic string, qos byte, _ paho.MessageHandler) paho.Token {
	m.subscribed = append(m.subscribed, struct {
		topic string
		qos   byte
	}{topic, qos})
	return &dummyToken{}
}
func (m *mockClient) SubscribeMultiple(map[string]byte, paho.MessageHandler) paho.Token {
	return &dummyToken{}
}
func (m *mockClient) Unsubscribe(...string) paho.Token        { return &dummyToken{} }
func (m *mockClient) AddRoute(string, paho.MessageHandler)    {}
func (m *mockClient) OptionsReader() paho.ClientOptionsReader { return paho.ClientOptionsReader{} }
func (m *mockClient) IsConnectionOpen() bool                  { return true }

type dummyToken struct{ err error }

func (d dummyToken) Wait() bool                     { return true }
func (d dummyToken) WaitTimeout(time.Duration) bool { return true }
func (d dummyToken) Done() <-chan struct{}          { ch := make(chan struct{}); close(ch); return ch }
func (d dummyToken) Error() error                   { return d.err }

type mockMessage struct{ p []byte }

func (m mockMessage) Duplicate() bool   { return false }
func (m mockMessage) Qos() byte         { return 0 }
func (m mockMessage) Retained() bool    { return false }
func (m mockMessage) Topic() string     { return "resqmeals/drivers/driver:b/accept" }
func (m mockMessage) MessageID() uint16 { return 0 }
func (m mockMessage) Payload() []byte   { return m.p }
func (m mockMessage) Ack()              {}
