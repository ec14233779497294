// Package mqtt publishes pickup offers to drivers over an MQTT broker and
// listens for their acceptances.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/resqmeals/gateway/core/factory"
	"github.com/resqmeals/gateway/core/fault"
	"github.com/resqmeals/gateway/core/logger"
	"github.com/resqmeals/gateway/core/monitoring"
	"github.com/resqmeals/gateway/core/notify"
	infralog "github.com/resqmeals/gateway/infra/logger"
)

// Channel is the notifier name used in configuration and metrics.
const Channel = "mqtt"

// Acceptance is what a driver app publishes to accept an offer.
type Acceptance struct {
	OfferID    string `json:"offer_id"`
	JobID      string `json:"job_id"`
	DriverID   string `json:"driver_id"`
	DriverName string `json:"driver_name"`
}

// AcceptFunc handles an acceptance received on the accept topic.
type AcceptFunc func(Acceptance) error

// OfferPublisher implements notify.Notifier over MQTT.
type OfferPublisher struct {
	cli    pahoClient
	cfg    Config
	logger logger.Logger

	mu       sync.RWMutex
	onAccept AcceptFunc
}

// NewOfferPublisher connects to the broker. When AcceptTopic is set the
// publisher subscribes to it on every (re)connect.
func NewOfferPublisher(cfg Config) (*OfferPublisher, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	log := infralog.New("mqtt_offers")
	p := &OfferPublisher{cfg: cfg, logger: log}

	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected")
		if cfg.AcceptTopic == "" {
			return
		}
		if token := c.Subscribe(cfg.AcceptTopic, cfg.QoS, p.handleAccept); token.Wait() && token.Error() != nil {
			log.Errorf("subscribe error: %v", token.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, fault.New(fault.ErrTransport, "mqtt connect", token.Error())
	}
	p.cli = c
	return p, nil
}

// OnAccept registers the handler for driver acceptances.
func (p *OfferPublisher) OnAccept(f AcceptFunc) {
	p.mu.Lock()
	p.onAccept = f
	p.mu.Unlock()
}

// Channel implements notify.Notifier.
func (p *OfferPublisher) Channel() string { return Channel }

// Topic returns the offer topic of a driver.
func (p *OfferPublisher) Topic(driverID string) string {
	return fmt.Sprintf("%s/%s/offers", strings.TrimSuffix(p.cfg.TopicPrefix, "/"), driverID)
}

// Notify publishes the offer, retrying with exponential backoff.
func (p *OfferPublisher) Notify(ctx context.Context, offer notify.Offer) error {
	if offer.DriverID == "" {
		return fmt.Errorf("offer without driver: %w", notify.ErrUnreachable)
	}
	payload, err := json.Marshal(offer)
	if err != nil {
		return err
	}
	topic := p.Topic(offer.DriverID)

	var publishErr error
retry:
	for attempt := 0; ; attempt++ {
		token := p.cli.Publish(topic, p.cfg.QoS, false, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			p.logger.Infof("sent offer %s to %s", offer.OfferID, topic)
			return nil
		}
		p.logger.Errorf("publish attempt %d failed: %v", attempt+1, publishErr)
		if attempt >= p.cfg.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			publishErr = ctx.Err()
			break retry
		case <-time.After(p.cfg.backoff() * time.Duration(1<<attempt)):
		}
	}
	monitoring.CaptureException(publishErr, monitoring.Tags("module", "mqtt", "driver_id", offer.DriverID, "offer_id", offer.OfferID))
	return fault.New(fault.ErrTransport, "publish offer to "+topic, publishErr)
}

func (p *OfferPublisher) handleAccept(_ paho.Client, msg paho.Message) {
	var a Acceptance
	if err := json.Unmarshal(msg.Payload(), &a); err != nil {
		p.logger.Errorf("failed to decode acceptance: %v", err)
		return
	}
	if a.JobID == "" || a.DriverID == "" {
		p.logger.Warnf("acceptance without job_id or driver_id on %s", msg.Topic())
		return
	}
	p.mu.RLock()
	f := p.onAccept
	p.mu.RUnlock()
	if f == nil {
		p.logger.Warnf("acceptance for job %s ignored: no handler", a.JobID)
		return
	}
	if err := f(a); err != nil {
		p.logger.Warnf("acceptance for job %s rejected: %v", a.JobID, err)
		return
	}
	p.logger.Infof("driver %s accepted job %s", a.DriverID, a.JobID)
}

// Close disconnects from the broker.
func (p *OfferPublisher) Close() {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
}

func init() {
	_ = notify.Register(Channel, func(conf map[string]any) (notify.Notifier, error) {
		var cfg Config
		if err := factory.Decode(conf, &cfg); err != nil {
			return nil, err
		}
		return NewOfferPublisher(cfg)
	})
}
