package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

const (
	connectWait    = 5 * time.Second
	publishTimeout = 5 * time.Second
	bufferSize     = 64
)

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the broker is unreachable are buffered and replayed on reconnect.
type RealPublisher struct {
	client paho.Client
	prefix string
	log    logrus.FieldLogger

	mu        sync.Mutex
	buf       *ringBuffer
	connected bool
	onConn    func(bool)
}

// NewRealPublisher creates a publisher for broker. Topics are derived from
// prefix. onConn, if non-nil, is called whenever the connection state changes.
// An unreachable broker is not an error; the client keeps retrying.
func NewRealPublisher(broker, prefix, clientID string, log logrus.FieldLogger, onConn func(bool)) (*RealPublisher, error) {
	p := &RealPublisher{
		prefix: prefix,
		log:    log.WithField("broker", broker),
		buf:    newRingBuffer(bufferSize),
		onConn: onConn,
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetMaxReconnectInterval(60*time.Second).
		SetKeepAlive(30*time.Second).
		SetWill(SystemTopic(prefix), string(WillPayload()), 1, true)

	opts.SetOnConnectHandler(func(_ paho.Client) {
		p.setConnected(true)
		p.log.Info("mqtt: connected")
		p.flush()
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		p.setConnected(false)
		p.log.WithError(err).Warn("mqtt: connection lost")
	})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(connectWait) {
		p.log.Warn("mqtt: broker not reachable yet, buffering until connected")
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

func (p *RealPublisher) setConnected(c bool) {
	p.mu.Lock()
	p.connected = c
	cb := p.onConn
	p.mu.Unlock()
	if cb != nil {
		cb(c)
	}
}

// PublishPresence sends a presence change, QoS 0, not retained.
func (p *RealPublisher) PublishPresence(event PresenceEvent) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: PresenceTopic(p.prefix), payload: payload})
}

// PublishSystem sends a system lifecycle event, QoS 1.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: SystemTopic(p.prefix), payload: payload, qos: 1, retained: event.Retained})
}

func (p *RealPublisher) publish(msg bufferedMsg) error {
	p.mu.Lock()
	if !p.connected {
		if p.buf.push(msg) {
			p.log.Debug("mqtt: offline buffer full, dropped oldest message")
		}
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s: timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", msg.topic, err)
	}
	return nil
}

// flush replays buffered messages. Runs on the paho connect callback.
func (p *RealPublisher) flush() {
	p.mu.Lock()
	msgs, dropped := p.buf.drain()
	p.mu.Unlock()

	if dropped > 0 {
		p.log.WithField("dropped", dropped).Warn("mqtt: messages lost while offline")
	}
	for _, m := range msgs {
		// Don't block the paho callback goroutine waiting on acks.
		p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	}
	if len(msgs) > 0 {
		p.log.WithField("count", len(msgs)).Info("mqtt: replayed buffered messages")
	}
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}
