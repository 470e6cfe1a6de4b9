// Package emitter mirrors the published state to an MQTT broker.
package emitter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/sfm/tilapia-camera/internal/config"
	"github.com/sfm/tilapia-camera/internal/logger"
	"github.com/sfm/tilapia-camera/internal/snapshot"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
	queueSize      = 16
)

// publisher is the part of mqtt.Client the emitter uses
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Message is the retained payload: the full published state plus what changed
type Message struct {
	Change string `json:"change"`
	snapshot.PublishedState
}

// MarshalJSON writes the state fields with "change" first. The state's own
// encoding is kept, so fields it omits stay omitted.
func (m Message) MarshalJSON() ([]byte, error) {
	state, err := json.Marshal(m.PublishedState)
	if err != nil {
		return nil, err
	}
	change, err := json.Marshal(m.Change)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(state)+len(change)+12)
	out = append(out, `{"change":`...)
	out = append(out, change...)
	if len(state) > 2 {
		out = append(out, ',')
		out = append(out, state[1:]...)
	} else {
		out = append(out, '}')
	}
	return out, nil
}

// MQTTEmitter publishes every state change as a retained message. Changes
// are queued from the store listener and sent from one goroutine.
type MQTTEmitter struct {
	cfg    config.MQTTConfig
	Client mqtt.Client
	pub    publisher

	queue chan Message
	done  chan struct{}
	wg    sync.WaitGroup

	mu        sync.RWMutex
	connected bool
	published uint64
	dropped   uint64
	errors    uint64
	closed    bool
}

// NewMQTTEmitter creates an unconnected emitter
func NewMQTTEmitter(cfg config.MQTTConfig) *MQTTEmitter {
	return &MQTTEmitter{
		cfg:   cfg,
		queue: make(chan Message, queueSize),
		done:  make(chan struct{}),
	}
}

// Connect establishes the broker connection and starts the send loop
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	broker := e.cfg.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}

	log := logger.Default()
	mqtt.ERROR = log.Std(logger.ERROR, "MQTT")
	mqtt.CRITICAL = log.Std(logger.ERROR, "MQTT")
	mqtt.WARN = log.Std(logger.WARN, "MQTT")

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(e.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.setConnected(true)
		logger.Info("MQTT", "Connected to %s as %s", broker, e.cfg.ClientID)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.setConnected(false)
		logger.Warn("MQTT", "Connection lost, will auto-reconnect: %v", err)
	}

	e.Client = mqtt.NewClient(opts)
	logger.Info("MQTT", "Connecting to %s", broker)

	token := e.Client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("mqtt connect: %w", ctx.Err())
	case <-time.After(connectTimeout):
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	e.setConnected(true)
	e.start(e.Client)
	return nil
}

func (e *MQTTEmitter) start(p publisher) {
	e.pub = p
	e.wg.Add(1)
	go e.run()
}

// Listener returns a store listener that enqueues without blocking
func (e *MQTTEmitter) Listener() snapshot.Listener {
	return func(state snapshot.PublishedState, change snapshot.Change) {
		e.Enqueue(Message{Change: change.String(), PublishedState: state})
	}
}

// Enqueue queues msg, dropping it when the queue is full
func (e *MQTTEmitter) Enqueue(msg Message) bool {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return false
	}
	select {
	case e.queue <- msg:
		return true
	default:
		e.mu.Lock()
		e.dropped++
		e.mu.Unlock()
		logger.Debug("MQTT", "Queue full, dropped %s message", msg.Change)
		return false
	}
}

func (e *MQTTEmitter) run() {
	defer e.wg.Done()
	for {
		select {
		case <-e.done:
			return
		case msg := <-e.queue:
			if err := e.publish(msg); err != nil {
				logger.Warn("MQTT", "Publish failed: %v", err)
			}
		}
	}
}

func (e *MQTTEmitter) publish(msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		e.countError()
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	token := e.pub.Publish(e.cfg.Topic, e.cfg.QoS, true, payload)
	if !token.WaitTimeout(publishTimeout) {
		e.countError()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("publish failed: %w", err)
	}

	e.mu.Lock()
	e.published++
	e.mu.Unlock()
	logger.Debug("MQTT", "Published %s to %s (%d bytes)", msg.Change, e.cfg.Topic, len(payload))
	return nil
}

// Close stops the send loop and disconnects
func (e *MQTTEmitter) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	close(e.done)
	e.wg.Wait()

	if e.Client != nil && e.Client.IsConnected() {
		e.Client.Disconnect(250)
		logger.Info("MQTT", "Disconnected")
	}
	e.setConnected(false)
	return nil
}

// Stats contains emitter statistics
type Stats struct {
	Connected bool   `json:"connected"`
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
	Errors    uint64 `json:"errors"`
}

// Stats returns emitter statistics
func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Stats{
		Connected: e.connected,
		Published: e.published,
		Dropped:   e.dropped,
		Errors:    e.errors,
	}
}

func (e *MQTTEmitter) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

func (e *MQTTEmitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}
