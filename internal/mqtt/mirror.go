//go:build !no_mqtt

// Package mqtt mirrors registry state to an MQTT broker with Home Assistant
// discovery. It only publishes; no command topics are subscribed.
package mqtt

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"pidom/internal/events"
	"pidom/internal/registry"
)

// Config holds MQTT mirror configuration.
type Config struct {
	Broker          string
	Username        string
	Password        string
	ClientID        string
	TopicPrefix     string
	DiscoveryPrefix string
	Timeout         time.Duration
}

// Source is the registry view the mirror seeds itself from in Start.
type Source interface {
	Devices() []string
	Device(name string) (registry.Device, error)
}

// client is the subset of pahomqtt.Client used by Mirror.
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
	Disconnect(quiesce uint)
}

type deviceState struct {
	id uint32
	on bool
}

// Mirror publishes device state changes from the event bus.
//
// paho runs the connect handler on its own goroutine, so the mirror keeps
// its own copy of device state instead of reading the registry there.
type Mirror struct {
	client          client
	src             Source
	prefix          string
	discoveryPrefix string
	timeout         time.Duration
	logger          *slog.Logger
	sub             *events.Subscription

	mu      sync.Mutex
	devices map[string]deviceState
}

func applyDefaults(cfg *Config) {
	if cfg.ClientID == "" {
		cfg.ClientID = "pidom"
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "pidom"
	}
	if cfg.DiscoveryPrefix == "" {
		cfg.DiscoveryPrefix = "homeassistant"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
}

func newMirror(c client, src Source, cfg Config, logger *slog.Logger) *Mirror {
	applyDefaults(&cfg)
	return &Mirror{
		client:          c,
		src:             src,
		prefix:          cfg.TopicPrefix,
		discoveryPrefix: cfg.DiscoveryPrefix,
		timeout:         cfg.Timeout,
		logger:          logger.With("component", "mqtt"),
		devices:         make(map[string]deviceState),
	}
}

// NewMirror connects to the broker. On every (re)connect the bridge state
// and all devices are republished.
func NewMirror(src Source, cfg Config, logger *slog.Logger) (*Mirror, error) {
	applyDefaults(&cfg)
	m := newMirror(nil, src, cfg, logger)

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(availabilityTopic(cfg.TopicPrefix), "offline", 1, true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			m.logger.Debug("MQTT connected")
			m.PublishAll()
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			m.logger.Warn("MQTT connection lost", "err", err)
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	c := pahomqtt.NewClient(opts)
	m.client = c
	token := c.Connect()
	if !token.WaitTimeout(cfg.Timeout) {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return m, nil
}

// Start copies the current devices from the source, subscribes the mirror
// to every event on bus and publishes everything. It must run on the
// goroutine that owns the registry.
func (m *Mirror) Start(bus *events.Bus) {
	devices := make(map[string]deviceState)
	for _, name := range m.src.Devices() {
		d, err := m.src.Device(name)
		if err != nil {
			continue
		}
		devices[d.Name] = deviceState{id: d.ID, on: d.On}
	}
	m.mu.Lock()
	m.devices = devices
	m.mu.Unlock()

	m.sub = bus.SubscribeAll(m.handleEvent)
	m.PublishAll()
	m.logger.Debug("MQTT mirror started", "prefix", m.prefix, "devices", len(devices))
}

// Stop publishes the offline state, unsubscribes and disconnects.
func (m *Mirror) Stop() {
	m.sub.Unsubscribe()
	m.publish(availabilityTopic(m.prefix), []byte("offline"), true)
	m.client.Disconnect(250)
	m.logger.Debug("MQTT mirror stopped")
}

// PublishAll announces the bridge and every known device with its last
// state. It is safe to call from any goroutine.
func (m *Mirror) PublishAll() {
	m.mu.Lock()
	devices := maps.Clone(m.devices)
	m.mu.Unlock()

	m.publish(availabilityTopic(m.prefix), []byte("online"), true)
	for _, name := range slices.Sorted(maps.Keys(devices)) {
		d := devices[name]
		m.publishDevice(name, d.id, d.on)
	}
}

// handleEvent never fails: broker problems are logged so that a missing
// broker cannot block switching.
func (m *Mirror) handleEvent(ev events.Event) error {
	m.track(ev)
	switch ev.Type {
	case events.DeviceUpdated:
		m.publish(stateTopic(m.prefix, ev.Name), statePayload(ev.On), true)
	case events.DeviceSynchronized:
		m.publishDevice(ev.Name, ev.ID, false)
	case events.DeviceRenamed:
		m.publish(stateTopic(m.prefix, ev.OldName), nil, true)
		m.publishDevice(ev.Name, ev.ID, ev.On)
	case events.DeviceDeleted:
		m.publish(stateTopic(m.prefix, ev.Name), nil, true)
		msg := buildRemoveDiscovery(m.discoveryPrefix, ev.ID)
		m.publish(msg.Topic, msg.Payload, true)
	}
	return nil
}

func (m *Mirror) track(ev events.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch ev.Type {
	case events.DeviceUpdated:
		m.devices[ev.Name] = deviceState{id: ev.ID, on: ev.On}
	case events.DeviceSynchronized:
		m.devices[ev.Name] = deviceState{id: ev.ID}
	case events.DeviceRenamed:
		delete(m.devices, ev.OldName)
		m.devices[ev.Name] = deviceState{id: ev.ID, on: ev.On}
	case events.DeviceDeleted:
		delete(m.devices, ev.Name)
	}
}

func (m *Mirror) publishDevice(name string, id uint32, on bool) {
	msg := buildDiscovery(m.prefix, m.discoveryPrefix, name, id)
	m.publish(msg.Topic, msg.Payload, true)
	m.publish(stateTopic(m.prefix, name), statePayload(on), true)
}

// publish waits for the broker acknowledgement, since the process usually
// exits right after a command.
func (m *Mirror) publish(topic string, payload []byte, retained bool) {
	token := m.client.Publish(topic, 1, retained, payload)
	if !token.WaitTimeout(m.timeout) {
		m.logger.Warn("MQTT publish timeout", "topic", topic)
	} else if err := token.Error(); err != nil {
		m.logger.Warn("MQTT publish error", "topic", topic, "err", err)
	}
}
