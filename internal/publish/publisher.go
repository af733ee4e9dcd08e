package publish

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/Privatecoder/seplos-mqtt-remote-rs485/pkg/seplos"
)

const mqttTimeout = 5 * time.Second

// Options configures the MQTT publisher.
type Options struct {
	Host     string
	Port     int
	Username string
	Password string

	// Topic is the root under which availability and per-pack sensor
	// state are published.
	Topic string

	// Discovery settings. When DiscoveryEnabled is set the publisher
	// subscribes to <DiscoveryPrefix>/status and re-announces all
	// entities whenever Home Assistant reports itself online.
	DiscoveryEnabled            bool
	DiscoveryPrefix             string
	InvertDisChargeMeasurements bool
}

// Publisher owns the MQTT connection and the topic layout.
type Publisher struct {
	client    mqtt.Client
	opts      Options
	discovery *DiscoveryConfig
	logger    zerolog.Logger

	mu            sync.Mutex
	packAddresses []int
}

// NewPublisher builds a publisher with a last-will marking the bridge
// offline. Call Connect before publishing.
func NewPublisher(opts Options, logger zerolog.Logger) (*Publisher, error) {
	p := &Publisher{
		opts:   opts,
		logger: logger.With().Str("component", "mqtt").Logger(),
	}

	if opts.DiscoveryEnabled {
		discovery, err := NewDiscoveryConfig(opts.Topic, opts.DiscoveryPrefix, opts.InvertDisChargeMeasurements)
		if err != nil {
			return nil, err
		}
		p.discovery = discovery
	}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", opts.Host, opts.Port)).
		SetClientID(fmt.Sprintf("seplos-mqtt-%d", time.Now().UnixNano()%1000000)).
		SetUsername(opts.Username).
		SetPassword(opts.Password).
		SetKeepAlive(60 * time.Second).
		SetAutoReconnect(true).
		SetWill(p.availabilityTopic(), "offline", 2, false).
		SetOnConnectHandler(p.onConnect)

	p.client = mqtt.NewClient(clientOpts)
	return p, nil
}

// Connect dials the broker and blocks until the session is up.
func (p *Publisher) Connect() error {
	token := p.client.Connect()
	if !token.WaitTimeout(mqttTimeout) {
		return fmt.Errorf("connecting to mqtt broker %s:%d: timeout", p.opts.Host, p.opts.Port)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connecting to mqtt broker %s:%d: %w", p.opts.Host, p.opts.Port, err)
	}
	p.logger.Info().Str("host", p.opts.Host).Int("port", p.opts.Port).Msg("connected to mqtt broker")
	return nil
}

func (p *Publisher) onConnect(client mqtt.Client) {
	if p.discovery == nil {
		return
	}
	statusTopic := p.opts.DiscoveryPrefix + "/status"
	token := client.Subscribe(statusTopic, 0, p.onHAStatus)
	if token.WaitTimeout(mqttTimeout) && token.Error() == nil {
		p.logger.Info().Str("topic", statusTopic).Msg("subscribed for home assistant birth messages")
		return
	}
	p.logger.Error().Err(token.Error()).Str("topic", statusTopic).Msg("subscribing to home assistant status failed")
}

// onHAStatus re-announces every entity after a Home Assistant restart,
// since HA drops non-retained discovery state on reload.
func (p *Publisher) onHAStatus(_ mqtt.Client, message mqtt.Message) {
	if string(message.Payload()) != "online" {
		return
	}
	p.mu.Lock()
	packs := append([]int(nil), p.packAddresses...)
	p.mu.Unlock()

	p.logger.Info().Msg("home assistant online, re-publishing discovery configs")
	if err := p.PublishDiscovery(packs); err != nil {
		p.logger.Error().Err(err).Msg("re-publishing discovery configs failed")
	}
}

// PublishDiscovery announces all entities for the given pack addresses
// and remembers them for later re-announcements.
func (p *Publisher) PublishDiscovery(packAddresses []int) error {
	if p.discovery == nil {
		return nil
	}
	p.mu.Lock()
	p.packAddresses = append([]int(nil), packAddresses...)
	p.mu.Unlock()

	for _, packNo := range packAddresses {
		for _, message := range p.discovery.Messages(packNo) {
			payload, err := json.Marshal(message.Entity)
			if err != nil {
				return fmt.Errorf("encoding discovery config for %s: %w", message.Topic, err)
			}
			if err := p.publish(message.Topic, payload, 1, true); err != nil {
				return err
			}
		}
		p.logger.Debug().Int("pack", packNo).Msg("discovery configs published")
	}
	return nil
}

// PublishSensorData publishes one pack's decoded state to its sensors
// topic.
func (p *Publisher) PublishSensorData(address byte, data *seplos.PackData) error {
	payload, err := BuildSensorPayload(data, time.Now())
	if err != nil {
		return err
	}
	topic := fmt.Sprintf("%s/pack-%d/sensors", p.opts.Topic, address)
	return p.publish(topic, payload, 0, false)
}

// PublishAvailability reports the bridge as online or offline. The
// offline state is retained so consumers see it across restarts.
func (p *Publisher) PublishAvailability(online bool) error {
	state, retain := "online", false
	if !online {
		state, retain = "offline", true
	}
	return p.publish(p.availabilityTopic(), []byte(state), 0, retain)
}

// Close marks the bridge offline and tears the connection down.
func (p *Publisher) Close() {
	if p.client.IsConnected() {
		if err := p.PublishAvailability(false); err != nil {
			p.logger.Error().Err(err).Msg("publishing offline state failed")
		}
		p.client.Disconnect(250)
	}
	p.logger.Info().Msg("mqtt connection closed")
}

func (p *Publisher) availabilityTopic() string {
	return p.opts.Topic + "/availability"
}

func (p *Publisher) publish(topic string, payload []byte, qos byte, retain bool) error {
	token := p.client.Publish(topic, qos, retain, payload)
	if !token.WaitTimeout(mqttTimeout) {
		return fmt.Errorf("publishing to %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}
