package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"wolf-fhs280/internal/heatpump"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

const (
	payloadOnline  = "online"
	payloadOffline = "offline"
	payloadPress   = "PRESS"
	sourceMQTT     = "mqtt"

	commandTimeout = 10 * time.Second
)

// Commander executes commands received on set topics.
type Commander interface {
	WriteText(ctx context.Context, source, field, text string) (heatpump.WriteResult, error)
	SyncClock(ctx context.Context, source string) (heatpump.WriteResult, error)
}

type Publisher struct {
	client          mqtt.Client
	topicPrefix     string
	discoveryPrefix string
	device          Device
	enabled         bool
}

type PublisherConfig struct {
	Broker          string
	ClientID        string
	Username        string
	Password        string
	TopicPrefix     string
	DiscoveryPrefix string
	DeviceName      string
	Enabled         bool
}

func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	if !cfg.Enabled {
		return &Publisher{enabled: false}, nil
	}

	p := &Publisher{
		topicPrefix:     cfg.TopicPrefix,
		discoveryPrefix: cfg.DiscoveryPrefix,
		device:          NewDevice(cfg.TopicPrefix, cfg.DeviceName),
		enabled:         true,
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetOrderMatters(false).
		SetWill(p.availabilityTopic(), payloadOffline, 1, true).
		SetConnectionLostHandler(func(c mqtt.Client, err error) {
			log.Printf("MQTT connection lost: %v", err)
		}).
		SetOnConnectHandler(func(c mqtt.Client) {
			log.Println("MQTT connected")
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	p.client = client
	return p, nil
}

func (p *Publisher) stateTopic(field string) string {
	return fmt.Sprintf("%s/%s/state", p.topicPrefix, field)
}

func (p *Publisher) commandTopic(key string) string {
	return fmt.Sprintf("%s/%s/set", p.topicPrefix, key)
}

func (p *Publisher) availabilityTopic() string {
	return p.topicPrefix + "/availability"
}

func (p *Publisher) statusTopic() string {
	return p.topicPrefix + "/status"
}

func (p *Publisher) errorTopic() string {
	return p.topicPrefix + "/error"
}

func (p *Publisher) publish(topic string, retained bool, payload interface{}) error {
	token := p.client.Publish(topic, 0, retained, payload)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, token.Error())
	}
	return nil
}

// PublishState publishes every field on its own topic and the whole
// snapshot as JSON on the status topic.
func (p *Publisher) PublishState(snap *heatpump.Snapshot) error {
	if !p.enabled || snap == nil {
		return nil
	}

	for name, value := range snap.Values() {
		if err := p.publish(p.stateTopic(name), true, value.String()); err != nil {
			log.Print(err)
		}
	}

	statusJSON, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	return p.publish(p.statusTopic(), true, statusJSON)
}

func (p *Publisher) PublishAvailability(online bool) error {
	if !p.enabled {
		return nil
	}
	payload := payloadOffline
	if online {
		payload = payloadOnline
	}
	return p.publish(p.availabilityTopic(), true, payload)
}

// PublishError reports a failed command.
func (p *Publisher) PublishError(field string, cmdErr error) error {
	if !p.enabled {
		return nil
	}
	payload, err := json.Marshal(map[string]interface{}{
		"field":     field,
		"error":     cmdErr.Error(),
		"timestamp": time.Now().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return p.publish(p.errorTopic(), false, payload)
}

// PublishHomeAssistantDiscovery announces one entity per field.
func (p *Publisher) PublishHomeAssistantDiscovery(entities []heatpump.Entity) error {
	if !p.enabled {
		return nil
	}

	for _, e := range entities {
		payload, err := json.Marshal(p.discoveryPayload(e))
		if err != nil {
			return fmt.Errorf("failed to marshal discovery for %s: %w", e.Key, err)
		}
		if err := p.publish(p.discoveryTopic(e), true, payload); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe routes messages on the command topics of all writable
// entities to cmd.
func (p *Publisher) Subscribe(entities []heatpump.Entity, cmd Commander) error {
	if !p.enabled {
		return nil
	}

	filters := map[string]byte{}
	for _, e := range entities {
		if hasCommand(e.Kind) {
			filters[p.commandTopic(e.Key)] = 1
		}
	}
	if len(filters) == 0 {
		return nil
	}

	token := p.client.SubscribeMultiple(filters, p.commandHandler(cmd))
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("failed to subscribe to command topics: %w", token.Error())
	}
	log.Printf("Subscribed to %d MQTT command topics", len(filters))
	return nil
}

func (p *Publisher) commandHandler(cmd Commander) mqtt.MessageHandler {
	return func(c mqtt.Client, msg mqtt.Message) {
		key, ok := p.parseCommandTopic(msg.Topic())
		if !ok {
			return
		}
		payload := string(msg.Payload())

		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		var err error
		if key == heatpump.ActionSyncClock {
			_, err = cmd.SyncClock(ctx, sourceMQTT)
		} else {
			_, err = cmd.WriteText(ctx, sourceMQTT, key, payload)
		}
		if err != nil {
			log.WithFields(log.Fields{"topic": msg.Topic(), "payload": payload}).WithError(err).Warn("MQTT command failed")
		}
	}
}

// parseCommandTopic extracts the entity key from <prefix>/<key>/set.
func (p *Publisher) parseCommandTopic(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, p.topicPrefix+"/")
	if !ok {
		return "", false
	}
	key, ok := strings.CutSuffix(rest, "/set")
	if !ok || key == "" || strings.Contains(key, "/") {
		return "", false
	}
	return key, true
}

func (p *Publisher) IsConnected() bool {
	if !p.enabled {
		return false
	}
	return p.client.IsConnected()
}

func (p *Publisher) Close() {
	if p.enabled && p.client != nil {
		p.PublishAvailability(false)
		p.client.Disconnect(1000)
	}
}
