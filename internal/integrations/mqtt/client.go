package mqtt

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"classroom-attendance/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// Status-Payloads für das Availability-Topic
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Client ist der MQTT-Client für die Veröffentlichung von Anwesenheitsereignissen
type Client struct {
	config    config.MQTTConfig
	client    mqtt.Client
	mu        sync.RWMutex
	onConnect []func()
}

// NewClient erstellt einen neuen MQTT-Client
func NewClient(cfg config.MQTTConfig) *Client {
	return &Client{
		config: cfg,
	}
}

// StatusTopic ist das Availability-Topic des Dienstes
func (c *Client) StatusTopic() string {
	return c.config.Topic + "/status"
}

// BaseTopic ist das Basis-Topic aller Veröffentlichungen
func (c *Client) BaseTopic() string {
	return c.config.Topic
}

// OnConnect registriert eine Funktion, die nach jedem (Wieder-)Verbinden läuft,
// z.B. um Discovery-Konfigurationen erneut zu senden.
func (c *Client) OnConnect(fn func()) {
	c.mu.Lock()
	c.onConnect = append(c.onConnect, fn)
	c.mu.Unlock()
}

// Start startet den MQTT-Client und verbindet ihn mit dem Broker
func (c *Client) Start() error {
	if !c.config.Enabled {
		log.Info("MQTT client is disabled in configuration")
		return nil
	}

	opts := mqtt.NewClientOptions()

	brokerURL := fmt.Sprintf("tcp://%s:%d", c.config.Broker, c.config.Port)
	opts.AddBroker(brokerURL)
	opts.SetClientID(c.config.ClientID)

	if c.config.Username != "" {
		opts.SetUsername(c.config.Username)
		opts.SetPassword(c.config.Password)
	}

	// Last Will: Broker meldet "offline", wenn die Verbindung abreißt
	opts.SetWill(c.StatusTopic(), StatusOffline, 1, true)

	opts.SetOnConnectHandler(c.onConnectHandler)
	opts.SetConnectionLostHandler(c.connectionLostHandler)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)
	opts.SetWriteTimeout(5 * time.Second)

	client := mqtt.NewClient(opts)
	c.mu.Lock()
	c.client = client
	c.mu.Unlock()

	log.Infof("Connecting to MQTT broker at %s", brokerURL)
	token := client.Connect()
	if !token.WaitTimeout(10*time.Second) {
		// ConnectRetry versucht es im Hintergrund weiter
		log.Warnf("MQTT broker %s not reachable yet, retrying in background", brokerURL)
		return nil
	}
	if token.Error() != nil {
		log.Errorf("Failed to connect to MQTT broker: %v", token.Error())
		return token.Error()
	}

	log.Info("MQTT client connected successfully")
	return nil
}

// Stop meldet den Dienst offline und trennt die Verbindung
func (c *Client) Stop() {
	if !c.IsConnected() {
		return
	}
	if err := c.PublishRetain(c.StatusTopic(), StatusOffline); err != nil {
		log.Warnf("Failed to publish offline status: %v", err)
	}
	log.Info("Disconnecting MQTT client...")
	c.client.Disconnect(250) // 250ms Wartezeit
	log.Info("MQTT client disconnected")
}

// IsConnected prüft, ob der Client verbunden ist
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client != nil && c.client.IsConnected()
}

// onConnectHandler wird aufgerufen, wenn die Verbindung hergestellt wurde
func (c *Client) onConnectHandler(client mqtt.Client) {
	log.Infof("Connected to MQTT broker at %s:%d", c.config.Broker, c.config.Port)

	token := client.Publish(c.StatusTopic(), 1, true, StatusOnline)
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		log.Errorf("Failed to publish online status: %v", token.Error())
	}

	c.mu.RLock()
	hooks := append([]func(){}, c.onConnect...)
	c.mu.RUnlock()
	for _, fn := range hooks {
		go fn()
	}
}

// connectionLostHandler wird aufgerufen, wenn die Verbindung verloren geht
func (c *Client) connectionLostHandler(client mqtt.Client, err error) {
	log.Errorf("MQTT connection lost: %v", err)
}

// PublishMessage veröffentlicht eine Nachricht an ein MQTT-Topic
func (c *Client) PublishMessage(topic string, payload interface{}, retain bool) error {
	if !c.IsConnected() {
		return fmt.Errorf("MQTT client is not connected")
	}

	var payloadBytes []byte
	var err error

	switch p := payload.(type) {
	case string:
		payloadBytes = []byte(p)
	case []byte:
		payloadBytes = p
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, bool:
		payloadBytes = []byte(fmt.Sprintf("%v", p))
	default:
		payloadBytes, err = json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to marshal payload to JSON: %w", err)
		}
	}

	token := c.client.Publish(topic, 1, retain, payloadBytes)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("timeout publishing message to topic %s", topic)
	}
	if token.Error() != nil {
		return fmt.Errorf("failed to publish message to topic %s: %w", topic, token.Error())
	}

	log.Debugf("Published message to topic: %s", topic)
	return nil
}

// PublishRetain veröffentlicht eine Nachricht mit dem Retain-Flag
func (c *Client) PublishRetain(topic string, payload interface{}) error {
	return c.PublishMessage(topic, payload, true)
}

// Publish veröffentlicht eine Nachricht ohne Retain-Flag
func (c *Client) Publish(topic string, payload interface{}) error {
	return c.PublishMessage(topic, payload, false)
}
