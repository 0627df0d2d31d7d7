package homeassistant

import (
	"fmt"
	"strings"
	"sync"

	"classroom-attendance/config"
	"classroom-attendance/internal/core/models"

	log "github.com/sirupsen/logrus"
)

// Constants for Home Assistant MQTT Discovery
const (
	// Discovery-Präfix für Home Assistant (Standard ist "homeassistant")
	DefaultDiscoveryPrefix = "homeassistant"

	// Component-Typ für Sensoren
	ComponentSensor = "sensor"

	// Node-ID für den Anwesenheitsmonitor
	NodeID = "classroom_attendance"
)

// MessagePublisher ist der Teil des MQTT-Clients, den Discovery und Publisher brauchen
type MessagePublisher interface {
	PublishMessage(topic string, payload interface{}, retain bool) error
	IsConnected() bool
}

// SensorConfig repräsentiert die MQTT-Discovery-Konfiguration für einen Sensor in Home Assistant
type SensorConfig struct {
	Name                string  `json:"name"`
	UniqueID            string  `json:"unique_id"`
	StateTopic          string  `json:"state_topic"`
	Icon                string  `json:"icon,omitempty"`
	JSONAttributesTopic string  `json:"json_attributes_topic,omitempty"`
	ValueTemplate       string  `json:"value_template,omitempty"`
	AvailabilityTopic   string  `json:"availability_topic,omitempty"`
	PayloadAvailable    string  `json:"payload_available,omitempty"`
	PayloadNotAvailable string  `json:"payload_not_available,omitempty"`
	Device              *Device `json:"device,omitempty"`
}

// Device repräsentiert die Geräteinformationen für Home Assistant
type Device struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	SWVersion    string   `json:"sw_version,omitempty"`
}

// DiscoveryManager verwaltet die Home Assistant MQTT Discovery
type DiscoveryManager struct {
	client     MessagePublisher
	prefix     string
	baseTopic  string
	version    string
	mu         sync.Mutex
	registered map[string]bool // normalisierte Schüler-IDs mit veröffentlichter Konfiguration
}

// NewDiscoveryManager erstellt einen neuen Manager für Home Assistant Discovery
func NewDiscoveryManager(client MessagePublisher, cfg config.MQTTConfig, version string) *DiscoveryManager {
	prefix := cfg.HomeAssistant.DiscoveryPrefix
	if prefix == "" {
		prefix = DefaultDiscoveryPrefix
	}
	return &DiscoveryManager{
		client:     client,
		prefix:     prefix,
		baseTopic:  cfg.Topic,
		version:    version,
		registered: make(map[string]bool),
	}
}

// NormalizeID macht eine ID für MQTT-Topics und unique_ids verwendbar
func NormalizeID(id string) string {
	r := strings.NewReplacer(" ", "_", "/", "_", "+", "_", "#", "_", "-", "_")
	return strings.ToLower(r.Replace(strings.TrimSpace(id)))
}

// StudentStateTopic ist das (retained) Zustands-Topic eines Schülers
func StudentStateTopic(baseTopic, studentID string) string {
	return fmt.Sprintf("%s/students/%s/state", baseTopic, NormalizeID(studentID))
}

func (dm *DiscoveryManager) device() *Device {
	return &Device{
		Identifiers:  []string{NodeID},
		Name:         "Classroom Attendance",
		Manufacturer: "Classroom Attendance Project",
		Model:        "Face Verification Monitor",
		SWVersion:    dm.version,
	}
}

func (dm *DiscoveryManager) configTopic(objectID string) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", dm.prefix, ComponentSensor, NodeID, objectID)
}

// RegisterStudents veröffentlicht Discovery-Konfigurationen für alle Schüler und
// entfernt die Sensoren von Schülern, die nicht mehr eingeschrieben sind.
func (dm *DiscoveryManager) RegisterStudents(students []models.Student) error {
	if !dm.client.IsConnected() {
		return fmt.Errorf("MQTT client is not connected")
	}

	dm.mu.Lock()
	defer dm.mu.Unlock()

	device := dm.device()
	current := make(map[string]bool, len(students))
	var failed int

	for _, student := range students {
		id := NormalizeID(student.ID)
		current[id] = true
		if err := dm.registerStudentSensor(student, id, device); err != nil {
			log.Errorf("Failed to register sensor for student %s: %v", student.ID, err)
			failed++
		}
	}

	// Leere retained Konfiguration entfernt den Sensor in Home Assistant
	for id := range dm.registered {
		if current[id] {
			continue
		}
		log.Infof("Removing Home Assistant sensor for student: %s", id)
		if err := dm.client.PublishMessage(dm.configTopic("attendance_"+id), "", true); err != nil {
			log.Errorf("Failed to remove sensor for student %s: %v", id, err)
			continue
		}
		delete(dm.registered, id)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d sensors could not be registered", failed, len(students))
	}
	return nil
}

// registerStudentSensor erstellt eine Discovery-Konfiguration für einen einzelnen Schüler
func (dm *DiscoveryManager) registerStudentSensor(student models.Student, id string, device *Device) error {
	name := student.Name
	if name == "" {
		name = student.ID
	}
	stateTopic := StudentStateTopic(dm.baseTopic, student.ID)

	sensorConfig := SensorConfig{
		Name:                fmt.Sprintf("Attendance %s", name),
		UniqueID:            fmt.Sprintf("%s_%s", NodeID, id),
		StateTopic:          stateTopic,
		JSONAttributesTopic: stateTopic,
		ValueTemplate:       "{{ value_json.status }}",
		Icon:                "mdi:account-school",
		AvailabilityTopic:   dm.baseTopic + "/status",
		PayloadAvailable:    "online",
		PayloadNotAvailable: "offline",
		Device:              device,
	}

	log.Infof("Registering Home Assistant sensor for student: %s", student.ID)
	if err := dm.client.PublishMessage(dm.configTopic("attendance_"+id), sensorConfig, true); err != nil {
		return fmt.Errorf("failed to publish discovery configuration: %w", err)
	}
	dm.registered[id] = true
	return nil
}

// PublishAvailability veröffentlicht den Online-Status des Monitors
func (dm *DiscoveryManager) PublishAvailability(online bool) error {
	status := "offline"
	if online {
		status = "online"
	}
	return dm.client.PublishMessage(dm.baseTopic+"/status", status, true)
}

// Registered gibt die Anzahl der aktuell registrierten Sensoren zurück
func (dm *DiscoveryManager) Registered() int {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return len(dm.registered)
}
