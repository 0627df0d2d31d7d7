package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config repräsentiert die Hauptkonfiguration der Anwendung
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Log         LogConfig         `mapstructure:"log"`
	DB          DBConfig          `mapstructure:"db"`
	Monitor     MonitorConfig     `mapstructure:"monitor"`
	Recognition RecognitionConfig `mapstructure:"recognition"`
	MQTT        MQTTConfig        `mapstructure:"mqtt"`
	Email       EmailConfig       `mapstructure:"email"`
	Dispatch    DispatchConfig    `mapstructure:"dispatch"`
	Cleanup     CleanupConfig     `mapstructure:"cleanup"`
	I18n        I18nConfig        `mapstructure:"i18n"`
	Session     SessionConfig     `mapstructure:"session"`
}

// ServerConfig enthält Server-bezogene Einstellungen
type ServerConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	DataDir  string `mapstructure:"data_dir"`
	Timezone string `mapstructure:"timezone"`
}

// LogConfig enthält Log-Einstellungen
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// DBConfig enthält Datenbankeinstellungen
type DBConfig struct {
	File string `mapstructure:"file"` // SQLite-Datei
}

// MonitorConfig enthält die Zeit- und Schwellwerte der Anwesenheitsüberwachung
type MonitorConfig struct {
	Interval        time.Duration `mapstructure:"interval"`         // Abstand zwischen zwei Prüfzyklen
	PollInterval    time.Duration `mapstructure:"poll_interval"`    // Abfrage-Takt der Prüfschleife
	CaptureInterval time.Duration `mapstructure:"capture_interval"` // Pause zwischen zwei Frames
	BufferSize      int           `mapstructure:"buffer_size"`
	StopTimeout     time.Duration `mapstructure:"stop_timeout"`
	AlertTimeout    time.Duration `mapstructure:"alert_timeout"`
	PreviewScale    float64       `mapstructure:"preview_scale"`
	JPEGQuality     int           `mapstructure:"jpeg_quality"`
	Tolerance       float64       `mapstructure:"tolerance"`
	DescriptorSize  int           `mapstructure:"descriptor_size"`
	LoopVideoFiles  bool          `mapstructure:"loop_video_files"`
}

// RecognitionConfig enthält die Einstellungen der Gesichtserkennung
type RecognitionConfig struct {
	ModelsDir   string  `mapstructure:"models_dir"`   // dlib-Modelle für go-face
	CascadeFile string  `mapstructure:"cascade_file"` // Haar-Cascade für den großzügigen Detektor
	CNNEnabled  bool    `mapstructure:"cnn_enabled"`
	Downscale   float64 `mapstructure:"downscale"`
}

// MQTTConfig enthält die Konfiguration für den MQTT-Client
type MQTTConfig struct {
	Enabled       bool                `mapstructure:"enabled"`
	Broker        string              `mapstructure:"broker"`
	Port          int                 `mapstructure:"port"`
	Username      string              `mapstructure:"username"`
	Password      string              `mapstructure:"password"`
	ClientID      string              `mapstructure:"client_id"`
	Topic         string              `mapstructure:"topic"` // Basis-Topic für Ereignisse
	HomeAssistant HomeAssistantConfig `mapstructure:"homeassistant"`
}

// HomeAssistantConfig enthält die Konfiguration für die Home Assistant Integration
type HomeAssistantConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	DiscoveryPrefix string `mapstructure:"discovery_prefix"`
}

// EmailConfig enthält die SMTP-Einstellungen für Benachrichtigungen
type EmailConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	SMTPServer  string `mapstructure:"smtp_server"`
	SMTPPort    int    `mapstructure:"smtp_port"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	SenderEmail string `mapstructure:"sender_email"`
	SenderName  string `mapstructure:"sender_name"`
	Language    string `mapstructure:"language"`
}

// DispatchConfig steuert den Worker-Pool für Benachrichtigungen
type DispatchConfig struct {
	Workers   int `mapstructure:"workers"`
	QueueSize int `mapstructure:"queue_size"`
}

// CleanupConfig enthält Bereinigungseinstellungen
type CleanupConfig struct {
	RetentionDays int           `mapstructure:"retention_days"`
	Interval      time.Duration `mapstructure:"interval"`
}

// I18nConfig enthält die Spracheinstellungen
type I18nConfig struct {
	DefaultLanguage string `mapstructure:"default_language"`
	LocalesDir      string `mapstructure:"locales_dir"` // optional, überschreibt eingebettete Dateien
}

// SessionConfig enthält die Einstellungen für Cookie-Sessions
type SessionConfig struct {
	Secret string `mapstructure:"secret"`
}

// Load lädt die Konfiguration aus Datei, Umgebungsvariablen und Standardwerten
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			log.Warnf("Config file %s does not exist, using defaults", configPath)
		} else {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			log.Infof("Config loaded from %s", configPath)
		}
	}

	// Umgebungsvariablen überlagern die Konfiguration
	v.AutomaticEnv()
	v.SetEnvPrefix("ATTENDANCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Validate()

	if err := ensureDirectories(&cfg); err != nil {
		return nil, fmt.Errorf("failed to create required directories: %w", err)
	}

	return &cfg, nil
}

// setDefaults legt Standardwerte für die Konfiguration fest
func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.data_dir", "/data")
	v.SetDefault("server.timezone", "UTC")

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "/data/logs/attendance.log")

	// DB
	v.SetDefault("db.file", "/data/attendance.db")

	// Überwachung
	v.SetDefault("monitor.interval", 30*time.Second)
	v.SetDefault("monitor.poll_interval", time.Second)
	v.SetDefault("monitor.capture_interval", time.Second/15)
	v.SetDefault("monitor.buffer_size", 5)
	v.SetDefault("monitor.stop_timeout", 3*time.Second)
	v.SetDefault("monitor.alert_timeout", 30*time.Second)
	v.SetDefault("monitor.preview_scale", 0.5)
	v.SetDefault("monitor.jpeg_quality", 80)
	v.SetDefault("monitor.tolerance", 0.5)
	v.SetDefault("monitor.descriptor_size", 128)
	v.SetDefault("monitor.loop_video_files", true)

	// Gesichtserkennung
	v.SetDefault("recognition.models_dir", "/data/models")
	v.SetDefault("recognition.cascade_file", "/data/models/haarcascade_frontalface_default.xml")
	v.SetDefault("recognition.cnn_enabled", true)
	v.SetDefault("recognition.downscale", 0.5)

	// MQTT
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.client_id", "classroom-attendance")
	v.SetDefault("mqtt.topic", "attendance")
	v.SetDefault("mqtt.homeassistant.enabled", false)
	v.SetDefault("mqtt.homeassistant.discovery_prefix", "homeassistant")

	// E-Mail
	v.SetDefault("email.enabled", false)
	v.SetDefault("email.smtp_server", "smtp.gmail.com")
	v.SetDefault("email.smtp_port", 587)
	v.SetDefault("email.sender_name", "Sistema de Monitoramento")
	v.SetDefault("email.language", "pt")

	// Benachrichtigungs-Pool
	v.SetDefault("dispatch.workers", 2)
	v.SetDefault("dispatch.queue_size", 50)

	// Cleanup
	v.SetDefault("cleanup.retention_days", 90)
	v.SetDefault("cleanup.interval", 24*time.Hour)

	// Sprache
	v.SetDefault("i18n.default_language", "pt")

	v.SetDefault("session.secret", "change-me")
}

// Validate bringt die Überwachungswerte in ihre erlaubten Bereiche.
func (c *Config) Validate() {
	m := &c.Monitor
	if m.Interval < 5*time.Second {
		log.Warnf("monitor.interval %s too small, using 5s", m.Interval)
		m.Interval = 5 * time.Second
	}
	if m.Interval > 30*time.Second {
		log.Warnf("monitor.interval %s too large, using 30s", m.Interval)
		m.Interval = 30 * time.Second
	}
	if m.PollInterval <= 0 || m.PollInterval > m.Interval {
		m.PollInterval = time.Second
	}
	if m.CaptureInterval <= 0 {
		m.CaptureInterval = time.Second / 15
	}
	if m.BufferSize < 2 {
		m.BufferSize = 2
	}
	if m.BufferSize > 5 {
		m.BufferSize = 5
	}
	if m.StopTimeout <= 0 {
		m.StopTimeout = 3 * time.Second
	}
	if m.AlertTimeout <= 0 {
		m.AlertTimeout = 30 * time.Second
	}
	if m.PreviewScale <= 0 || m.PreviewScale > 1 {
		m.PreviewScale = 0.5
	}
	if m.JPEGQuality < 1 || m.JPEGQuality > 100 {
		m.JPEGQuality = 80
	}
	if m.Tolerance <= 0 {
		m.Tolerance = 0.5
	}
	if m.DescriptorSize <= 0 {
		m.DescriptorSize = 128
	}

	if c.Recognition.Downscale <= 0 || c.Recognition.Downscale > 1 {
		c.Recognition.Downscale = 0.5
	}
	if c.Dispatch.Workers < 1 {
		c.Dispatch.Workers = 1
	}
	if c.Dispatch.QueueSize < 1 {
		c.Dispatch.QueueSize = 10
	}
	if c.Cleanup.Interval <= 0 {
		c.Cleanup.Interval = 24 * time.Hour
	}
}

// ensureDirectories stellt sicher, dass alle erforderlichen Verzeichnisse existieren
func ensureDirectories(cfg *Config) error {
	if cfg.Server.DataDir != "" {
		if err := os.MkdirAll(cfg.Server.DataDir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	if cfg.Log.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	// Datenbank-Verzeichnis (für SQLite)
	if cfg.DB.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.DB.File), 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	return nil
}
