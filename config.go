package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Device     DeviceConfig     `yaml:"device"`
	Decoder    DecoderConfig    `yaml:"decoder"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Stream     StreamConfig     `yaml:"stream"`
	Prometheus PrometheusConfig `yaml:"prometheus"`
	Logging    LoggingConfig    `yaml:"logging"`
	Firmware   FirmwareConfig   `yaml:"firmware"`
}

// DeviceConfig contains the connection settings for the receiver
type DeviceConfig struct {
	TCP               string   `yaml:"tcp"`                // host:port of a ser2net bridge
	Serial            string   `yaml:"serial"`             // serial device path (e.g. /dev/ttyUSB0)
	Baud              int      `yaml:"baud"`               // serial baud rate (default: 57600)
	ReconnectInterval int      `yaml:"reconnect_interval"` // seconds between reconnect attempts (default: 5)
	InitCommands      []string `yaml:"init_commands"`      // raw commands sent after connect (e.g. XE)
	RFMode            string   `yaml:"rfmode"`             // receiver rfmode gating MN protocols
}

// DecoderConfig contains the decoding pipeline settings
type DecoderConfig struct {
	CatalogFile string `yaml:"catalog_file"` // external protocols.json (empty = embedded catalog)
}

// MQTTConfig contains MQTT broker settings
type MQTTConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Broker    string `yaml:"broker"` // e.g. tcp://localhost:1883
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	BaseTopic string `yaml:"base_topic"` // default: signalduino
	QoS       byte   `yaml:"qos"`
	Retain    bool   `yaml:"retain"`
	IDFile    string `yaml:"id_file"` // persistent client id location
}

// StreamConfig contains the websocket message stream settings
type StreamConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"` // e.g. :8734
}

// PrometheusConfig contains metrics endpoint settings
type PrometheusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"` // e.g. :9734
}

// LoggingConfig contains log verbosity settings
type LoggingConfig struct {
	Level int `yaml:"level"` // 1=error .. 5=trace (default: 3)
}

// FirmwareConfig contains firmware version gate settings
type FirmwareConfig struct {
	MinVersion   string `yaml:"min_version"` // e.g. 3.4.0 (empty = no gate)
	CheckOnStart bool   `yaml:"check_on_start"`
	Hardware     string `yaml:"hardware"` // board type for flash command preparation
}

// LoadConfig reads and validates the YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	config.applyDefaults()

	if config.Device.TCP == "" && config.Device.Serial == "" {
		return nil, fmt.Errorf("config: either device.tcp or device.serial must be set")
	}
	if config.Device.TCP != "" && config.Device.Serial != "" {
		return nil, fmt.Errorf("config: device.tcp and device.serial are mutually exclusive")
	}
	return config, nil
}

// DefaultConfig returns a configuration with all defaults applied,
// used when no config file is given and the device comes from flags.
func DefaultConfig() *Config {
	config := &Config{}
	config.applyDefaults()
	return config
}

func (c *Config) applyDefaults() {
	if c.Device.Baud == 0 {
		c.Device.Baud = 57600
	}
	if c.Device.ReconnectInterval == 0 {
		c.Device.ReconnectInterval = 5
	}
	if c.MQTT.BaseTopic == "" {
		c.MQTT.BaseTopic = "signalduino"
	}
	if c.MQTT.IDFile == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			c.MQTT.IDFile = home + "/.signalduino_id"
		} else {
			c.MQTT.IDFile = ".signalduino_id"
		}
	}
	if c.Logging.Level == 0 {
		c.Logging.Level = 3
	}
	if c.Prometheus.Listen == "" {
		c.Prometheus.Listen = ":9734"
	}
	if c.Stream.Listen == "" {
		c.Stream.Listen = ":8734"
	}
}
