package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/lora-comms/loracomms-go/pkg/device"
)

// fileConfig is the optional YAML configuration for lora-chat.
type fileConfig struct {
	Device struct {
		// Path is the transport address to auto-connect on startup.
		Path string `yaml:"path"`
		// Type is "serial", "bluetooth", or "tcp".
		Type string `yaml:"type"`
	} `yaml:"device"`

	Channel struct {
		// Name salts the channel key derivation.
		Name string `yaml:"name"`
		// PSK enables payload encryption when set.
		PSK string `yaml:"psk"`
	} `yaml:"channel"`

	MQTT struct {
		// Broker enables the MQTT gateway when set.
		Broker      string `yaml:"broker"`
		ClientID    string `yaml:"client_id"`
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
		TopicPrefix string `yaml:"topic_prefix"`
	} `yaml:"mqtt"`
}

func loadConfig(path string) (fileConfig, error) {
	var cfg fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

func parseDeviceType(s string) (device.Type, error) {
	switch s {
	case "serial", "":
		return device.TypeSerial, nil
	case "bluetooth", "ble":
		return device.TypeBluetooth, nil
	case "tcp":
		return device.TypeTCP, nil
	default:
		return 0, fmt.Errorf("unknown device type %q", s)
	}
}
