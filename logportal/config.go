package logportal

import (
	"encoding/json"

	"go.uber.org/zap"
)

// Config specifies how to reach the vehicle and where fetched logs are stored.
type Config struct {
	// Link address of the vehicle, serial:<device>, udpin:<host:port> or udpout:<host:port>.
	Link string `json:"link,omitempty"`
	// Baud rate of serial links.
	Baud int `json:"baud,omitempty"`
	// OutputDir receives the committed logs.
	OutputDir string `json:"output_dir,omitempty"`
	// Compress stores logs as .ulg.gz.
	Compress bool `json:"compress,omitempty"`
	// TargetSystem and TargetComponent address the autopilot.
	TargetSystem    uint8 `json:"target_system,omitempty"`
	TargetComponent uint8 `json:"target_component,omitempty"`

	Logger *zap.Logger `json:"-"`
}

var defaultConfig = Config{
	Link:            "udpout:127.0.0.1:14550",
	Baud:            57600,
	OutputDir:       ".",
	TargetSystem:    1,
	TargetComponent: 1,
}

// MergeConfig returns base with every field set in config applied on top of it.
func MergeConfig(base Config, config *Config) Config {
	merged := base
	if config == nil {
		return merged
	}
	b, err := json.Marshal(config)
	if err != nil {
		return merged
	}
	if err := json.Unmarshal(b, &merged); err != nil {
		return base
	}
	if config.Logger != nil {
		merged.Logger = config.Logger
	}
	return merged
}
