package config

import (
	"errors"
	"os"

	"gopkg.in/yaml.v3"
)

type ClientConfig struct {
	StateStreamURL string `yaml:"state_stream_url"`
	// BufferSize is the number of reconstructed states the client queues for the consumer.
	BufferSize uint `yaml:"buffer_size"`
	// MaxHops bounds the route search of the console.
	MaxHops int `yaml:"max_hops"`
}

// LoadConfig reads a configuration file from the given path and unmarshals it
// into a ClientConfig struct.
func LoadConfig(path string) (*ClientConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := ClientConfig{BufferSize: 100, MaxHops: 3}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if cfg.StateStreamURL == "" {
		return nil, errors.New("config: state_stream_url is required")
	}

	return &cfg, nil
}
