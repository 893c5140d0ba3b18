package commands

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// FileConfig is the YAML configuration file shape.
type FileConfig struct {
	// ProxyURL is the secure proxy endpoint; preferred over an API key.
	ProxyURL string `yaml:"proxyURL"`

	// APIKey enables direct provider mode when no proxy is configured.
	APIKey   string `yaml:"apiKey"`
	Provider string `yaml:"provider"`

	Model        string  `yaml:"model"`
	Temperature  float64 `yaml:"temperature"`
	MaxTokens    int     `yaml:"maxTokens"`
	SystemPrompt string  `yaml:"systemPrompt"`
	Instructions string  `yaml:"instructions"`

	Theme       string `yaml:"theme"`
	MaxMessages int    `yaml:"maxMessages"`

	// DataDir is where conversation state persists. Empty keeps state in
	// memory only.
	DataDir string `yaml:"dataDir"`

	Voice VoiceFileConfig `yaml:"voice"`
}

// VoiceFileConfig is the voice section of the configuration file.
type VoiceFileConfig struct {
	Enabled         bool   `yaml:"enabled"`
	SignalURL       string `yaml:"signalURL"`
	Token           string `yaml:"token"`
	TokenEndpoint   string `yaml:"tokenEndpoint"`
	RoomName        string `yaml:"roomName"`
	ParticipantName string `yaml:"participantName"`
}

// LoadConfig reads and parses the YAML configuration file. A missing path
// returns an empty configuration; flags fill in the rest.
func LoadConfig(path string) (*FileConfig, error) {
	if path == "" {
		return &FileConfig{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var c FileConfig
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &c, nil
}
