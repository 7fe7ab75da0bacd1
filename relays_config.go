package main

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"
)

// RelaysConfig represents the JSON configuration for relay lists
type RelaysConfig struct {
	DefaultRelays []string `json:"defaultRelays"` // general event lookups
	PublishRelays []string `json:"publishRelays"` // the sender's write relays
	ProfileRelays []string `json:"profileRelays"` // kind 0 / kind 10002 lookups
}

var (
	relaysConfig     *RelaysConfig
	relaysConfigOnce sync.Once
)

// GetRelaysConfig returns the current relays configuration (thread-safe)
func GetRelaysConfig() *RelaysConfig {
	relaysConfigOnce.Do(func() {
		relaysConfig = loadRelaysConfigFromFile()
	})
	return relaysConfig
}

func loadRelaysConfigFromFile() *RelaysConfig {
	configPath := os.Getenv("RELAYS_CONFIG")
	if configPath == "" {
		configPath = "config/relays.json"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Debug("relays config not found, using defaults", "path", configPath)
		} else {
			slog.Warn("could not read relays config, using defaults", "path", configPath, "error", err)
		}
		return getDefaultRelaysConfig()
	}

	var config RelaysConfig
	if err := json.Unmarshal(data, &config); err != nil {
		slog.Error("invalid JSON in relays config, using defaults", "path", configPath, "error", err)
		return getDefaultRelaysConfig()
	}

	slog.Info("loaded relays configuration",
		"path", configPath,
		"default", len(config.DefaultRelays),
		"publish", len(config.PublishRelays),
		"profile", len(config.ProfileRelays))

	return &config
}

func getDefaultRelaysConfig() *RelaysConfig {
	return &RelaysConfig{
		DefaultRelays: []string{
			"wss://relay.damus.io",
			"wss://nos.lol",
			"wss://relay.primal.net",
		},
		PublishRelays: []string{
			"wss://relay.damus.io",
			"wss://nos.lol",
		},
		ProfileRelays: []string{
			"wss://purplepag.es",
			"wss://relay.damus.io",
			"wss://nos.lol",
		},
	}
}
