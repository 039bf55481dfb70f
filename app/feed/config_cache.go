package feed

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

var channelIDPattern = regexp.MustCompile(`^UC[A-Za-z0-9_-]{22}$`)

var ErrNoChannels = errors.New("no enabled channel configurations")

type ConfigCache struct {
	channelsDir string
	cache       map[string]*Config
	mu          sync.RWMutex
}

func NewConfigCache(channelsDir string) *ConfigCache {
	return &ConfigCache{
		channelsDir: channelsDir,
		cache:       make(map[string]*Config),
	}
}

// Run (re)loads every *.yml file in the channels directory. Files removed
// since the last run are dropped from the cache.
func (cc *ConfigCache) Run() error {
	if _, err := os.Stat(cc.channelsDir); os.IsNotExist(err) {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(cc.channelsDir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	seen := make(map[string]bool, len(files))
	for _, file := range files {
		// Derive channel name from filename (remove .yml extension)
		fileName := filepath.Base(file)
		name := fileName[:len(fileName)-4]

		config, err := cc.loadConfig(name)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}
		seen[name] = true

		slog.Debug("Configuration loaded", "channel", name, "channel_id", config.ChannelID, "enabled", config.IsEnabled())
	}

	cc.mu.Lock()
	for name := range cc.cache {
		if !seen[name] {
			delete(cc.cache, name)
		}
	}
	cc.mu.Unlock()

	return nil
}

func (cc *ConfigCache) loadConfig(name string) (*Config, error) {
	configFile := cc.getConfigFilePath(name)
	channelConfig, err := cc.parseConfig(configFile)
	if err != nil {
		return nil, err
	}

	channelConfig.Name = name

	if err := cc.validateConfig(channelConfig); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configFile, err)
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.cache[channelConfig.Name] = channelConfig

	return channelConfig, nil
}

func (cc *ConfigCache) GetConfigs() map[string]*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	configsCopy := make(map[string]*Config, len(cc.cache))
	for k, v := range cc.cache {
		configsCopy[k] = v
	}
	return configsCopy
}

// GetEnabledConfigs returns enabled channels ordered by name, so every poll
// visits channels in the same order.
func (cc *ConfigCache) GetEnabledConfigs() []*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	enabled := make([]*Config, 0, len(cc.cache))
	for _, v := range cc.cache {
		if v.IsEnabled() {
			enabled = append(enabled, v)
		}
	}
	sort.Slice(enabled, func(i, j int) bool { return enabled[i].Name < enabled[j].Name })
	return enabled
}

// RequireEnabled fails when no enabled channel is loaded. A monitor with
// nothing to watch would otherwise poll nothing forever.
func (cc *ConfigCache) RequireEnabled() error {
	if len(cc.GetEnabledConfigs()) == 0 {
		return fmt.Errorf("%w in %s", ErrNoChannels, cc.channelsDir)
	}
	return nil
}

func (cc *ConfigCache) GetConfigCount() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return len(cc.cache)
}

func (cc *ConfigCache) parseConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var channelConfig Config
	if err := yaml.Unmarshal(data, &channelConfig); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	channelConfig.ChannelID = strings.TrimSpace(channelConfig.ChannelID)
	channelConfig.Title = strings.TrimSpace(channelConfig.Title)

	return &channelConfig, nil
}

func (cc *ConfigCache) validateConfig(channelConfig *Config) error {
	if channelConfig == nil {
		return fmt.Errorf("channelConfig is nil")
	}

	if channelConfig.ChannelID == "" {
		return fmt.Errorf("channel_id is required")
	}
	if !channelIDPattern.MatchString(channelConfig.ChannelID) {
		return fmt.Errorf("channel_id %q does not look like a YouTube channel ID", channelConfig.ChannelID)
	}

	return nil
}

func (cc *ConfigCache) getConfigFilePath(name string) string {
	return filepath.Join(cc.channelsDir, name+".yml")
}
