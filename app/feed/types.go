package feed

import (
	"time"
)

// Feed processing types

type Metadata struct {
	Title     string
	ChannelID string
}

type Entry struct {
	ID          string // YouTube video ID
	Title       string
	Description string
	PublishedAt *time.Time // nil when the feed carries no parseable date
}

// Configuration types

type Config struct {
	Name      string `yaml:"-"` // Derived from filename (without .yml extension)
	ChannelID string `yaml:"channel_id"`
	Title     string `yaml:"title"`
	Enabled   *bool  `yaml:"enabled"` // defaults to true
}

func (c *Config) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// DisplayName is the configured title, falling back to the file name.
func (c *Config) DisplayName() string {
	if c.Title != "" {
		return c.Title
	}
	return c.Name
}
