package api

import (
	"time"

	"github.com/lysyi3m/yt-monitor/app/database"
	"github.com/lysyi3m/yt-monitor/app/feed"
)

type GeneratorInterface interface {
	Run(selfLink string, items []database.Item) (string, error)
}

var _ GeneratorInterface = (*feed.Generator)(nil)

type ConfigCounter interface {
	GetConfigCount() int
}

type Handler struct {
	itemRepo    database.ItemRepository
	sourceRepo  database.SourceRepository
	generator   GeneratorInterface
	configCache ConfigCounter
	backend     string
	version     string
}

type itemSummary struct {
	ID               string     `json:"video_id"`
	ChannelID        string     `json:"channel_id"`
	ChannelName      string     `json:"channel_name"`
	Title            string     `json:"title"`
	URL              string     `json:"url"`
	PublishedAt      *time.Time `json:"published_at"`
	Tier             int        `json:"transcript_tier"`
	Summary          string     `json:"summary"`
	InputTokens      int64      `json:"tokens_input"`
	OutputTokens     int64      `json:"tokens_output"`
	GenerationStatus string     `json:"summary_status"`
	GenerationError  string     `json:"summary_error,omitempty"`
	DeliveryStatus   string     `json:"output_status"`
	DeliveryRef      string     `json:"output_ref,omitempty"`
	DeliveryError    string     `json:"output_error,omitempty"`
	Transcript       *string    `json:"transcript,omitempty"`
}
