package cfg

import "time"

type Cfg struct {
	// Storage and sources
	DBPath     string
	SourcesDir string

	// Polling
	PollInterval    time.Duration
	MaxVideoAgeDays int
	SourcePause     time.Duration
	FetchTimeout    time.Duration

	// Tier 1 capture
	CaptureMaxAttempts     int
	CaptureBackoffBase     float64
	TranscriptRequestDelay time.Duration
	TranscriptLanguages    []string
	TranscriptMaxChars     int

	// Egress identity rotation
	ProxyEnabled     bool
	ProxyList        []string
	ProxyDownloadURL string

	// Tier 2 transcription
	WhisperEnabled bool
	WhisperBackend string
	WhisperModel   string
	OpenAIAPIKey   string
	YtDlpPath      string
	FFmpegPath     string
	WhisperPath    string

	// Generation
	AnthropicAPIKey  string
	ClaudeModel      string
	SummaryMaxTokens int

	// Delivery
	OutputBackend   string
	TrelloAPIKey    string
	TrelloToken     string
	TrelloListID    string
	TrelloLabelIDs  []string
	MongoURI        string
	MongoDatabase   string
	MongoCollection string

	// Backfill
	BackfillEnabled bool
	BackfillDepth   int
	BackfillDelay   time.Duration

	// Reporting API
	Port         string
	APIAccessKey string

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
