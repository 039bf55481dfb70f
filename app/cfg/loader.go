package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage and sources
	DBPath     string `long:"db-path" env:"DATABASE_PATH" default:"data/monitor.db" description:"SQLite database file"`
	SourcesDir string `long:"sources-dir" env:"SOURCES_DIR" default:"./channels" description:"Directory containing channel configuration files"`

	// Polling
	PollInterval    int     `long:"poll-interval" env:"POLL_INTERVAL_SECONDS" default:"1800" description:"Seconds between poll cycles"`
	MaxVideoAgeDays int     `long:"max-video-age-days" env:"MAX_VIDEO_AGE_DAYS" default:"3" description:"Skip videos older than this many days (0 disables)"`
	SourcePause     float64 `long:"source-pause" env:"SOURCE_PAUSE_SECONDS" default:"0.5" description:"Pause between channels within a poll, in seconds"`
	FetchTimeout    int     `long:"fetch-timeout" env:"FETCH_TIMEOUT_SECONDS" default:"30" description:"Feed fetch timeout in seconds"`

	// Tier 1 capture
	CaptureMaxAttempts     int     `long:"capture-max-attempts" env:"CAPTURE_MAX_ATTEMPTS" default:"5" description:"Caption fetch attempts before falling through"`
	CaptureBackoffBase     float64 `long:"capture-backoff-base" env:"CAPTURE_BACKOFF_BASE" default:"2" description:"Exponential backoff base in seconds"`
	TranscriptRequestDelay float64 `long:"transcript-request-delay" env:"TRANSCRIPT_REQUEST_DELAY_SECONDS" default:"2" description:"Minimum seconds between caption requests for consecutive videos"`
	TranscriptLanguages    string  `long:"transcript-languages" env:"TRANSCRIPT_LANGUAGES" default:"en" description:"Comma-separated caption language preference"`
	TranscriptMaxChars     int     `long:"transcript-max-chars" env:"TRANSCRIPT_MAX_CHARS" default:"400000" description:"Transcript characters sent for summarization"`

	// Egress identity rotation
	ProxyEnabled     bool   `long:"proxy-enabled" env:"PROXY_ENABLED" description:"Route caption requests through rotating proxies"`
	ProxyList        string `long:"proxy-list" env:"PROXY_LIST" description:"Comma-separated proxy URLs"`
	ProxyDownloadURL string `long:"proxy-download-url" env:"WEBSHARE_DOWNLOAD_URL" description:"URL returning ip:port:user:pass proxy lines"`

	// Tier 2 transcription
	WhisperEnabled bool   `long:"whisper-enabled" env:"WHISPER_ENABLED" description:"Enable audio transcription fallback"`
	WhisperBackend string `long:"whisper-backend" env:"WHISPER_BACKEND" default:"api" choice:"api" choice:"local" description:"Whisper backend"`
	WhisperModel   string `long:"whisper-model" env:"WHISPER_MODEL" default:"whisper-1" description:"Whisper model name"`
	OpenAIAPIKey   string `long:"openai-api-key" env:"OPENAI_API_KEY" description:"OpenAI API key (whisper api backend)"`
	YtDlpPath      string `long:"yt-dlp-path" env:"YT_DLP_PATH" default:"yt-dlp" description:"yt-dlp executable"`
	FFmpegPath     string `long:"ffmpeg-path" env:"FFMPEG_PATH" default:"ffmpeg" description:"ffmpeg executable"`
	WhisperPath    string `long:"whisper-path" env:"WHISPER_PATH" default:"whisper" description:"whisper executable (local backend)"`

	// Generation
	AnthropicAPIKey  string `long:"anthropic-api-key" env:"ANTHROPIC_API_KEY" description:"Anthropic API key"`
	ClaudeModel      string `long:"claude-model" env:"CLAUDE_MODEL" default:"claude-sonnet-4-5-20250929" description:"Claude model used for summaries"`
	SummaryMaxTokens int    `long:"summary-max-tokens" env:"SUMMARY_MAX_TOKENS" default:"1024" description:"Maximum tokens for a generated summary"`

	// Delivery
	OutputBackend   string `long:"output-backend" env:"OUTPUT_BACKEND" default:"trello" description:"Output backend: trello, dashboard or mongo"`
	TrelloAPIKey    string `long:"trello-api-key" env:"TRELLO_API_KEY" description:"Trello API key"`
	TrelloToken     string `long:"trello-token" env:"TRELLO_TOKEN" description:"Trello token"`
	TrelloListID    string `long:"trello-list-id" env:"TRELLO_LIST_ID" description:"Trello list receiving new cards"`
	TrelloLabelIDs  string `long:"trello-label-ids" env:"TRELLO_LABEL_IDS" description:"Comma-separated Trello label IDs"`
	MongoURI        string `long:"mongo-uri" env:"MONGO_URI" description:"MongoDB connection URI"`
	MongoDatabase   string `long:"mongo-database" env:"MONGO_DATABASE" default:"yt_monitor" description:"MongoDB database"`
	MongoCollection string `long:"mongo-collection" env:"MONGO_COLLECTION" default:"summaries" description:"MongoDB collection"`

	// Backfill
	SkipBackfill  bool    `long:"skip-backfill" env:"SKIP_BACKFILL" description:"Skip the startup backfill"`
	BackfillDepth int     `long:"backfill-depth" env:"BACKFILL_DEPTH" default:"3" description:"Recent videos per channel considered by backfill"`
	BackfillDelay float64 `long:"backfill-delay" env:"BACKFILL_DELAY_SECONDS" default:"10" description:"Pause between backfilled videos, in seconds"`

	// Reporting API
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port (empty disables)"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"Mozilla/5.0 (compatible; yt-monitor/1.0)" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

func Load() (*Cfg, error) {
	return LoadArgs(nil)
}

// LoadArgs parses the given arguments (os.Args[1:] when nil) together with the environment.
func LoadArgs(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	var err error
	if args == nil {
		_, err = parser.Parse()
	} else {
		_, err = parser.ParseArgs(args)
	}
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:                 raw.DBPath,
		SourcesDir:             raw.SourcesDir,
		PollInterval:           time.Duration(raw.PollInterval) * time.Second,
		MaxVideoAgeDays:        raw.MaxVideoAgeDays,
		SourcePause:            seconds(raw.SourcePause),
		FetchTimeout:           time.Duration(raw.FetchTimeout) * time.Second,
		CaptureMaxAttempts:     raw.CaptureMaxAttempts,
		CaptureBackoffBase:     raw.CaptureBackoffBase,
		TranscriptRequestDelay: seconds(raw.TranscriptRequestDelay),
		TranscriptLanguages:    splitList(raw.TranscriptLanguages),
		TranscriptMaxChars:     raw.TranscriptMaxChars,
		ProxyEnabled:           raw.ProxyEnabled,
		ProxyList:              splitList(raw.ProxyList),
		ProxyDownloadURL:       raw.ProxyDownloadURL,
		WhisperEnabled:         raw.WhisperEnabled,
		WhisperBackend:         raw.WhisperBackend,
		WhisperModel:           raw.WhisperModel,
		OpenAIAPIKey:           raw.OpenAIAPIKey,
		YtDlpPath:              raw.YtDlpPath,
		FFmpegPath:             raw.FFmpegPath,
		WhisperPath:            raw.WhisperPath,
		AnthropicAPIKey:        raw.AnthropicAPIKey,
		ClaudeModel:            raw.ClaudeModel,
		SummaryMaxTokens:       raw.SummaryMaxTokens,
		OutputBackend:          strings.ToLower(strings.TrimSpace(raw.OutputBackend)),
		TrelloAPIKey:           raw.TrelloAPIKey,
		TrelloToken:            raw.TrelloToken,
		TrelloListID:           raw.TrelloListID,
		TrelloLabelIDs:         splitList(raw.TrelloLabelIDs),
		MongoURI:               raw.MongoURI,
		MongoDatabase:          raw.MongoDatabase,
		MongoCollection:        raw.MongoCollection,
		BackfillEnabled:        !raw.SkipBackfill,
		BackfillDepth:          raw.BackfillDepth,
		BackfillDelay:          seconds(raw.BackfillDelay),
		Port:                   raw.Port,
		APIAccessKey:           raw.APIAccessKey,
		UserAgent:              raw.UserAgent,
		Timezone:               raw.Timezone,
		Debug:                  raw.Debug,
		Version:                GetVersion(),
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	return cfg, nil
}

// Validate reports every missing credential or identifier needed by the
// enabled collaborators. Delivery backend credentials are checked by the
// backend itself.
func (c *Cfg) Validate() error {
	var errs []error

	if c.AnthropicAPIKey == "" {
		errs = append(errs, errors.New("ANTHROPIC_API_KEY is not set"))
	}
	if c.ClaudeModel == "" {
		errs = append(errs, errors.New("CLAUDE_MODEL is empty"))
	}
	if c.ProxyEnabled && len(c.ProxyList) == 0 && c.ProxyDownloadURL == "" {
		errs = append(errs, errors.New("PROXY_ENABLED is set but neither PROXY_LIST nor WEBSHARE_DOWNLOAD_URL is configured"))
	}
	if c.WhisperEnabled && c.WhisperBackend == "api" && c.OpenAIAPIKey == "" {
		errs = append(errs, errors.New("WHISPER_ENABLED with the api backend requires OPENAI_API_KEY"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("poll interval must be positive"))
	}
	if c.CaptureMaxAttempts <= 0 {
		errs = append(errs, errors.New("capture max attempts must be positive"))
	}
	if c.MaxVideoAgeDays < 0 {
		errs = append(errs, errors.New("max video age must be non-negative"))
	}

	return errors.Join(errs...)
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
