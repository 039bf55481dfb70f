package extract

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/time/rate"

	"github.com/lysyi3m/yt-monitor/app/capture"
	"github.com/lysyi3m/yt-monitor/app/egress"
	"github.com/lysyi3m/yt-monitor/app/transcribe"
)

const (
	TierCaptions      = 1
	TierTranscription = 2
	TierMetadata      = 3

	NoDescription = "(no description available)"
	Untitled      = "(untitled)"
)

type Result struct {
	Text string
	Tier int

	// Generated marks tier-1 text taken from an auto-generated caption track.
	Generated bool
}

type Config struct {
	Languages    []string
	MaxAttempts  int
	BackoffBase  float64
	MaxChars     int
	RequestDelay time.Duration
}

type Pipeline struct {
	cfg        Config
	capturer   capture.Capturer
	pool       *egress.Pool
	limiter    *rate.Limiter
	media      transcribe.MediaFetcher
	transcoder transcribe.Transcoder
	policy     *bluemonday.Policy

	sleep  func(ctx context.Context, d time.Duration)
	jitter func() float64
}

// NewPipeline wires the extraction tiers. A nil pool means direct
// connections; a nil media fetcher or transcoder disables tier 2.
func NewPipeline(cfg Config, capturer capture.Capturer, pool *egress.Pool,
	media transcribe.MediaFetcher, transcoder transcribe.Transcoder) *Pipeline {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if len(cfg.Languages) == 0 {
		cfg.Languages = []string{"en"}
	}

	limit := rate.Inf
	if cfg.RequestDelay > 0 {
		limit = rate.Every(cfg.RequestDelay)
	}

	return &Pipeline{
		cfg:        cfg,
		capturer:   capturer,
		pool:       pool,
		limiter:    rate.NewLimiter(limit, 1),
		media:      media,
		transcoder: transcoder,
		policy:     bluemonday.StrictPolicy(),
		sleep:      sleepCtx,
		jitter:     rand.Float64,
	}
}

type state int

const (
	stateCaptions state = iota
	stateTranscription
	stateMetadata
)

// Extract runs the tiers in order and returns the first non-empty text.
// It never fails: the metadata tier always produces text.
func (p *Pipeline) Extract(ctx context.Context, videoID, title, description string) Result {
	for st := stateCaptions; ; st++ {
		switch st {
		case stateCaptions:
			if text, generated, ok := p.captions(ctx, videoID); ok {
				return Result{Text: text, Tier: TierCaptions, Generated: generated}
			}
		case stateTranscription:
			if text, ok := p.transcription(ctx, videoID); ok {
				return Result{Text: text, Tier: TierTranscription}
			}
		default:
			return Result{Text: p.Metadata(title, description), Tier: TierMetadata}
		}
	}
}

func (p *Pipeline) captions(ctx context.Context, videoID string) (string, bool, bool) {
	if p.capturer == nil {
		return "", false, false
	}

	if err := p.limiter.Wait(ctx); err != nil {
		slog.Warn("Caption rate limiter interrupted", "video_id", videoID, "error", err)
		return "", false, false
	}

	rotation := p.pool.Rotation()
	var lastErr error

	for attempt := 0; attempt < p.cfg.MaxAttempts; attempt++ {
		res := p.capturer.Capture(ctx, videoID, p.cfg.Languages, rotation.Next())

		switch res.Outcome {
		case capture.Success:
			text := p.normalize(strings.Join(res.Fragments, " "))
			if text == "" {
				return "", false, false
			}
			slog.Info("Captions fetched",
				"video_id", videoID,
				"attempt", attempt+1,
				"language", res.Language,
				"generated", res.Generated)
			return text, res.Generated, true

		case capture.PermanentMiss:
			slog.Warn("No captions available", "video_id", videoID, "reason", res.Err)
			return "", false, false
		}

		lastErr = res.Err
		if attempt == p.cfg.MaxAttempts-1 {
			break
		}

		wait := p.Backoff(attempt)
		slog.Warn("Caption attempt failed",
			"video_id", videoID,
			"attempt", attempt+1,
			"max_attempts", p.cfg.MaxAttempts,
			"retry_in", wait,
			"error", res.Err)
		p.sleep(ctx, wait)
	}

	slog.Error("Caption attempts exhausted", "video_id", videoID, "attempts", p.cfg.MaxAttempts, "last_error", lastErr)
	return "", false, false
}

// Backoff returns the wait after failed attempt i (0-based): base^i plus up to one second of jitter.
func (p *Pipeline) Backoff(attempt int) time.Duration {
	seconds := math.Pow(p.cfg.BackoffBase, float64(attempt)) + p.jitter()
	return time.Duration(seconds * float64(time.Second))
}

func (p *Pipeline) transcription(ctx context.Context, videoID string) (string, bool) {
	if p.media == nil || p.transcoder == nil {
		return "", false
	}

	text, err := p.transcribe(ctx, videoID)
	if err != nil {
		slog.Warn("Audio transcription failed", "video_id", videoID, "error", err)
		return "", false
	}

	text = p.normalize(text)
	return text, text != ""
}

func (p *Pipeline) transcribe(ctx context.Context, videoID string) (string, error) {
	dir, err := os.MkdirTemp("", "yt-monitor-"+videoID+"-")
	if err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	audio, err := p.media.FetchAudio(ctx, videoID, dir)
	if err != nil {
		return "", err
	}
	return p.transcoder.Transcribe(ctx, audio)
}

// Metadata builds the fallback text from feed metadata. HTML in the
// description is stripped.
func (p *Pipeline) Metadata(title, description string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		title = Untitled
	}

	description = strings.TrimSpace(html.UnescapeString(p.policy.Sanitize(description)))
	if description == "" {
		description = NoDescription
	}

	return fmt.Sprintf("Title: %s\n\nDescription:\n%s", title, description)
}

// normalize collapses whitespace and truncates to the configured number of characters.
func (p *Pipeline) normalize(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if p.cfg.MaxChars > 0 {
		if runes := []rune(text); len(runes) > p.cfg.MaxChars {
			text = string(runes[:p.cfg.MaxChars])
		}
	}
	return text
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
