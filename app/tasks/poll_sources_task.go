package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/yt-monitor/app/database"
	"github.com/lysyi3m/yt-monitor/app/feed"
)

// PollSourcesTask fetches every enabled channel feed once and stores newly
// discovered videos. Videos past the age limit are recorded as skipped so
// they are never offered again.
type PollSourcesTask struct {
	Task
	sources    SourceProvider
	fetcher    FeedFetcher
	sourceRepo database.SourceRepository
	itemRepo   database.ItemRepository
	maxAge     time.Duration
	pause      time.Duration
	now        func() time.Time

	Candidates []Candidate
}

func NewPollSourcesTask(sources SourceProvider, fetcher FeedFetcher, sourceRepo database.SourceRepository,
	itemRepo database.ItemRepository, maxAgeDays int, pause time.Duration) *PollSourcesTask {
	return &PollSourcesTask{
		Task:       NewTask(TaskTypePollSources, ""),
		sources:    sources,
		fetcher:    fetcher,
		sourceRepo: sourceRepo,
		itemRepo:   itemRepo,
		maxAge:     time.Duration(maxAgeDays) * 24 * time.Hour,
		pause:      pause,
		now:        time.Now,
	}
}

func (t *PollSourcesTask) Execute(ctx context.Context) error {
	configs := t.sources.GetEnabledConfigs()
	if len(configs) == 0 {
		slog.Debug("No enabled channels configured")
		return nil
	}

	// In-flight fetches and writes finish even when shutdown is requested.
	work := context.WithoutCancel(ctx)

	var (
		fetchErrors int
		skipped     int
		polled      int
	)

	for i, c := range configs {
		if ctx.Err() != nil {
			slog.Info("Shutdown requested, stopping poll", "polled", polled, "remaining", len(configs)-i)
			break
		}

		if i > 0 {
			sleepCtx(ctx, t.pause)
		}

		n, err := t.pollSource(work, c)
		polled++
		if err != nil {
			fetchErrors++
			slog.Warn("Failed to poll channel", "channel", c.Name, "channel_id", c.ChannelID, "error", err)
			if incErr := t.sourceRepo.IncrementSourceError(work, c.ChannelID); incErr != nil {
				slog.Error("Failed to record channel error", "channel_id", c.ChannelID, "error", incErr)
			}
			continue
		}
		skipped += n

		if err := t.sourceRepo.MarkSourceChecked(work, c.ChannelID); err != nil {
			slog.Error("Failed to mark channel checked", "channel_id", c.ChannelID, "error", err)
		}
	}

	slog.Info("Task completed",
		"type", t.GetType(),
		"duration", t.GetDuration(),
		"channels", polled,
		"errors", fetchErrors,
		"too_old", skipped,
		"new", len(t.Candidates))

	return nil
}

// pollSource returns the number of entries skipped for age.
func (t *PollSourcesTask) pollSource(ctx context.Context, c *feed.Config) (int, error) {
	entries, err := t.fetcher.Fetch(ctx, c.ChannelID)
	if err != nil {
		var fetchErr *feed.FetchError
		if errors.As(err, &fetchErr) {
			return 0, err
		}
		return 0, fmt.Errorf("unusable feed: %w", err)
	}

	name := c.DisplayName()
	skipped := 0

	for _, entry := range entries {
		known, err := t.itemRepo.IsKnown(ctx, entry.ID)
		if err != nil {
			return skipped, err
		}
		if known {
			continue
		}

		item := database.Item{
			ID:          entry.ID,
			SourceID:    c.ChannelID,
			SourceName:  name,
			Title:       entry.Title,
			PublishedAt: entry.PublishedAt,
		}

		if t.tooOld(entry.PublishedAt) {
			item.GenerationStatus = database.GenerationSkipped
			if _, err := t.itemRepo.InsertIfAbsent(ctx, item); err != nil {
				return skipped, err
			}
			skipped++
			slog.Debug("Video too old, skipped", "item_id", entry.ID, "published_at", entry.PublishedAt)
			continue
		}

		inserted, err := t.itemRepo.InsertIfAbsent(ctx, item)
		if err != nil {
			return skipped, err
		}
		if inserted {
			t.Candidates = append(t.Candidates, Candidate{SourceID: c.ChannelID, SourceName: name, Entry: entry})
			slog.Info("New video discovered", "item_id", entry.ID, "channel", name, "title", entry.Title)
		}
	}

	return skipped, nil
}

// tooOld reports whether a video falls outside the age window. A video with
// unknown publish time is never too old.
func (t *PollSourcesTask) tooOld(published *time.Time) bool {
	if t.maxAge <= 0 || published == nil {
		return false
	}
	return t.now().Sub(*published) > t.maxAge
}
