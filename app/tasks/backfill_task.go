package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lysyi3m/yt-monitor/app/database"
	"github.com/lysyi3m/yt-monitor/app/feed"
	"github.com/lysyi3m/yt-monitor/app/output"
	"github.com/lysyi3m/yt-monitor/app/summary"
)

// BackfillTask publishes the most recent videos of every enabled channel
// that neither the database nor the output backend knows about. It runs
// once at startup.
type BackfillTask struct {
	Task
	sources   SourceProvider
	fetcher   FeedFetcher
	extractor Extractor
	generator SummaryGenerator
	publisher output.Publisher
	itemRepo  database.ItemRepository
	depth     int
	delay     time.Duration
	sleep     func(ctx context.Context, d time.Duration)
}

func NewBackfillTask(sources SourceProvider, fetcher FeedFetcher, extractor Extractor, generator SummaryGenerator,
	publisher output.Publisher, itemRepo database.ItemRepository, depth int, delay time.Duration) *BackfillTask {
	return &BackfillTask{
		Task:      NewTask(TaskTypeBackfill, ""),
		sources:   sources,
		fetcher:   fetcher,
		extractor: extractor,
		generator: generator,
		publisher: publisher,
		itemRepo:  itemRepo,
		depth:     depth,
		delay:     delay,
		sleep:     sleepCtx,
	}
}

func (t *BackfillTask) Execute(ctx context.Context) error {
	work := context.WithoutCancel(ctx)

	seen, err := t.dedupSet(work)
	if err != nil {
		return err
	}

	var (
		created int
		skipped int
		failed  int
	)

	for _, c := range t.sources.GetEnabledConfigs() {
		if ctx.Err() != nil {
			slog.Info("Shutdown requested, stopping backfill")
			break
		}

		entries, err := t.fetcher.Fetch(work, c.ChannelID)
		if err != nil {
			slog.Warn("Backfill could not fetch channel", "channel", c.Name, "error", err)
			continue
		}

		for _, cand := range t.recent(c.ChannelID, c.DisplayName(), entries) {
			if ctx.Err() != nil {
				break
			}

			id := cand.Entry.ID
			if seen[id] {
				skipped++
				slog.Debug("Backfill skipping known video", "item_id", id)
				continue
			}
			seen[id] = true

			if created+failed > 0 {
				t.sleep(ctx, t.delay)
			}

			if err := t.process(work, cand); err != nil {
				failed++
				slog.Error("Backfill failed for video", "item_id", id, "channel", cand.SourceName, "error", err)
				continue
			}
			created++
		}
	}

	slog.Info("Task completed",
		"type", t.GetType(),
		"duration", t.GetDuration(),
		"created", created,
		"skipped", skipped,
		"errors", failed)

	return nil
}

// dedupSet is the union of ids in the database and ids the output backend
// already holds. Both sides are read concurrently.
func (t *BackfillTask) dedupSet(ctx context.Context) (map[string]bool, error) {
	var (
		stored []string
		remote map[string]bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ids, err := t.itemRepo.ListAllItemIDs(gctx)
		if err != nil {
			return fmt.Errorf("failed to list stored videos: %w", err)
		}
		stored = ids
		return nil
	})
	g.Go(func() error {
		remote = output.ExistingIDs(gctx, t.publisher)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(stored)+len(remote))
	for id := range remote {
		seen[id] = true
	}
	for _, id := range stored {
		seen[id] = true
	}

	slog.Info("Backfill dedup set built", "stored", len(stored), "backend", len(remote), "total", len(seen))
	return seen, nil
}

// recent returns up to depth entries, newest first.
func (t *BackfillTask) recent(channelID, name string, entries []feed.Entry) []Candidate {
	sorted := make([]feed.Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].PublishedAt, sorted[j].PublishedAt
		if a == nil || b == nil {
			return a != nil
		}
		return a.After(*b)
	})

	if t.depth > 0 && len(sorted) > t.depth {
		sorted = sorted[:t.depth]
	}

	out := make([]Candidate, 0, len(sorted))
	for _, e := range sorted {
		out = append(out, Candidate{SourceID: channelID, SourceName: name, Entry: e})
	}
	return out
}

func (t *BackfillTask) process(ctx context.Context, cand Candidate) error {
	entry := cand.Entry
	extracted := t.extractor.Extract(ctx, entry.ID, entry.Title, entry.Description)

	res, err := t.generator.Generate(ctx, summary.Request{
		ItemID:            entry.ID,
		SourceName:        cand.SourceName,
		Title:             entry.Title,
		Text:              extracted.Text,
		Tier:              extracted.Tier,
		GeneratedCaptions: extracted.Generated,
	})
	if err != nil {
		return fmt.Errorf("summary generation failed: %w", err)
	}

	item := database.Item{
		ID:            entry.ID,
		SourceID:      cand.SourceID,
		SourceName:    cand.SourceName,
		Title:         entry.Title,
		PublishedAt:   entry.PublishedAt,
		Tier:          extracted.Tier,
		ExtractedText: extracted.Text,
		GeneratedText: res.Text,
		InputTokens:   res.InputTokens,
		OutputTokens:  res.OutputTokens,
	}

	ref, err := t.publisher.Publish(ctx, item)
	if err != nil {
		return fmt.Errorf("delivery to %s failed: %w", t.publisher.Name(), err)
	}
	item.DeliveryRef = ref

	if _, err := t.itemRepo.InsertDelivered(ctx, item); err != nil {
		return fmt.Errorf("failed to record backfilled video: %w", err)
	}

	slog.Info("Backfilled video", "item_id", entry.ID, "channel", cand.SourceName, "tier", extracted.Tier, "ref", ref)
	return nil
}
