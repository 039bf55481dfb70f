package tasks

import (
	"context"

	"github.com/lysyi3m/yt-monitor/app/extract"
	"github.com/lysyi3m/yt-monitor/app/feed"
	"github.com/lysyi3m/yt-monitor/app/summary"
)

// TaskSchedulerInterface is what main needs to run the monitor loop.
//
//	scheduler := NewScheduler(deps, opts)
//	scheduler.Start()
//	defer scheduler.Stop()
type TaskSchedulerInterface interface {
	Start()
	Stop()
}

// SourceProvider yields the configured channels. Run refreshes the set
// from disk before a cycle.
type SourceProvider interface {
	Run() error
	GetConfigs() map[string]*feed.Config
	GetEnabledConfigs() []*feed.Config
}

type FeedFetcher interface {
	Fetch(ctx context.Context, channelID string) ([]feed.Entry, error)
}

type Extractor interface {
	Extract(ctx context.Context, videoID, title, description string) extract.Result
}

type SummaryGenerator interface {
	Generate(ctx context.Context, req summary.Request) (summary.Result, error)
}

// Candidate is a newly discovered video ready to go through the pipeline.
type Candidate struct {
	SourceID   string
	SourceName string
	Entry      feed.Entry
}
