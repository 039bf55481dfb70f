package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/yt-monitor/app/database"
)

// SyncSourcesTask mirrors the channel configuration files into the sources table.
type SyncSourcesTask struct {
	Task
	sources    SourceProvider
	sourceRepo database.SourceRepository
}

func NewSyncSourcesTask(sources SourceProvider, sourceRepo database.SourceRepository) *SyncSourcesTask {
	return &SyncSourcesTask{
		Task:       NewTask(TaskTypeSyncSources, ""),
		sources:    sources,
		sourceRepo: sourceRepo,
	}
}

func (t *SyncSourcesTask) Execute(ctx context.Context) error {
	if err := t.sources.Run(); err != nil {
		return fmt.Errorf("failed to load channel configurations: %w", err)
	}

	configs := t.sources.GetConfigs()
	errorCount := 0

	for _, c := range configs {
		err := t.sourceRepo.UpsertSource(ctx, c.ChannelID, c.DisplayName())
		if err == nil {
			err = t.sourceRepo.SetSourceEnabled(ctx, c.ChannelID, c.IsEnabled())
		}
		if err != nil {
			slog.Error("Failed to sync channel", "channel", c.Name, "error", err)
			errorCount++
		}
	}

	slog.Debug("Task completed",
		"type", t.GetType(),
		"duration", t.GetDuration(),
		"channels", len(configs),
		"errors", errorCount)

	return nil
}
