package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/yt-monitor/app/database"
	"github.com/lysyi3m/yt-monitor/app/output"
	"github.com/lysyi3m/yt-monitor/app/summary"
)

// ProcessItemTask takes one discovered video through extraction, summary
// generation and delivery, recording each step on the item.
type ProcessItemTask struct {
	Task
	candidate Candidate
	extractor Extractor
	generator SummaryGenerator
	publisher output.Publisher
	itemRepo  database.ItemRepository
}

func NewProcessItemTask(candidate Candidate, extractor Extractor, generator SummaryGenerator,
	publisher output.Publisher, itemRepo database.ItemRepository) *ProcessItemTask {
	return &ProcessItemTask{
		Task:      NewTask(TaskTypeProcessItem, candidate.Entry.ID),
		candidate: candidate,
		extractor: extractor,
		generator: generator,
		publisher: publisher,
		itemRepo:  itemRepo,
	}
}

func (t *ProcessItemTask) Execute(ctx context.Context) error {
	entry := t.candidate.Entry
	id := entry.ID

	extracted := t.extractor.Extract(ctx, id, entry.Title, entry.Description)
	if err := t.itemRepo.UpdateExtraction(ctx, id, extracted.Tier, extracted.Text); err != nil {
		t.failGeneration(ctx, fmt.Sprintf("Transcript error: %v", err))
		return fmt.Errorf("failed to store transcript: %w", err)
	}

	if err := t.itemRepo.UpdateGeneration(ctx, id, database.GenerationUpdate{Status: database.GenerationProcessing}); err != nil {
		return fmt.Errorf("failed to mark generation processing: %w", err)
	}

	res, err := t.generator.Generate(ctx, summary.Request{
		ItemID:            id,
		SourceName:        t.candidate.SourceName,
		Title:             entry.Title,
		Text:              extracted.Text,
		Tier:              extracted.Tier,
		GeneratedCaptions: extracted.Generated,
	})
	if err != nil {
		t.failGeneration(ctx, err.Error())
		return fmt.Errorf("summary generation failed: %w", err)
	}

	err = t.itemRepo.UpdateGeneration(ctx, id, database.GenerationUpdate{
		Status:       database.GenerationDone,
		Text:         res.Text,
		InputTokens:  res.InputTokens,
		OutputTokens: res.OutputTokens,
	})
	if err != nil {
		return fmt.Errorf("failed to store summary: %w", err)
	}

	item, err := t.readyForDelivery(ctx, id)
	if err != nil {
		return err
	}
	if item == nil {
		slog.Warn("Video not awaiting delivery, not publishing", "item_id", id)
		return nil
	}

	ref, err := t.publisher.Publish(ctx, *item)
	if err != nil {
		if updErr := t.itemRepo.UpdateDelivery(ctx, id, database.DeliveryUpdate{Status: database.DeliveryFailed, Error: err.Error()}); updErr != nil {
			slog.Error("Failed to record delivery failure", "item_id", id, "error", updErr)
		}
		return fmt.Errorf("delivery to %s failed: %w", t.publisher.Name(), err)
	}

	if err := t.itemRepo.UpdateDelivery(ctx, id, database.DeliveryUpdate{Status: database.DeliveryDone, Ref: ref}); err != nil {
		return fmt.Errorf("failed to record delivery: %w", err)
	}

	slog.Info("Task completed",
		"type", t.GetType(),
		"item_id", id,
		"channel", t.candidate.SourceName,
		"duration", t.GetDuration(),
		"tier", extracted.Tier,
		"backend", t.publisher.Name(),
		"ref", ref)

	return nil
}

func (t *ProcessItemTask) readyForDelivery(ctx context.Context, id string) (*database.Item, error) {
	items, err := t.itemRepo.ListReadyForDelivery(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list items awaiting delivery: %w", err)
	}
	for i := range items {
		if items[i].ID == id {
			return &items[i], nil
		}
	}
	return nil, nil
}

func (t *ProcessItemTask) failGeneration(ctx context.Context, reason string) {
	err := t.itemRepo.UpdateGeneration(ctx, t.candidate.Entry.ID, database.GenerationUpdate{
		Status: database.GenerationFailed,
		Error:  reason,
	})
	if err != nil {
		slog.Error("Failed to record generation failure", "item_id", t.candidate.Entry.ID, "error", err)
	}
}
