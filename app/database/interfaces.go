package database

import (
	"context"
	"errors"
)

var _ ItemRepository = (*ItemStore)(nil)
var _ SourceRepository = (*SourceStore)(nil)

var ErrNotFound = errors.New("record not found")

type SourceRepository interface {
	UpsertSource(ctx context.Context, sourceID, name string) error
	MarkSourceChecked(ctx context.Context, sourceID string) error
	IncrementSourceError(ctx context.Context, sourceID string) error
	SetSourceEnabled(ctx context.Context, sourceID string, enabled bool) error
	GetSource(ctx context.Context, sourceID string) (*Source, error)
	ListSources(ctx context.Context) ([]Source, error)
}

type ItemRepository interface {
	InsertIfAbsent(ctx context.Context, item Item) (bool, error)
	InsertDelivered(ctx context.Context, item Item) (bool, error)
	IsKnown(ctx context.Context, itemID string) (bool, error)
	GetItem(ctx context.Context, itemID string) (*Item, error)

	UpdateExtraction(ctx context.Context, itemID string, tier int, text string) error
	UpdateGeneration(ctx context.Context, itemID string, update GenerationUpdate) error
	UpdateDelivery(ctx context.Context, itemID string, update DeliveryUpdate) error

	ListReadyForGeneration(ctx context.Context) ([]Item, error)
	ListReadyForDelivery(ctx context.Context) ([]Item, error)
	ListRecentDelivered(ctx context.Context, limit int) ([]Item, error)
	ListAllItemIDs(ctx context.Context) ([]string, error)

	GetStats(ctx context.Context) (*Stats, error)
}
