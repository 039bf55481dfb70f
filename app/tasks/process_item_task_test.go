package tasks

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/yt-monitor/app/capture"
	"github.com/lysyi3m/yt-monitor/app/database"
	"github.com/lysyi3m/yt-monitor/app/extract"
	"github.com/lysyi3m/yt-monitor/app/feed"
)

// discover inserts the entry the way the poller does and returns its candidate.
func discover(t *testing.T, store testStore, e feed.Entry) Candidate {
	t.Helper()
	_, err := store.items.InsertIfAbsent(context.Background(), database.Item{
		ID: e.ID, SourceID: channelOne, SourceName: "S1", Title: e.Title, PublishedAt: e.PublishedAt,
	})
	require.NoError(t, err)
	return Candidate{SourceID: channelOne, SourceName: "S1", Entry: e}
}

func TestProcessItemHappyPath(t *testing.T) {
	store := newTestStore(t)
	cand := discover(t, store, entry("abc12345678", 0))
	generator := &fakeGenerator{}
	publisher := &fakePublisher{}

	task := NewProcessItemTask(cand, &fakeExtractor{}, generator, publisher, store.items)
	task.Start()
	require.NoError(t, task.Execute(context.Background()))

	item := store.item(t, "abc12345678")
	assert.Equal(t, 1, item.Tier)
	assert.Equal(t, "hello world", item.ExtractedText)
	assert.Equal(t, database.GenerationDone, item.GenerationStatus)
	assert.Equal(t, "summary of abc12345678", item.GeneratedText)
	assert.Equal(t, int64(100), item.InputTokens)
	assert.Equal(t, database.DeliveryDone, item.DeliveryStatus)
	assert.NotEmpty(t, item.DeliveryRef)

	require.Len(t, generator.requests, 1)
	assert.Equal(t, "S1", generator.requests[0].SourceName)
	assert.Equal(t, "hello world", generator.requests[0].Text)

	require.Len(t, publisher.published, 1)
	assert.Equal(t, "summary of abc12345678", publisher.published[0].GeneratedText, "publisher receives the stored record")
}

func TestProcessItemPassesGeneratedCaptions(t *testing.T) {
	store := newTestStore(t)
	cand := discover(t, store, entry("asr00000000", 0))
	generator := &fakeGenerator{}
	extractor := &fakeExtractor{results: map[string]extract.Result{
		"asr00000000": {Text: "uh so today", Tier: extract.TierCaptions, Generated: true},
	}}

	task := NewProcessItemTask(cand, extractor, generator, &fakePublisher{}, store.items)
	task.Start()
	require.NoError(t, task.Execute(context.Background()))

	require.Len(t, generator.requests, 1)
	assert.True(t, generator.requests[0].GeneratedCaptions)
}

type missCapturer struct{}

func (missCapturer) Capture(ctx context.Context, videoID string, languages []string, proxy *url.URL) capture.Result {
	return capture.Missed(errors.New("captions disabled"))
}

func TestProcessItemMetadataFallback(t *testing.T) {
	store := newTestStore(t)
	e := entry("abc12345678", 0)
	e.Title = "T"
	e.Description = ""
	cand := discover(t, store, e)

	pipeline := extract.NewPipeline(extract.Config{MaxAttempts: 5, BackoffBase: 2}, missCapturer{}, nil, nil, nil)
	generator := &fakeGenerator{}

	task := NewProcessItemTask(cand, pipeline, generator, &fakePublisher{}, store.items)
	require.NoError(t, task.Execute(context.Background()))

	item := store.item(t, "abc12345678")
	assert.Equal(t, extract.TierMetadata, item.Tier)
	assert.Contains(t, item.ExtractedText, "T")
	assert.Contains(t, item.ExtractedText, extract.NoDescription)
	assert.Equal(t, extract.TierMetadata, generator.requests[0].Tier)
}

func TestProcessItemGenerationFailure(t *testing.T) {
	store := newTestStore(t)
	cand := discover(t, store, entry("abc12345678", 0))
	publisher := &fakePublisher{}

	task := NewProcessItemTask(cand, &fakeExtractor{}, &fakeGenerator{err: errors.New("overloaded")}, publisher, store.items)
	err := task.Execute(context.Background())
	require.Error(t, err)

	item := store.item(t, "abc12345678")
	assert.Equal(t, database.GenerationFailed, item.GenerationStatus)
	assert.Equal(t, "overloaded", item.GenerationError)
	assert.Equal(t, database.DeliveryPending, item.DeliveryStatus)
	assert.Empty(t, publisher.published, "nothing is published without a summary")
}

func TestProcessItemDeliveryFailure(t *testing.T) {
	store := newTestStore(t)
	cand := discover(t, store, entry("abc12345678", 0))

	task := NewProcessItemTask(cand, &fakeExtractor{}, &fakeGenerator{},
		&fakePublisher{err: errors.New("dial tcp: connection refused")}, store.items)
	require.Error(t, task.Execute(context.Background()))

	item := store.item(t, "abc12345678")
	assert.Equal(t, database.GenerationDone, item.GenerationStatus)
	assert.Equal(t, database.DeliveryFailed, item.DeliveryStatus)
	assert.Equal(t, "dial tcp: connection refused", item.DeliveryError)

	ready, err := store.items.ListReadyForDelivery(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ready, "failed delivery is not offered again")
}

func TestProcessItemExtractionStoreFailure(t *testing.T) {
	store := newTestStore(t)
	// Never inserted, so storing the transcript fails.
	cand := Candidate{SourceID: channelOne, SourceName: "S1", Entry: entry("ghost000000", 0)}
	generator := &fakeGenerator{}

	task := NewProcessItemTask(cand, &fakeExtractor{}, generator, &fakePublisher{}, store.items)
	err := task.Execute(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, database.ErrNotFound)
	assert.Empty(t, generator.requests)
}

func TestProcessItemSkipsDeliveredItem(t *testing.T) {
	store := newTestStore(t)
	e := entry("abc12345678", time.Hour)
	_, err := store.items.InsertDelivered(context.Background(), database.Item{ID: e.ID, SourceID: channelOne, SourceName: "S1", DeliveryRef: "card-1"})
	require.NoError(t, err)

	publisher := &fakePublisher{}
	task := NewProcessItemTask(Candidate{SourceID: channelOne, SourceName: "S1", Entry: e}, &fakeExtractor{}, &fakeGenerator{}, publisher, store.items)
	require.NoError(t, task.Execute(context.Background()))

	assert.Empty(t, publisher.published)
	assert.Equal(t, "card-1", store.item(t, e.ID).DeliveryRef)
}
