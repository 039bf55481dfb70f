package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/yt-monitor/app/database"
	"github.com/lysyi3m/yt-monitor/app/feed"
	"github.com/lysyi3m/yt-monitor/app/output"
)

func newTestBackfill(store testStore, sources *fakeSources, fetcher *fakeFetcher, gen *fakeGenerator, pub output.Publisher, depth int) (*BackfillTask, *[]time.Duration) {
	task := NewBackfillTask(sources, fetcher, &fakeExtractor{}, gen, pub, store.items, depth, 10*time.Second)
	sleeps := &[]time.Duration{}
	task.sleep = func(ctx context.Context, d time.Duration) { *sleeps = append(*sleeps, d) }
	return task, sleeps
}

func TestBackfillDedup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.items.InsertIfAbsent(ctx, database.Item{ID: "stored00000", SourceID: channelOne})
	require.NoError(t, err)

	sources := newFakeSources(channelOne)
	fetcher := &fakeFetcher{entries: map[string][]feed.Entry{channelOne: {
		entry("stored00000", time.Hour),
		entry("remote00000", 2*time.Hour),
		entry("fresh000000", 3*time.Hour),
	}}}
	publisher := &fakePublisher{existing: map[string]bool{"remote00000": true}}

	task, sleeps := newTestBackfill(store, sources, fetcher, &fakeGenerator{}, publisher, 3)
	task.Start()
	require.NoError(t, task.Execute(ctx))

	assert.Equal(t, []string{"fresh000000"}, publisher.publishedIDs())
	assert.Empty(t, *sleeps, "no courtesy delay before the first processed video")

	item := store.item(t, "fresh000000")
	assert.Equal(t, database.GenerationDone, item.GenerationStatus)
	assert.Equal(t, database.DeliveryDone, item.DeliveryStatus)
	assert.Equal(t, "ref-fresh000000", item.DeliveryRef)
	assert.Equal(t, "summary of fresh000000", item.GeneratedText)

	_, err = store.items.GetItem(ctx, "remote00000")
	assert.ErrorIs(t, err, database.ErrNotFound, "ids known only to the backend are not recorded")
}

func TestBackfillDepthAndDelay(t *testing.T) {
	store := newTestStore(t)
	sources := newFakeSources(channelOne)
	fetcher := &fakeFetcher{entries: map[string][]feed.Entry{channelOne: {
		entry("oldest00000", 5*time.Hour),
		entry("newest00000", time.Hour),
		entry("middle00000", 3*time.Hour),
		entry("older000000", 4*time.Hour),
	}}}
	publisher := &fakePublisher{existing: map[string]bool{}}

	task, sleeps := newTestBackfill(store, sources, fetcher, &fakeGenerator{}, publisher, 2)
	require.NoError(t, task.Execute(context.Background()))

	assert.Equal(t, []string{"newest00000", "middle00000"}, publisher.publishedIDs())
	assert.Equal(t, []time.Duration{10 * time.Second}, *sleeps)
}

func TestBackfillSameVideoAcrossChannels(t *testing.T) {
	store := newTestStore(t)
	sources := newFakeSources(channelOne, channelTwo)
	shared := entry("shared00000", time.Hour)
	fetcher := &fakeFetcher{entries: map[string][]feed.Entry{channelOne: {shared}, channelTwo: {shared}}}
	publisher := &fakePublisher{}

	task, _ := newTestBackfill(store, sources, fetcher, &fakeGenerator{}, publisher, 3)
	require.NoError(t, task.Execute(context.Background()))

	assert.Equal(t, []string{"shared00000"}, publisher.publishedIDs())
}

func TestBackfillContinuesAfterFailures(t *testing.T) {
	store := newTestStore(t)
	sources := newFakeSources(channelOne, channelTwo)
	fetcher := &fakeFetcher{
		entries: map[string][]feed.Entry{channelTwo: {entry("abc12345678", time.Hour), entry("def12345678", 2*time.Hour)}},
		errs:    map[string]error{channelOne: errors.New("timeout")},
	}
	gen := &fakeGenerator{err: errors.New("overloaded")}
	publisher := &fakePublisher{}

	task, _ := newTestBackfill(store, sources, fetcher, gen, publisher, 3)
	require.NoError(t, task.Execute(context.Background()))

	assert.Len(t, gen.requests, 2, "each video is attempted despite earlier failures")
	assert.Empty(t, publisher.published)

	ids, err := store.items.ListAllItemIDs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

// trelloBoard serves a board whose archived card references one video. A
// second video had its card deleted, so the API no longer returns it.
type trelloBoard struct {
	mu      sync.Mutex
	created []string
}

func (b *trelloBoard) server(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /lists/list-1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"idBoard": "board-1"})
	})
	mux.HandleFunc("GET /boards/board-1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "board-1"})
	})
	mux.HandleFunc("GET /boards/board-1/cards", func(w http.ResponseWriter, r *http.Request) {
		cards := []map[string]any{{"name": "[S1] Active", "desc": "**Source:** https://www.youtube.com/watch?v=active00000"}}
		if r.URL.Query().Get("filter") == "all" {
			cards = append(cards, map[string]any{"name": "[S1] Archived", "desc": "https://youtu.be/archived000", "closed": true})
		}
		json.NewEncoder(w).Encode(cards)
	})
	mux.HandleFunc("POST /cards", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.created = append(b.created, r.FormValue("urlSource"))
		b.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]string{"id": "card-new"})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestBackfillTrelloArchivedAndDeletedCards(t *testing.T) {
	store := newTestStore(t)
	board := &trelloBoard{}
	server := board.server(t)
	publisher := output.NewTrello(server.Client(), server.URL, "k", "t", "list-1", nil)

	sources := newFakeSources(channelOne)
	fetcher := &fakeFetcher{entries: map[string][]feed.Entry{channelOne: {
		entry("archived000", time.Hour),
		entry("deleted0000", 2*time.Hour),
		entry("active00000", 3*time.Hour),
	}}}

	task, _ := newTestBackfill(store, sources, fetcher, &fakeGenerator{}, publisher, 3)
	require.NoError(t, task.Execute(context.Background()))

	assert.Equal(t, []string{"https://www.youtube.com/watch?v=deleted0000"}, board.created)
	assert.Equal(t, "card-new", store.item(t, "deleted0000").DeliveryRef)
}
