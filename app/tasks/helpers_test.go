package tasks

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/yt-monitor/app/database"
	"github.com/lysyi3m/yt-monitor/app/extract"
	"github.com/lysyi3m/yt-monitor/app/feed"
	"github.com/lysyi3m/yt-monitor/app/summary"
)

const (
	channelOne = "UCaaaaaaaaaaaaaaaaaaaaaa"
	channelTwo = "UCbbbbbbbbbbbbbbbbbbbbbb"
)

type testStore struct {
	items   *database.ItemStore
	sources *database.SourceStore
}

func newTestStore(t *testing.T) testStore {
	t.Helper()

	db, err := database.NewConnection(filepath.Join(t.TempDir(), "monitor.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, _, err = database.RunMigrations(db)
	require.NoError(t, err)

	return testStore{items: database.NewItemStore(db), sources: database.NewSourceStore(db)}
}

func (s testStore) item(t *testing.T, id string) *database.Item {
	t.Helper()
	item, err := s.items.GetItem(context.Background(), id)
	require.NoError(t, err)
	return item
}

type fakeSources struct {
	configs []*feed.Config
}

func newFakeSources(ids ...string) *fakeSources {
	s := &fakeSources{}
	for i, id := range ids {
		s.configs = append(s.configs, &feed.Config{Name: "channel" + string(rune('A'+i)), ChannelID: id})
	}
	return s
}

func (s *fakeSources) Run() error { return nil }

func (s *fakeSources) GetConfigs() map[string]*feed.Config {
	out := make(map[string]*feed.Config)
	for _, c := range s.configs {
		out[c.Name] = c
	}
	return out
}

func (s *fakeSources) GetEnabledConfigs() []*feed.Config {
	var out []*feed.Config
	for _, c := range s.configs {
		if c.IsEnabled() {
			out = append(out, c)
		}
	}
	return out
}

type fakeFetcher struct {
	mu      sync.Mutex
	entries map[string][]feed.Entry
	errs    map[string]error
	calls   []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, channelID string) ([]feed.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, channelID)
	if err := f.errs[channelID]; err != nil {
		return nil, err
	}
	return f.entries[channelID], nil
}

type fakeExtractor struct {
	results map[string]extract.Result
	panics  bool
}

func (f *fakeExtractor) Extract(ctx context.Context, videoID, title, description string) extract.Result {
	if f.panics {
		panic("extractor exploded")
	}
	if res, ok := f.results[videoID]; ok {
		return res
	}
	return extract.Result{Text: "hello world", Tier: extract.TierCaptions}
}

type fakeGenerator struct {
	mu       sync.Mutex
	err      error
	requests []summary.Request
}

func (f *fakeGenerator) Generate(ctx context.Context, req summary.Request) (summary.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return summary.Result{}, f.err
	}
	return summary.Result{Text: "summary of " + req.ItemID, InputTokens: 100, OutputTokens: 20}, nil
}

type fakePublisher struct {
	mu        sync.Mutex
	err       error
	existing  map[string]bool
	published []database.Item
}

func (p *fakePublisher) Name() string    { return "fake" }
func (p *fakePublisher) Validate() error { return nil }

func (p *fakePublisher) Publish(ctx context.Context, item database.Item) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.published = append(p.published, item)
	return "ref-" + item.ID, nil
}

func (p *fakePublisher) ExistingIDs(ctx context.Context) (map[string]bool, error) {
	if p.existing == nil {
		return nil, errors.New("not supported")
	}
	out := make(map[string]bool, len(p.existing))
	for k, v := range p.existing {
		out[k] = v
	}
	return out, nil
}

func (p *fakePublisher) publishedIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var ids []string
	for _, item := range p.published {
		ids = append(ids, item.ID)
	}
	return ids
}

func entry(id string, age time.Duration) feed.Entry {
	published := time.Now().Add(-age).UTC()
	return feed.Entry{
		ID:          id,
		Title:       "Video " + id,
		Description: "About " + id,
		PublishedAt: &published,
	}
}
