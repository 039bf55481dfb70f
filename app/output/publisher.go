package output

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/lysyi3m/yt-monitor/app/cfg"
	"github.com/lysyi3m/yt-monitor/app/database"
)

const WatchURL = "https://www.youtube.com/watch?v="

var ErrUnknownBackend = errors.New("unknown output backend")

var (
	_ Publisher = (*Trello)(nil)
	_ Publisher = (*Dashboard)(nil)
	_ Publisher = (*Mongo)(nil)
	_ IDLister  = (*Trello)(nil)
	_ IDLister  = (*Mongo)(nil)
)

// Publisher delivers a generated summary to its destination. The returned
// reference (card id, document id) is stored on the item.
type Publisher interface {
	Name() string
	Validate() error
	Publish(ctx context.Context, item database.Item) (string, error)
}

// IDLister is implemented by destinations that can report which video ids
// they already hold.
type IDLister interface {
	ExistingIDs(ctx context.Context) (map[string]bool, error)
}

// ExistingIDs returns the ids known to p. Destinations without the
// capability, or whose lookup fails, yield an empty set.
func ExistingIDs(ctx context.Context, p Publisher) map[string]bool {
	lister, ok := p.(IDLister)
	if !ok {
		return map[string]bool{}
	}

	ids, err := lister.ExistingIDs(ctx)
	if err != nil {
		slog.Warn("Failed to list existing ids from output backend", "backend", p.Name(), "error", err)
		return map[string]bool{}
	}
	if ids == nil {
		ids = map[string]bool{}
	}
	return ids
}

// New builds the backend selected by the configuration and validates its
// credentials.
func New(ctx context.Context, c *cfg.Cfg, httpClient *http.Client) (Publisher, error) {
	var p Publisher

	switch c.OutputBackend {
	case "trello":
		p = NewTrello(httpClient, TrelloBaseURL, c.TrelloAPIKey, c.TrelloToken, c.TrelloListID, c.TrelloLabelIDs)
	case "dashboard":
		p = NewDashboard()
	case "mongo":
		p = NewMongo(c.MongoURI, c.MongoDatabase, c.MongoCollection)
	default:
		return nil, fmt.Errorf("%w %q (valid: trello, dashboard, mongo)", ErrUnknownBackend, c.OutputBackend)
	}

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%s backend: %w", p.Name(), err)
	}

	if m, ok := p.(*Mongo); ok {
		if err := m.Connect(ctx); err != nil {
			return nil, err
		}
	}

	return p, nil
}

func watchLink(videoID string) string {
	return WatchURL + videoID
}
