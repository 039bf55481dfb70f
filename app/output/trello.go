package output

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/adlio/trello"

	"github.com/lysyi3m/yt-monitor/app/database"
)

const (
	TrelloBaseURL = trello.DefaultBaseURL

	trelloTimeout = 15 * time.Second
)

var videoIDPattern = regexp.MustCompile(`(?:youtube\.com/watch\?v=|youtu\.be/|youtube\.com/embed/)([A-Za-z0-9_-]{11})`)

var cardTierLabels = map[int]string{
	1: "Full captions",
	2: "Whisper transcription",
	3: "Metadata only",
}

// Trello files each summary as a card. Request pacing is left to the
// trello client, which throttles to the API's per-token limit.
type Trello struct {
	client   *trello.Client
	apiKey   string
	token    string
	listID   string
	labelIDs []string
}

func NewTrello(httpClient *http.Client, baseURL, apiKey, token, listID string, labelIDs []string) *Trello {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: trelloTimeout}
	}

	client := trello.NewClient(apiKey, token)
	client.Client = httpClient
	client.BaseURL = strings.TrimRight(baseURL, "/")

	return &Trello{
		client:   client,
		apiKey:   apiKey,
		token:    token,
		listID:   listID,
		labelIDs: labelIDs,
	}
}

func (t *Trello) Name() string { return "trello" }

func (t *Trello) Validate() error {
	var errs []error
	if t.apiKey == "" {
		errs = append(errs, errors.New("TRELLO_API_KEY is not set"))
	}
	if t.token == "" {
		errs = append(errs, errors.New("TRELLO_TOKEN is not set"))
	}
	if t.listID == "" {
		errs = append(errs, errors.New("TRELLO_LIST_ID is not set"))
	}
	return errors.Join(errs...)
}

// Publish creates one card at the top of the configured list and returns its id.
func (t *Trello) Publish(ctx context.Context, item database.Item) (string, error) {
	link := watchLink(item.ID)

	c := &trello.Card{
		Name:     fmt.Sprintf("[%s] %s", item.SourceName, item.Title),
		Desc:     cardDescription(link, item.Tier, item.GeneratedText),
		IDList:   t.listID,
		IDLabels: t.labelIDs,
	}
	err := t.client.WithContext(ctx).CreateCard(c, trello.Arguments{
		"pos":       "top",
		"urlSource": link,
	})
	if err != nil {
		return "", fmt.Errorf("trello card creation failed: %w", err)
	}
	if c.ID == "" {
		return "", errors.New("trello returned a card without id")
	}

	slog.Info("Trello card created", "item_id", item.ID, "card_id", c.ID, "url", c.ShortURL)
	return c.ID, nil
}

// ExistingIDs scans every card on the board holding the list, archived ones
// included. Deleted cards are not returned by the API and so do not count.
func (t *Trello) ExistingIDs(ctx context.Context) (map[string]bool, error) {
	client := t.client.WithContext(ctx)

	list, err := client.GetList(t.listID, trello.Arguments{"fields": "idBoard"})
	if err != nil {
		return nil, fmt.Errorf("trello list %s: %w", t.listID, err)
	}
	if list.IDBoard == "" {
		return nil, fmt.Errorf("trello list %s has no board", t.listID)
	}

	board, err := client.GetBoard(list.IDBoard, trello.Arguments{"fields": "id,name"})
	if err != nil {
		return nil, fmt.Errorf("trello board %s: %w", list.IDBoard, err)
	}

	cards, err := board.GetCards(trello.Arguments{"filter": "all", "fields": "name,desc"})
	if err != nil {
		return nil, fmt.Errorf("trello board %s cards: %w", list.IDBoard, err)
	}

	ids := make(map[string]bool)
	for _, c := range cards {
		for _, field := range []string{c.Name, c.Desc} {
			for _, m := range videoIDPattern.FindAllStringSubmatch(field, -1) {
				ids[m[1]] = true
			}
		}
	}

	slog.Debug("Trello board scanned", "board_id", list.IDBoard, "cards", len(cards), "video_ids", len(ids))
	return ids, nil
}

func cardDescription(link string, tier int, summary string) string {
	label, ok := cardTierLabels[tier]
	if !ok {
		label = "Unknown"
	}
	return fmt.Sprintf("**Source:** %s\n**Transcript quality:** %s\n\n---\n\n%s", link, label, summary)
}
