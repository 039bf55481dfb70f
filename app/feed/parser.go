package feed

import (
	"bytes"
	"cmp"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
)

const videoGUIDPrefix = "yt:video:"

type Parser struct {
	gofeedParser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
	}
}

// Run parses a channel's Atom feed. Entries without a recognisable video ID
// are dropped.
func (p *Parser) Run(data []byte) (*Metadata, []Entry, error) {
	feed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	metadata := &Metadata{
		Title:     feed.Title,
		ChannelID: extensionValue(feed.Extensions, "yt", "channelId"),
	}

	entries := make([]Entry, 0, len(feed.Items))
	for _, item := range feed.Items {
		entry := p.normalizeItem(item)
		if entry.ID == "" {
			continue
		}
		entries = append(entries, entry)
	}

	return metadata, entries, nil
}

func (p *Parser) normalizeItem(item *gofeed.Item) Entry {
	entry := Entry{
		ID:          videoID(item),
		Title:       strings.TrimSpace(item.Title),
		Description: cmp.Or(mediaDescription(item), item.Description),
	}

	if item.PublishedParsed != nil {
		published := item.PublishedParsed.UTC()
		entry.PublishedAt = &published
	} else if item.UpdatedParsed != nil {
		updated := item.UpdatedParsed.UTC()
		entry.PublishedAt = &updated
	}

	return entry
}

func videoID(item *gofeed.Item) string {
	if id := extensionValue(item.Extensions, "yt", "videoId"); id != "" {
		return id
	}
	if strings.HasPrefix(item.GUID, videoGUIDPrefix) {
		return strings.TrimPrefix(item.GUID, videoGUIDPrefix)
	}
	return ""
}

// mediaDescription reads media:group/media:description, where YouTube puts
// the video description.
func mediaDescription(item *gofeed.Item) string {
	groups := item.Extensions["media"]["group"]
	if len(groups) == 0 {
		return ""
	}
	if desc := groups[0].Children["description"]; len(desc) > 0 {
		return strings.TrimSpace(desc[0].Value)
	}
	return ""
}

func extensionValue(exts ext.Extensions, prefix, name string) string {
	values := exts[prefix][name]
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0].Value)
}
