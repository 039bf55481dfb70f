package feed

import (
	"encoding/xml"
	"strings"
	"testing"
	"time"

	"github.com/lysyi3m/yt-monitor/app/database"
)

func TestGeneratorRun(t *testing.T) {
	published := time.Date(2025, 3, 1, 15, 0, 0, 0, time.UTC)
	items := []database.Item{
		{
			ID:            "abc12345678",
			SourceName:    "Linus Tech Tips",
			Title:         "Fast & <loud> PCs",
			PublishedAt:   &published,
			GeneratedText: "## Summary\nIt is fast.",
		},
		{
			ID:         "def12345678",
			SourceName: "Other",
			Title:      "No summary",
			CreatedAt:  published.Add(-time.Hour),
		},
	}

	rss, err := NewGenerator("1.2.3").Run("http://localhost:8080/feeds/summaries", items)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	var doc struct {
		Channel struct {
			Generator string `xml:"generator"`
			Items     []struct {
				GUID        string `xml:"guid"`
				Title       string `xml:"title"`
				Link        string `xml:"link"`
				Description string `xml:"description"`
			} `xml:"item"`
		} `xml:"channel"`
	}
	if err := xml.Unmarshal([]byte(rss), &doc); err != nil {
		t.Fatalf("Generated RSS is not valid XML: %v", err)
	}

	if doc.Channel.Generator != "yt-monitor/1.2.3" {
		t.Errorf("Unexpected generator: %s", doc.Channel.Generator)
	}
	if len(doc.Channel.Items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(doc.Channel.Items))
	}

	first := doc.Channel.Items[0]
	if first.GUID != "abc12345678" {
		t.Errorf("Unexpected guid: %s", first.GUID)
	}
	if first.Title != "[Linus Tech Tips] Fast & <loud> PCs" {
		t.Errorf("Unexpected title: %s", first.Title)
	}
	if first.Link != "https://www.youtube.com/watch?v=abc12345678" {
		t.Errorf("Unexpected link: %s", first.Link)
	}
	if !strings.Contains(first.Description, "It is fast.") {
		t.Errorf("Expected summary in description, got: %s", first.Description)
	}

	if doc.Channel.Items[1].Description != "No summary available" {
		t.Errorf("Expected placeholder description, got: %s", doc.Channel.Items[1].Description)
	}
}
