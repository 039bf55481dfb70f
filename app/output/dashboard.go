package output

import (
	"context"
	"log/slog"

	"github.com/lysyi3m/yt-monitor/app/database"
)

// Dashboard keeps summaries in the local database where the reporting API
// serves them. Publishing only acknowledges the item.
type Dashboard struct{}

func NewDashboard() *Dashboard {
	return &Dashboard{}
}

func (d *Dashboard) Name() string { return "dashboard" }

func (d *Dashboard) Validate() error { return nil }

func (d *Dashboard) Publish(ctx context.Context, item database.Item) (string, error) {
	slog.Info("Summary stored for dashboard", "item_id", item.ID)
	return item.ID, nil
}
