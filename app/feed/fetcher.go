package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultFeedURL = "https://www.youtube.com/feeds/videos.xml"

// ErrChannelMismatch is returned when the feed served belongs to another channel.
var ErrChannelMismatch = errors.New("feed belongs to a different channel")

// FetchError marks a transport-level failure: the request could not be made
// or the server answered with an error status. An empty feed is not a FetchError.
type FetchError struct {
	ChannelID  string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d", e.ChannelID, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.ChannelID, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

type Fetcher struct {
	httpClient *http.Client
	parser     *Parser
	baseURL    string
	userAgent  string
	timeout    time.Duration
}

func NewFetcher(httpClient *http.Client, parser *Parser, baseURL, userAgent string, timeout time.Duration) *Fetcher {
	if baseURL == "" {
		baseURL = DefaultFeedURL
	}
	return &Fetcher{
		httpClient: httpClient,
		parser:     parser,
		baseURL:    baseURL,
		userAgent:  userAgent,
		timeout:    timeout,
	}
}

// Fetch downloads and parses the channel feed. Entries keep feed order,
// newest first for YouTube.
func (f *Fetcher) Fetch(ctx context.Context, channelID string) ([]Entry, error) {
	data, err := f.fetchFeed(ctx, channelID)
	if err != nil {
		return nil, err
	}

	metadata, entries, err := f.parser.Run(data)
	if err != nil {
		return nil, fmt.Errorf("channel %s: %w", channelID, err)
	}
	if metadata.ChannelID != "" && metadata.ChannelID != channelID {
		return nil, fmt.Errorf("%w: requested %s, got %s (%s)", ErrChannelMismatch, channelID, metadata.ChannelID, metadata.Title)
	}

	return entries, nil
}

func (f *Fetcher) fetchFeed(ctx context.Context, channelID string) ([]byte, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	sep := "?"
	if strings.Contains(f.baseURL, "?") {
		sep = "&"
	}
	feedURL := f.baseURL + sep + "channel_id=" + url.QueryEscape(channelID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, &FetchError{ChannelID: channelID, Err: fmt.Errorf("failed to create request: %w", err)}
	}

	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{ChannelID: channelID, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &FetchError{ChannelID: channelID, StatusCode: resp.StatusCode, Err: fmt.Errorf("HTTP error: %s", resp.Status)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{ChannelID: channelID, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	return data, nil
}
