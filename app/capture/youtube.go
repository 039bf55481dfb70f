package capture

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/kkdai/youtube/v2"
	"golang.org/x/text/language"
)

var (
	errCaptionsDisabled = errors.New("captions are disabled for this video")
	errNoTrack          = errors.New("no caption track in the requested languages")
	errVideoUnavailable = errors.New("video is unavailable")
	errEmptyTrack       = errors.New("caption track is empty")
)

// videoSource is the part of *youtube.Client used for captions.
type videoSource interface {
	GetVideoContext(ctx context.Context, id string) (*youtube.Video, error)
	GetTranscriptCtx(ctx context.Context, video *youtube.Video, lang string) (youtube.VideoTranscript, error)
}

// YouTube captures captions with one youtube client per egress identity.
type YouTube struct {
	userAgent string
	transport *http.Transport
	newSource func(httpClient *http.Client) videoSource

	mu      sync.Mutex
	sources map[string]videoSource
}

func NewYouTube(userAgent string) *YouTube {
	return &YouTube{
		userAgent: userAgent,
		transport: http.DefaultTransport.(*http.Transport).Clone(),
		newSource: func(httpClient *http.Client) videoSource {
			return &youtube.Client{HTTPClient: httpClient}
		},
		sources: make(map[string]videoSource),
	}
}

func (y *YouTube) Capture(ctx context.Context, videoID string, languages []string, proxy *url.URL) Result {
	src := y.sourceFor(proxy)

	video, err := src.GetVideoContext(ctx, videoID)
	if err != nil {
		return classifyVideoError(err)
	}

	if len(video.CaptionTracks) == 0 {
		return Missed(errCaptionsDisabled)
	}

	track, ok := chooseTrack(video.CaptionTracks, languages)
	if !ok {
		return Missed(errNoTrack)
	}

	transcript, err := src.GetTranscriptCtx(ctx, video, track.LanguageCode)
	if err != nil {
		if errors.Is(err, youtube.ErrTranscriptDisabled) {
			return Missed(err)
		}
		return Failed(fmt.Errorf("caption track %s: %w", track.LanguageCode, err))
	}

	fragments := make([]string, 0, len(transcript))
	for _, seg := range transcript {
		if text := strings.TrimSpace(seg.Text); text != "" {
			fragments = append(fragments, text)
		}
	}
	if len(fragments) == 0 {
		return Missed(errEmptyTrack)
	}

	return Succeeded(fragments, track.LanguageCode, isGenerated(track))
}

// classifyVideoError maps a metadata lookup failure onto an outcome. Only a
// video YouTube reports as gone or private is a permanent miss; login walls
// and bot checks are retried.
func classifyVideoError(err error) Result {
	switch {
	case errors.Is(err, youtube.ErrVideoPrivate),
		errors.Is(err, youtube.ErrInvalidCharactersInVideoID),
		errors.Is(err, youtube.ErrVideoIDMinLength):
		return Missed(fmt.Errorf("%w: %w", errVideoUnavailable, err))
	}

	var status *youtube.ErrPlayabiltyStatus
	if errors.As(err, &status) && status.Status == "ERROR" {
		return Missed(fmt.Errorf("%w: %s", errVideoUnavailable, status.Reason))
	}

	return Failed(fmt.Errorf("video lookup: %w", err))
}

func (y *YouTube) sourceFor(proxy *url.URL) videoSource {
	key := ""
	if proxy != nil {
		key = proxy.String()
	}

	y.mu.Lock()
	defer y.mu.Unlock()

	if src, ok := y.sources[key]; ok {
		return src
	}

	transport := y.transport.Clone()
	if proxy != nil {
		transport.Proxy = http.ProxyURL(proxy)
	}
	src := y.newSource(&http.Client{Transport: &consentTransport{next: transport, userAgent: y.userAgent}})
	y.sources[key] = src
	return src
}

// consentTransport pre-accepts the EU consent wall so requests reach the
// player instead of a consent page.
type consentTransport struct {
	next      http.RoundTripper
	userAgent string
}

func (t *consentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if req.Header.Get("User-Agent") == "" && t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	req.Header.Set("Accept-Language", "en-US")
	req.AddCookie(&http.Cookie{Name: "CONSENT", Value: "YES+cb"})
	return t.next.RoundTrip(req)
}

func isGenerated(t youtube.CaptionTrack) bool {
	return t.Kind == "asr"
}

// chooseTrack walks the preference list in order. For each language a
// manually created track beats a generated one. When no track carries an
// exact code, a close regional match ("en" for "en-GB") is accepted.
func chooseTrack(tracks []youtube.CaptionTrack, languages []string) (youtube.CaptionTrack, bool) {
	for _, lang := range languages {
		for _, generated := range []bool{false, true} {
			for _, t := range tracks {
				if isGenerated(t) == generated && strings.EqualFold(t.LanguageCode, lang) {
					return t, true
				}
			}
		}
	}

	// Manual tracks first so the matcher prefers them on equal confidence.
	ordered := make([]youtube.CaptionTrack, 0, len(tracks))
	for _, generated := range []bool{false, true} {
		for _, t := range tracks {
			if isGenerated(t) == generated {
				ordered = append(ordered, t)
			}
		}
	}

	var (
		supported []language.Tag
		indexes   []int
	)
	for i, t := range ordered {
		tag, err := language.Parse(t.LanguageCode)
		if err != nil {
			continue
		}
		supported = append(supported, tag)
		indexes = append(indexes, i)
	}
	if len(supported) == 0 {
		return youtube.CaptionTrack{}, false
	}

	var preferred []language.Tag
	for _, lang := range languages {
		if tag, err := language.Parse(lang); err == nil {
			preferred = append(preferred, tag)
		}
	}
	if len(preferred) == 0 {
		return youtube.CaptionTrack{}, false
	}

	_, idx, confidence := language.NewMatcher(supported).Match(preferred...)
	if confidence < language.High {
		return youtube.CaptionTrack{}, false
	}
	return ordered[indexes[idx]], true
}
