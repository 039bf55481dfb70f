package capture

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/kkdai/youtube/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	video         *youtube.Video
	videoErr      error
	transcript    youtube.VideoTranscript
	transcriptErr error

	requestedLang string
}

func (f *fakeSource) GetVideoContext(ctx context.Context, id string) (*youtube.Video, error) {
	if f.videoErr != nil {
		return nil, f.videoErr
	}
	v := *f.video
	v.ID = id
	return &v, nil
}

func (f *fakeSource) GetTranscriptCtx(ctx context.Context, video *youtube.Video, lang string) (youtube.VideoTranscript, error) {
	f.requestedLang = lang
	return f.transcript, f.transcriptErr
}

func newTestYouTube(src *fakeSource) *YouTube {
	y := NewYouTube("ua")
	y.newSource = func(*http.Client) videoSource { return src }
	return y
}

var (
	manualEN = youtube.CaptionTrack{LanguageCode: "en"}
	autoEN   = youtube.CaptionTrack{LanguageCode: "en", Kind: "asr"}
	manualDE = youtube.CaptionTrack{LanguageCode: "de"}
	manualGB = youtube.CaptionTrack{LanguageCode: "en-GB"}
)

func withTracks(tracks ...youtube.CaptionTrack) *youtube.Video {
	return &youtube.Video{CaptionTracks: tracks}
}

var transcript = youtube.VideoTranscript{
	{Text: "hello"},
	{Text: " world & friends\n"},
	{Text: "   "},
}

func TestCaptureSuccess(t *testing.T) {
	src := &fakeSource{video: withTracks(autoEN, manualEN), transcript: transcript}

	res := newTestYouTube(src).Capture(context.Background(), "abc12345678", []string{"en"}, nil)

	require.Equal(t, Success, res.Outcome, "err: %v", res.Err)
	assert.Equal(t, []string{"hello", "world & friends"}, res.Fragments)
	assert.Equal(t, "en", res.Language)
	assert.False(t, res.Generated, "manual track should win over generated")
}

func TestCaptureGeneratedOnly(t *testing.T) {
	src := &fakeSource{video: withTracks(autoEN), transcript: transcript}

	res := newTestYouTube(src).Capture(context.Background(), "abc12345678", []string{"en"}, nil)
	require.Equal(t, Success, res.Outcome)
	assert.True(t, res.Generated)
}

func TestCaptureLanguagePreferenceOrder(t *testing.T) {
	src := &fakeSource{video: withTracks(manualEN, manualDE), transcript: transcript}

	res := newTestYouTube(src).Capture(context.Background(), "abc12345678", []string{"de", "en"}, nil)
	require.Equal(t, Success, res.Outcome)
	assert.Equal(t, "de", res.Language)
	assert.Equal(t, "de", src.requestedLang)
}

func TestCaptureRegionalMatch(t *testing.T) {
	src := &fakeSource{video: withTracks(manualDE, manualGB), transcript: transcript}

	res := newTestYouTube(src).Capture(context.Background(), "abc12345678", []string{"en"}, nil)
	require.Equal(t, Success, res.Outcome)
	assert.Equal(t, "en-GB", res.Language)
	assert.Equal(t, "en-GB", src.requestedLang)
}

func TestCapturePermanentMisses(t *testing.T) {
	tests := []struct {
		name string
		src  *fakeSource
	}{
		{name: "captions disabled", src: &fakeSource{video: withTracks()}},
		{name: "no track in requested languages", src: &fakeSource{video: withTracks(manualDE)}},
		{name: "private video", src: &fakeSource{videoErr: youtube.ErrVideoPrivate}},
		{name: "video unavailable", src: &fakeSource{videoErr: &youtube.ErrPlayabiltyStatus{Status: "ERROR", Reason: "This video is unavailable"}}},
		{name: "transcript disabled", src: &fakeSource{video: withTracks(manualEN), transcriptErr: youtube.ErrTranscriptDisabled}},
		{name: "empty track", src: &fakeSource{video: withTracks(manualEN), transcript: youtube.VideoTranscript{{Text: " "}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := newTestYouTube(tt.src).Capture(context.Background(), "abc12345678", []string{"en"}, nil)
			assert.Equal(t, PermanentMiss, res.Outcome, "err: %v", res.Err)
			assert.Error(t, res.Err)
		})
	}
}

func TestCaptureTransientFailures(t *testing.T) {
	tests := []struct {
		name string
		src  *fakeSource
	}{
		{name: "rate limited", src: &fakeSource{videoErr: youtube.ErrUnexpectedStatusCode(http.StatusTooManyRequests)}},
		{name: "login required", src: &fakeSource{videoErr: youtube.ErrLoginRequired}},
		{name: "bot check", src: &fakeSource{videoErr: &youtube.ErrPlayabiltyStatus{Status: "LOGIN_REQUIRED", Reason: "Sign in to confirm you're not a bot"}}},
		{name: "network error", src: &fakeSource{videoErr: errors.New("connection reset")}},
		{name: "track download fails", src: &fakeSource{video: withTracks(manualEN), transcriptErr: errors.New("unexpected status code: 500")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := newTestYouTube(tt.src).Capture(context.Background(), "abc12345678", []string{"en"}, nil)
			assert.Equal(t, Transient, res.Outcome)
			assert.Error(t, res.Err)
		})
	}
}

func TestSourceForCachesPerProxy(t *testing.T) {
	y := NewYouTube("ua")
	var clients []*http.Client
	y.newSource = func(c *http.Client) videoSource {
		clients = append(clients, c)
		return &fakeSource{}
	}

	direct := y.sourceFor(nil)
	assert.Same(t, direct, y.sourceFor(nil))

	proxy, err := url.Parse("http://user:pw@10.0.0.1:8080")
	require.NoError(t, err)
	viaProxy := y.sourceFor(proxy)
	assert.NotSame(t, direct, viaProxy)
	assert.Same(t, viaProxy, y.sourceFor(proxy))

	require.Len(t, clients, 2)
	transport := clients[1].Transport.(*consentTransport).next.(*http.Transport)
	got, err := transport.Proxy(httptest.NewRequest(http.MethodGet, "https://www.youtube.com/", nil))
	require.NoError(t, err)
	assert.Equal(t, proxy.String(), got.String())
}

func TestConsentTransport(t *testing.T) {
	var gotUA, gotCookie string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		if c, err := r.Cookie("CONSENT"); err == nil {
			gotCookie = c.Value
		}
	}))
	defer server.Close()

	client := &http.Client{Transport: &consentTransport{next: http.DefaultTransport, userAgent: "monitor/1.0"}}
	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "monitor/1.0", gotUA)
	assert.Equal(t, "YES+cb", gotCookie)
}
