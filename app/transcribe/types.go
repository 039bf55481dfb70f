package transcribe

import (
	"context"
)

// MediaFetcher downloads the audio track of a video into dir and returns the file path.
type MediaFetcher interface {
	FetchAudio(ctx context.Context, videoID, dir string) (string, error)
}

// Transcoder turns an audio file into text.
type Transcoder interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}
