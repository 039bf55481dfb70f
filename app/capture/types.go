package capture

import (
	"context"
	"net/url"
)

type Outcome int

const (
	// Success carries at least one caption fragment.
	Success Outcome = iota
	// PermanentMiss means captions are disabled, absent for the requested
	// languages, or the video is gone. Retrying cannot help.
	PermanentMiss
	// Transient covers everything else: network errors, rate limiting, bot checks.
	Transient
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case PermanentMiss:
		return "permanent_miss"
	case Transient:
		return "transient"
	default:
		return "unknown"
	}
}

type Result struct {
	Outcome   Outcome
	Fragments []string
	Language  string // language code of the chosen track
	Generated bool   // true for auto-generated (ASR) tracks
	Err       error  // reason for a miss or transient failure
}

func Succeeded(fragments []string, lang string, generated bool) Result {
	return Result{Outcome: Success, Fragments: fragments, Language: lang, Generated: generated}
}

func Missed(err error) Result {
	return Result{Outcome: PermanentMiss, Err: err}
}

func Failed(err error) Result {
	return Result{Outcome: Transient, Err: err}
}

// Capturer fetches the caption track of a video. A nil proxy means a direct connection.
type Capturer interface {
	Capture(ctx context.Context, videoID string, languages []string, proxy *url.URL) Result
}
