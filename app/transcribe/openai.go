package transcribe

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const DefaultOpenAIURL = "https://api.openai.com/v1/"

// OpenAI sends audio to the hosted Whisper transcription endpoint.
type OpenAI struct {
	client openai.Client
	model  string
}

func NewOpenAI(httpClient *http.Client, baseURL, apiKey, model string, opts ...option.RequestOption) *OpenAI {
	if baseURL == "" {
		baseURL = DefaultOpenAIURL
	}

	base := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
	}
	if httpClient != nil {
		base = append(base, option.WithHTTPClient(httpClient))
	}

	return &OpenAI{
		client: openai.NewClient(append(base, opts...)...),
		model:  model,
	}
}

func (o *OpenAI) Transcribe(ctx context.Context, audioPath string) (string, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return "", fmt.Errorf("failed to open audio: %w", err)
	}
	defer file.Close()

	res, err := o.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:  file,
		Model: openai.AudioModel(o.model),
	})
	if err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}

	return strings.TrimSpace(res.Text), nil
}
