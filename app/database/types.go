package database

import (
	"time"
)

type GenerationStatus string

const (
	GenerationPending    GenerationStatus = "pending"
	GenerationProcessing GenerationStatus = "processing"
	GenerationDone       GenerationStatus = "done"
	GenerationFailed     GenerationStatus = "failed"
	GenerationSkipped    GenerationStatus = "skipped"
)

type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliveryDone    DeliveryStatus = "done"
	DeliveryFailed  DeliveryStatus = "failed"
)

type Source struct {
	ID            string // YouTube channel ID
	Name          string
	LastCheckedAt *time.Time
	ErrorCount    int
	Enabled       bool
}

type Item struct {
	ID          string // YouTube video ID
	SourceID    string
	SourceName  string
	Title       string
	PublishedAt *time.Time

	Tier          int // 0 until extraction ran
	ExtractedText string

	GenerationStatus GenerationStatus
	GeneratedText    string
	GenerationError  string
	InputTokens      int64
	OutputTokens     int64

	DeliveryStatus DeliveryStatus
	DeliveryRef    string // e.g. Trello card ID
	DeliveryError  string

	CreatedAt time.Time
	UpdatedAt time.Time
}

type GenerationUpdate struct {
	Status       GenerationStatus
	Text         string
	Error        string
	InputTokens  int64
	OutputTokens int64
}

type DeliveryUpdate struct {
	Status DeliveryStatus
	Ref    string
	Error  string
}

type Stats struct {
	Items        int
	Sources      int
	ByGeneration map[GenerationStatus]int
	ByDelivery   map[DeliveryStatus]int
	InputTokens  int64
	OutputTokens int64
}
