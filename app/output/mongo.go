package output

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/lysyi3m/yt-monitor/app/database"
)

const mongoTimeout = 10 * time.Second

// collection is the subset of *mongo.Collection the publisher uses.
type collection interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	Distinct(ctx context.Context, fieldName string, filter interface{}, opts ...*options.DistinctOptions) ([]interface{}, error)
}

type summaryDocument struct {
	VideoID      string     `bson:"video_id"`
	ChannelID    string     `bson:"channel_id"`
	ChannelName  string     `bson:"channel_name"`
	Title        string     `bson:"title"`
	URL          string     `bson:"url"`
	PublishedAt  *time.Time `bson:"published_at,omitempty"`
	Tier         int        `bson:"transcript_tier"`
	Summary      string     `bson:"summary"`
	InputTokens  int64      `bson:"input_tokens"`
	OutputTokens int64      `bson:"output_tokens"`
	CreatedAt    time.Time  `bson:"created_at"`
}

type Mongo struct {
	uri            string
	databaseName   string
	collectionName string

	client    *mongo.Client
	summaries collection
}

func NewMongo(uri, databaseName, collectionName string) *Mongo {
	return &Mongo{uri: uri, databaseName: databaseName, collectionName: collectionName}
}

func (m *Mongo) Name() string { return "mongo" }

func (m *Mongo) Validate() error {
	var errs []error
	if m.uri == "" {
		errs = append(errs, errors.New("MONGO_URI is not set"))
	}
	if m.databaseName == "" {
		errs = append(errs, errors.New("MONGO_DATABASE is empty"))
	}
	if m.collectionName == "" {
		errs = append(errs, errors.New("MONGO_COLLECTION is empty"))
	}
	return errors.Join(errs...)
}

// Connect opens the client and ensures the unique video_id index.
func (m *Mongo) Connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(m.uri))
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	coll := client.Database(m.databaseName).Collection(m.collectionName)
	index := mongo.IndexModel{
		Keys:    bson.D{{Key: "video_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := coll.Indexes().CreateOne(ctx, index); err != nil {
		client.Disconnect(context.Background())
		return fmt.Errorf("failed to create video_id index: %w", err)
	}

	m.client = client
	m.summaries = coll
	return nil
}

func (m *Mongo) Close() error {
	if m.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), mongoTimeout)
	defer cancel()
	return m.client.Disconnect(ctx)
}

// Publish inserts one document per video. A document already present for
// the video counts as delivered.
func (m *Mongo) Publish(ctx context.Context, item database.Item) (string, error) {
	if m.summaries == nil {
		return "", errors.New("mongo publisher is not connected")
	}

	ctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()

	res, err := m.summaries.InsertOne(ctx, summaryDocument{
		VideoID:      item.ID,
		ChannelID:    item.SourceID,
		ChannelName:  item.SourceName,
		Title:        item.Title,
		URL:          watchLink(item.ID),
		PublishedAt:  item.PublishedAt,
		Tier:         item.Tier,
		Summary:      item.GeneratedText,
		InputTokens:  item.InputTokens,
		OutputTokens: item.OutputTokens,
		CreatedAt:    time.Now().UTC(),
	})
	if mongo.IsDuplicateKeyError(err) {
		slog.Warn("Summary document already exists", "item_id", item.ID)
		return item.ID, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to insert summary document: %w", err)
	}

	ref := item.ID
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		ref = oid.Hex()
	}

	slog.Info("Summary document inserted", "item_id", item.ID, "document_id", ref)
	return ref, nil
}

func (m *Mongo) ExistingIDs(ctx context.Context) (map[string]bool, error) {
	if m.summaries == nil {
		return nil, errors.New("mongo publisher is not connected")
	}

	ctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()

	values, err := m.summaries.Distinct(ctx, "video_id", bson.D{})
	if err != nil {
		return nil, fmt.Errorf("failed to list video ids: %w", err)
	}

	ids := make(map[string]bool, len(values))
	for _, v := range values {
		if id, ok := v.(string); ok && id != "" {
			ids[id] = true
		}
	}
	return ids, nil
}
