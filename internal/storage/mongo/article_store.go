// Package mongo provides the MongoDB-backed article store.
package mongo

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mkarlsen/newsdex/internal/crawler"
	"github.com/mkarlsen/newsdex/internal/storage"
)

// Config controls the Mongo connection and collection names.
type Config struct {
	URI        string
	Database   string
	Collection string
	Timeout    time.Duration
}

// ArticleStore implements crawler.ArticleStore over a Mongo collection
// with a unique index on url. Each article is a single document, so
// document-level atomic upserts are all the transactional discipline
// required.
type ArticleStore struct {
	client   *mongo.Client
	articles *mongo.Collection
	timeout  time.Duration
}

// New connects to Mongo, verifies the connection and ensures indexes.
func New(ctx context.Context, cfg Config) (*ArticleStore, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("articles.mongo.uri is required")
	}
	if cfg.Database == "" {
		cfg.Database = "newsdex"
	}
	if cfg.Collection == "" {
		cfg.Collection = "articles"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	s := &ArticleStore{
		client:   client,
		articles: client.Database(cfg.Database).Collection(cfg.Collection),
		timeout:  cfg.Timeout,
	}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}
	return s, nil
}

func (s *ArticleStore) ensureIndexes(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.articles.Indexes().CreateMany(opCtx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "url", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "published_at", Value: -1}},
		},
	})
	return err
}

// Close disconnects the client.
func (s *ArticleStore) Close(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.client.Disconnect(opCtx)
}

// Upsert inserts or replaces the article document keyed by URL. When the
// stored content hash matches, only fetched_at is refreshed and
// UpsertUnchanged is returned.
func (s *ArticleStore) Upsert(ctx context.Context, article crawler.Article) (crawler.UpsertResult, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var existing struct {
		ContentHash string `bson:"content_hash"`
	}
	err := s.articles.FindOne(
		opCtx,
		bson.M{"url": article.URL},
		options.FindOne().SetProjection(bson.M{"content_hash": 1}),
	).Decode(&existing)
	switch {
	case err == mongo.ErrNoDocuments:
		// First sighting; fall through to the upsert.
	case err != nil:
		return 0, classify(err)
	case existing.ContentHash == article.ContentHash:
		_, err := s.articles.UpdateOne(
			opCtx,
			bson.M{"url": article.URL},
			bson.M{"$set": bson.M{"fetched_at": article.FetchedAt}},
		)
		if err != nil {
			return 0, classify(err)
		}
		return crawler.UpsertUnchanged, nil
	}

	update := bson.M{
		"$set": bson.M{
			"headline":     article.Headline,
			"author":       article.Author,
			"body_text":    article.BodyText,
			"published_at": article.PublishedAt,
			"fetched_at":   article.FetchedAt,
			"content_hash": article.ContentHash,
		},
		"$setOnInsert": bson.M{"url": article.URL},
	}
	_, err = s.articles.UpdateOne(
		opCtx,
		bson.M{"url": article.URL},
		update,
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return 0, classify(err)
	}
	return crawler.UpsertStored, nil
}

// Search fetches candidate documents matching any keyword and ranks
// them in process, so ordering matches the memory backend exactly.
func (s *ArticleStore) Search(ctx context.Context, keywords []string) ([]crawler.ArticleSummary, error) {
	normalized := storage.NormalizeKeywords(keywords)
	if len(normalized) == 0 {
		return nil, nil
	}

	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	clauses := make(bson.A, 0, len(normalized))
	for _, k := range normalized {
		clauses = append(clauses, bson.M{"body_text": primitive.Regex{
			Pattern: regexp.QuoteMeta(k),
			Options: "i",
		}})
	}
	cursor, err := s.articles.Find(opCtx, bson.M{"$or": clauses})
	if err != nil {
		return nil, classify(err)
	}
	defer cursor.Close(opCtx)

	var candidates []crawler.Article
	if err := cursor.All(opCtx, &candidates); err != nil {
		return nil, classify(err)
	}
	return storage.Rank(candidates, normalized), nil
}

// classify wraps driver errors so the coordinator can tell transient
// connectivity loss from persistent store failure.
func classify(err error) error {
	transient := mongo.IsTimeout(err) || mongo.IsNetworkError(err)
	return &crawler.StoreError{Transient: transient, Err: err}
}
