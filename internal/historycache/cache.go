// Package historycache implements the optional read-through cache in front
// of the REST history fetcher (C9): MongoDB-backed, keyed by
// (topic, interval, end_time bucket), plus an optional S3 archiver for
// stale entries.
//
// Grounded on the teacher's (ndrandal-feed-simulator) internal/persist/store.go
// mongo-driver usage, repurposed from full-engine-state snapshotting (out of
// scope per spec.md's no-restart-persistence non-goal) to caching
// already-fetched, immutable historical candle windows.
package historycache

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/ingestd/marketfeed/internal/model"
)

const defaultDatabase = "marketfeed"
const defaultCollection = "history_cache"

// bucketWindow rounds an end_time down to the nearest hour so that repeated
// fetchhistory calls within the same hour reuse one cache entry rather than
// minting a new document per millisecond-distinct request.
const bucketWindow = uint64(time.Hour / time.Millisecond)

// document is the Mongo-persisted cache entry.
type document struct {
	Topic     string         `bson:"topic"`
	Interval  string         `bson:"interval"`
	Bucket    uint64         `bson:"bucket"`
	Candles   []model.Candle `bson:"candles"`
	FetchedAt time.Time      `bson:"fetched_at"`
}

// Cache is an optional Mongo-backed read-through cache. A nil *Cache (or one
// constructed with an empty URI via New) means the history fetcher always
// goes straight to the venue.
type Cache struct {
	coll *mongo.Collection
	log  zerolog.Logger
}

// New connects to uri and returns a Cache, or nil if uri is empty. A nil
// *Cache is "disabled": Get and Put on it are no-ops, so it may be passed to
// history.New as-is.
func New(ctx context.Context, uri string, log zerolog.Logger) (*Cache, error) {
	if uri == "" {
		return nil, nil
	}
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	coll := client.Database(defaultDatabase).Collection(defaultCollection)
	return &Cache{coll: coll, log: log.With().Str("component", "history_cache").Logger()}, nil
}

func bucketOf(endTime uint64) uint64 {
	return (endTime / bucketWindow) * bucketWindow
}

// Get returns a previously cached candle window, if present.
func (c *Cache) Get(ctx context.Context, topic, interval string, endTime uint64) ([]model.Candle, bool) {
	if c == nil {
		return nil, false
	}
	var doc document
	err := c.coll.FindOne(ctx, bson.M{
		"topic":    topic,
		"interval": interval,
		"bucket":   bucketOf(endTime),
	}).Decode(&doc)
	if err != nil {
		return nil, false
	}
	return doc.Candles, true
}

// Put stores a fetched candle window, upserting the (topic, interval,
// bucket) key.
func (c *Cache) Put(ctx context.Context, topic, interval string, endTime uint64, candles []model.Candle) {
	if c == nil {
		return
	}
	bucket := bucketOf(endTime)
	_, err := c.coll.UpdateOne(ctx,
		bson.M{"topic": topic, "interval": interval, "bucket": bucket},
		bson.M{"$set": document{Topic: topic, Interval: interval, Bucket: bucket, Candles: candles, FetchedAt: time.Now()}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		c.log.Warn().Err(err).Str("topic", topic).Msg("failed to persist history cache entry")
	}
}

// StaleEntries returns cache documents older than olderThan, for the
// archiver to move to S3.
func (c *Cache) StaleEntries(ctx context.Context, olderThan time.Duration) ([]document, error) {
	if c == nil {
		return nil, nil
	}
	cursor, err := c.coll.Find(ctx, bson.M{"fetched_at": bson.M{"$lt": time.Now().Add(-olderThan)}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// DeleteEntry removes one archived document so it is not archived twice.
func (c *Cache) DeleteEntry(ctx context.Context, topic, interval string, bucket uint64) error {
	if c == nil {
		return nil
	}
	_, err := c.coll.DeleteOne(ctx, bson.M{"topic": topic, "interval": interval, "bucket": bucket})
	return err
}
