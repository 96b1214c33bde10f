package historycache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// Archiver periodically moves history-cache documents older than a
// configured age out of MongoDB into S3 as newline-delimited JSON objects.
//
// Adapted from the teacher's internal/archive/archiver.go age-based
// move-to-S3 job, retargeted at cache documents instead of trade rows.
type Archiver struct {
	cache      *Cache
	s3         *s3.Client
	bucket     string
	prefix     string
	afterHours int
	interval   time.Duration
	log        zerolog.Logger
}

// NewArchiver constructs an Archiver, or returns nil if bucket is empty —
// disabled exactly like the teacher's archiver when no bucket is configured.
func NewArchiver(ctx context.Context, cache *Cache, bucket, region, prefix string, afterHours, intervalHours int, log zerolog.Logger) (*Archiver, error) {
	if bucket == "" || cache == nil {
		return nil, nil
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("historycache: load aws config: %w", err)
	}
	return &Archiver{
		cache:      cache,
		s3:         s3.NewFromConfig(cfg),
		bucket:     bucket,
		prefix:     prefix,
		afterHours: afterHours,
		interval:   time.Duration(intervalHours) * time.Hour,
		log:        log.With().Str("component", "history_archiver").Logger(),
	}, nil
}

// Run loops until ctx is cancelled, archiving stale entries once per
// configured interval.
func (a *Archiver) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.archiveOnce(ctx); err != nil {
				a.log.Warn().Err(err).Msg("archive pass failed")
			}
		}
	}
}

func (a *Archiver) archiveOnce(ctx context.Context) error {
	stale, err := a.cache.StaleEntries(ctx, time.Duration(a.afterHours)*time.Hour)
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, doc := range stale {
		if err := enc.Encode(doc); err != nil {
			return err
		}
	}

	key := fmt.Sprintf("%s%d.ndjson", a.prefix, time.Now().UnixNano())
	_, err = a.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(buf.Bytes()),
	})
	if err != nil {
		return fmt.Errorf("historycache: upload archive object: %w", err)
	}

	for _, doc := range stale {
		if err := a.cache.DeleteEntry(ctx, doc.Topic, doc.Interval, doc.Bucket); err != nil {
			a.log.Warn().Err(err).Str("topic", doc.Topic).Msg("failed to delete archived cache entry")
		}
	}

	a.log.Info().Int("count", len(stale)).Str("key", key).Msg("archived stale history cache entries to s3")
	return nil
}
