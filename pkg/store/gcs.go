package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"cloud.google.com/go/storage"
	"github.com/livecast/livecast/pkg/logger"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// Gcs keeps each key as an object of a Google Cloud Storage bucket.
type Gcs struct {
	client *storage.Client
	bucket *storage.BucketHandle
	log    *logger.Logger
}

// NewGcs uses the default application credentials when the file is empty.
func NewGcs(ctx context.Context, bucket, credentialsFile string, log *logger.Logger) (*Gcs, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	return &Gcs{client: client, bucket: client.Bucket(bucket), log: log}, nil
}

func (g *Gcs) Get(ctx context.Context, key string) (data []byte, err error) {
	rc, err := g.bucket.Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer func() { err = errors.Join(err, rc.Close()) }()
	return io.ReadAll(rc)
}

func (g *Gcs) Put(ctx context.Context, key string, value []byte) error {
	wc := g.bucket.Object(key).NewWriter(ctx)
	wc.ContentType = "application/json"
	if _, err := wc.Write(value); err != nil {
		_ = wc.Close()
		return err
	}
	return wc.Close()
}

func (g *Gcs) Delete(ctx context.Context, key string) error {
	err := g.bucket.Object(key).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return ErrNotFound
	}
	return err
}

func (g *Gcs) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	it := g.bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		keys = append(keys, attrs.Name)
	}
	slices.Sort(keys)
	return keys, nil
}

func (g *Gcs) Close() error { return g.client.Close() }
