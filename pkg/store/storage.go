// Package store keeps the directory records as key-value pairs.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/livecast/livecast/pkg/config"
	"github.com/livecast/livecast/pkg/logger"
)

const defaultTimeout = 5 * time.Second

var ErrNotFound = errors.New("not found")

type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// List returns the sorted keys with the prefix.
	List(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// New makes the storage of the configured provider.
func New(conf config.Storage, log *logger.Logger) (Storage, error) {
	timeout := conf.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var st Storage
	var err error
	switch conf.Provider {
	case "memory", "":
		st = NewMemory()
	case "sqlite":
		st, err = NewSqlite(ctx, conf.Path)
	case "s3":
		st, err = NewS3(ctx, conf.S3.Endpoint, conf.Bucket, conf.S3.AccessKeyId, conf.S3.SecretAccessKey, !conf.S3.Insecure, log)
	case "gcs":
		st, err = NewGcs(ctx, conf.Bucket, conf.Gcs.CredentialsFile, log)
	default:
		err = fmt.Errorf("unknown storage provider %q", conf.Provider)
	}
	if err != nil {
		return nil, err
	}
	log.Info().Str("provider", conf.Provider).Msg("storage")
	return st, nil
}
