package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/livecast/livecast/pkg/logger"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3 keeps each key as an object of an S3-compatible bucket.
type S3 struct {
	c      *minio.Client
	bucket string
	log    *logger.Logger
}

func NewS3(ctx context.Context, endpoint, bucket, key, secret string, secure bool, log *logger.Logger) (*S3, error) {
	c, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(key, secret, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, err
	}
	exists, err := c.BucketExists(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("bucket %v doesn't exist", bucket)
	}
	return &S3{c: c, bucket: bucket, log: log}, nil
}

func (s *S3) Get(ctx context.Context, key string) (data []byte, err error) {
	r, err := s.c.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { err = errors.Join(err, r.Close()) }()

	data, err = io.ReadAll(r)
	if isNoSuchKey(err) {
		return nil, ErrNotFound
	}
	return data, err
}

func (s *S3) Put(ctx context.Context, key string, value []byte) error {
	info, err := s.c.PutObject(ctx, s.bucket, key, bytes.NewReader(value), int64(len(value)),
		minio.PutObjectOptions{ContentType: "application/json", SendContentMd5: true})
	if err != nil {
		return err
	}
	s.log.Debug().Str("key", info.Key).Int64("size", info.Size).Msg("s3 put")
	return nil
}

func (s *S3) Delete(ctx context.Context, key string) error {
	if _, err := s.c.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return ErrNotFound
		}
		return err
	}
	return s.c.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
}

func (s *S3) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for obj := range s.c.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		keys = append(keys, obj.Key)
	}
	slices.Sort(keys)
	return keys, nil
}

func (s *S3) Close() error { return nil }

func isNoSuchKey(err error) bool {
	return err != nil && minio.ToErrorResponse(err).Code == "NoSuchKey"
}
