package cache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/alnah/go-mdposter"
)

// S3Config configures an S3-compatible store.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string // prepended to every object name
	Region    string // empty = looked up from the bucket on first use
	UseSSL    bool
}

// S3Store keeps posters as objects in an S3-compatible bucket.
// Object uploads are atomic, so readers never see a partial poster.
type S3Store struct {
	client *minio.Client
	bucket string
	prefix string

	mu          sync.Mutex
	bucketReady bool
}

// NewS3Store creates an S3Store. No request is made until first use.
func NewS3Store(cfg S3Config) (*S3Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: creating S3 client: %v", mdposter.ErrCacheIO, err)
	}
	return &S3Store{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// ObjectName returns the object name for key.
func (s *S3Store) ObjectName(key string) string {
	return s.prefix + key + Ext
}

// Get downloads the poster stored under key. A missing object or bucket is a miss.
func (s *S3Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := checkKey(key); err != nil {
		return nil, false, err
	}

	obj, err := s.client.GetObject(ctx, s.bucket, s.ObjectName(key), minio.GetObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%w: getting %s: %v", mdposter.ErrCacheIO, key, err)
	}
	defer obj.Close()

	// GetObject is lazy; errors such as NoSuchKey surface on first read.
	data, err := io.ReadAll(obj)
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%w: reading %s: %v", mdposter.ErrCacheIO, key, err)
	}
	return data, true, nil
}

// Put uploads data under key, creating the bucket on first write if needed.
func (s *S3Store) Put(ctx context.Context, key string, data []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if err := s.ensureBucket(ctx); err != nil {
		return err
	}

	_, err := s.client.PutObject(ctx, s.bucket, s.ObjectName(key),
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "image/png"},
	)
	if err != nil {
		return fmt.Errorf("%w: putting %s: %v", mdposter.ErrCacheIO, key, err)
	}
	return nil
}

func (s *S3Store) ensureBucket(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bucketReady {
		return nil
	}

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("%w: checking bucket %s: %v", mdposter.ErrCacheIO, s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			// Another replica may have created it meanwhile.
			if code := minio.ToErrorResponse(err).Code; code != "BucketAlreadyOwnedByYou" && code != "BucketAlreadyExists" {
				return fmt.Errorf("%w: creating bucket %s: %v", mdposter.ErrCacheIO, s.bucket, err)
			}
		}
	}
	s.bucketReady = true
	return nil
}

func isNotFound(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return true
	}
	return false
}
