package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"imagebot/pkg/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

const imageExtension = ".jpg"

// ErrStorage marks every failure raised by the blob store.
var ErrStorage = errors.New("storage error")

// StorageError describes a failed upload or presign call.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// StoredImage is an uploaded image and its time-limited read URL.
type StoredImage struct {
	Key       string
	URL       string
	ExpiresAt time.Time
}

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type objectPresigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Store writes generated images to one bucket and hands out presigned GET URLs.
type S3Store struct {
	bucket      string
	prefix      string
	contentType string
	ttl         time.Duration

	putter    objectPutter
	presigner objectPresigner
	newID     func() string
	now       func() time.Time
	log       *slog.Logger
}

// NewS3Store validates storage settings and wraps an S3 client.
func NewS3Store(cfg config.StorageConfig, client *s3.Client, log *slog.Logger) (*S3Store, error) {
	if client == nil {
		return nil, errors.New("s3 client is required")
	}

	return newS3Store(cfg, client, s3.NewPresignClient(client), log)
}

func newS3Store(cfg config.StorageConfig, putter objectPutter, presigner objectPresigner, log *slog.Logger) (*S3Store, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errors.New("storage.bucket is required")
	}
	if cfg.PresignTTLSeconds <= 0 {
		return nil, fmt.Errorf("storage.presign_ttl_seconds must be positive, got %d", cfg.PresignTTLSeconds)
	}

	prefix := strings.Trim(strings.TrimSpace(cfg.KeyPrefix), "/")
	if prefix == "" {
		prefix = config.DefaultKeyPrefix
	}

	contentType := strings.TrimSpace(cfg.ContentType)
	if contentType == "" {
		contentType = config.DefaultContentType
	}

	if log == nil {
		log = slog.Default()
	}

	return &S3Store{
		bucket:      bucket,
		prefix:      prefix,
		contentType: contentType,
		ttl:         time.Duration(cfg.PresignTTLSeconds) * time.Second,
		putter:      putter,
		presigner:   presigner,
		newID:       uuid.NewString,
		now:         time.Now,
		log:         log.With("component", "storage.s3"),
	}, nil
}

// Store uploads data under a fresh key and presigns a GET for it.
func (s *S3Store) Store(ctx context.Context, data []byte) (StoredImage, error) {
	key := s.newKey()

	_, err := s.putter.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(s.contentType),
	})
	if err != nil {
		return StoredImage{}, &StorageError{Op: "put", Key: key, Err: err}
	}

	issuedAt := s.now()
	presigned, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.ttl))
	if err != nil {
		return StoredImage{}, &StorageError{Op: "presign", Key: key, Err: err}
	}

	s.log.Debug("Stored generated image", "bucket", s.bucket, "key", key, "bytes", len(data))

	return StoredImage{
		Key:       key,
		URL:       presigned.URL,
		ExpiresAt: issuedAt.Add(s.ttl),
	}, nil
}

func (s *S3Store) newKey() string {
	return path.Join(s.prefix, s.newID()+imageExtension)
}
