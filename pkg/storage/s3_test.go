package storage

import (
	"context"
	"errors"
	"io"
	"regexp"
	"testing"
	"time"

	"imagebot/pkg/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutter) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = params
	if params.Body != nil {
		f.body, _ = io.ReadAll(params.Body)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

type fakePresigner struct {
	input   *s3.GetObjectInput
	expires time.Duration
	err     error
}

func (f *fakePresigner) PresignGetObject(_ context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	f.input = params
	var opts s3.PresignOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	f.expires = opts.Expires
	if f.err != nil {
		return nil, f.err
	}
	return &v4.PresignedHTTPRequest{URL: "https://images.s3.amazonaws.com/" + aws.ToString(params.Key) + "?X-Amz-Expires=3600"}, nil
}

func testStorageConfig() config.StorageConfig {
	return config.StorageConfig{
		Bucket:            "images",
		KeyPrefix:         config.DefaultKeyPrefix,
		ContentType:       config.DefaultContentType,
		PresignTTLSeconds: config.DefaultPresignTTLSeconds,
	}
}

func TestStoreUploadsAndPresigns(t *testing.T) {
	putter := &fakePutter{}
	presigner := &fakePresigner{}
	store, err := newS3Store(testStorageConfig(), putter, presigner, nil)
	require.NoError(t, err)

	issued := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	store.now = func() time.Time { return issued }
	store.newID = func() string { return "0192-abc" }

	image, err := store.Store(context.Background(), []byte("jpeg-bytes"))
	require.NoError(t, err)

	require.Equal(t, "generated/0192-abc.jpg", image.Key)
	require.Equal(t, "https://images.s3.amazonaws.com/generated/0192-abc.jpg?X-Amz-Expires=3600", image.URL)
	require.Equal(t, issued.Add(time.Hour), image.ExpiresAt)

	require.Equal(t, "images", aws.ToString(putter.input.Bucket))
	require.Equal(t, "generated/0192-abc.jpg", aws.ToString(putter.input.Key))
	require.Equal(t, "image/jpeg", aws.ToString(putter.input.ContentType))
	require.Equal(t, []byte("jpeg-bytes"), putter.body)

	require.Equal(t, "generated/0192-abc.jpg", aws.ToString(presigner.input.Key))
	require.Equal(t, 3600*time.Second, presigner.expires)
}

func TestStoreGeneratesUniqueKeys(t *testing.T) {
	store, err := newS3Store(testStorageConfig(), &fakePutter{}, &fakePresigner{}, nil)
	require.NoError(t, err)

	pattern := regexp.MustCompile(`^generated/[0-9a-f-]{36}\.jpg$`)
	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		image, err := store.Store(context.Background(), []byte("x"))
		require.NoError(t, err)
		require.Regexp(t, pattern, image.Key)
		_, dup := seen[image.Key]
		require.False(t, dup, "duplicate key %s", image.Key)
		seen[image.Key] = struct{}{}
	}
}

func TestStoreUploadFailure(t *testing.T) {
	presigner := &fakePresigner{}
	store, err := newS3Store(testStorageConfig(), &fakePutter{err: errors.New("access denied")}, presigner, nil)
	require.NoError(t, err)

	_, err = store.Store(context.Background(), []byte("x"))
	require.ErrorIs(t, err, ErrStorage)

	var storageErr *StorageError
	require.ErrorAs(t, err, &storageErr)
	require.Equal(t, "put", storageErr.Op)
	require.Nil(t, presigner.input, "presign must not run after a failed upload")
}

func TestStorePresignFailure(t *testing.T) {
	store, err := newS3Store(testStorageConfig(), &fakePutter{}, &fakePresigner{err: errors.New("no credentials")}, nil)
	require.NoError(t, err)

	_, err = store.Store(context.Background(), []byte("x"))
	require.ErrorIs(t, err, ErrStorage)

	var storageErr *StorageError
	require.ErrorAs(t, err, &storageErr)
	require.Equal(t, "presign", storageErr.Op)
}

func TestNewS3StoreValidation(t *testing.T) {
	cfg := testStorageConfig()
	cfg.Bucket = " "
	_, err := newS3Store(cfg, &fakePutter{}, &fakePresigner{}, nil)
	require.Error(t, err)

	cfg = testStorageConfig()
	cfg.PresignTTLSeconds = 0
	_, err = newS3Store(cfg, &fakePutter{}, &fakePresigner{}, nil)
	require.Error(t, err)

	_, err = NewS3Store(testStorageConfig(), nil, nil)
	require.Error(t, err)
}
