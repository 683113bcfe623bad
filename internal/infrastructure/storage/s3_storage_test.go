package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/notaria/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeObjectAPI struct {
	puts        []*s3.PutObjectInput
	bodies      []string
	putErr      error
	headErr     error
	createErr   error
	createCalls int
}

func (f *fakeObjectAPI) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	body, _ := io.ReadAll(in.Body)
	f.puts = append(f.puts, in)
	f.bodies = append(f.bodies, string(body))
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjectAPI) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, f.headErr
}

func (f *fakeObjectAPI) CreateBucket(context.Context, *s3.CreateBucketInput, ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.createCalls++
	return &s3.CreateBucketOutput{}, f.createErr
}

func fixedClock() time.Time {
	return time.Date(2026, 1, 28, 14, 5, 9, 0, time.UTC)
}

func TestNewS3ArchiveStore_Validation(t *testing.T) {
	ctx := context.Background()

	_, err := NewS3ArchiveStore(ctx, nil)
	assert.ErrorContains(t, err, "configuration is required")

	_, err = NewS3ArchiveStore(ctx, &config.StorageConfig{})
	assert.ErrorContains(t, err, "bucket is required")

	_, err = NewS3ArchiveStore(ctx, &config.StorageConfig{Bucket: "b", AccessKeyID: "key"})
	assert.ErrorContains(t, err, "must be set together")

	store, err := NewS3ArchiveStore(ctx, &config.StorageConfig{
		Bucket:          "koinor-archive",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		Endpoint:        "localhost:9000",
		UsePathStyle:    true,
		Prefix:          "/koinor/",
	})
	require.NoError(t, err)
	assert.Equal(t, "koinor", store.prefix)
}

func TestS3ArchiveStore_Archive(t *testing.T) {
	api := &fakeObjectAPI{}
	store := newS3ArchiveStore(api, "archive", "koinor", WithClock(fixedClock), WithLogger(zaptest.NewLogger(t)))

	key, err := store.Archive(context.Background(), "uploads/estado cuenta.xml", []byte("<xml/>"))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(key, "koinor/2026/01/28/140509_"), key)
	assert.True(t, strings.HasSuffix(key, "_estado_cuenta.xml"), key)
	require.Len(t, api.puts, 1)
	assert.Equal(t, "archive", *api.puts[0].Bucket)
	assert.Equal(t, key, *api.puts[0].Key)
	assert.Equal(t, "<xml/>", api.bodies[0])
	assert.Equal(t, "uploads/estado cuenta.xml", api.puts[0].Metadata["original-name"])
	assert.Len(t, api.puts[0].Metadata["sha256"], 64)

	t.Run("same content yields same digest segment", func(t *testing.T) {
		again, err := store.Archive(context.Background(), "estado cuenta.xml", []byte("<xml/>"))
		require.NoError(t, err)
		assert.Equal(t, key, again)
	})

	t.Run("put failure is returned", func(t *testing.T) {
		api.putErr = errors.New("access denied")
		_, err := store.Archive(context.Background(), "x.xml", nil)
		assert.ErrorContains(t, err, "access denied")
	})
}

func TestS3ArchiveStore_EnsureBucket(t *testing.T) {
	ctx := context.Background()

	t.Run("existing bucket", func(t *testing.T) {
		api := &fakeObjectAPI{}
		require.NoError(t, newS3ArchiveStore(api, "b", "").EnsureBucket(ctx))
		assert.Zero(t, api.createCalls)
	})

	t.Run("missing bucket is created", func(t *testing.T) {
		api := &fakeObjectAPI{headErr: &types.NotFound{}}
		require.NoError(t, newS3ArchiveStore(api, "b", "").EnsureBucket(ctx))
		assert.Equal(t, 1, api.createCalls)
	})

	t.Run("create race is tolerated", func(t *testing.T) {
		api := &fakeObjectAPI{headErr: &types.NoSuchBucket{}, createErr: &types.BucketAlreadyOwnedByYou{}}
		assert.NoError(t, newS3ArchiveStore(api, "b", "").EnsureBucket(ctx))
	})

	t.Run("other head errors are returned", func(t *testing.T) {
		api := &fakeObjectAPI{headErr: errors.New("forbidden")}
		assert.Error(t, newS3ArchiveStore(api, "b", "").EnsureBucket(ctx))
	})
}

func TestSanitizeFileName(t *testing.T) {
	tests := map[string]string{
		"cxc_20260128.xml":         "cxc_20260128.xml",
		"C:\\exports\\mov día.xml": "mov_da.xml",
		"../../etc/passwd":         "passwd",
		"":                         "feed.xml",
		"***":                      "feed.xml",
	}
	for in, want := range tests {
		assert.Equal(t, want, sanitizeFileName(in), in)
	}
}
