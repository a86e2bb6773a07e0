package storage

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/carvision/pkg/types"
)

func sampleCar(id string) types.Car {
	return types.Car{
		ID:         id,
		Brand:      "Porsche",
		Model:      "911 GT3",
		Horsepower: "510 hp",
		ImageURL:   "file:///tmp/cars/" + id + ".jpg",
		CreatedAt:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func pngData(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	return buf.Bytes()
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "cars/abc.jpg", ObjectKey("abc", "jpg"))
	assert.Equal(t, "cars/abc.webp", ObjectKey("abc", ".webp"))
	assert.Equal(t, "cars/abc.jpg", ObjectKey("abc", ""))
}

func TestValidateKey(t *testing.T) {
	assert.NoError(t, validateKey("cars/a.jpg"))
	for _, key := range []string{"", "/cars/a.jpg", "cars/../a.jpg", "cars//a.jpg", "./a"} {
		assert.ErrorIs(t, validateKey(key), ErrInvalidKey, key)
	}
	assert.ErrorIs(t, validateID("../x"), ErrInvalidKey)
	assert.ErrorIs(t, validateID(""), ErrInvalidKey)
}

func testDocumentStore(t *testing.T, store DocumentStore) {
	ctx := context.Background()

	cars, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, cars)

	a, b := sampleCar("a"), sampleCar("b")
	require.NoError(t, store.Put(ctx, b))
	require.NoError(t, store.Put(ctx, a))

	a.IsFavorite = true
	require.NoError(t, store.Put(ctx, a))

	cars, err = store.List(ctx)
	require.NoError(t, err)
	require.Len(t, cars, 2)
	assert.Equal(t, "a", cars[0].ID)
	assert.True(t, cars[0].IsFavorite)
	assert.True(t, cars[0].CreatedAt.Equal(a.CreatedAt))
	assert.Equal(t, "911 GT3", cars[1].Model)

	require.NoError(t, store.Delete(ctx, "a"))
	require.NoError(t, store.Delete(ctx, "missing"))

	cars, err = store.List(ctx)
	require.NoError(t, err)
	require.Len(t, cars, 1)
	assert.Equal(t, "b", cars[0].ID)

	assert.ErrorIs(t, store.Put(ctx, types.Car{}), ErrInvalidKey)
}

func testObjectStore(t *testing.T, store ObjectStore) {
	ctx := context.Background()
	data := pngData(t)

	url, err := store.Put(ctx, ObjectKey("a", "png"), data)
	require.NoError(t, err)
	assert.NotEmpty(t, url)

	got, err := store.Get(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	require.NoError(t, store.Delete(ctx, url))

	_, err = store.Get(ctx, url)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Put(ctx, "../escape.png", data)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestLocalDocuments(t *testing.T) {
	store, err := NewLocalDocuments(t.TempDir(), nil)
	require.NoError(t, err)
	testDocumentStore(t, store)
}

func TestLocalDocumentsSkipsInvalidJSON(t *testing.T) {
	dir := t.TempDir()
	logger, hook := test.NewNullLogger()
	store, err := NewLocalDocuments(dir, logger)
	require.NoError(t, err)

	require.NoError(t, store.Put(context.Background(), sampleCar("ok")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{"), 0o644))

	cars, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, cars, 1)
	assert.Equal(t, "ok", cars[0].ID)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestLocalObjects(t *testing.T) {
	store, err := NewLocalObjects(t.TempDir())
	require.NoError(t, err)
	testObjectStore(t, store)
}

func TestLocalObjectsRejectsForeignURL(t *testing.T) {
	store, err := NewLocalObjects(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "file:///etc/passwd")
	assert.ErrorIs(t, err, ErrInvalidKey)
	assert.ErrorIs(t, store.Delete(context.Background(), "https://example.com/cars/a.jpg"), ErrInvalidKey)
}

func TestMemoryStores(t *testing.T) {
	testDocumentStore(t, NewMemoryDocuments())
	testObjectStore(t, NewMemoryObjects())
}

type fakeRedis struct {
	redis.Cmdable
	hashes map[string]map[string]string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{hashes: make(map[string]map[string]string)}
}

func (f *fakeRedis) HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	h, ok := f.hashes[key]
	if !ok {
		h = make(map[string]string)
		f.hashes[key] = h
	}
	for i := 0; i+1 < len(values); i += 2 {
		h[values[i].(string)] = values[i+1].(string)
	}
	return redis.NewIntResult(int64(len(values)/2), nil)
}

func (f *fakeRedis) HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd {
	out := make(map[string]string)
	for k, v := range f.hashes[key] {
		out[k] = v
	}
	return redis.NewMapStringStringResult(out, nil)
}

func (f *fakeRedis) HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd {
	var n int64
	for _, field := range fields {
		if _, ok := f.hashes[key][field]; ok {
			delete(f.hashes[key], field)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func TestRedisDocuments(t *testing.T) {
	rdb := newFakeRedis()
	store := NewRedisDocuments(rdb, "", nil)
	testDocumentStore(t, store)

	assert.Contains(t, rdb.hashes, DefaultHashKey)
	assert.Contains(t, rdb.hashes[DefaultHashKey], "b")
}

func TestRedisDocumentsSkipsInvalidJSON(t *testing.T) {
	rdb := newFakeRedis()
	rdb.hashes["garage"] = map[string]string{"bad": "not json"}
	logger, hook := test.NewNullLogger()

	store := NewRedisDocuments(rdb, "garage", logger)
	require.NoError(t, store.Put(context.Background(), sampleCar("ok")))

	cars, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, cars, 1)
	assert.Len(t, hook.AllEntries(), 1)
}

type fakeS3 struct {
	s3iface.S3API
	objects      map[string][]byte
	contentTypes map[string]string
	acls         map[string]string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		objects:      make(map[string][]byte),
		contentTypes: make(map[string]string),
		acls:         make(map[string]string),
	}
}

func (f *fakeS3) PutObjectWithContext(ctx aws.Context, in *s3.PutObjectInput, opts ...request.Option) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	key := aws.StringValue(in.Bucket) + "/" + aws.StringValue(in.Key)
	f.objects[key] = data
	f.contentTypes[key] = aws.StringValue(in.ContentType)
	f.acls[key] = aws.StringValue(in.ACL)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObjectWithContext(ctx aws.Context, in *s3.GetObjectInput, opts ...request.Option) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.StringValue(in.Bucket)+"/"+aws.StringValue(in.Key)]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "the specified key does not exist", nil)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObjectWithContext(ctx aws.Context, in *s3.DeleteObjectInput, opts ...request.Option) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.StringValue(in.Bucket)+"/"+aws.StringValue(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Objects(t *testing.T) {
	svc := newFakeS3()
	store := NewS3Objects(svc, "garage", "https://cdn.example.com/", "public-read")
	testObjectStore(t, store)

	url, err := store.Put(context.Background(), "cars/x.png", pngData(t))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/cars/x.png", url)
	assert.Equal(t, "image/png", svc.contentTypes["garage/cars/x.png"])
	assert.Equal(t, "public-read", svc.acls["garage/cars/x.png"])
}

func TestS3ObjectsRejectsForeignURL(t *testing.T) {
	store := NewS3Objects(newFakeS3(), "garage", "https://cdn.example.com", "")
	err := store.Delete(context.Background(), "https://other.example.com/cars/x.png")
	assert.True(t, errors.Is(err, ErrInvalidKey))
}

func TestPublicURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  S3Config
		want string
	}{
		{"explicit", S3Config{Bucket: "b", PublicURL: "https://cdn"}, "https://cdn"},
		{"aws", S3Config{Bucket: "b", Region: "eu-west-1"}, "https://b.s3.eu-west-1.amazonaws.com"},
		{"path style", S3Config{Bucket: "b", Endpoint: "http://minio:9000/", UsePathStyleEndpoint: true}, "http://minio:9000/b"},
		{"virtual host", S3Config{Bucket: "b", Endpoint: "https://storage.example.com"}, "https://b.storage.example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, publicURL(tt.cfg))
		})
	}
}

func TestOpenS3ObjectsRequiresBucket(t *testing.T) {
	_, err := OpenS3Objects(S3Config{})
	assert.Error(t, err)
}
