package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logflow/poflow/pkg/interfaces"
)

// fakeAPI keeps objects in a map and can be told to fail.
type fakeAPI struct {
	mu      sync.Mutex
	objects map[string][]byte
	failGet error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{objects: make(map[string][]byte)}
}

func (f *fakeAPI) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGet != nil {
		return nil, f.failGet
	}
	b, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("missing")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func (f *fakeAPI) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = b
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeAPI) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(b))),
		LastModified:  aws.Time(time.Unix(1700000000, 0)),
	}, nil
}

func (f *fakeAPI) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func newTestClient(cfg Config) (*Client, *fakeAPI) {
	fake := newFakeAPI()
	if cfg.OperationTimeout == 0 {
		cfg.OperationTimeout = time.Second
	}
	return &Client{cfg: cfg, client: fake}, fake
}

func TestClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(DefaultConfig("po-data", "us-east-1"))
	key := "analytics/heritage/purchase_orders.parquet"

	_, err := c.Get(ctx, key)
	assert.True(t, errors.Is(err, interfaces.ErrObjectNotFound), "%v", err)
	ok, err := c.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, key, strings.NewReader("PAR1"), interfaces.PutOptions{ContentType: "application/octet-stream"}))

	rc, err := c.Get(ctx, key)
	require.NoError(t, err)
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "PAR1", string(b))

	info, err := c.Head(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(4), info.Size)

	require.NoError(t, c.Delete(ctx, key))
	_, err = c.Head(ctx, key)
	assert.True(t, errors.Is(err, interfaces.ErrObjectNotFound))
}

func TestClientTransientErrorIsNotNotFound(t *testing.T) {
	c, fake := newTestClient(DefaultConfig("po-data", "us-east-1"))
	fake.failGet = fmt.Errorf("connection reset by peer")

	_, err := c.Get(context.Background(), "k")
	require.Error(t, err)
	assert.False(t, errors.Is(err, interfaces.ErrObjectNotFound))
}

func TestLocationAndCredentials(t *testing.T) {
	c, _ := newTestClient(Config{
		Bucket:          "po-data",
		Region:          "us-west-1",
		Endpoint:        "http://localhost:9000",
		UsePathStyle:    true,
		AccessKeyID:     "AK",
		SecretAccessKey: "SK",
	})
	assert.Equal(t, "s3", c.Scheme())
	assert.Equal(t, "s3://po-data/analytics/a/purchase_orders.parquet", c.Location("analytics/a/purchase_orders.parquet"))

	qc := c.QueryCredentials()
	assert.Equal(t, "localhost:9000", qc.Endpoint)
	assert.False(t, qc.UseSSL)
	assert.Equal(t, "path", qc.URLStyle)
	assert.Equal(t, "us-west-1", qc.Region)
	assert.Equal(t, "AK", qc.AccessKeyID)
}

func TestSplitEndpoint(t *testing.T) {
	host, ssl := splitEndpoint("s3.wasabisys.com")
	assert.Equal(t, "s3.wasabisys.com", host)
	assert.True(t, ssl)

	host, ssl = splitEndpoint("https://s3.us-east-2.wasabisys.com/")
	assert.Equal(t, "s3.us-east-2.wasabisys.com", host)
	assert.True(t, ssl)
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(fmt.Errorf("wrapped: %w", &types.NoSuchKey{})))
	assert.True(t, isNotFound(&types.NotFound{}))
	assert.False(t, isNotFound(errors.New("timeout")))
}
