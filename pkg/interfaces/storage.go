// Package interfaces declares the contracts shared between storage
// implementations and their consumers.
package interfaces

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrObjectNotFound is returned (possibly wrapped) when an object does not
// exist. Any other error from an ObjectStorage means the state of the
// object is unknown.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStorage provides object storage operations for dataset files.
type ObjectStorage interface {
	// Put stores data at key, replacing any previous object. A successful
	// return means the object is durably committed.
	Put(ctx context.Context, key string, data io.Reader, opts PutOptions) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Head(ctx context.Context, key string) (ObjectInfo, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)

	// Location returns the address the query engine reads key from,
	// e.g. "/var/lib/poflow/a.parquet" or "s3://bucket/a.parquet".
	Location(key string) string

	// Scheme returns the storage scheme (e.g., "file", "s3").
	Scheme() string
}

// RemoteCredentials is implemented by storages whose objects need
// credentials to be read by the query engine.
type RemoteCredentials interface {
	QueryCredentials() QueryCredentials
}

// QueryCredentials carries what an embedded engine needs to read objects.
type QueryCredentials struct {
	Region          string
	Endpoint        string // host[:port] without scheme
	UseSSL          bool
	URLStyle        string // "path" or "vhost"
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// ObjectInfo contains metadata about a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ETag         string
	ContentType  string
	Metadata     map[string]string
}

// PutOptions configures write operations.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}
