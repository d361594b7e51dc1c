package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"time"

	"cloud.google.com/go/storage"
	"github.com/Veraticus/orderproof/internal/common"
	"github.com/Veraticus/orderproof/internal/gauth"
)

// sourceMtimeKey is the object metadata key holding the local file's
// modification time at upload.
const sourceMtimeKey = "source-mtime"

// GCSStore stores artifacts as objects in a Cloud Storage bucket.
type GCSStore struct {
	client    *storage.Client
	bucket    string
	prefix    string
	publicACL bool
}

// GCSConfig configures a GCSStore.
type GCSConfig struct {
	Bucket string
	Prefix string
	// PublicACL grants allUsers read access on each object. Leave it off for
	// buckets with uniform bucket-level access and grant access on the bucket.
	PublicACL bool
}

// NewGCSStore creates a Cloud Storage backed store.
func NewGCSStore(ctx context.Context, creds gauth.Credentials, config GCSConfig) (*GCSStore, error) {
	if config.Bucket == "" {
		return nil, fmt.Errorf("%w: gcs bucket", common.ErrMissingConfig)
	}

	opts, err := gauth.ClientOptions(ctx, creds, storage.ScopeFullControl)
	if err != nil {
		return nil, err
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	return &GCSStore{
		client:    client,
		bucket:    config.Bucket,
		prefix:    config.Prefix,
		publicACL: config.PublicACL,
	}, nil
}

func (g *GCSStore) objectName(name string) string {
	if g.prefix == "" {
		return name
	}
	return path.Join(g.prefix, name)
}

// Stat implements ObjectStore.
func (g *GCSStore) Stat(ctx context.Context, name string) (*RemoteObject, error) {
	objName := g.objectName(name)
	attrs, err := g.client.Bucket(g.bucket).Object(objName).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("gcs object %s: %w", objName, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("stat gcs object %s: %w", objName, err)
	}
	return gcsObject(attrs), nil
}

// Upload implements ObjectStore. Writing the same object name replaces its
// content, so existing is only informational here.
func (g *GCSStore) Upload(ctx context.Context, localPath, name string, _ *RemoteObject) (*RemoteObject, error) {
	f, err := os.Open(localPath) // #nosec G304
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	objName := g.objectName(name)
	w := g.client.Bucket(g.bucket).Object(objName).NewWriter(ctx)
	w.ContentType = "image/png"
	w.Metadata = map[string]string{
		sourceMtimeKey: info.ModTime().UTC().Format(time.RFC3339Nano),
	}

	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("write gcs object %s: %w", objName, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalize gcs object %s: %w", objName, err)
	}

	return gcsObject(w.Attrs()), nil
}

// PublicLink implements ObjectStore.
func (g *GCSStore) PublicLink(ctx context.Context, obj *RemoteObject) (string, error) {
	if g.publicACL {
		acl := g.client.Bucket(g.bucket).Object(obj.ID).ACL()
		if err := acl.Set(ctx, storage.AllUsers, storage.RoleReader); err != nil {
			return "", fmt.Errorf("make %s public: %w", obj.ID, err)
		}
	}
	return GCSPublicURL(g.bucket, obj.ID), nil
}

// Close releases the storage client.
func (g *GCSStore) Close() error {
	return g.client.Close()
}

// GCSPublicURL returns the public HTTPS URL of an object.
func GCSPublicURL(bucket, object string) string {
	u := url.URL{Scheme: "https", Host: "storage.googleapis.com", Path: "/" + bucket + "/" + object}
	return u.String()
}

func gcsObject(attrs *storage.ObjectAttrs) *RemoteObject {
	obj := &RemoteObject{ID: attrs.Name, Name: path.Base(attrs.Name), ModifiedAt: attrs.Updated}
	if v, ok := attrs.Metadata[sourceMtimeKey]; ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			obj.ModifiedAt = t
		}
	}
	return obj
}
