package blob

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path"
	"path/filepath"

	"cloud.google.com/go/storage"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// uploadConcurrency bounds parallel object writes during UploadTree.
const uploadConcurrency = 8

// Bucket is the narrow storage interface the pipeline depends on.
type Bucket interface {
	Download(ctx context.Context, container, object, localPath string) error
	UploadTree(ctx context.Context, localDir, container, prefix string) error
	List(ctx context.Context, container, prefix string) ([]string, error)
}

// TransferError wraps a failed download or upload with the object it was for.
type TransferError struct {
	Op        string
	Container string
	Object    string
	Err       error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s %s/%s: %v", e.Op, e.Container, e.Object, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// Client wraps a Cloud Storage client. Anonymous reports whether credential
// discovery failed and the client was created without authentication, which
// restricts it to public-read access.
type Client struct {
	gcs       *storage.Client
	Anonymous bool
}

// NewClient obtains a storage client using ambient credentials, falling
// back to an unauthenticated client when credential discovery fails.
func NewClient(ctx context.Context) (*Client, error) {
	gcs, err := storage.NewClient(ctx)
	if err == nil {
		return &Client{gcs: gcs}, nil
	}
	log.Printf("blob: credential discovery failed (%v), using anonymous client", err)
	gcs, anonErr := storage.NewClient(ctx, option.WithoutAuthentication())
	if anonErr != nil {
		return nil, fmt.Errorf("blob: create anonymous client: %w", anonErr)
	}
	return &Client{gcs: gcs, Anonymous: true}, nil
}

// Close releases the underlying client.
func (c *Client) Close() error {
	return c.gcs.Close()
}

// Download copies one object to localPath, creating parent directories.
func (c *Client) Download(ctx context.Context, container, object, localPath string) error {
	reader, err := c.gcs.Bucket(container).Object(object).NewReader(ctx)
	if err != nil {
		return &TransferError{Op: "download", Container: container, Object: object, Err: err}
	}
	defer reader.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return fmt.Errorf("blob: create download directory: %w", err)
	}
	dest, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("blob: create download file: %w", err)
	}
	defer dest.Close()

	if _, err := io.Copy(dest, reader); err != nil {
		return &TransferError{Op: "download", Container: container, Object: object, Err: err}
	}
	return nil
}

// UploadTree uploads every regular file under localDir to the container,
// preserving paths relative to localDir under prefix.
func (c *Client) UploadTree(ctx context.Context, localDir, container, prefix string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(uploadConcurrency)

	err := filepath.WalkDir(localDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(localDir, p)
		if err != nil {
			return err
		}
		object := path.Join(prefix, filepath.ToSlash(rel))
		g.Go(func() error {
			return c.upload(ctx, p, container, object)
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("blob: walk %s: %w", localDir, err)
	}
	return g.Wait()
}

func (c *Client) upload(ctx context.Context, localPath, container, object string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("blob: open %s: %w", localPath, err)
	}
	defer src.Close()

	writer := c.gcs.Bucket(container).Object(object).NewWriter(ctx)
	if _, err := io.Copy(writer, src); err != nil {
		writer.Close()
		return &TransferError{Op: "upload", Container: container, Object: object, Err: err}
	}
	if err := writer.Close(); err != nil {
		return &TransferError{Op: "upload", Container: container, Object: object, Err: err}
	}
	return nil
}

// List returns the names of all objects under prefix.
func (c *Client) List(ctx context.Context, container, prefix string) ([]string, error) {
	var names []string
	it := c.gcs.Bucket(container).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, &TransferError{Op: "list", Container: container, Object: prefix, Err: err}
		}
		names = append(names, attrs.Name)
	}
	return names, nil
}
