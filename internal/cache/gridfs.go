package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const gridfsScheme = "gridfs://"

// GridFSStore keeps staged media in a MongoDB GridFS bucket. Useful when
// the runners share no filesystem but can all reach one database.
type GridFSStore struct {
	client *mongo.Client
	bucket *gridfs.Bucket
}

func NewGridFSStore(ctx context.Context, uri, database, bucketName string) (*GridFSStore, error) {
	if strings.TrimSpace(uri) == "" {
		return nil, fmt.Errorf("%w: mongo URI is required", ErrBackendUnavailable)
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %v", ErrBackendUnavailable, err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("%w: ping: %v", ErrBackendUnavailable, err)
	}
	opts := options.GridFSBucket()
	if strings.TrimSpace(bucketName) != "" {
		opts = opts.SetName(bucketName)
	}
	bucket, err := gridfs.NewBucket(client.Database(database), opts)
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("%w: open bucket: %v", ErrBackendUnavailable, err)
	}
	return &GridFSStore{client: client, bucket: bucket}, nil
}

func (g *GridFSStore) Close(ctx context.Context) error {
	return g.client.Disconnect(ctx)
}

func (g *GridFSStore) Stage(ctx context.Context, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %v", ErrUploadFailed, localPath, err)
	}
	defer f.Close()

	id := primitive.NewObjectID()
	stream, err := g.bucket.OpenUploadStreamWithID(id, filepath.Base(localPath))
	if err != nil {
		return "", fmt.Errorf("%w: open upload stream: %v", ErrUploadFailed, err)
	}
	if _, err := io.Copy(stream, f); err != nil {
		_ = stream.Abort()
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	if err := stream.Close(); err != nil {
		return "", fmt.Errorf("%w: finalize upload: %v", ErrUploadFailed, err)
	}
	return gridfsScheme + id.Hex(), nil
}

func (g *GridFSStore) Fetch(ctx context.Context, locator, localPath string) error {
	id, err := g.objectID(locator)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(localPath), ".cache-tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	tmpPath := tmp.Name()
	_, err = g.bucket.DownloadToStream(id, tmp)
	closeErr := tmp.Close()
	if err != nil {
		_ = os.Remove(tmpPath)
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, locator)
		}
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: %v", ErrTransferFailed, closeErr)
	}
	if err := os.Rename(tmpPath, localPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	return nil
}

func (g *GridFSStore) Evict(ctx context.Context, locator string) error {
	id, err := g.objectID(locator)
	if err != nil {
		return err
	}
	if err := g.bucket.Delete(id); err != nil && !errors.Is(err, gridfs.ErrFileNotFound) {
		return fmt.Errorf("evict %s: %w", locator, err)
	}
	return nil
}

func (g *GridFSStore) objectID(locator string) (primitive.ObjectID, error) {
	if !strings.HasPrefix(locator, gridfsScheme) {
		return primitive.NilObjectID, fmt.Errorf("%w: locator %q is not a gridfs locator", ErrNotFound, locator)
	}
	id, err := primitive.ObjectIDFromHex(strings.TrimPrefix(locator, gridfsScheme))
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: malformed locator %q", ErrNotFound, locator)
	}
	return id, nil
}
