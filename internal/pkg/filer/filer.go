package filer

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"path"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Options for connecting to minio
type Options struct {
	URL    string
	User   string
	Key    string
	Bucket string
	SSL    bool
}

// Filer loads/saves audio clips and model artifacts in minio
type Filer struct {
	client *minio.Client
	bucket string
}

// NewFiler creates minio backed file storage
func NewFiler(ctx context.Context, opts Options) (*Filer, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("no URL")
	}
	if opts.Bucket == "" {
		return nil, fmt.Errorf("no bucket")
	}
	cl, err := minio.New(opts.URL, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.User, opts.Key, ""),
		Secure: opts.SSL,
	})
	if err != nil {
		return nil, fmt.Errorf("can't init minio client: %w", err)
	}
	res := &Filer{client: cl, bucket: opts.Bucket}
	exists, err := cl.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("can't check bucket: %w", err)
	}
	if !exists {
		if err := cl.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("can't create bucket: %w", err)
		}
		goapp.Log.Info().Str("bucket", opts.Bucket).Msg("created")
	}
	return res, nil
}

// SaveFile stores a file
func (f *Filer) SaveFile(ctx context.Context, name string, r io.Reader, fileSize int64) error {
	goapp.Log.Debug().Str("name", name).Msg("saving")
	_, err := f.client.PutObject(ctx, f.bucket, name, r, fileSize, minio.PutObjectOptions{})
	if err != nil {
		return fmt.Errorf("can't save '%s': %w", name, err)
	}
	return nil
}

// LoadFile retrieves a file by name
func (f *Filer) LoadFile(ctx context.Context, name string) (io.ReadSeekCloser, error) {
	goapp.Log.Debug().Str("name", name).Msg("loading")
	obj, err := f.client.GetObject(ctx, f.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("can't load '%s': %w", name, err)
	}
	// GetObject is lazy, make sure the object exists
	info, err := obj.Stat()
	if err != nil {
		return nil, fmt.Errorf("can't load '%s': %w", name, err)
	}
	return &file{Object: obj, info: info}, nil
}

// file adapts a minio object to the fs style Stat the web layer serves from.
// The minio object's own Stat returns minio.ObjectInfo, not fs.FileInfo
type file struct {
	*minio.Object
	info minio.ObjectInfo
}

func (f *file) Stat() (fs.FileInfo, error) {
	return fileInfo{info: f.info}, nil
}

type fileInfo struct {
	info minio.ObjectInfo
}

func (fi fileInfo) Name() string       { return path.Base(fi.info.Key) }
func (fi fileInfo) Size() int64        { return fi.info.Size }
func (fi fileInfo) Mode() fs.FileMode  { return 0 }
func (fi fileInfo) ModTime() time.Time { return fi.info.LastModified }
func (fi fileInfo) IsDir() bool        { return false }
func (fi fileInfo) Sys() interface{}   { return nil }

// Clean drops every object of the job
func (f *Filer) Clean(ctx context.Context, id string) error {
	return f.RemovePrefix(ctx, id+"/")
}

// RemovePrefix drops all objects under the prefix,
// used for stage cleanup and cascading job deletes
func (f *Filer) RemovePrefix(ctx context.Context, prefix string) error {
	goapp.Log.Info().Str("prefix", prefix).Msg("removing")
	objCh := f.client.ListObjects(ctx, f.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true})
	count := 0
	for obj := range objCh {
		if obj.Err != nil {
			return fmt.Errorf("can't list '%s': %w", prefix, obj.Err)
		}
		if err := f.client.RemoveObject(ctx, f.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("can't remove '%s': %w", obj.Key, err)
		}
		count++
	}
	goapp.Log.Info().Str("prefix", prefix).Int("count", count).Msg("removed")
	return nil
}
