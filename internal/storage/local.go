package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
)

// LocalBucket keeps objects as files under a root directory. It backs
// development and tests; production deployments point at S3.
type LocalBucket struct {
	root string
}

func NewLocalBucket(root string) (*LocalBucket, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &LocalBucket{root: root}, nil
}

func (b *LocalBucket) path(key string) string {
	return filepath.Join(b.root, filepath.FromSlash(key))
}

func (b *LocalBucket) Put(ctx context.Context, key string, body io.Reader, contentType string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	dst := b.path(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

func (b *LocalBucket) PutFile(ctx context.Context, key, path, contentType string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return b.Put(ctx, key, f, contentType)
}

func (b *LocalBucket) Get(ctx context.Context, key string, offset, length int64) (io.ReadCloser, *ObjectInfo, error) {
	if err := validateKey(key); err != nil {
		return nil, nil, err
	}
	f, err := os.Open(b.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	info := &ObjectInfo{Key: key, Size: st.Size(), ContentType: ContentTypeForKey(key)}

	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			f.Close()
			return nil, nil, err
		}
	}
	if length >= 0 {
		return readCloser{Reader: io.LimitReader(f, length), Closer: f}, info, nil
	}
	return f, info, nil
}

func (b *LocalBucket) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	st, err := os.Stat(b.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ObjectInfo{Key: key, Size: st.Size(), ContentType: ContentTypeForKey(key)}, nil
}

func (b *LocalBucket) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	err := os.Remove(b.path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// PresignGet returns "" so callers fall back to streaming through the API.
func (b *LocalBucket) PresignGet(ctx context.Context, key string) (string, error) {
	return "", nil
}

type readCloser struct {
	io.Reader
	io.Closer
}

var _ Bucket = (*LocalBucket)(nil)
