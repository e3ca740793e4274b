// Package filesystem implements storagedriver.StorageDriver on top of a
// local directory tree.
package filesystem

import (
	"context"
	"io"
	"os"
	"path"

	"github.com/google/uuid"

	"github.com/convergence-vcs/convergence/storagedriver"
	"github.com/convergence-vcs/convergence/storagedriver/factory"
)

const driverName = "filesystem"

func init() {
	factory.Register(driverName, &driverFactory{})
}

type driverFactory struct{}

func (driverFactory) Create(_ context.Context, parameters map[string]any) (storagedriver.StorageDriver, error) {
	root, _ := parameters["rootdirectory"].(string)
	if root == "" {
		root = "/var/lib/convergence"
	}
	return New(root), nil
}

// Driver is a storagedriver.StorageDriver backed by a local filesystem. All
// paths are subpaths of RootDirectory.
type Driver struct {
	RootDirectory string
}

// New constructs a Driver rooted at root.
func New(root string) *Driver {
	return &Driver{RootDirectory: root}
}

func (d *Driver) Name() string { return driverName }

func (d *Driver) subPath(p string) string {
	return path.Join(d.RootDirectory, p)
}

func (d *Driver) GetContent(_ context.Context, p string) ([]byte, error) {
	content, err := os.ReadFile(d.subPath(p))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storagedriver.PathNotFoundError{Path: p}
		}
		return nil, err
	}
	return content, nil
}

// PutContent writes content to a temp file in the same directory and
// renames it into place, so a crash or cancellation never leaves a partial
// write visible at p.
func (d *Driver) PutContent(_ context.Context, p string, content []byte) error {
	fullPath := d.subPath(p)
	if err := os.MkdirAll(path.Dir(fullPath), 0o755); err != nil {
		return err
	}

	tmp := fullPath + ".tmp-" + uuid.NewString()
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, fullPath)
}

func (d *Driver) Reader(_ context.Context, p string, offset int64) (io.ReadCloser, error) {
	file, err := os.Open(d.subPath(p))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storagedriver.PathNotFoundError{Path: p}
		}
		return nil, err
	}

	seekPos, err := file.Seek(offset, io.SeekStart)
	if err != nil {
		file.Close()
		return nil, err
	} else if seekPos < offset {
		file.Close()
		return nil, storagedriver.InvalidOffsetError{Path: p, Offset: offset}
	}
	return file, nil
}

func (d *Driver) Writer(_ context.Context, p string, appendTo bool) (storagedriver.FileWriter, error) {
	fullPath := d.subPath(p)
	if err := os.MkdirAll(path.Dir(fullPath), 0o755); err != nil {
		return nil, err
	}

	var size int64
	if appendTo {
		if fi, err := os.Stat(fullPath); err == nil {
			size = fi.Size()
		}
	}

	flags := os.O_WRONLY | os.O_CREATE
	if appendTo {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	file, err := os.OpenFile(fullPath, flags, 0o644)
	if err != nil {
		return nil, err
	}

	return &fileWriter{file: file, path: fullPath, size: size}, nil
}

func (d *Driver) Stat(_ context.Context, p string) (storagedriver.FileInfo, error) {
	fi, err := os.Stat(d.subPath(p))
	if err != nil {
		if os.IsNotExist(err) {
			return storagedriver.FileInfo{}, storagedriver.PathNotFoundError{Path: p}
		}
		return storagedriver.FileInfo{}, err
	}
	return storagedriver.FileInfo{
		Path:    p,
		Size:    fi.Size(),
		IsDir:   fi.IsDir(),
		ModTime: fi.ModTime().Unix(),
	}, nil
}

func (d *Driver) List(_ context.Context, p string) ([]string, error) {
	fullPath := d.subPath(p)
	dir, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storagedriver.PathNotFoundError{Path: p}
		}
		return nil, err
	}
	defer dir.Close()

	names, err := dir.Readdirnames(0)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(names))
	for _, name := range names {
		keys = append(keys, path.Join(p, name))
	}
	return keys, nil
}

func (d *Driver) Move(_ context.Context, sourcePath, destPath string) error {
	source := d.subPath(sourcePath)
	dest := d.subPath(destPath)

	if _, err := os.Stat(source); os.IsNotExist(err) {
		return storagedriver.PathNotFoundError{Path: sourcePath}
	}
	if err := os.MkdirAll(path.Dir(dest), 0o755); err != nil {
		return err
	}
	return os.Rename(source, dest)
}

func (d *Driver) Delete(_ context.Context, p string) error {
	fullPath := d.subPath(p)
	if _, err := os.Stat(fullPath); err != nil {
		if os.IsNotExist(err) {
			return storagedriver.PathNotFoundError{Path: p}
		}
		return err
	}
	return os.RemoveAll(fullPath)
}

type fileWriter struct {
	file   *os.File
	path   string
	size   int64
	closed bool
}

func (w *fileWriter) Write(p []byte) (int, error) {
	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *fileWriter) Size() int64 { return w.size }

func (w *fileWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.file.Close()
}

// Commit finalizes the write; the filesystem driver writes in place so
// there is nothing further to move.
func (w *fileWriter) Commit() error {
	return w.Close()
}

// Cancel discards the partial write.
func (w *fileWriter) Cancel() error {
	w.Close()
	return os.Remove(w.path)
}
