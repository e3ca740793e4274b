// Package inmemory implements storagedriver.StorageDriver backed by a
// process-local map. Intended for tests and for workspace scratch stores,
// not production durability.
package inmemory

import (
	"bytes"
	"context"
	"io"
	"regexp"
	"strings"
	"sync"

	"github.com/convergence-vcs/convergence/storagedriver"
	"github.com/convergence-vcs/convergence/storagedriver/factory"
)

const driverName = "inmemory"

func init() {
	factory.Register(driverName, &driverFactory{})
}

type driverFactory struct{}

func (driverFactory) Create(context.Context, map[string]any) (storagedriver.StorageDriver, error) {
	return New(), nil
}

// Driver is a storagedriver.StorageDriver backed by a local map.
type Driver struct {
	mu      sync.RWMutex
	storage map[string][]byte
}

// New constructs an empty Driver.
func New() *Driver {
	return &Driver{storage: make(map[string][]byte)}
}

func (d *Driver) Name() string { return driverName }

func (d *Driver) GetContent(_ context.Context, p string) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	content, ok := d.storage[p]
	if !ok {
		return nil, storagedriver.PathNotFoundError{Path: p}
	}
	out := make([]byte, len(content))
	copy(out, content)
	return out, nil
}

func (d *Driver) PutContent(_ context.Context, p string, content []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := make([]byte, len(content))
	copy(cp, content)
	d.storage[p] = cp
	return nil
}

func (d *Driver) Reader(_ context.Context, p string, offset int64) (io.ReadCloser, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	content, ok := d.storage[p]
	if !ok {
		return nil, storagedriver.PathNotFoundError{Path: p}
	}
	if offset > int64(len(content)) {
		return nil, storagedriver.InvalidOffsetError{Path: p, Offset: offset}
	}
	return io.NopCloser(bytes.NewReader(content[offset:])), nil
}

func (d *Driver) Writer(_ context.Context, p string, appendTo bool) (storagedriver.FileWriter, error) {
	var initial []byte
	if appendTo {
		d.mu.RLock()
		if existing, ok := d.storage[p]; ok {
			initial = append(initial, existing...)
		}
		d.mu.RUnlock()
	}
	return &fileWriter{driver: d, path: p, buf: initial}, nil
}

func (d *Driver) Stat(_ context.Context, p string) (storagedriver.FileInfo, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	content, ok := d.storage[p]
	if !ok {
		return storagedriver.FileInfo{}, storagedriver.PathNotFoundError{Path: p}
	}
	return storagedriver.FileInfo{Path: p, Size: int64(len(content))}, nil
}

func (d *Driver) List(_ context.Context, p string) ([]string, error) {
	prefix := p
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	matcher := regexp.MustCompile("^" + regexp.QuoteMeta(prefix) + "[^/]+")

	d.mu.RLock()
	defer d.mu.RUnlock()

	seen := make(map[string]struct{})
	for k := range d.storage {
		if m := matcher.FindString(k); m != "" {
			seen[m] = struct{}{}
		}
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	return keys, nil
}

func (d *Driver) Move(_ context.Context, sourcePath, destPath string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	content, ok := d.storage[sourcePath]
	if !ok {
		return storagedriver.PathNotFoundError{Path: sourcePath}
	}
	d.storage[destPath] = content
	delete(d.storage, sourcePath)
	return nil
}

func (d *Driver) Delete(_ context.Context, p string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var matched []string
	for k := range d.storage {
		if k == p || strings.HasPrefix(k, p+"/") {
			matched = append(matched, k)
		}
	}
	if len(matched) == 0 {
		return storagedriver.PathNotFoundError{Path: p}
	}
	for _, k := range matched {
		delete(d.storage, k)
	}
	return nil
}

type fileWriter struct {
	driver    *Driver
	path      string
	buf       []byte
	committed bool
	cancelled bool
}

func (w *fileWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

func (w *fileWriter) Size() int64 { return int64(len(w.buf)) }

func (w *fileWriter) Close() error { return nil }

func (w *fileWriter) Commit() error {
	if w.cancelled {
		return nil
	}
	w.committed = true
	return w.driver.PutContent(context.Background(), w.path, w.buf)
}

func (w *fileWriter) Cancel() error {
	w.cancelled = true
	w.buf = nil
	return nil
}
