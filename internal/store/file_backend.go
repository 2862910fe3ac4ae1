package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileBackend keeps the whole ledger in one JSON document guarded by a process-wide mutex.
// With an empty path it never touches the disk.
type FileBackend struct {
	mu   sync.Mutex
	path string
	doc  document

	writeFile func(path string, data []byte) error
}

var _ Backend = (*FileBackend)(nil)

// NewMemoryBackend returns a FileBackend that never persists.
func NewMemoryBackend() *FileBackend {
	return &FileBackend{doc: newDocument(), writeFile: writeFileAtomic}
}

// OpenFileBackend loads path, creating an empty document there when it does not exist yet.
func OpenFileBackend(path string) (*FileBackend, error) {
	b := &FileBackend{path: path, doc: newDocument(), writeFile: writeFileAtomic}
	if path == "" {
		return b, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	// #nosec G304: the store path comes from configuration
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := b.persist(b.doc); err != nil {
			return nil, err
		}
		return b, nil
	case err != nil:
		return nil, fmt.Errorf("read store %q: %w", path, err)
	}

	if len(data) > 0 {
		if err := json.Unmarshal(data, &b.doc); err != nil {
			return nil, fmt.Errorf("decode store %q: %w", path, err)
		}
	}
	if b.doc.Users == nil {
		b.doc.Users = make(map[string]UserRecord)
	}
	if b.doc.Rotations == nil {
		b.doc.Rotations = make(map[string][]string)
	}

	return b, nil
}

func (b *FileBackend) Name() string {
	if b.path == "" {
		return "memory"
	}
	return "file"
}

func (b *FileBackend) Users(ctx context.Context) (map[string]UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	users := make(map[string]UserRecord, len(b.doc.Users))
	for id, rec := range b.doc.Users {
		users[id] = rec
	}
	return users, nil
}

func (b *FileBackend) Ping(context.Context) error {
	return nil
}

func (b *FileBackend) Close() error {
	return nil
}

func (b *FileBackend) atomic(ctx context.Context, work func(src source) (changeSet, error)) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	changes, err := work(documentSource{doc: &b.doc})
	if err != nil {
		return err
	}
	if changes.empty() {
		return nil
	}

	next := b.doc.clone()
	next.apply(changes)
	if err := b.persist(next); err != nil {
		return err
	}
	b.doc = next

	return nil
}

func (b *FileBackend) persist(doc document) error {
	if b.path == "" {
		return nil
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}
	if err := b.writeFile(b.path, data); err != nil {
		return fmt.Errorf("write store %q: %w", b.path, err)
	}
	return nil
}

// writeFileAtomic replaces path through a synced temp file in the same directory.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	cleanup := func() {
		_ = os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}

// documentSource reads straight from the committed document; the backend mutex is held.
type documentSource struct {
	doc *document
}

func (s documentSource) loadUser(_ context.Context, id string, defaults UserRecord) (UserRecord, bool, error) {
	if rec, ok := s.doc.Users[id]; ok {
		return rec, false, nil
	}
	return defaults, true, nil
}

func (s documentSource) loadRotation(_ context.Context, category string) ([]string, error) {
	lines, ok := s.doc.Rotations[category]
	if !ok {
		return nil, nil
	}
	return append([]string(nil), lines...), nil
}
