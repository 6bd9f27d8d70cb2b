package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Backend persists one record set as a single document. Every Store call
// rewrites the whole set; there is no incremental append.
type Backend interface {
	// Load decodes the stored document into v. A backend that has never
	// been written leaves v untouched and returns nil.
	Load(v any) error
	Store(v any) error
}

// FileBackend keeps the record set as one JSON file on disk. Writes go
// through a temp file and rename so a crash mid-write never leaves a
// truncated document behind.
type FileBackend struct {
	mu   sync.Mutex
	path string
}

func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

func (b *FileBackend) Load(v any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", b.path, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", b.path, err)
	}
	return nil
}

func (b *FileBackend) Store(v any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", b.path, err)
	}
	if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", b.path, err)
	}
	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, b.path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

// MemoryBackend holds the encoded document in memory. Tests inject it in
// place of a FileBackend.
type MemoryBackend struct {
	mu     sync.Mutex
	data   []byte
	stores int

	// FailStores makes every Store return an error, for exercising
	// persistence-failure paths.
	FailStores bool
}

func NewMemoryBackend() *MemoryBackend { return &MemoryBackend{} }

func (b *MemoryBackend) Load(v any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.data) == 0 {
		return nil
	}
	return json.Unmarshal(b.data, v)
}

func (b *MemoryBackend) Store(v any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailStores {
		return errors.New("memory backend: store disabled")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b.data = data
	b.stores++
	return nil
}

// StoreCount reports how many Store calls succeeded.
func (b *MemoryBackend) StoreCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stores
}
