// Package registry maintains the durable mapping from collection roots to
// their stores. It is the single source of truth for which stores exist.
//
// The mapping lives in a human-inspectable JSON file. Mutations hold a
// cross-process file lock around the whole read-modify-write cycle, so two
// indexers racing to register the same root always converge on one store.
package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/renameio"
)

const (
	registryFile = "registry.json"
	lockFile     = "registry.lock"
	storesDir    = "databases"
)

// ErrNotRegistered is returned when a collection root has no entry.
var ErrNotRegistered = errors.New("collection root is not registered")

// ErrUnknownStore is returned by Link when the target store id does not
// belong to any registered root.
var ErrUnknownStore = errors.New("unknown store identity")

// Entry maps one collection root to its store.
type Entry struct {
	Root      string    `json:"root"`
	StoreID   string    `json:"store_id"`
	StorePath string    `json:"store_path"`
	CreatedAt time.Time `json:"created_at"`
}

// Registry is the durable root-to-store mapping.
// Safe for concurrent use within a process and across processes.
type Registry struct {
	mu      sync.Mutex
	dataDir string
	lock    *flock.Flock
}

// Open prepares a registry rooted at dataDir, creating the directory
// layout if needed.
func Open(dataDir string) (*Registry, error) {
	if err := os.MkdirAll(filepath.Join(dataDir, storesDir), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return &Registry{
		dataDir: dataDir,
		lock:    flock.New(filepath.Join(dataDir, lockFile)),
	}, nil
}

// StoreID derives the stable store identity for a collection root:
// the first 16 hex digits of the SHA-256 of the canonicalized path.
// Re-runs on the same root always resolve to the same store.
func StoreID(root string) (string, error) {
	canonical, err := CanonicalRoot(root)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])[:16], nil
}

// CanonicalRoot normalizes a collection root for identity derivation:
// absolute, symlinks resolved where the path exists, and cleaned.
func CanonicalRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve path %q: %w", root, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return filepath.Clean(abs), nil
}

// ResolveOrCreate returns the entry for root, creating and persisting a
// new one when none exists. Concurrent first-time callers for the same
// root get the same store identity: the file lock covers the whole
// read-modify-write.
func (r *Registry) ResolveOrCreate(root string) (*Entry, error) {
	canonical, err := CanonicalRoot(root)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.lock.Lock(); err != nil {
		return nil, fmt.Errorf("acquire registry lock: %w", err)
	}
	defer func() { _ = r.lock.Unlock() }()

	entries, err := r.load()
	if err != nil {
		return nil, err
	}
	if e, ok := entries[canonical]; ok {
		return e, nil
	}

	id, err := StoreID(canonical)
	if err != nil {
		return nil, err
	}
	e := &Entry{
		Root:      canonical,
		StoreID:   id,
		StorePath: filepath.Join(r.dataDir, storesDir, "store_"+id+".db"),
		CreatedAt: time.Now().UTC(),
	}
	entries[canonical] = e

	// A lost mapping orphans a store silently, so persistence failure is
	// fatal to this operation, never swallowed.
	if err := r.save(entries); err != nil {
		return nil, err
	}
	return e, nil
}

// Resolve returns the entry for root without creating one.
func (r *Registry) Resolve(root string) (*Entry, error) {
	canonical, err := CanonicalRoot(root)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.load()
	if err != nil {
		return nil, err
	}
	e, ok := entries[canonical]
	if !ok {
		return nil, fmt.Errorf("%q: %w", canonical, ErrNotRegistered)
	}
	return e, nil
}

// Link registers root against an existing store identity without
// indexing. The caller asserts the root designates the same document set;
// the registry does not verify contents.
func (r *Registry) Link(root, storeID string) (*Entry, error) {
	canonical, err := CanonicalRoot(root)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.lock.Lock(); err != nil {
		return nil, fmt.Errorf("acquire registry lock: %w", err)
	}
	defer func() { _ = r.lock.Unlock() }()

	entries, err := r.load()
	if err != nil {
		return nil, err
	}

	var target *Entry
	for _, e := range entries {
		if e.StoreID == storeID {
			target = e
			break
		}
	}
	if target == nil {
		return nil, fmt.Errorf("%q: %w", storeID, ErrUnknownStore)
	}

	e := &Entry{
		Root:      canonical,
		StoreID:   target.StoreID,
		StorePath: target.StorePath,
		CreatedAt: time.Now().UTC(),
	}
	entries[canonical] = e

	if err := r.save(entries); err != nil {
		return nil, err
	}
	return e, nil
}

// Remove deletes the mapping for root. The store file itself is left in
// place; deleting it is a separate, explicit operation.
func (r *Registry) Remove(root string) error {
	canonical, err := CanonicalRoot(root)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.lock.Lock(); err != nil {
		return fmt.Errorf("acquire registry lock: %w", err)
	}
	defer func() { _ = r.lock.Unlock() }()

	entries, err := r.load()
	if err != nil {
		return err
	}
	if _, ok := entries[canonical]; !ok {
		return fmt.Errorf("%q: %w", canonical, ErrNotRegistered)
	}
	delete(entries, canonical)

	return r.save(entries)
}

// List returns all entries ordered by root path.
func (r *Registry) List() ([]*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.load()
	if err != nil {
		return nil, err
	}

	out := make([]*Entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Root < out[j].Root })
	return out, nil
}

func (r *Registry) path() string {
	return filepath.Join(r.dataDir, registryFile)
}

func (r *Registry) load() (map[string]*Entry, error) {
	data, err := os.ReadFile(r.path())
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]*Entry), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}

	var entries map[string]*Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	if entries == nil {
		entries = make(map[string]*Entry)
	}
	return entries, nil
}

func (r *Registry) save(entries map[string]*Entry) error {
	data, err := json.MarshalIndent(entries, "", "    ")
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}
	// Atomic replace: a crash mid-write must never leave a truncated
	// registry behind.
	if err := renameio.WriteFile(r.path(), append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("persist registry: %w", err)
	}
	return nil
}
