package registry

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/michalholes/audiomason2-sub000/internal/diagnostics"
	"github.com/michalholes/audiomason2-sub000/internal/jail"
)

const registryRelPath = "import/processed/processed_registry.json"

// schemaVersion is the registry document's schema version, per spec.md §4.F.
const schemaVersion = 1

type document struct {
	SchemaVersion int      `json:"schema_version"`
	Keys          []string `json:"keys"`
}

// Registry admits book identity keys ("algo:value" fingerprint strings,
// see internal/fingerprint.FingerprintKey) exactly once. Admission is
// only ever performed after the owning job reaches SUCCEEDED; consumers
// check IsProcessed before performing destructive or costly work.
type Registry struct {
	fs  *jail.FileService
	bus *diagnostics.Bus

	// mu serializes the load-modify-store cycle; the registry is part of
	// the patches-root single-writer surface (spec.md §5), so within one
	// process this mutex is the only thing standing between two
	// concurrent Mark calls and a lost update.
	mu sync.Mutex
}

// New constructs a Registry over fs. bus may be nil.
func New(fs *jail.FileService, bus *diagnostics.Bus) *Registry {
	return &Registry{fs: fs, bus: bus}
}

func (r *Registry) load(ctx context.Context) (map[string]bool, error) {
	if !r.fs.Exists(ctx, jail.RootWizards, registryRelPath) {
		return map[string]bool{}, nil
	}
	f, err := r.fs.OpenRead(ctx, jail.RootWizards, registryRelPath)
	if err != nil {
		return map[string]bool{}, nil
	}
	defer f.Close()

	var doc document
	if err := json.NewDecoder(f).Decode(&doc); err != nil {
		return map[string]bool{}, nil
	}
	out := make(map[string]bool, len(doc.Keys))
	for _, k := range doc.Keys {
		if k != "" {
			out[k] = true
		}
	}
	return out, nil
}

func (r *Registry) store(ctx context.Context, keys map[string]bool) error {
	list := make([]string, 0, len(keys))
	for k := range keys {
		list = append(list, k)
	}
	sort.Strings(list)
	return r.fs.AtomicWriteJSON(ctx, jail.RootWizards, registryRelPath, document{
		SchemaVersion: schemaVersion,
		Keys:          list,
	})
}

// IsProcessed reports whether identityKey has already been admitted.
func (r *Registry) IsProcessed(ctx context.Context, identityKey string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys, _ := r.load(ctx)
	return keys[identityKey]
}

// Mark admits identityKey exactly once; a repeat call is a no-op.
func (r *Registry) Mark(ctx context.Context, identityKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys, err := r.load(ctx)
	if err != nil {
		return err
	}
	if keys[identityKey] {
		return nil
	}
	keys[identityKey] = true
	if err := r.store(ctx, keys); err != nil {
		return err
	}
	r.bus.SafePublish("boundary.end", "processed_registry", "mark_processed", map[string]any{"identity_key": identityKey})
	return nil
}

// Unmark removes identityKey from the registry, if present.
func (r *Registry) Unmark(ctx context.Context, identityKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys, err := r.load(ctx)
	if err != nil {
		return err
	}
	if !keys[identityKey] {
		return nil
	}
	delete(keys, identityKey)
	return r.store(ctx, keys)
}

// List returns every admitted identity key, sorted.
func (r *Registry) List(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for k := range keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

// StatsOf returns the registry's current size.
func (r *Registry) StatsOf(ctx context.Context) Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys, _ := r.load(ctx)
	return Stats{Count: len(keys)}
}
