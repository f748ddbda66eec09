package taf

import "sync"

// registryMu is the third lock of the concurrency model (§5): it guards
// only the process-wide handle table, never a loader's file or cache.
var (
	registryMu   sync.Mutex
	handleTable  = map[uint64]*handleRef{}
	nextHandleID uint64
)

// handleRef is the registry's weak back-reference: it carries enough to
// answer "is this handle still alive, and what path did it open" without
// holding a strong reference to the Handle or its StreamingLoader, so
// registering a handle never extends its lifetime. Go has no portable
// weak pointer, so "weak" here means "the registry's own entry, sized to
// carry no owning reference."
type handleRef struct {
	mu    sync.Mutex
	alive bool
	path  string
}

// Handle wraps the StreamingLoader that CreateHandle opened for it. Each
// CreateHandle call opens its own loader, so two handles never share one,
// and a Handle carries no reference count: its loader stays open until
// Close, which closes it.
type Handle struct {
	id     uint64
	path   string
	loader *StreamingLoader
	ref    *handleRef
}

// CreateHandle opens a loader for path, wraps it in a Handle, and
// registers a weak back-reference in the process-wide handle table under
// a freshly allocated, monotonically increasing id.
func CreateHandle(path string, opts *Options) (*Handle, error) {
	loader := NewStreamingLoader(opts)
	if err := loader.Open(path); err != nil {
		return nil, err
	}

	registryMu.Lock()
	nextHandleID++
	id := nextHandleID
	ref := &handleRef{alive: true, path: path}
	handleTable[id] = ref
	registryMu.Unlock()

	return &Handle{id: id, path: path, loader: loader, ref: ref}, nil
}

// ID returns the handle's process-wide registry id.
func (h *Handle) ID() uint64 { return h.id }

// Path returns the path the handle's loader was opened against.
func (h *Handle) Path() string { return h.path }

// Loader returns the handle's underlying StreamingLoader.
func (h *Handle) Loader() *StreamingLoader { return h.loader }

// Close closes the underlying loader and marks the handle's registry
// entry as no longer alive, then removes it from the table.
func (h *Handle) Close() error {
	h.ref.mu.Lock()
	h.ref.alive = false
	h.ref.mu.Unlock()

	registryMu.Lock()
	delete(handleTable, h.id)
	registryMu.Unlock()

	return h.loader.Close()
}

// LiveHandleInfo is a snapshot of one registry entry, returned by
// ListLiveHandles.
type LiveHandleInfo struct {
	ID   uint64
	Path string
}

// ListLiveHandles enumerates currently-live handles by id without
// extending the lifetime of any handle or loader: it reads only the
// registry's weak back-references.
func ListLiveHandles() []LiveHandleInfo {
	registryMu.Lock()
	defer registryMu.Unlock()

	out := make([]LiveHandleInfo, 0, len(handleTable))
	for id, ref := range handleTable {
		ref.mu.Lock()
		alive := ref.alive
		path := ref.path
		ref.mu.Unlock()
		if alive {
			out = append(out, LiveHandleInfo{ID: id, Path: path})
		}
	}
	return out
}
