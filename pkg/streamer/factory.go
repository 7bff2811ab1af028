package streamer

import (
	"fmt"
	"sync"
)

// Factory is the process-wide streamer registry. Rather than a
// dynamic-module loader keyed by on-disk path, it resolves a name to a
// compiled-in constructor registered at init time — a static table
// standing in for dlopen-based plugin loading.
type Factory struct {
	mu        sync.Mutex
	makers    map[string]func() Streamer
	instances map[string][]Streamer
}

var defaultFactory = NewFactory()

// DefaultFactory returns the process-wide Factory instance.
func DefaultFactory() *Factory { return defaultFactory }

// NewFactory constructs an empty Factory. Most callers use DefaultFactory.
func NewFactory() *Factory {
	return &Factory{
		makers:    make(map[string]func() Streamer),
		instances: make(map[string][]Streamer),
	}
}

// Register associates name with a constructor. Stages call this from an
// init() function, a registration-at-import-time idiom (database/sql driver
// style) rather than a runtime lib_path lookup.
func (f *Factory) Register(name string, make func() Streamer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.makers[name] = make
}

// Register registers a constructor on the default factory.
func Register(name string, make func() Streamer) {
	defaultFactory.Register(name, make)
}

// Make constructs a new streamer for name. Loading is lazy in the sense
// that the constructor only runs here, not at Register time; it is not
// memoized the way the original module-handle cache was, since a compiled
// constructor carries no per-load cost worth caching.
func (f *Factory) Make(name string) (Streamer, error) {
	f.mu.Lock()
	make, ok := f.makers[name]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("streamer: no factory registered for %q", name)
	}
	s := make()
	f.mu.Lock()
	f.instances[name] = append(f.instances[name], s)
	f.mu.Unlock()
	return s, nil
}

// Destroy removes s from the factory's bookkeeping for name. The caller
// remains responsible for any of s's own shutdown (StartNetwork cancellation,
// sink teardown) before calling Destroy.
func (f *Factory) Destroy(name string, s Streamer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.instances[name]
	for i, inst := range list {
		if inst == s {
			f.instances[name] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// ReleaseAll destroys every tracked instance across all names.
func (f *Factory) ReleaseAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.instances = make(map[string][]Streamer)
}
