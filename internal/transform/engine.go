package transform

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// Engine reads a source image, applies a Variant and writes the result.
type Engine interface {
	Name() string
	Augment(src, dst string, v Variant) error
	Close() error
}

// Factory builds a fresh engine instance.
type Factory func(logger logrus.FieldLogger) (Engine, error)

var (
	mu      sync.RWMutex
	engines = make(map[string]Factory)
)

// Register makes an engine available by name. Engines call it from init.
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	if factory == nil {
		panic("transform: Register factory is nil")
	}
	engines[name] = factory
}

// Open builds the named engine.
func Open(name string, logger logrus.FieldLogger) (Engine, error) {
	mu.RLock()
	factory, exists := engines[name]
	mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("engine not found: %s (available: %v)", name, Names())
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return factory(logger)
}

// IsRegistered reports whether an engine of that name exists.
func IsRegistered(name string) bool {
	mu.RLock()
	defer mu.RUnlock()
	_, exists := engines[name]
	return exists
}

// Names lists registered engines in sorted order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(engines))
	for name := range engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
