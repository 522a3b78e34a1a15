package grammar

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"gramforge/internal/fault"
)

var (
	ErrTypeExists   = fmt.Errorf("%w: type already registered", fault.ErrConfiguration)
	ErrTypeNotFound = fmt.Errorf("%w: type not registered", fault.ErrConfiguration)
)

// Directory maps names to grammar types. It is append-only: a name, once
// registered, always resolves to the same type.
type Directory struct {
	mu sync.RWMutex
	m  map[string]Type
}

func NewDirectory() *Directory {
	return &Directory{m: make(map[string]Type)}
}

// Register adds t under name.
func (d *Directory) Register(name string, t Type) error {
	if name == "" {
		return fmt.Errorf("%w: type name is required", fault.ErrConfiguration)
	}
	if t == nil {
		return fmt.Errorf("%w: type is required", fault.ErrConfiguration)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.m[name]; exists {
		return fmt.Errorf("%w: %s", ErrTypeExists, name)
	}
	d.m[name] = t
	return nil
}

// Add registers every user-named type under its own name. Unnamed types are
// skipped.
func (d *Directory) Add(types ...Type) error {
	var errs []error
	for _, t := range types {
		if t == nil || !t.Named() {
			continue
		}
		if err := d.Register(t.Name(), t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Directory) Lookup(name string) (Type, error) {
	d.mu.RLock()
	t, ok := d.m[name]
	d.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTypeNotFound, name)
	}
	return t, nil
}

func (d *Directory) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, 0, len(d.m))
	for name := range d.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
