// Package config provides a small typed configuration store.
//
// Variables are registered once with Lookup and read with Get on whatever
// hot path needs them; Set and the YAML loader update them at runtime and
// fire change listeners. The store is the collaborator the fiber core reads
// its default stack size from.
package config

import (
	"fmt"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// varBase is the type-erased view the registry and the YAML loader use.
type varBase interface {
	VarName() string
	Description() string
	setFromYAML(node any) error
	String() string
}

var (
	registryMu sync.Mutex
	registry   = make(map[string]varBase)
)

// Var is a registered configuration variable of type T.
type Var[T any] struct {
	name        string
	description string

	mu        sync.RWMutex
	value     T
	listeners map[uint64]func(oldValue, newValue T)
	nextKey   uint64
}

// Lookup returns the variable registered under name, creating it with the
// given default if absent. Looking up an existing name with a different type
// parameter is a programming error and panics.
func Lookup[T any](name string, def T, description string) *Var[T] {
	registryMu.Lock()
	defer registryMu.Unlock()
	if existing, ok := registry[name]; ok {
		v, ok := existing.(*Var[T])
		if !ok {
			panic(fmt.Sprintf("config: variable %q already registered with type %T", name, existing))
		}
		return v
	}
	v := &Var[T]{
		name:        name,
		description: description,
		value:       def,
		listeners:   make(map[uint64]func(T, T)),
	}
	registry[name] = v
	return v
}

// VarName returns the registered name.
func (v *Var[T]) VarName() string { return v.name }

// Description returns the registration description.
func (v *Var[T]) Description() string { return v.description }

// Get returns the current value.
func (v *Var[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.value
}

// Set replaces the value and fires every change listener with the old and
// new values. Listeners run on the calling goroutine.
func (v *Var[T]) Set(value T) {
	v.mu.Lock()
	old := v.value
	v.value = value
	listeners := make([]func(T, T), 0, len(v.listeners))
	for _, fn := range v.listeners {
		listeners = append(listeners, fn)
	}
	v.mu.Unlock()
	for _, fn := range listeners {
		fn(old, value)
	}
}

// OnChange registers a change listener and returns its key.
func (v *Var[T]) OnChange(fn func(oldValue, newValue T)) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.nextKey++
	key := v.nextKey
	v.listeners[key] = fn
	return key
}

// DelListener removes the listener registered under key.
func (v *Var[T]) DelListener(key uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.listeners, key)
}

func (v *Var[T]) String() string {
	out, err := yaml.Marshal(v.Get())
	if err != nil {
		return fmt.Sprintf("!!error %v", err)
	}
	return string(out)
}

func (v *Var[T]) setFromYAML(node any) error {
	raw, err := yaml.Marshal(node)
	if err != nil {
		return err
	}
	var value T
	if err := yaml.Unmarshal(raw, &value); err != nil {
		return fmt.Errorf("config: variable %q: %w", v.name, err)
	}
	v.Set(value)
	return nil
}

// LoadYAML applies a YAML document to the registered variables. Nested maps
// flatten to dotted keys, so
//
//	fiber:
//	  stack_size: 262144
//
// sets the variable named "fiber.stack_size". Unknown keys are ignored; the
// first conversion error aborts the load.
func LoadYAML(data []byte) error {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return err
	}
	flat := make(map[string]any)
	flatten("", doc, flat)

	registryMu.Lock()
	defer registryMu.Unlock()
	for name, node := range flat {
		v, ok := registry[name]
		if !ok {
			continue
		}
		if err := v.setFromYAML(node); err != nil {
			return err
		}
	}
	return nil
}

func flatten(prefix string, node map[string]any, out map[string]any) {
	for key, value := range node {
		name := key
		if prefix != "" {
			name = prefix + "." + key
		}
		if child, ok := value.(map[string]any); ok {
			out[name] = value
			flatten(name, child, out)
			continue
		}
		out[name] = value
	}
}

// Visit calls fn for every registered variable in name order.
func Visit(fn func(name, description, value string)) {
	registryMu.Lock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	vars := make([]varBase, 0, len(names))
	sort.Strings(names)
	for _, name := range names {
		vars = append(vars, registry[name])
	}
	registryMu.Unlock()
	for _, v := range vars {
		fn(v.VarName(), v.Description(), v.String())
	}
}
