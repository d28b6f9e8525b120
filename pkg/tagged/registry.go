// Package tagged implements tag-discriminated JSON encoding for open sets of
// interface implementations.
//
// A Registry maps a stable tag string to a factory for the concrete type. The
// tag is written into the encoded JSON object under a configurable key so the
// concrete type can be reconstructed by a later process without knowing the
// Go type name.
package tagged

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Registry encodes and decodes values of the interface type T.
type Registry[T any] struct {
	// key is the JSON field holding the tag.
	key string

	// tagOf returns the tag for a value.
	tagOf func(T) string

	mu        sync.RWMutex
	factories map[string]func() T
}

// NewRegistry creates a registry that stores the tag under key.
func NewRegistry[T any](key string, tagOf func(T) string) *Registry[T] {
	return &Registry[T]{
		key:       key,
		tagOf:     tagOf,
		factories: make(map[string]func() T),
	}
}

// Register associates tag with a factory returning a fresh, decodable value.
// Registering the same tag twice panics; tags must be unique per binary.
func (r *Registry[T]) Register(tag string, factory func() T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[tag]; exists {
		panic(fmt.Sprintf("tagged: duplicate registration for %s %q", r.key, tag))
	}
	r.factories[tag] = factory
}

// Tags returns the registered tags in sorted order.
func (r *Registry[T]) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tags := make([]string, 0, len(r.factories))
	for tag := range r.factories {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Encode marshals v as a JSON object and injects its tag.
func (r *Registry[T]) Encode(v T) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", r.key, err)
	}

	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("%s %q does not encode to a JSON object: %w", r.key, r.tagOf(v), err)
	}

	tag, err := json.Marshal(r.tagOf(v))
	if err != nil {
		return nil, err
	}
	fields[r.key] = tag

	return json.Marshal(fields)
}

// Decode reads the tag from data, builds the registered type and unmarshals
// data into it.
func (r *Registry[T]) Decode(data []byte) (T, error) {
	var zero T

	var header map[string]json.RawMessage
	if err := json.Unmarshal(data, &header); err != nil {
		return zero, fmt.Errorf("failed to decode %s: %w", r.key, err)
	}

	rawTag, ok := header[r.key]
	if !ok {
		return zero, fmt.Errorf("missing %q field", r.key)
	}

	var tag string
	if err := json.Unmarshal(rawTag, &tag); err != nil {
		return zero, fmt.Errorf("invalid %q field: %w", r.key, err)
	}

	r.mu.RLock()
	factory, ok := r.factories[tag]
	r.mu.RUnlock()
	if !ok {
		return zero, &UnknownTagError{Key: r.key, Tag: tag}
	}

	v := factory()
	if err := json.Unmarshal(data, v); err != nil {
		return zero, fmt.Errorf("failed to decode %s %q: %w", r.key, tag, err)
	}
	return v, nil
}

// UnknownTagError is returned when decoding a tag nothing registered.
type UnknownTagError struct {
	Key string
	Tag string
}

func (e *UnknownTagError) Error() string {
	return fmt.Sprintf("unknown %s %q", e.Key, e.Tag)
}
