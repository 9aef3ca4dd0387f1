package local

import "fmt"

// Collection is a typed view of one top-level directory of a Store
type Collection[T any] struct {
	store *Store
	name  string
}

// NewCollection returns the collection stored under name
func NewCollection[T any](store *Store, name string) *Collection[T] {
	return &Collection[T]{store: store, name: name}
}

// Put stores v under id
func (c *Collection[T]) Put(id string, v *T) error {
	if err := c.store.Save(v, c.name, id); err != nil {
		return fmt.Errorf("save %s/%s: %w", c.name, id, err)
	}
	return nil
}

// Get returns the document stored under id, or ErrNotFound
func (c *Collection[T]) Get(id string) (*T, error) {
	var v T
	if err := c.store.Load(&v, c.name, id); err != nil {
		return nil, err
	}
	return &v, nil
}

// Delete removes the document stored under id
func (c *Collection[T]) Delete(id string) error {
	return c.store.Delete(c.name, id)
}

// IDs lists every stored id in sorted order
func (c *Collection[T]) IDs() ([]string, error) {
	return c.store.List(c.name)
}
