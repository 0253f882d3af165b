// Package tcpedit implements the datalink plugin framework: the plugin
// registry, encoder/decoder capability negotiation and the per-session
// decode/encode dispatch.
package tcpedit

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/gopacket/layers"

	"firestige.xyz/tcpedit/pkg/dlt"
)

// Registry is an append-only set of plugin descriptors keyed by DLT and
// by name. It is not safe for concurrent mutation; give each worker its
// own registry.
type Registry struct {
	byDLT  map[layers.LinkType]*dlt.Descriptor
	byName map[string]*dlt.Descriptor
	order  []*dlt.Descriptor
}

func NewRegistry() *Registry {
	return &Registry{
		byDLT:  make(map[layers.LinkType]*dlt.Descriptor),
		byName: make(map[string]*dlt.Descriptor),
	}
}

// NewBuiltinRegistry returns a registry holding every compiled-in plugin.
func NewBuiltinRegistry() (*Registry, error) {
	r := NewRegistry()
	if err := r.RegisterBuiltins(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) Register(d dlt.Descriptor) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("register plugin: %w", err)
	}
	if existing, ok := r.byDLT[d.DLT]; ok {
		return &dlt.Error{
			Kind:   dlt.ErrDuplicateDLT,
			Op:     "register",
			Plugin: d.Name,
			DLT:    d.DLT,
			Offset: -1,
			Err:    fmt.Errorf("already registered by %s", existing.Name),
		}
	}
	key := strings.ToLower(d.Name)
	if existing, ok := r.byName[key]; ok {
		return &dlt.Error{
			Kind:   dlt.ErrDuplicateName,
			Op:     "register",
			Plugin: d.Name,
			DLT:    d.DLT,
			Offset: -1,
			Err:    fmt.Errorf("name already used by %s", existing),
		}
	}

	desc := d
	r.byDLT[d.DLT] = &desc
	r.byName[key] = &desc
	r.order = append(r.order, &desc)
	return nil
}

// RegisterBuiltins registers dlt.Builtins() in their registration order.
func (r *Registry) RegisterBuiltins() error {
	for _, d := range dlt.Builtins() {
		if err := r.Register(d); err != nil {
			return err
		}
	}
	return nil
}

// FindByDLT matches the exact DLT. DLT_USER1..15 fall back to the plugin
// registered for DLT_USER0, which serves the whole user range.
func (r *Registry) FindByDLT(id layers.LinkType) (*dlt.Descriptor, error) {
	if d, ok := r.byDLT[id]; ok {
		return d, nil
	}
	if dlt.IsUserDLT(id) {
		if d, ok := r.byDLT[dlt.LinkTypeUser0]; ok {
			return d, nil
		}
	}
	return nil, &dlt.Error{
		Kind:   dlt.ErrNotFound,
		Op:     "find",
		DLT:    id,
		Offset: -1,
		Err:    fmt.Errorf("no plugin for DLT %d", int(id)),
	}
}

// FindByName matches names case-insensitively.
func (r *Registry) FindByName(name string) (*dlt.Descriptor, error) {
	if d, ok := r.byName[strings.ToLower(name)]; ok {
		return d, nil
	}
	return nil, &dlt.Error{
		Kind:   dlt.ErrNotFound,
		Op:     "find",
		Offset: -1,
		Err:    fmt.Errorf("no plugin named %q", name),
	}
}

// Lookup resolves a plugin name or a numeric DLT.
func (r *Registry) Lookup(ref string) (*dlt.Descriptor, error) {
	if n, err := strconv.ParseUint(ref, 10, 16); err == nil {
		return r.FindByDLT(layers.LinkType(n))
	}
	return r.FindByName(ref)
}

// List returns the descriptors in registration order.
func (r *Registry) List() []*dlt.Descriptor {
	out := make([]*dlt.Descriptor, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) Len() int {
	return len(r.order)
}
