package play

import (
	"sync"

	"github.com/rotisserie/eris"
)

// Input describes one accepted run parameter.
type Input struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Default     any    `json:"default,omitempty"`
	Optional    bool   `json:"optional,omitempty"`
}

// PlaySpec is the catalogue entry for a play.
type PlaySpec struct {
	ID           string           `json:"id"`
	Label        string           `json:"label"`
	Description  string           `json:"description"`
	Tags         []string         `json:"tags"`
	InputsSchema map[string]Input `json:"inputs_schema"`
	DemoSeed     string           `json:"demo_seed,omitempty"`
	Icon         string           `json:"icon"`
}

// Registry holds plays in registration order. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	order []string
	plays map[string]Play
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{plays: make(map[string]Play)}
}

// Register adds p. Ids must be unique.
func (r *Registry) Register(p Play) error {
	id := p.Spec().ID
	if id == "" {
		return eris.New("play: id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.plays[id]; ok {
		return eris.Errorf("play: '%s' is already registered", id)
	}
	r.plays[id] = p
	r.order = append(r.order, id)
	return nil
}

// Get returns the play with id, or an *UnknownPlayError.
func (r *Registry) Get(id string) (Play, error) {
	r.mu.RLock()
	p, ok := r.plays[id]
	r.mu.RUnlock()
	if !ok {
		return nil, &UnknownPlayError{ID: id, Known: r.IDs()}
	}
	return p, nil
}

// List returns every spec in registration order.
func (r *Registry) List() []PlaySpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]PlaySpec, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.plays[id].Spec())
	}
	return out
}

// IDs returns the registered ids in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Unregister removes id and reports whether it was present.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.plays[id]; !ok {
		return false
	}
	delete(r.plays, id)
	for i, o := range r.order {
		if o == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}
