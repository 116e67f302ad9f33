package supplier

import (
	"sort"
	"sync"

	"github.com/opsfolio/udi-pgp/internal/config"
)

// instance pairs a live Supplier with the exclusive lock that
// serializes queries against it (§5 "two queries targeting the
// same supplier serialize").
type instance struct {
	mu sync.Mutex
	s  Supplier
}

// Registry is the keyed map of live supplier instances (§4.C).
// Reads (Get, IDs) take the read lock; structural changes
// (Insert, Remove, Reconcile) take the write lock, the same shape as a
// connection pool: a RWMutex guarding a map, with a reconcile pass that
// keeps what it can and replaces the rest.
type Registry struct {
	mu        sync.RWMutex
	instances map[string]*instance
	factories map[string]Factory
}

// NewRegistry builds an empty registry. Factories are registered
// separately via RegisterFactory so the core never needs to import a
// specific supplier implementation package (§9 "factory
// registration... lets reconcile add previously-unseen suppliers
// without linking every implementation into the core").
func NewRegistry() *Registry {
	return &Registry{
		instances: make(map[string]*instance),
		factories: make(map[string]Factory),
	}
}

// RegisterFactory binds a descriptor type tag to its constructor.
func (r *Registry) RegisterFactory(typeTag string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[typeTag] = f
}

// Get returns the instance registered under id, locking it for the
// caller's exclusive use. Callers must call the returned unlock func
// when done.
func (r *Registry) Get(id string) (Supplier, func(), bool) {
	r.mu.RLock()
	inst, ok := r.instances[id]
	r.mu.RUnlock()
	if !ok {
		return nil, nil, false
	}
	inst.mu.Lock()
	return inst.s, inst.mu.Unlock, true
}

// Insert registers a freshly constructed instance under id, replacing
// any existing one.
func (r *Registry) Insert(id string, s Supplier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instances[id] = &instance{s: s}
}

// Remove deletes id if present; idempotent per §4.C.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.instances, id)
}

// IDs returns the currently registered supplier ids in lexicographic
// order (§8 scenario 3: "two rows in lexicographic order").
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.instances))
	for id := range r.instances {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Reconcile applies a new descriptor map to the registry per §4.C:
//   - ids present now but absent from desired are removed.
//   - ids absent now but present in desired are constructed via the
//     factory registered for their type.
//   - ids present in both are updated in place via Supplier.Update.
func (r *Registry) Reconcile(desired map[string]config.SupplierDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id := range r.instances {
		if _, ok := desired[id]; !ok {
			delete(r.instances, id)
		}
	}

	for id, desc := range desired {
		if inst, ok := r.instances[id]; ok {
			inst.mu.Lock()
			err := inst.s.Update(desc)
			inst.mu.Unlock()
			if err != nil {
				return err
			}
			continue
		}

		factory, ok := r.factories[desc.Type]
		if !ok {
			return &NoFactoryError{Type: desc.Type}
		}
		s, err := factory(desc)
		if err != nil {
			return err
		}
		r.instances[id] = &instance{s: s}
	}

	return nil
}
