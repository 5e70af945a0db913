package rbac

import (
	"errors"
	"slices"
	"strings"
	"sync"
)

// ErrRoleNameRequired is returned when registering a role without a name.
var ErrRoleNameRequired = errors.New("rbac: role name required")

// Registry holds role definitions. It is populated at startup and read
// concurrently afterwards.
type Registry struct {
	mu    sync.RWMutex
	roles map[string]entry
}

type entry struct {
	permissions map[Operation]struct{}
	parents     []string
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{roles: make(map[string]entry)}
}

// Register adds or replaces the definition of role.Name.
func (r *Registry) Register(role Role) error {
	name := strings.TrimSpace(role.Name)
	if name == "" {
		return ErrRoleNameRequired
	}
	perms := make(map[Operation]struct{}, len(role.Permissions))
	for _, p := range role.Permissions {
		perms[p] = struct{}{}
	}
	parents := make([]string, 0, len(role.Parents))
	for _, p := range role.Parents {
		if p = strings.TrimSpace(p); p != "" {
			parents = append(parents, p)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.roles[name] = entry{permissions: perms, parents: parents}
	return nil
}

// Can reports whether role, or any ancestor reachable through its parents,
// holds op. Unknown roles hold nothing.
func (r *Registry) Can(role string, op Operation) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	found := false
	r.walk(role, func(e entry) bool {
		if _, ok := e.permissions[op]; ok {
			found = true
			return false
		}
		return true
	})
	return found
}

// Permissions returns the effective, sorted permission set of role.
func (r *Registry) Permissions(role string) []Operation {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := make(map[Operation]struct{})
	r.walk(role, func(e entry) bool {
		for p := range e.permissions {
			set[p] = struct{}{}
		}
		return true
	})
	out := make([]Operation, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// Has reports whether role has been registered.
func (r *Registry) Has(role string) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.roles[role]
	return ok
}

// walk visits role and its ancestors breadth-first, each at most once.
// Parents that are not registered are skipped. visit returns false to stop.
// Callers must hold r.mu.
func (r *Registry) walk(role string, visit func(entry) bool) {
	visited := map[string]struct{}{role: {}}
	queue := []string{role}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		e, ok := r.roles[name]
		if !ok {
			continue
		}
		if !visit(e) {
			return
		}
		for _, parent := range e.parents {
			if _, seen := visited[parent]; seen {
				continue
			}
			visited[parent] = struct{}{}
			queue = append(queue, parent)
		}
	}
}
