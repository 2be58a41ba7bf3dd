package authz

// Package authz resolves declarative role requirements and makes
// authorization decisions against decoded token claims.
//
// Requirements are registered explicitly at startup rather than discovered
// per-request through introspection, so an unknown (class, method) pair can
// only mean "no requirement declared" — there is no metadata-read failure
// mode to fail open on.

import "sort"

// Requirement is the set of role names sufficient (any-of) to invoke an
// endpoint. The zero value is "no declaration": public access.
type Requirement struct {
	declared bool
	roles    map[string]struct{}
}

// RequireRoles builds a declared requirement from the given role names,
// deduplicating them. Calling it with no roles declares an explicitly empty
// requirement, which is distinct from no declaration when resolving
// method-level overrides.
func RequireRoles(roles ...string) Requirement {
	set := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return Requirement{declared: true, roles: set}
}

// Declared reports whether the requirement was explicitly declared.
func (q Requirement) Declared() bool { return q.declared }

// IsEmpty reports whether no roles are required.
func (q Requirement) IsEmpty() bool { return len(q.roles) == 0 }

// Contains reports whether the role is part of the requirement.
func (q Requirement) Contains(role string) bool {
	_, ok := q.roles[role]
	return ok
}

// Roles returns the required role names, sorted for stable output.
func (q Requirement) Roles() []string {
	out := make([]string, 0, len(q.roles))
	for r := range q.roles {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// union merges another declared requirement into this one.
func (q Requirement) union(other Requirement) Requirement {
	merged := make(map[string]struct{}, len(q.roles)+len(other.roles))
	for r := range q.roles {
		merged[r] = struct{}{}
	}
	for r := range other.roles {
		merged[r] = struct{}{}
	}
	return Requirement{declared: q.declared || other.declared, roles: merged}
}

type methodKey struct {
	class  string
	method string
}

// Registry holds role requirements declared per handler class and method.
// It is populated once during route construction and read-only afterwards,
// so no locking is needed for concurrent resolution.
type Registry struct {
	classes map[string]Requirement
	methods map[methodKey]Requirement
}

// NewRegistry creates an empty requirement registry.
func NewRegistry() *Registry {
	return &Registry{
		classes: make(map[string]Requirement),
		methods: make(map[methodKey]Requirement),
	}
}

// SetDefault declares a class-level requirement that applies to every method
// of the class unless a method declares its own. Repeated declarations for
// the same class are unioned.
func (r *Registry) SetDefault(class string, roles ...string) *Registry {
	r.classes[class] = r.classes[class].union(RequireRoles(roles...))
	return r
}

// Set declares a method-level requirement. It fully replaces any class-level
// declaration for that method, even when declared with zero roles. Repeated
// declarations for the same method are unioned.
func (r *Registry) Set(class, method string, roles ...string) *Registry {
	key := methodKey{class: class, method: method}
	r.methods[key] = r.methods[key].union(RequireRoles(roles...))
	return r
}

// Resolve returns the effective requirement for a (class, method) pair:
// the method-level declaration when one exists, otherwise the class-level
// default, otherwise no requirement.
func (r *Registry) Resolve(class, method string) Requirement {
	if req, ok := r.methods[methodKey{class: class, method: method}]; ok {
		return req
	}
	if req, ok := r.classes[class]; ok {
		return req
	}
	return Requirement{}
}
