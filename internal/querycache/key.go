// Package querycache caches read results keyed by scope and arguments,
// collapses concurrent fetches of the same key, serves stale data when
// the API is unhealthy, and coordinates optimistic mutations with
// rollback and invalidation.
package querycache

import "strings"

// Key identifies one cached query: a scope naming the resource family
// plus the arguments that parameterize it. Keys with equal strings refer
// to the same cached value.
type Key struct {
	Scope string
	Args  []string
}

// NewKey builds a key from a scope and its arguments.
func NewKey(scope string, args ...string) Key {
	return Key{Scope: scope, Args: args}
}

// String renders the canonical form used for lock sharding and
// deduplication, e.g. "sessions:list" or "bundles:detail:42".
func (k Key) String() string {
	if len(k.Args) == 0 {
		return k.Scope
	}
	return k.Scope + ":" + strings.Join(k.Args, ":")
}
