package models

import "strings"

// Scope strings are space-separated lists of opaque names. Normalization
// splits on any run of whitespace, drops duplicates while preserving the
// first occurrence's position, and rejoins with single spaces, so that
// "read  write read" and "read write" denote the same scope.

// NormalizeScope canonicalizes a raw scope parameter.
func NormalizeScope(raw string) string {
	return strings.Join(SplitScope(raw), " ")
}

// SplitScope splits a scope string into its deduplicated name list,
// insertion order preserved. An empty or all-whitespace string yields nil.
func SplitScope(scope string) []string {
	fields := strings.Fields(scope)
	if len(fields) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(fields))
	names := fields[:0]
	for _, name := range fields {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

// ScopeContains reports whether a scope string includes the named scope.
func ScopeContains(scope, name string) bool {
	for _, candidate := range SplitScope(scope) {
		if candidate == name {
			return true
		}
	}
	return false
}

// ScopeAllowed reports whether every requested scope name appears in the
// allow-list. An empty allow-list accepts any request.
func ScopeAllowed(requested string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	permitted := make(map[string]struct{}, len(allowed))
	for _, name := range allowed {
		permitted[name] = struct{}{}
	}
	for _, name := range SplitScope(requested) {
		if _, ok := permitted[name]; !ok {
			return false
		}
	}
	return true
}
