// Package qualname implements CLIP's qualified tool name convention.
// This package has no dependencies on other internal packages, by design,
// so both the policy and upstream packages can depend on it without cycles.
package qualname

import "strings"

// Sep is the reserved separator between an upstream id and a tool name in a
// qualified tool name. Upstream ids and tool names must not contain it.
const Sep = "__"

// Join builds a qualified tool name from an upstream id and a tool name.
func Join(upstreamID, toolName string) string {
	return upstreamID + Sep + toolName
}

// Split parses a qualified tool name into its upstream id and tool name.
// ok is false if qn does not contain the separator.
func Split(qn string) (upstreamID, toolName string, ok bool) {
	i := strings.Index(qn, Sep)
	if i < 0 {
		return "", "", false
	}
	return qn[:i], qn[i+len(Sep):], true
}

// Valid reports whether a raw upstream id or tool name may be used in a
// qualified name, i.e. it does not itself contain the reserved separator.
func Valid(part string) bool {
	return part != "" && !strings.Contains(part, Sep)
}
