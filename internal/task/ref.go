package task

import (
	"regexp"
	"strings"
)

// Ref is a dependency reference after normalization. A reference names
// another task by id, title, path form, or cross-project project:id form.
type Ref struct {
	// Project is non-empty for cross-project references.
	Project string
	// Value is the id or title being referenced.
	Value string
}

var taskPathPrefix = regexp.MustCompile(`^projects/[^/]+/task/`)

// ParseRef normalizes a raw dependency reference:
//   - a trailing ".md" is stripped
//   - a "projects/<x>/task/" prefix is stripped (the project segment is kept)
//   - a "project:value" prefix splits into a cross-project reference
func ParseRef(raw string) Ref {
	s := strings.TrimSpace(raw)
	s = strings.TrimSuffix(s, ".md")

	if m := taskPathPrefix.FindString(s); m != "" {
		// projects/<project>/task/<rest>
		parts := strings.SplitN(s, "/", 4)
		return Ref{Project: parts[1], Value: strings.TrimPrefix(s, m)}
	}

	if i := strings.IndexByte(s, ':'); i > 0 && !strings.Contains(s[:i], "/") {
		return Ref{Project: s[:i], Value: s[i+1:]}
	}

	return Ref{Value: s}
}

// String renders the normalized form of the reference.
func (r Ref) String() string {
	if r.Project != "" {
		return r.Project + ":" + r.Value
	}
	return r.Value
}
