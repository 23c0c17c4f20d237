// Package entity defines the code entity model: graph nodes, their kinds,
// and the canonical identifier codec shared by every layer.
package entity

import (
	"reflect"
	"strings"
)

// Kind classifies a code entity.
type Kind string

const (
	KindFunction Kind = "function"
	KindMethod   Kind = "method"
	KindClass    Kind = "class"
	KindModule   Kind = "module"
	KindImport   Kind = "import"
	KindVariable Kind = "variable"
	KindOther    Kind = "other"
)

// Valid reports whether k is one of the recognized kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindFunction, KindMethod, KindClass, KindModule, KindImport, KindVariable, KindOther:
		return true
	}
	return false
}

// ParseKind normalizes a parser-provided kind string. Unknown kinds map to
// KindOther so foreign analyzers cannot poison the id space.
func ParseKind(s string) Kind {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if k.Valid() {
		return k
	}
	return KindOther
}

// Node is a code entity. Identity is by ID alone.
type Node struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Kind       Kind           `json:"kind"`
	Language   string         `json:"language"`
	File       string         `json:"file"`
	Line       int            `json:"line"`
	EndLine    int            `json:"endLine"`
	Complexity int            `json:"complexity"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Clone returns a deep copy; metadata is copied one level deep, which is
// sufficient because the store treats metadata values as opaque.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	clone := *n
	if n.Metadata != nil {
		clone.Metadata = make(map[string]any, len(n.Metadata))
		for k, v := range n.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}

// Equal compares every attribute including metadata. The store uses it to
// distinguish Updated from Unchanged upserts.
func (n *Node) Equal(other *Node) bool {
	if n == nil || other == nil {
		return n == other
	}
	if n.ID != other.ID ||
		n.Name != other.Name ||
		n.Kind != other.Kind ||
		n.Language != other.Language ||
		n.File != other.File ||
		n.Line != other.Line ||
		n.EndLine != other.EndLine ||
		n.Complexity != other.Complexity {
		return false
	}
	if len(n.Metadata) != len(other.Metadata) {
		return false
	}
	if len(n.Metadata) == 0 {
		return true
	}
	return reflect.DeepEqual(n.Metadata, other.Metadata)
}

// Record renders the node as the opaque key/value payload carried by CDC
// events (the full record, per the event contract).
func (n *Node) Record() map[string]any {
	rec := map[string]any{
		"id":         n.ID,
		"name":       n.Name,
		"kind":       string(n.Kind),
		"language":   n.Language,
		"file":       n.File,
		"line":       n.Line,
		"endLine":    n.EndLine,
		"complexity": n.Complexity,
	}
	if len(n.Metadata) > 0 {
		rec["metadata"] = n.Metadata
	}
	return rec
}
