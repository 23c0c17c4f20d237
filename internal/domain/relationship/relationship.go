// Package relationship defines directed typed edges between code entities.
package relationship

import (
	"fmt"
	"reflect"
	"strings"

	"codegraph-backend/internal/errors"
)

// RelType classifies an edge.
type RelType string

const (
	TypeCalls      RelType = "calls"
	TypeImports    RelType = "imports"
	TypeContains   RelType = "contains"
	TypeReferences RelType = "references"
	TypeSeam       RelType = "seam"
)

// Valid reports whether t is a recognized relationship type.
func (t RelType) Valid() bool {
	switch t {
	case TypeCalls, TypeImports, TypeContains, TypeReferences, TypeSeam:
		return true
	}
	return false
}

// ParseType normalizes a parser-provided type string.
func ParseType(s string) (RelType, error) {
	t := RelType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", errors.Newf(errors.KindInvalidIdentifier, "unknown relationship type %q", s)
	}
	return t, nil
}

// Key identifies a relationship; (source, target, type) is unique in the
// graph, so duplicate inserts are idempotent.
type Key struct {
	SourceID string
	TargetID string
	Type     RelType
}

func (k Key) String() string {
	return fmt.Sprintf("%s-[%s]->%s", k.SourceID, k.Type, k.TargetID)
}

// Relationship is a directed typed edge. IsSeam is derived from the endpoint
// languages on insertion and never mutated independently of them.
type Relationship struct {
	SourceID string         `json:"sourceId"`
	TargetID string         `json:"targetId"`
	Type     RelType        `json:"type"`
	IsSeam   bool           `json:"isSeam"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Key returns the uniqueness key of the edge.
func (r *Relationship) Key() Key {
	return Key{SourceID: r.SourceID, TargetID: r.TargetID, Type: r.Type}
}

// DeriveSeam computes the seam flag: endpoints in different languages, an
// explicit seam-typed edge, or a parser-flagged cross-runtime boundary
// (metadata key "crossRuntime").
func (r *Relationship) DeriveSeam(sourceLang, targetLang string) bool {
	if r.Type == TypeSeam {
		return true
	}
	if sourceLang != "" && targetLang != "" && sourceLang != targetLang {
		return true
	}
	if flag, ok := r.Metadata["crossRuntime"].(bool); ok && flag {
		return true
	}
	return false
}

// Clone returns a deep copy with metadata copied one level deep.
func (r *Relationship) Clone() *Relationship {
	if r == nil {
		return nil
	}
	clone := *r
	if r.Metadata != nil {
		clone.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}

// Equal compares every attribute including metadata.
func (r *Relationship) Equal(other *Relationship) bool {
	if r == nil || other == nil {
		return r == other
	}
	if r.SourceID != other.SourceID || r.TargetID != other.TargetID ||
		r.Type != other.Type || r.IsSeam != other.IsSeam {
		return false
	}
	if len(r.Metadata) != len(other.Metadata) {
		return false
	}
	if len(r.Metadata) == 0 {
		return true
	}
	return reflect.DeepEqual(r.Metadata, other.Metadata)
}

// Record renders the edge as the opaque payload carried by CDC events.
func (r *Relationship) Record() map[string]any {
	rec := map[string]any{
		"sourceId": r.SourceID,
		"targetId": r.TargetID,
		"type":     string(r.Type),
		"isSeam":   r.IsSeam,
	}
	if len(r.Metadata) > 0 {
		rec["metadata"] = r.Metadata
	}
	return rec
}
