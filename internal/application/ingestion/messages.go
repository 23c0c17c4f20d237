// Package ingestion applies analyzer output to the graph store: it decodes
// the parser message stream, applies batches in the prescribed order with
// checkpoint/rollback, drives the CDC analysis lifecycle events, and hosts
// the analyzer client and the workspace watcher that trigger re-analysis.
package ingestion

import (
	"encoding/json"
	"strings"

	"codegraph-backend/internal/domain/entity"
	"codegraph-backend/internal/domain/relationship"
	"codegraph-backend/internal/errors"
)

// Message kinds on the analyzer stream.
const (
	MessageNode     = "node"
	MessageEdge     = "edge"
	MessageDelete   = "delete"
	MessageProgress = "progress"
	MessageEnd      = "end"
	MessageError    = "error"
)

// Message is one analyzer stream record.
type Message struct {
	BatchID string          `json:"batchId"`
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// nodePayload carries the fields of a node record as the analyzer emits
// them. The id may be omitted, in which case it is derived canonically.
type nodePayload struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Kind       string         `json:"kind"`
	Language   string         `json:"language"`
	File       string         `json:"file"`
	Line       int            `json:"line"`
	EndLine    int            `json:"endLine"`
	Complexity int            `json:"complexity"`
	Suffix     string         `json:"suffix,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type edgePayload struct {
	SourceID string         `json:"sourceId"`
	TargetID string         `json:"targetId"`
	Type     string         `json:"type"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type deletePayload struct {
	Type     string `json:"type"` // "node" | "edge"
	ID       string `json:"id,omitempty"`
	SourceID string `json:"sourceId,omitempty"`
	TargetID string `json:"targetId,omitempty"`
	EdgeType string `json:"edgeType,omitempty"`
}

type errorPayload struct {
	Message string `json:"message"`
}

func decodeNode(raw json.RawMessage) (*entity.Node, error) {
	var p nodePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errors.Wrap(err, errors.KindParserError, "decode node payload")
	}
	kind := entity.ParseKind(p.Kind)
	id := p.ID
	if id == "" {
		var err error
		id, err = entity.NewID(kind, p.File, p.Name, p.Line, p.Suffix)
		if err != nil {
			return nil, err
		}
	} else if _, err := entity.ParseID(id); err != nil {
		return nil, err
	}
	endLine := p.EndLine
	if endLine < p.Line {
		endLine = p.Line
	}
	complexity := p.Complexity
	if complexity < 0 {
		complexity = 0
	}
	return &entity.Node{
		ID:         id,
		Name:       p.Name,
		Kind:       kind,
		Language:   normalizeLanguage(p.Language),
		File:       entity.NormalizePath(p.File),
		Line:       p.Line,
		EndLine:    endLine,
		Complexity: complexity,
		Metadata:   p.Metadata,
	}, nil
}

func decodeEdge(raw json.RawMessage) (*relationship.Relationship, error) {
	var p edgePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errors.Wrap(err, errors.KindParserError, "decode edge payload")
	}
	relType, err := relationship.ParseType(p.Type)
	if err != nil {
		return nil, err
	}
	return &relationship.Relationship{
		SourceID: p.SourceID,
		TargetID: p.TargetID,
		Type:     relType,
		Metadata: p.Metadata,
	}, nil
}

func decodeDelete(raw json.RawMessage) (*deletePayload, error) {
	var p deletePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errors.Wrap(err, errors.KindParserError, "decode delete payload")
	}
	switch p.Type {
	case "node":
		if p.ID == "" {
			return nil, errors.ParserError("node delete without id")
		}
	case "edge":
		if p.SourceID == "" || p.TargetID == "" || p.EdgeType == "" {
			return nil, errors.ParserError("edge delete without (sourceId, targetId, edgeType)")
		}
	default:
		return nil, errors.Newf(errors.KindParserError, "unknown delete type %q", p.Type)
	}
	return &p, nil
}

func normalizeLanguage(lang string) string {
	return strings.ToLower(strings.TrimSpace(lang))
}
