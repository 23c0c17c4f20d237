// Package events defines the change-data-capture event model. Every graph
// mutation and every analysis lifecycle step is captured as a ChangeEvent,
// journaled, and fanned out to subscribers.
package events

import (
	"time"

	"codegraph-backend/internal/domain/entity"
	"codegraph-backend/internal/domain/relationship"
)

// Type enumerates the CDC event types.
type Type string

const (
	TypeNodeAdded           Type = "node_added"
	TypeNodeUpdated         Type = "node_updated"
	TypeNodeRemoved         Type = "node_removed"
	TypeRelationshipAdded   Type = "relationship_added"
	TypeRelationshipRemoved Type = "relationship_removed"
	TypeAnalysisStarted     Type = "analysis_started"
	TypeAnalysisProgress    Type = "analysis_progress"
	TypeAnalysisCompleted   Type = "analysis_completed"
	TypeAnalysisFailed      Type = "analysis_failed"
)

// Valid reports whether t is a recognized event type.
func (t Type) Valid() bool {
	switch t {
	case TypeNodeAdded, TypeNodeUpdated, TypeNodeRemoved,
		TypeRelationshipAdded, TypeRelationshipRemoved,
		TypeAnalysisStarted, TypeAnalysisProgress, TypeAnalysisCompleted, TypeAnalysisFailed:
		return true
	}
	return false
}

// AllTypes returns every event type, in declaration order.
func AllTypes() []Type {
	return []Type{
		TypeNodeAdded, TypeNodeUpdated, TypeNodeRemoved,
		TypeRelationshipAdded, TypeRelationshipRemoved,
		TypeAnalysisStarted, TypeAnalysisProgress, TypeAnalysisCompleted, TypeAnalysisFailed,
	}
}

// Entity type tags carried on the wire.
const (
	EntityNode         = "node"
	EntityRelationship = "relationship"
	EntityAnalysis     = "analysis"
)

// ChangeEvent is a single CDC record. EventID is assigned by the journal at
// publish time and is strictly monotonic per engine instance. Timestamps are
// wall-clock UTC.
type ChangeEvent struct {
	EventID    uint64         `json:"eventId"`
	Timestamp  time.Time      `json:"timestamp"`
	Type       Type           `json:"type"`
	EntityType string         `json:"entityType"`
	EntityID   string         `json:"entityId"`
	Data       map[string]any `json:"data,omitempty"`
}

func newEvent(t Type, entityType, entityID string, data map[string]any) ChangeEvent {
	return ChangeEvent{
		Timestamp:  time.Now().UTC(),
		Type:       t,
		EntityType: entityType,
		EntityID:   entityID,
		Data:       data,
	}
}

// NewNodeAdded captures a node insertion; the payload is the full record.
func NewNodeAdded(n *entity.Node) ChangeEvent {
	return newEvent(TypeNodeAdded, EntityNode, n.ID, n.Record())
}

// NewNodeUpdated captures an in-place attribute update with the full new record.
func NewNodeUpdated(n *entity.Node) ChangeEvent {
	return newEvent(TypeNodeUpdated, EntityNode, n.ID, n.Record())
}

// NewNodeRemoved captures a node removal; the payload is the record as it
// was at removal time.
func NewNodeRemoved(n *entity.Node) ChangeEvent {
	return newEvent(TypeNodeRemoved, EntityNode, n.ID, n.Record())
}

// NewRelationshipAdded captures an edge insertion.
func NewRelationshipAdded(r *relationship.Relationship) ChangeEvent {
	return newEvent(TypeRelationshipAdded, EntityRelationship, r.Key().String(), r.Record())
}

// NewRelationshipRemoved captures an edge removal.
func NewRelationshipRemoved(r *relationship.Relationship) ChangeEvent {
	return newEvent(TypeRelationshipRemoved, EntityRelationship, r.Key().String(), r.Record())
}

// Progress carries cumulative batch counters.
type Progress struct {
	Nodes         int `json:"nodes"`
	Relationships int `json:"relationships"`
	Deletions     int `json:"deletions"`
}

func (p Progress) record(batchID string) map[string]any {
	return map[string]any{
		"batchId":       batchID,
		"nodes":         p.Nodes,
		"relationships": p.Relationships,
		"deletions":     p.Deletions,
	}
}

// NewAnalysisStarted marks the beginning of an ingestion batch.
func NewAnalysisStarted(batchID string) ChangeEvent {
	return newEvent(TypeAnalysisStarted, EntityAnalysis, batchID, map[string]any{"batchId": batchID})
}

// NewAnalysisProgress reports cumulative counts for a running batch.
func NewAnalysisProgress(batchID string, p Progress) ChangeEvent {
	return newEvent(TypeAnalysisProgress, EntityAnalysis, batchID, p.record(batchID))
}

// NewAnalysisCompleted reports final counts for a finished batch.
func NewAnalysisCompleted(batchID string, p Progress) ChangeEvent {
	return newEvent(TypeAnalysisCompleted, EntityAnalysis, batchID, p.record(batchID))
}

// NewAnalysisFailed reports a rolled-back batch. The reason is an error kind
// string; raw parser output never reaches subscribers.
func NewAnalysisFailed(batchID, reason, message string) ChangeEvent {
	return newEvent(TypeAnalysisFailed, EntityAnalysis, batchID, map[string]any{
		"batchId": batchID,
		"reason":  reason,
		"message": message,
	})
}
