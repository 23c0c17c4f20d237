package memgraph

import (
	"context"

	"codegraph-backend/internal/domain/entity"
	"codegraph-backend/internal/domain/events"
	"codegraph-backend/internal/domain/relationship"
)

// ApplyEvent replays a single CDC event against a store. A consumer that
// applies a journal or archive stream in eventId order to an empty store
// ends with a graph equal to the producer's. Analysis lifecycle events carry
// no graph state and are ignored.
func ApplyEvent(ctx context.Context, s *Store, evt events.ChangeEvent) error {
	switch evt.Type {
	case events.TypeNodeAdded, events.TypeNodeUpdated:
		n, err := nodeFromRecord(evt.Data)
		if err != nil {
			return err
		}
		_, err = s.UpsertNode(ctx, n)
		return err
	case events.TypeNodeRemoved:
		_, err := s.RemoveNode(ctx, evt.EntityID)
		return err
	case events.TypeRelationshipAdded:
		r, err := relationshipFromRecord(evt.Data)
		if err != nil {
			return err
		}
		_, err = s.UpsertRelationship(ctx, r)
		return err
	case events.TypeRelationshipRemoved:
		r, err := relationshipFromRecord(evt.Data)
		if err != nil {
			return err
		}
		_, err = s.RemoveRelationship(ctx, r.SourceID, r.TargetID, r.Type)
		return err
	}
	return nil
}

func nodeFromRecord(rec map[string]any) (*entity.Node, error) {
	id, _ := rec["id"].(string)
	if _, err := entity.ParseID(id); err != nil {
		return nil, err
	}
	name, _ := rec["name"].(string)
	kind, _ := rec["kind"].(string)
	lang, _ := rec["language"].(string)
	file, _ := rec["file"].(string)
	n := &entity.Node{
		ID:         id,
		Name:       name,
		Kind:       entity.ParseKind(kind),
		Language:   lang,
		File:       file,
		Line:       recordInt(rec["line"]),
		EndLine:    recordInt(rec["endLine"]),
		Complexity: recordInt(rec["complexity"]),
	}
	if md, ok := rec["metadata"].(map[string]any); ok {
		n.Metadata = md
	}
	return n, nil
}

func relationshipFromRecord(rec map[string]any) (*relationship.Relationship, error) {
	typeStr, _ := rec["type"].(string)
	t, err := relationship.ParseType(typeStr)
	if err != nil {
		return nil, err
	}
	src, _ := rec["sourceId"].(string)
	dst, _ := rec["targetId"].(string)
	if _, err := entity.ParseID(src); err != nil {
		return nil, err
	}
	if _, err := entity.ParseID(dst); err != nil {
		return nil, err
	}
	r := &relationship.Relationship{SourceID: src, TargetID: dst, Type: t}
	if seam, ok := rec["isSeam"].(bool); ok {
		r.IsSeam = seam
	}
	if md, ok := rec["metadata"].(map[string]any); ok {
		r.Metadata = md
	}
	return r, nil
}

// recordInt reads a numeric record field whether it came straight from the
// producer (int) or through a JSON hop (float64).
func recordInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}
