// Package memgraph implements the in-memory labelled multigraph engine: the
// node and relationship store with insertion-ordered adjacency, the search
// and stats surface, the traversal library, and batch checkpoint/restore.
//
// Concurrency follows a single-writer / many-reader discipline. CDC events
// are published while the write lock is held so the event order observed by
// the journal always equals the mutation order. Stored records are never
// mutated in place, only replaced, so snapshots handed to traversals stay
// immutable after the read lock is released. The publish callback must not
// call back into the store.
package memgraph

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"codegraph-backend/internal/domain/entity"
	"codegraph-backend/internal/domain/events"
	"codegraph-backend/internal/domain/relationship"
	"codegraph-backend/internal/errors"
	"codegraph-backend/internal/repository"
)

// PublishFunc receives one CDC event per observable state change.
type PublishFunc func(evt events.ChangeEvent)

// Store is the in-memory graph engine.
type Store struct {
	mu sync.RWMutex

	nodes map[string]*entity.Node
	rels  map[relationship.Key]*relationship.Relationship

	// Parallel ordered indexes over the unordered maps: adjacency in
	// insertion order, per endpoint.
	outgoing map[string][]relationship.Key
	incoming map[string][]relationship.Key

	nameIndex map[string]map[string]struct{}
	fileIndex map[string]map[string]struct{}
	languages map[string]int
	kinds     map[string]int

	publish PublishFunc
	logger  *zap.Logger
}

var (
	_ repository.GraphReader = (*Store)(nil)
	_ repository.GraphWriter = (*Store)(nil)
	_ repository.Traverser   = (*Store)(nil)
)

// New creates an empty store. publish may be nil, in which case mutations
// are applied without CDC capture (used by replay tooling and tests).
func New(publish PublishFunc, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		nodes:     make(map[string]*entity.Node),
		rels:      make(map[relationship.Key]*relationship.Relationship),
		outgoing:  make(map[string][]relationship.Key),
		incoming:  make(map[string][]relationship.Key),
		nameIndex: make(map[string]map[string]struct{}),
		fileIndex: make(map[string]map[string]struct{}),
		languages: make(map[string]int),
		kinds:     make(map[string]int),
		publish:   publish,
		logger:    logger,
	}
}

func (s *Store) emit(evt events.ChangeEvent) {
	if s.publish != nil {
		s.publish(evt)
	}
}

// UpsertNode inserts or updates a node. Re-inserting an existing id updates
// attributes in place and emits node_updated; inserting an identical record
// is Unchanged and emits nothing.
func (s *Store) UpsertNode(ctx context.Context, n *entity.Node) (repository.MutationResult, error) {
	if err := ctx.Err(); err != nil {
		return repository.Unchanged, err
	}
	if n == nil {
		return repository.Unchanged, errors.InvalidIdentifier("nil node")
	}
	if _, err := entity.ParseID(n.ID); err != nil {
		return repository.Unchanged, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertNodeLocked(n), nil
}

func (s *Store) upsertNodeLocked(n *entity.Node) repository.MutationResult {
	clone := n.Clone()
	existing, ok := s.nodes[n.ID]
	if !ok {
		s.nodes[n.ID] = clone
		s.indexAdd(clone)
		s.languages[clone.Language]++
		s.kinds[string(clone.Kind)]++
		s.emit(events.NewNodeAdded(clone))
		return repository.Added
	}
	if existing.Equal(clone) {
		return repository.Unchanged
	}

	s.indexRemove(existing)
	s.languages[existing.Language]--
	if s.languages[existing.Language] == 0 {
		delete(s.languages, existing.Language)
	}
	s.kinds[string(existing.Kind)]--
	if s.kinds[string(existing.Kind)] == 0 {
		delete(s.kinds, string(existing.Kind))
	}

	s.nodes[n.ID] = clone
	s.indexAdd(clone)
	s.languages[clone.Language]++
	s.kinds[string(clone.Kind)]++

	if existing.Language != clone.Language {
		s.rederiveSeamsLocked(clone.ID)
	}

	s.emit(events.NewNodeUpdated(clone))
	return repository.Updated
}

// rederiveSeamsLocked recomputes the seam flag of every edge incident to id.
// The flag is a function of the endpoint languages, so a language change on
// a node must never leave stale flags behind. Records are replaced, not
// mutated, to keep snapshots held by traversals immutable.
func (s *Store) rederiveSeamsLocked(id string) {
	touch := func(key relationship.Key) {
		r := s.rels[key]
		src := s.nodes[r.SourceID]
		dst := s.nodes[r.TargetID]
		derived := r.DeriveSeam(src.Language, dst.Language)
		if derived != r.IsSeam {
			repl := r.Clone()
			repl.IsSeam = derived
			s.rels[key] = repl
		}
	}
	for _, key := range s.outgoing[id] {
		touch(key)
	}
	for _, key := range s.incoming[id] {
		if key.SourceID == id {
			continue // self-loop already touched
		}
		touch(key)
	}
}

// RemoveNode deletes a node and all incident relationships atomically.
// Each incident edge emits relationship_removed, then the node emits one
// node_removed, all under the same write lock so event ids are contiguous.
// Absent ids are a no-op returning 0.
func (s *Store) RemoveNode(ctx context.Context, id string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeNodeLocked(id), nil
}

func (s *Store) removeNodeLocked(id string) int {
	n, ok := s.nodes[id]
	if !ok {
		return 0
	}

	// Outgoing first, then incoming, each in insertion order. Self-loops
	// appear in both lists; the second removal is a no-op.
	removed := 0
	for _, key := range append(append([]relationship.Key{}, s.outgoing[id]...), s.incoming[id]...) {
		if s.removeRelationshipLocked(key) {
			removed++
		}
	}

	delete(s.nodes, id)
	delete(s.outgoing, id)
	delete(s.incoming, id)
	s.indexRemove(n)
	s.languages[n.Language]--
	if s.languages[n.Language] == 0 {
		delete(s.languages, n.Language)
	}
	s.kinds[string(n.Kind)]--
	if s.kinds[string(n.Kind)] == 0 {
		delete(s.kinds, string(n.Kind))
	}

	s.emit(events.NewNodeRemoved(n))
	return removed
}

// UpsertRelationship inserts a directed typed edge. Both endpoints must
// exist; the seam flag is derived from their languages at insertion time.
// Duplicate (source, target, type) inserts are idempotent and emit nothing.
func (s *Store) UpsertRelationship(ctx context.Context, r *relationship.Relationship) (repository.MutationResult, error) {
	if err := ctx.Err(); err != nil {
		return repository.Unchanged, err
	}
	if r == nil {
		return repository.Unchanged, errors.InvalidIdentifier("nil relationship")
	}
	if !r.Type.Valid() {
		return repository.Unchanged, errors.Newf(errors.KindInvalidIdentifier, "unknown relationship type %q", r.Type)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertRelationshipLocked(r)
}

func (s *Store) upsertRelationshipLocked(r *relationship.Relationship) (repository.MutationResult, error) {
	src, ok := s.nodes[r.SourceID]
	if !ok {
		return repository.Unchanged, errors.Newf(errors.KindMissingEndpoint, "source node %q not in store", r.SourceID)
	}
	dst, ok := s.nodes[r.TargetID]
	if !ok {
		return repository.Unchanged, errors.Newf(errors.KindMissingEndpoint, "target node %q not in store", r.TargetID)
	}

	key := r.Key()
	if _, exists := s.rels[key]; exists {
		return repository.Unchanged, nil
	}

	clone := r.Clone()
	clone.IsSeam = clone.DeriveSeam(src.Language, dst.Language)
	s.rels[key] = clone
	s.outgoing[key.SourceID] = append(s.outgoing[key.SourceID], key)
	s.incoming[key.TargetID] = append(s.incoming[key.TargetID], key)

	s.emit(events.NewRelationshipAdded(clone))
	return repository.Added, nil
}

// RemoveRelationship deletes one edge by its (source, target, type) key and
// reports whether it existed.
func (s *Store) RemoveRelationship(ctx context.Context, sourceID, targetID string, t relationship.RelType) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeRelationshipLocked(relationship.Key{SourceID: sourceID, TargetID: targetID, Type: t}), nil
}

func (s *Store) removeRelationshipLocked(key relationship.Key) bool {
	r, ok := s.rels[key]
	if !ok {
		return false
	}
	delete(s.rels, key)
	s.outgoing[key.SourceID] = dropKey(s.outgoing[key.SourceID], key)
	s.incoming[key.TargetID] = dropKey(s.incoming[key.TargetID], key)

	s.emit(events.NewRelationshipRemoved(r))
	return true
}

func dropKey(keys []relationship.Key, key relationship.Key) []relationship.Key {
	for i, k := range keys {
		if k == key {
			return append(keys[:i], keys[i+1:]...)
		}
	}
	return keys
}

// GetNode returns a defensive copy of the node.
func (s *Store) GetNode(ctx context.Context, id string) (*entity.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil, errors.Newf(errors.KindNotFound, "node %q not found", id)
	}
	return n.Clone(), nil
}

// FindByName returns every node whose name matches exactly, ordered by id.
func (s *Store) FindByName(ctx context.Context, name string) ([]*entity.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.nameIndex[name]))
	for id := range s.nameIndex[name] {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	nodes := make([]*entity.Node, 0, len(ids))
	for _, id := range ids {
		nodes = append(nodes, s.nodes[id].Clone())
	}
	return nodes, nil
}

// OutgoingEdges returns the node's outgoing relationships in insertion
// order. An absent node yields an empty slice.
func (s *Store) OutgoingEdges(ctx context.Context, id string) ([]*relationship.Relationship, error) {
	return s.edges(ctx, id, true)
}

// IncomingEdges returns the node's incoming relationships in insertion order.
func (s *Store) IncomingEdges(ctx context.Context, id string) ([]*relationship.Relationship, error) {
	return s.edges(ctx, id, false)
}

func (s *Store) edges(ctx context.Context, id string, out bool) ([]*relationship.Relationship, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := s.incoming[id]
	if out {
		keys = s.outgoing[id]
	}
	rels := make([]*relationship.Relationship, 0, len(keys))
	for _, key := range keys {
		rels = append(rels, s.rels[key].Clone())
	}
	return rels, nil
}

// Stats returns node/relationship totals and the language and kind
// histograms.
func (s *Store) Stats(ctx context.Context) (repository.Stats, error) {
	if err := ctx.Err(); err != nil {
		return repository.Stats{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	st := repository.Stats{
		TotalNodes:         len(s.nodes),
		TotalRelationships: len(s.rels),
		Languages:          make(map[string]int, len(s.languages)),
		Kinds:              make(map[string]int, len(s.kinds)),
	}
	for lang, c := range s.languages {
		st.Languages[lang] = c
	}
	for kind, c := range s.kinds {
		st.Kinds[kind] = c
	}
	return st, nil
}

func (s *Store) indexAdd(n *entity.Node) {
	if s.nameIndex[n.Name] == nil {
		s.nameIndex[n.Name] = make(map[string]struct{})
	}
	s.nameIndex[n.Name][n.ID] = struct{}{}
	if s.fileIndex[n.File] == nil {
		s.fileIndex[n.File] = make(map[string]struct{})
	}
	s.fileIndex[n.File][n.ID] = struct{}{}
}

func (s *Store) indexRemove(n *entity.Node) {
	if set := s.nameIndex[n.Name]; set != nil {
		delete(set, n.ID)
		if len(set) == 0 {
			delete(s.nameIndex, n.Name)
		}
	}
	if set := s.fileIndex[n.File]; set != nil {
		delete(set, n.ID)
		if len(set) == 0 {
			delete(s.fileIndex, n.File)
		}
	}
}
