package queries

import (
	"sort"

	"codegraph-backend/internal/repository"
)

// sortNeighbors orders one-hop results by node id, ties by edge type, so
// union results over multiple resolved symbols page deterministically.
func sortNeighbors(neighbors []repository.Neighbor) {
	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].Node.ID != neighbors[j].Node.ID {
			return neighbors[i].Node.ID < neighbors[j].Node.ID
		}
		return neighbors[i].EdgeType < neighbors[j].EdgeType
	})
}
