// Package cycles keeps the card-set parent graph acyclic.
//
// Every card set has at most one parent, so the graph is functional and a
// cycle is found by walking parent links from a start node until the walk
// reaches a root, a node already known to be safe, or a node already on the
// current path. In the last case the parent link of the node that closes the
// loop is cut. Start nodes are taken in ascending id order, so the same input
// always yields the same repairs.
package cycles

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Node is one card set as seen by the guard.
type Node struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Parent *int64 `json:"parent,omitempty"`
}

// Repair describes one cut: Cycle lists the card-set names around the loop,
// starting and ending at the node where the loop was entered; Child lost its
// link to Parent.
type Repair struct {
	Cycle  []string `json:"cycle"`
	Child  Node     `json:"child"`
	Parent Node     `json:"parent"`
}

// Description renders the cycle path, e.g. "A -> B -> A".
func (r Repair) Description() string {
	return strings.Join(r.Cycle, " -> ")
}

// BrokenAt renders the cut edge, e.g. "B -> A".
func (r Repair) BrokenAt() string {
	return fmt.Sprintf("%s -> %s", r.Child.Name, r.Parent.Name)
}

func (r Repair) String() string {
	return fmt.Sprintf("cycle %s broken at %s", r.Description(), r.BrokenAt())
}

// Find returns the cuts that make nodes acyclic, in the order they are made.
// nodes is not modified. Parents that reference ids missing from nodes end a
// walk like a root does.
func Find(nodes []Node) []Repair {
	byID := make(map[int64]Node, len(nodes))
	parent := make(map[int64]int64, len(nodes))
	ids := make([]int64, 0, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
		ids = append(ids, n.ID)
		if n.Parent != nil {
			parent[n.ID] = *n.Parent
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	safe := make(map[int64]bool, len(nodes))
	var repairs []Repair

	for _, start := range ids {
		if safe[start] {
			continue
		}
		onPath := make(map[int64]int)
		var path []int64
		cur := start
		for {
			if safe[cur] {
				break
			}
			if _, known := byID[cur]; !known {
				break
			}
			if at, looped := onPath[cur]; looped {
				closer := path[len(path)-1]
				repairs = append(repairs, newRepair(byID, path[at:], closer, cur))
				delete(parent, closer)
				break
			}
			onPath[cur] = len(path)
			path = append(path, cur)
			next, hasParent := parent[cur]
			if !hasParent {
				break
			}
			cur = next
		}
		for _, id := range path {
			safe[id] = true
		}
	}
	return repairs
}

func newRepair(byID map[int64]Node, loop []int64, child, parent int64) Repair {
	names := make([]string, 0, len(loop)+1)
	for _, id := range loop {
		names = append(names, byID[id].Name)
	}
	names = append(names, byID[loop[0]].Name)
	return Repair{Cycle: names, Child: byID[child], Parent: byID[parent]}
}

// Apply returns a copy of nodes with every repair's cut applied.
func Apply(nodes []Node, repairs []Repair) []Node {
	cut := make(map[int64]bool, len(repairs))
	for _, r := range repairs {
		cut[r.Child.ID] = true
	}
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		out[i] = n
		if cut[n.ID] {
			out[i].Parent = nil
		}
	}
	return out
}

// Store is the card-set access the guard needs.
type Store interface {
	CardSetNodes(ctx context.Context) ([]Node, error)
	ClearParents(ctx context.Context, ids []int64) error
}

// Guard loads every card set from s, cuts all cycles and persists the cuts in
// one call to ClearParents. Repair is never optional; only storage errors are
// returned.
func Guard(ctx context.Context, s Store, log *zap.Logger) ([]Repair, error) {
	if log == nil {
		log = zap.NewNop()
	}
	nodes, err := s.CardSetNodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading card sets: %w", err)
	}

	repairs := Find(nodes)
	if len(repairs) == 0 {
		log.Debug("card-set graph is acyclic", zap.Int("card_sets", len(nodes)))
		return nil, nil
	}

	ids := make([]int64, len(repairs))
	for i, r := range repairs {
		ids[i] = r.Child.ID
		log.Warn("breaking card-set cycle",
			zap.String("cycle", r.Description()),
			zap.String("broken_at", r.BrokenAt()))
	}
	if err := s.ClearParents(ctx, ids); err != nil {
		return nil, fmt.Errorf("clearing parents: %w", err)
	}
	return repairs, nil
}
