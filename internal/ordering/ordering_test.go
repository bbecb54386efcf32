package ordering

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/cardshelf/pkg/types"
)

type node struct {
	id     int
	parent int // 0 means no parent
}

func nodeKey(n node) int { return n.id }

func nodeParent(n node) (int, bool) { return n.parent, n.parent != 0 }

var strategies = []Strategy{Worklist, Topological}

// randomForest builds n nodes where each node's parent has a smaller id, then
// shuffles them so children often precede their parents in the list.
func randomForest(r *rand.Rand, n int) []node {
	nodes := make([]node, n)
	for i := range nodes {
		id := i + 1
		parent := 0
		if id > 1 && r.Intn(4) != 0 {
			parent = r.Intn(id-1) + 1
		}
		nodes[i] = node{id: id, parent: parent}
	}
	r.Shuffle(len(nodes), func(i, j int) { nodes[i], nodes[j] = nodes[j], nodes[i] })
	return nodes
}

func TestVisitAcyclicForests(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for _, s := range strategies {
		for round := 0; round < 50; round++ {
			nodes := randomForest(r, 1+r.Intn(60))

			seen := make(map[int]int)
			var order []int
			err := Visit(s, nodes, nodeKey, nodeParent, func(n node) error {
				if n.parent != 0 {
					_, parentSeen := seen[n.parent]
					require.True(t, parentSeen, "%s: node %d visited before parent %d", s, n.id, n.parent)
				}
				seen[n.id]++
				order = append(order, n.id)
				return nil
			})
			require.NoError(t, err)
			assert.Len(t, order, len(nodes))
			for id, count := range seen {
				assert.Equal(t, 1, count, "%s: node %d visited %d times", s, id, count)
			}
		}
	}
}

func TestVisitExternalParentIsReady(t *testing.T) {
	nodes := []node{{id: 2, parent: 99}, {id: 3, parent: 2}}
	for _, s := range strategies {
		var order []int
		err := Visit(s, nodes, nodeKey, nodeParent, func(n node) error {
			order = append(order, n.id)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []int{2, 3}, order, string(s))
	}
}

func TestVisitChildBeforeParentInList(t *testing.T) {
	nodes := []node{{id: 3, parent: 2}, {id: 2, parent: 1}, {id: 1}}
	for _, s := range strategies {
		var order []int
		err := Visit(s, nodes, nodeKey, nodeParent, func(n node) error {
			order = append(order, n.id)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2, 3}, order, string(s))
	}
}

func TestVisitCycleReportsPending(t *testing.T) {
	nodes := []node{{id: 1}, {id: 2, parent: 3}, {id: 3, parent: 2}, {id: 4, parent: 3}}
	for _, s := range strategies {
		var visited []int
		err := Visit(s, nodes, nodeKey, nodeParent, func(n node) error {
			visited = append(visited, n.id)
			return nil
		})
		var cycleErr *DependencyCycleError
		require.True(t, errors.As(err, &cycleErr), "%s: expected DependencyCycleError, got %v", s, err)
		assert.ElementsMatch(t, []string{"2", "3", "4"}, cycleErr.Pending)
		assert.Equal(t, []int{1}, visited)
	}
}

func TestVisitStopsOnVisitError(t *testing.T) {
	boom := errors.New("boom")
	nodes := []node{{id: 1}, {id: 2, parent: 1}, {id: 3, parent: 2}}
	for _, s := range strategies {
		calls := 0
		err := Visit(s, nodes, nodeKey, nodeParent, func(n node) error {
			calls++
			if n.id == 2 {
				return boom
			}
			return nil
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 2, calls)
	}
}

func TestVisitEmpty(t *testing.T) {
	for _, s := range strategies {
		err := Visit(s, nil, nodeKey, nodeParent, func(node) error {
			return fmt.Errorf("unexpected visit")
		})
		assert.NoError(t, err)
	}
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in      string
		want    Strategy
		wantErr bool
	}{
		{"", Worklist, false},
		{"worklist", Worklist, false},
		{"topological", Topological, false},
		{"bfs", "", true},
	}
	for _, tt := range tests {
		got, err := ParseStrategy(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, types.ErrOrderingUnknown)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}
