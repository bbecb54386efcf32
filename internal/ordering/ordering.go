// Package ordering visits a flat list of records so that every record is
// processed after its parent. Records whose parent is absent, outside the
// list, or already visited are ready immediately.
//
// Two strategies are available. Worklist repeatedly scans the pending records
// and is the default; it is O(n²) in the worst case, which is fine for card-set
// trees that are shallow and small. Topological counts in-degrees by index and
// runs in O(n).
package ordering

import (
	"fmt"
	"strings"

	"github.com/mesh-intelligence/cardshelf/pkg/types"
)

// Strategy selects the visitation algorithm.
type Strategy string

// Available strategies.
const (
	Worklist    Strategy = types.OrderingWorklist
	Topological Strategy = types.OrderingTopological
)

// ParseStrategy maps a configuration value to a Strategy. The empty string
// selects Worklist.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "", string(Worklist):
		return Worklist, nil
	case string(Topological):
		return Topological, nil
	default:
		return "", fmt.Errorf("%w: %q", types.ErrOrderingUnknown, s)
	}
}

// DependencyCycleError is returned when the pending records can never become
// ready because their parents form a cycle. Cycle repair is expected to run
// before any ordered visit, so this error signals a broken invariant.
type DependencyCycleError struct {
	Pending []string
}

func (e *DependencyCycleError) Error() string {
	return fmt.Sprintf("dependency cycle among %d pending records: %s",
		len(e.Pending), strings.Join(e.Pending, ", "))
}

// Visit calls visit for every item, parents before children, using s.
func Visit[T any, K comparable](s Strategy, items []T, key func(T) K, parent func(T) (K, bool), visit func(T) error) error {
	if s == Topological {
		return TopoVisit(items, key, parent, visit)
	}
	return WorklistVisit(items, key, parent, visit)
}

// WorklistVisit visits items with the iterative worklist algorithm. Each scan
// over the pending records visits every record whose parent is resolved; a
// scan that makes no progress while records remain pending yields a
// DependencyCycleError. An error from visit stops the walk and is returned
// unchanged.
func WorklistVisit[T any, K comparable](items []T, key func(T) K, parent func(T) (K, bool), visit func(T) error) error {
	inList := make(map[K]bool, len(items))
	for _, it := range items {
		inList[key(it)] = true
	}

	done := make(map[K]bool, len(items))
	pending := make([]T, len(items))
	copy(pending, items)

	for len(pending) > 0 {
		next := pending[:0]
		progressed := false
		for _, it := range pending {
			p, ok := parent(it)
			if ok && inList[p] && !done[p] {
				next = append(next, it)
				continue
			}
			if err := visit(it); err != nil {
				return err
			}
			done[key(it)] = true
			progressed = true
		}
		pending = next
		if !progressed {
			return cycleError(pending, key)
		}
	}
	return nil
}

// TopoVisit visits items by counting in-degrees over list indexes (Kahn's
// algorithm). Roots are visited in list order.
func TopoVisit[T any, K comparable](items []T, key func(T) K, parent func(T) (K, bool), visit func(T) error) error {
	index := make(map[K]int, len(items))
	for i, it := range items {
		index[key(it)] = i
	}

	children := make([][]int, len(items))
	indegree := make([]int, len(items))
	for i, it := range items {
		p, ok := parent(it)
		if !ok {
			continue
		}
		pi, inList := index[p]
		if !inList {
			continue
		}
		children[pi] = append(children[pi], i)
		indegree[i]++
	}

	queue := make([]int, 0, len(items))
	for i := range items {
		if indegree[i] == 0 {
			queue = append(queue, i)
		}
	}

	visited := 0
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		if err := visit(items[i]); err != nil {
			return err
		}
		visited++
		for _, c := range children[i] {
			indegree[c]--
			if indegree[c] == 0 {
				queue = append(queue, c)
			}
		}
	}

	if visited < len(items) {
		var pending []T
		for i, it := range items {
			if indegree[i] > 0 {
				pending = append(pending, it)
			}
		}
		return cycleError(pending, key)
	}
	return nil
}

func cycleError[T any, K comparable](pending []T, key func(T) K) error {
	keys := make([]string, len(pending))
	for i, it := range pending {
		keys[i] = fmt.Sprint(key(it))
	}
	return &DependencyCycleError{Pending: keys}
}
