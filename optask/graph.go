package optask

import (
	"fmt"
	"strings"
	"sync"
)

// depGraph tracks "t depends on after" edges declared via Schedule, so a
// circular scheduling can be detected and reported before it deadlocks
// at run time.
var depGraph = struct {
	mu    sync.Mutex
	edges map[ID][]ID
}{edges: make(map[ID][]ID)}

func addEdge(t, after ID) {
	depGraph.mu.Lock()
	defer depGraph.mu.Unlock()
	depGraph.edges[t] = append(depGraph.edges[t], after)
}

// removeEdges drops a task's adjacency list once it reaches a terminal
// state: a finished task can no longer close a scheduling cycle, and
// without pruning a long-lived process that keeps creating tasks would
// grow the graph without bound. The finished id may linger inside other
// tasks' lists, but those lists are dropped when their owners finish.
func removeEdges(t ID) {
	depGraph.mu.Lock()
	defer depGraph.mu.Unlock()
	delete(depGraph.edges, t)
}

// detectCycle reports whether a dependency path already exists from
// start to target among recorded edges (edges[x] lists what x depends
// on). Schedule calls this with start=after, target=t before recording
// "t depends on after": a path from after back to t means the new edge
// would close a cycle. Returns the path start->...->target when found.
func detectCycle(start, target ID) (path []ID, found bool) {
	depGraph.mu.Lock()
	defer depGraph.mu.Unlock()

	if start == target {
		return []ID{start}, true
	}

	visited := make(map[ID]bool)
	var walk func(cur ID, trail []ID) ([]ID, bool)
	walk = func(cur ID, trail []ID) ([]ID, bool) {
		trail = append(trail, cur)
		if cur == target {
			return trail, true
		}
		if visited[cur] {
			return nil, false
		}
		visited[cur] = true
		for _, next := range depGraph.edges[cur] {
			if p, ok := walk(next, trail); ok {
				return p, true
			}
		}
		return nil, false
	}
	return walk(start, nil)
}

func formatCycle(path []ID) string {
	parts := make([]string, len(path))
	for i, id := range path {
		parts[i] = fmt.Sprintf("#%d", id)
	}
	return strings.Join(parts, " -> ")
}
