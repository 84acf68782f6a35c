// Package depgraph tracks which tasks depend on which, from both a
// task's explicit DependsOn list and dependencies inferred elsewhere
// (the graphite stack), and answers which tasks need restacking when
// a parent's branch head moves.
package depgraph

import (
	"sort"

	"github.com/othala-dev/orchd/internal/orchd/domain"
)

// InferredDependency is one parent/child edge discovered outside a
// task's own DependsOn list, typically from the graphite stack shape.
type InferredDependency struct {
	ParentTaskID domain.TaskId
	ChildTaskID  domain.TaskId
}

// Graph is the adjacency of the effective dependency set: explicit
// DependsOn edges unioned with inferred edges, with self-edges and
// edges touching unknown tasks dropped.
type Graph struct {
	ParentsByChild  map[domain.TaskId]map[domain.TaskId]struct{}
	ChildrenByParent map[domain.TaskId]map[domain.TaskId]struct{}
}

// Empty returns a Graph with no nodes or edges.
func Empty() Graph {
	return Graph{
		ParentsByChild:   map[domain.TaskId]map[domain.TaskId]struct{}{},
		ChildrenByParent: map[domain.TaskId]map[domain.TaskId]struct{}{},
	}
}

// Build unions tasks' explicit DependsOn edges with inferred, keeping
// only edges between two known task IDs and dropping self-edges.
func Build(tasks []*domain.Task, inferred []InferredDependency) Graph {
	graph := Empty()

	knownTasks := map[domain.TaskId]struct{}{}
	for _, task := range tasks {
		knownTasks[task.ID] = struct{}{}
	}

	for _, task := range tasks {
		if graph.ParentsByChild[task.ID] == nil {
			graph.ParentsByChild[task.ID] = map[domain.TaskId]struct{}{}
		}
		if graph.ChildrenByParent[task.ID] == nil {
			graph.ChildrenByParent[task.ID] = map[domain.TaskId]struct{}{}
		}
	}

	for _, task := range tasks {
		for _, parent := range task.DependsOn {
			addEdgeIfValid(graph, parent, task.ID, knownTasks)
		}
	}

	for _, edge := range inferred {
		addEdgeIfValid(graph, edge.ParentTaskID, edge.ChildTaskID, knownTasks)
	}

	return graph
}

// RestackDescendants returns every task transitively downstream of
// parentTaskID, in breadth-first order with alphabetical tie-breaking
// at each level and each task visited at most once. Used to find
// which tasks need restacking after a parent's branch head moves.
func RestackDescendants(graph Graph, parentTaskID domain.TaskId) []domain.TaskId {
	var out []domain.TaskId
	seen := map[domain.TaskId]struct{}{}
	queue := sortedChildren(graph, parentTaskID)
	for _, child := range queue {
		seen[child] = struct{}{}
	}

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		out = append(out, node)

		for _, child := range sortedChildren(graph, node) {
			if _, already := seen[child]; already {
				continue
			}
			seen[child] = struct{}{}
			queue = append(queue, child)
		}
	}

	return out
}

// ParentHeadUpdateTrigger extracts the parent task ID from an event
// that should trigger a descendant restack, or nil if event is not
// that kind.
func ParentHeadUpdateTrigger(event domain.EventKind) *domain.TaskId {
	if event.Kind != domain.EventParentHeadUpdated {
		return nil
	}
	id := event.ParentTaskID
	return &id
}

func addEdgeIfValid(graph Graph, parent, child domain.TaskId, knownTasks map[domain.TaskId]struct{}) {
	if parent == child {
		return
	}
	if _, ok := knownTasks[parent]; !ok {
		return
	}
	if _, ok := knownTasks[child]; !ok {
		return
	}

	if graph.ChildrenByParent[parent] == nil {
		graph.ChildrenByParent[parent] = map[domain.TaskId]struct{}{}
	}
	graph.ChildrenByParent[parent][child] = struct{}{}

	if graph.ParentsByChild[child] == nil {
		graph.ParentsByChild[child] = map[domain.TaskId]struct{}{}
	}
	graph.ParentsByChild[child][parent] = struct{}{}
}

func sortedChildren(graph Graph, node domain.TaskId) []domain.TaskId {
	children := graph.ChildrenByParent[node]
	out := make([]domain.TaskId, 0, len(children))
	for child := range children {
		out = append(out, child)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
