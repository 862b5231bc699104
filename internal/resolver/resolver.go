// Package resolver classifies tasks by dependency and parent readiness.
//
// Resolve is a pure function: it never fails, never touches the filesystem,
// and is deterministic for a given task list. Unresolvable references degrade
// to unresolved_deps and are dropped from further analysis.
package resolver

import (
	"sort"

	"github.com/brainsh/brain/internal/task"
)

// Stats summarizes a resolution result.
type Stats struct {
	Total      int `json:"total"`
	Ready      int `json:"ready"`
	Waiting    int `json:"waiting"`
	Blocked    int `json:"blocked"`
	NotPending int `json:"not_pending"`
}

// Result is the output of Resolve.
type Result struct {
	Tasks  []task.Resolved `json:"tasks"`
	Cycles [][]string      `json:"cycles,omitempty"`
	Stats  Stats           `json:"stats"`
}

// iterationFloor is the minimum BFS iteration budget per start node.
const iterationFloor = 100

// index holds the two lookup maps references resolve against.
type index struct {
	byID    map[string]*task.Task
	byTitle map[string]string // title -> id; later tasks shadow earlier ones
}

func buildIndex(tasks []task.Task) *index {
	idx := &index{
		byID:    make(map[string]*task.Task, len(tasks)),
		byTitle: make(map[string]string, len(tasks)),
	}
	for i := range tasks {
		t := &tasks[i]
		idx.byID[t.ID] = t
		if t.Title != "" {
			idx.byTitle[t.Title] = t.ID
		}
	}
	return idx
}

// resolve maps a reference to a task id: by id first, then by title.
func (idx *index) resolve(ref string) (string, bool) {
	if _, ok := idx.byID[ref]; ok {
		return ref, true
	}
	if id, ok := idx.byTitle[ref]; ok {
		return id, true
	}
	return "", false
}

// Resolve classifies every task in the list. The input is treated as a single
// project's tasks; cross-project references are resolved by the service layer
// before invocation.
func Resolve(tasks []task.Task) Result {
	idx := buildIndex(tasks)

	resolved := make([]task.Resolved, len(tasks))
	adjacency := make(map[string][]string, len(tasks))
	for i := range tasks {
		t := tasks[i]
		r := task.Resolved{Task: t}
		for _, raw := range t.DependsOn {
			if id, ok := idx.resolve(raw); ok {
				r.ResolvedDeps = append(r.ResolvedDeps, id)
			} else {
				r.UnresolvedDeps = append(r.UnresolvedDeps, raw)
			}
		}
		adjacency[t.ID] = r.ResolvedDeps
		r.ParentChain = parentChain(&t, idx)
		resolved[i] = r
	}

	cycleSet := detectCycles(adjacency)
	cycles := groupCycles(cycleSet, adjacency)

	stats := Stats{Total: len(tasks)}
	for i := range resolved {
		classify(&resolved[i], idx, cycleSet)
		switch resolved[i].Classification {
		case task.ClassReady:
			stats.Ready++
		case task.ClassWaiting, task.ClassWaitingOnParent:
			stats.Waiting++
		case task.ClassBlocked, task.ClassBlockedByParent:
			stats.Blocked++
		case task.ClassNotPending:
			stats.NotPending++
		}
	}

	return Result{Tasks: resolved, Cycles: cycles, Stats: stats}
}

// parentChain walks parent_id pointers from the immediate parent to the root.
// A missing parent terminates the chain with the missing reference included.
// Cyclic parent pointers are bounded by the visited guard.
func parentChain(t *task.Task, idx *index) []string {
	var chain []string
	visited := map[string]bool{t.ID: true}

	ref := t.ParentID
	for ref != "" {
		id, ok := idx.resolve(ref)
		if !ok {
			chain = append(chain, ref)
			break
		}
		if visited[id] {
			break
		}
		visited[id] = true
		chain = append(chain, id)
		ref = idx.byID[id].ParentID
	}
	return chain
}

// detectCycles returns the set of task ids that participate in a dependency
// cycle. For each start node a bounded BFS walks the adjacency list; if the
// frontier revisits the start, the start is in a cycle. O(V*(V+E)) is fine at
// the task counts we see per project.
func detectCycles(adjacency map[string][]string) map[string]bool {
	budget := iterationFloor
	edges := 0
	for _, deps := range adjacency {
		edges += len(deps)
	}
	if n := 2 * (len(adjacency) + edges); n > budget {
		budget = n
	}

	inCycle := make(map[string]bool)
	for start := range adjacency {
		seen := make(map[string]bool)
		frontier := append([]string(nil), adjacency[start]...)
		iterations := 0
		for len(frontier) > 0 && iterations < budget {
			iterations++
			next := frontier[0]
			frontier = frontier[1:]
			if next == start {
				inCycle[start] = true
				break
			}
			if seen[next] {
				continue
			}
			seen[next] = true
			frontier = append(frontier, adjacency[next]...)
		}
	}
	return inCycle
}

// groupCycles partitions the cycle membership set into components so each
// member appears in exactly one group. Two members share a group when each
// reaches the other through the dependency graph.
func groupCycles(cycleSet map[string]bool, adjacency map[string][]string) [][]string {
	members := make([]string, 0, len(cycleSet))
	for id := range cycleSet {
		members = append(members, id)
	}
	sort.Strings(members)

	assigned := make(map[string]bool)
	var groups [][]string
	for _, m := range members {
		if assigned[m] {
			continue
		}
		group := []string{m}
		assigned[m] = true
		reach := reachable(m, adjacency)
		for _, n := range members {
			if assigned[n] {
				continue
			}
			if reach[n] && reachable(n, adjacency)[m] {
				group = append(group, n)
				assigned[n] = true
			}
		}
		groups = append(groups, group)
	}
	return groups
}

func reachable(start string, adjacency map[string][]string) map[string]bool {
	out := make(map[string]bool)
	frontier := append([]string(nil), adjacency[start]...)
	for len(frontier) > 0 {
		next := frontier[0]
		frontier = frontier[1:]
		if out[next] {
			continue
		}
		out[next] = true
		frontier = append(frontier, adjacency[next]...)
	}
	return out
}

// effectiveStatus is the declared status, or circular for cycle members.
func effectiveStatus(id string, idx *index, cycleSet map[string]bool) task.Status {
	if cycleSet[id] {
		return task.Status("circular")
	}
	if t, ok := idx.byID[id]; ok {
		return t.Status
	}
	return ""
}

// classify applies the classification rules in priority order; first match wins.
func classify(r *task.Resolved, idx *index, cycleSet map[string]bool) {
	r.InCycle = cycleSet[r.ID]

	// 1. Cycle members are blocked outright.
	if r.InCycle {
		r.Classification = task.ClassBlocked
		r.BlockedReason = task.ReasonCircular
		return
	}

	// 2. Only pending tasks are schedulable.
	if r.Status != task.StatusPending {
		r.Classification = task.ClassNotPending
		return
	}

	// 3. A blocked, cancelled, or cyclic ancestor blocks the whole subtree.
	var blockedAncestors []string
	for _, anc := range r.ParentChain {
		if _, ok := idx.byID[anc]; !ok {
			continue // missing parents terminate the chain, they do not block
		}
		switch effectiveStatus(anc, idx, cycleSet) {
		case task.StatusBlocked, task.StatusCancelled, task.Status("circular"):
			blockedAncestors = append(blockedAncestors, anc)
		}
	}
	if len(blockedAncestors) > 0 {
		r.Classification = task.ClassBlockedByParent
		r.BlockedBy = blockedAncestors
		r.BlockedReason = task.ReasonParentBlocked
		return
	}

	// 4. A direct parent that is not underway yet holds its children back.
	if len(r.ParentChain) > 0 {
		parent := r.ParentChain[0]
		if _, ok := idx.byID[parent]; ok {
			switch effectiveStatus(parent, idx, cycleSet) {
			case task.StatusActive, task.StatusInProgress, task.StatusCompleted:
			default:
				r.Classification = task.ClassWaitingOnParent
				r.WaitingOn = []string{parent}
				return
			}
		}
	}

	// 5. Blocked, cancelled, or cyclic dependencies block the task.
	var blockedDeps []string
	for _, dep := range r.ResolvedDeps {
		switch effectiveStatus(dep, idx, cycleSet) {
		case task.StatusBlocked, task.StatusCancelled, task.Status("circular"):
			blockedDeps = append(blockedDeps, dep)
		}
	}
	if len(blockedDeps) > 0 {
		r.Classification = task.ClassBlocked
		r.BlockedBy = blockedDeps
		r.BlockedReason = task.ReasonDependencyBlocked
		return
	}

	// 6. Unfinished dependencies mean waiting.
	var waitingOn []string
	for _, dep := range r.ResolvedDeps {
		switch effectiveStatus(dep, idx, cycleSet) {
		case task.StatusPending, task.StatusInProgress:
			waitingOn = append(waitingOn, dep)
		}
	}
	if len(waitingOn) > 0 {
		r.Classification = task.ClassWaiting
		r.WaitingOn = waitingOn
		return
	}

	// 7. Everything checks out.
	r.Classification = task.ClassReady
}

// Ready returns the ready tasks ordered by priority, then creation time
// ascending. The sort is stable so equal keys keep input order.
func (r Result) Ready() []task.Resolved {
	var ready []task.Resolved
	for _, t := range r.Tasks {
		if t.Classification == task.ClassReady {
			ready = append(ready, t)
		}
	}
	sort.SliceStable(ready, func(i, j int) bool {
		pi, pj := ready[i].EffectivePriority().Rank(), ready[j].EffectivePriority().Rank()
		if pi != pj {
			return pi < pj
		}
		return ready[i].CreatedAt().Before(ready[j].CreatedAt())
	})
	return ready
}

// Next returns the highest-priority ready task, or nil when none is ready.
func (r Result) Next() *task.Resolved {
	ready := r.Ready()
	if len(ready) == 0 {
		return nil
	}
	return &ready[0]
}

// ByClassification returns all tasks with the given classification.
func (r Result) ByClassification(c task.Classification) []task.Resolved {
	var out []task.Resolved
	for _, t := range r.Tasks {
		if t.Classification == c {
			out = append(out, t)
		}
	}
	return out
}
