package resolver

import (
	"testing"

	"github.com/brainsh/brain/internal/task"
)

func pending(id, title string, deps ...string) task.Task {
	return task.Task{ID: id, Title: title, Status: task.StatusPending, DependsOn: deps}
}

func find(t *testing.T, res Result, id string) task.Resolved {
	t.Helper()
	for _, r := range res.Tasks {
		if r.ID == id {
			return r
		}
	}
	t.Fatalf("task %s not in result", id)
	return task.Resolved{}
}

func TestEmptyInput(t *testing.T) {
	res := Resolve(nil)
	if len(res.Tasks) != 0 || len(res.Cycles) != 0 {
		t.Errorf("expected empty result, got %+v", res)
	}
	if res.Stats != (Stats{}) {
		t.Errorf("expected zero stats, got %+v", res.Stats)
	}
	if res.Next() != nil {
		t.Error("Next on empty result should be nil")
	}
}

func TestCompletedDependencyUnblocks(t *testing.T) {
	a := task.Task{ID: "aaaaaaa1", Title: "a", Status: task.StatusCompleted}
	b := pending("bbbbbbb1", "b", "aaaaaaa1")

	res := Resolve([]task.Task{a, b})

	if got := find(t, res, "aaaaaaa1").Classification; got != task.ClassNotPending {
		t.Errorf("a classified %s, want not_pending", got)
	}
	if got := find(t, res, "bbbbbbb1").Classification; got != task.ClassReady {
		t.Errorf("b classified %s, want ready", got)
	}

	ready := res.Ready()
	if len(ready) != 1 || ready[0].ID != "bbbbbbb1" {
		t.Errorf("Ready() = %v", ready)
	}
	if next := res.Next(); next == nil || next.ID != "bbbbbbb1" {
		t.Errorf("Next() = %v", next)
	}
}

func TestTwoNodeCycle(t *testing.T) {
	a := pending("aaaaaaa1", "a", "bbbbbbb1")
	b := pending("bbbbbbb1", "b", "aaaaaaa1")

	res := Resolve([]task.Task{a, b})

	for _, id := range []string{"aaaaaaa1", "bbbbbbb1"} {
		r := find(t, res, id)
		if r.Classification != task.ClassBlocked {
			t.Errorf("%s classified %s, want blocked", id, r.Classification)
		}
		if r.BlockedReason != task.ReasonCircular {
			t.Errorf("%s reason %s, want circular_dependency", id, r.BlockedReason)
		}
		if !r.InCycle {
			t.Errorf("%s should be in cycle", id)
		}
	}

	if len(res.Cycles) != 1 || len(res.Cycles[0]) != 2 {
		t.Fatalf("cycles = %v, want one group of two", res.Cycles)
	}
	got := map[string]bool{res.Cycles[0][0]: true, res.Cycles[0][1]: true}
	if !got["aaaaaaa1"] || !got["bbbbbbb1"] {
		t.Errorf("cycle members = %v", res.Cycles[0])
	}
	if res.Stats.Blocked != 2 {
		t.Errorf("stats.blocked = %d, want 2", res.Stats.Blocked)
	}
}

func TestSelfCycle(t *testing.T) {
	a := pending("aaaaaaa1", "a", "aaaaaaa1")
	res := Resolve([]task.Task{a})

	r := find(t, res, "aaaaaaa1")
	if r.Classification != task.ClassBlocked || r.BlockedReason != task.ReasonCircular {
		t.Errorf("self-cycle: %s / %s", r.Classification, r.BlockedReason)
	}
	if len(res.Cycles) != 1 || len(res.Cycles[0]) != 1 {
		t.Errorf("cycles = %v", res.Cycles)
	}
}

func TestBlockedParentPropagates(t *testing.T) {
	parent := task.Task{ID: "paren001", Title: "parent", Status: task.StatusBlocked}
	child := task.Task{ID: "child001", Title: "child", Status: task.StatusPending, ParentID: "paren001"}

	res := Resolve([]task.Task{parent, child})

	r := find(t, res, "child001")
	if r.Classification != task.ClassBlockedByParent {
		t.Errorf("child classified %s, want blocked_by_parent", r.Classification)
	}
	if len(r.BlockedBy) != 1 || r.BlockedBy[0] != "paren001" {
		t.Errorf("blocked_by = %v", r.BlockedBy)
	}
	if r.BlockedReason != task.ReasonParentBlocked {
		t.Errorf("reason = %s", r.BlockedReason)
	}
	if len(r.ParentChain) != 1 || r.ParentChain[0] != "paren001" {
		t.Errorf("parent_chain = %v", r.ParentChain)
	}
	if res.Stats.Blocked != 1 {
		t.Errorf("stats.blocked = %d, want 1", res.Stats.Blocked)
	}
}

func TestParentRuleBeatsDependencyRule(t *testing.T) {
	// Child has both a blocked ancestor and a blocked dependency; the
	// parent rule fires first.
	parent := task.Task{ID: "paren001", Title: "parent", Status: task.StatusBlocked}
	dep := task.Task{ID: "depx0001", Title: "dep", Status: task.StatusBlocked}
	child := task.Task{
		ID: "child001", Title: "child", Status: task.StatusPending,
		ParentID: "paren001", DependsOn: []string{"depx0001"},
	}

	res := Resolve([]task.Task{parent, dep, child})
	r := find(t, res, "child001")
	if r.Classification != task.ClassBlockedByParent {
		t.Errorf("classified %s, want blocked_by_parent", r.Classification)
	}
}

func TestWaitingOnParent(t *testing.T) {
	parent := pending("paren001", "parent")
	child := task.Task{ID: "child001", Title: "child", Status: task.StatusPending, ParentID: "paren001"}

	res := Resolve([]task.Task{parent, child})
	r := find(t, res, "child001")
	if r.Classification != task.ClassWaitingOnParent {
		t.Errorf("classified %s, want waiting_on_parent", r.Classification)
	}
	if len(r.WaitingOn) != 1 || r.WaitingOn[0] != "paren001" {
		t.Errorf("waiting_on = %v", r.WaitingOn)
	}

	// An in_progress parent releases the child.
	parent.Status = task.StatusInProgress
	res = Resolve([]task.Task{parent, child})
	if got := find(t, res, "child001").Classification; got != task.ClassReady {
		t.Errorf("child with in_progress parent classified %s, want ready", got)
	}
}

func TestWaitingOnDependency(t *testing.T) {
	a := pending("aaaaaaa1", "a")
	b := pending("bbbbbbb1", "b", "aaaaaaa1")

	res := Resolve([]task.Task{a, b})
	r := find(t, res, "bbbbbbb1")
	if r.Classification != task.ClassWaiting {
		t.Errorf("classified %s, want waiting", r.Classification)
	}
	if len(r.WaitingOn) != 1 || r.WaitingOn[0] != "aaaaaaa1" {
		t.Errorf("waiting_on = %v", r.WaitingOn)
	}
}

func TestTitleReferenceResolves(t *testing.T) {
	a := task.Task{ID: "aaaaaaa1", Title: "Build the schema", Status: task.StatusCompleted}
	b := pending("bbbbbbb1", "b", "Build the schema")

	res := Resolve([]task.Task{a, b})
	r := find(t, res, "bbbbbbb1")
	if len(r.ResolvedDeps) != 1 || r.ResolvedDeps[0] != "aaaaaaa1" {
		t.Errorf("resolved_deps = %v", r.ResolvedDeps)
	}
	if r.Classification != task.ClassReady {
		t.Errorf("classified %s, want ready", r.Classification)
	}
}

func TestDuplicateTitlesShadow(t *testing.T) {
	// Later tasks shadow earlier ones in the title index.
	a := task.Task{ID: "aaaaaaa1", Title: "Same", Status: task.StatusCompleted}
	b := task.Task{ID: "bbbbbbb1", Title: "Same", Status: task.StatusBlocked}
	c := pending("ccccccc1", "c", "Same")

	res := Resolve([]task.Task{a, b, c})
	r := find(t, res, "ccccccc1")
	if len(r.ResolvedDeps) != 1 || r.ResolvedDeps[0] != "bbbbbbb1" {
		t.Errorf("resolved_deps = %v, want shadowing winner bbbbbbb1", r.ResolvedDeps)
	}
	if r.Classification != task.ClassBlocked {
		t.Errorf("classified %s, want blocked", r.Classification)
	}
}

func TestUnresolvedReferenceDegrades(t *testing.T) {
	b := pending("bbbbbbb1", "b", "nosuch99")
	res := Resolve([]task.Task{b})

	r := find(t, res, "bbbbbbb1")
	if len(r.UnresolvedDeps) != 1 || r.UnresolvedDeps[0] != "nosuch99" {
		t.Errorf("unresolved_deps = %v", r.UnresolvedDeps)
	}
	if len(r.ResolvedDeps) != 0 {
		t.Errorf("resolved_deps = %v, want empty", r.ResolvedDeps)
	}
	// Classification proceeds without the reference.
	if r.Classification != task.ClassReady {
		t.Errorf("classified %s, want ready", r.Classification)
	}
}

func TestMissingParentInChain(t *testing.T) {
	child := task.Task{ID: "child001", Title: "child", Status: task.StatusPending, ParentID: "ghost999"}
	res := Resolve([]task.Task{child})

	r := find(t, res, "child001")
	if len(r.ParentChain) != 1 || r.ParentChain[0] != "ghost999" {
		t.Errorf("parent_chain = %v, want the missing reference", r.ParentChain)
	}
	// A missing parent does not block.
	if r.Classification != task.ClassReady {
		t.Errorf("classified %s, want ready", r.Classification)
	}
}

func TestCyclicParentChainTruncates(t *testing.T) {
	a := task.Task{ID: "aaaaaaa1", Title: "a", Status: task.StatusPending, ParentID: "bbbbbbb1"}
	b := task.Task{ID: "bbbbbbb1", Title: "b", Status: task.StatusPending, ParentID: "aaaaaaa1"}

	res := Resolve([]task.Task{a, b})
	r := find(t, res, "aaaaaaa1")
	// Chain includes b, then stops at the revisit of a.
	if len(r.ParentChain) != 1 || r.ParentChain[0] != "bbbbbbb1" {
		t.Errorf("parent_chain = %v", r.ParentChain)
	}
}

func TestEveryTaskClassifiedExactlyOnce(t *testing.T) {
	tasks := []task.Task{
		pending("aaaaaaa1", "a"),
		{ID: "bbbbbbb1", Title: "b", Status: task.StatusCompleted},
		pending("ccccccc1", "c", "aaaaaaa1"),
		pending("ddddddd1", "d", "ddddddd1"),
		{ID: "eeeeeee1", Title: "e", Status: task.StatusDraft},
	}
	res := Resolve(tasks)
	if len(res.Tasks) != len(tasks) {
		t.Fatalf("|result.tasks| = %d, want %d", len(res.Tasks), len(tasks))
	}
	for _, r := range res.Tasks {
		if r.Classification == "" {
			t.Errorf("task %s has no classification", r.ID)
		}
	}
	total := res.Stats.Ready + res.Stats.Waiting + res.Stats.Blocked + res.Stats.NotPending
	if total != res.Stats.Total || total != len(tasks) {
		t.Errorf("stats do not add up: %+v", res.Stats)
	}
}

func TestReadyTasksHaveNoBlockers(t *testing.T) {
	tasks := []task.Task{
		pending("aaaaaaa1", "a"),
		{ID: "bbbbbbb1", Title: "b", Status: task.StatusCompleted},
		pending("ccccccc1", "c", "bbbbbbb1"),
	}
	res := Resolve(tasks)
	for _, r := range res.Ready() {
		if len(r.BlockedBy) != 0 || len(r.WaitingOn) != 0 {
			t.Errorf("ready task %s has blockers: %v %v", r.ID, r.BlockedBy, r.WaitingOn)
		}
	}
}

func TestReadySortPriorityThenCreation(t *testing.T) {
	older := task.Task{ID: "1712000000000-old", Title: "old", Status: task.StatusPending, Priority: task.PriorityMedium}
	newer := task.Task{ID: "1712000001000-new", Title: "new", Status: task.StatusPending, Priority: task.PriorityMedium}
	high := task.Task{ID: "1712000002000-hi", Title: "hi", Status: task.StatusPending, Priority: task.PriorityHigh}
	low := task.Task{ID: "1711000000000-lo", Title: "lo", Status: task.StatusPending, Priority: task.PriorityLow}
	unknown := task.Task{ID: "1712000000500-uk", Title: "uk", Status: task.StatusPending, Priority: "whatever"}

	res := Resolve([]task.Task{newer, low, older, unknown, high})
	ready := res.Ready()

	var order []string
	for _, r := range ready {
		order = append(order, r.Title)
	}
	want := []string{"hi", "old", "uk", "new", "lo"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}
