package thread

import (
	"strings"
	"testing"

	"github.com/karmafeed/karmafeed/internal/model"
)

func ptr(v int64) *int64 { return &v }

func lvl(v int) *int { return &v }

func flatComment(id int64, parent *int64) model.Comment {
	return model.Comment{ID: id, PostID: 1, ParentID: parent}
}

func TestBuildFlatPayload(t *testing.T) {
	comments := []model.Comment{
		flatComment(1, nil),
		flatComment(2, ptr(1)),
		flatComment(3, ptr(2)),
		flatComment(4, nil),
	}

	f := Build(1, comments)
	if len(f.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", f.Warnings)
	}
	if f.Count() != 4 {
		t.Fatalf("expected 4 nodes, got %d", f.Count())
	}
	if len(f.Roots) != 2 {
		t.Fatalf("expected 2 roots, got %d", len(f.Roots))
	}
	if f.Roots[0].Comment.ID != 1 || f.Roots[1].Comment.ID != 4 {
		t.Fatalf("roots out of arrival order: %d, %d", f.Roots[0].Comment.ID, f.Roots[1].Comment.ID)
	}

	chain := f.Roots[0]
	if len(chain.Children) != 1 || chain.Children[0].Comment.ID != 2 {
		t.Fatalf("expected comment 2 under comment 1")
	}
	if chain.Children[0].Children[0].Comment.ID != 3 {
		t.Fatalf("expected comment 3 under comment 2")
	}
	if got := chain.Children[0].Children[0].Depth; got != 2 {
		t.Fatalf("expected depth 2 for comment 3, got %d", got)
	}
}

func TestBuildNestedPayload(t *testing.T) {
	comments := []model.Comment{
		{
			ID: 1, PostID: 1,
			Replies: []model.Comment{
				{ID: 2, Replies: []model.Comment{{ID: 3}}},
				{ID: 4},
			},
		},
	}

	f := Build(1, comments)
	if len(f.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", f.Warnings)
	}
	if f.Count() != 4 {
		t.Fatalf("expected 4 nodes, got %d", f.Count())
	}
	root := f.Roots[0]
	if len(root.Children) != 2 {
		t.Fatalf("expected 2 children under root, got %d", len(root.Children))
	}
	if root.Children[0].Comment.ID != 2 || root.Children[1].Comment.ID != 4 {
		t.Fatalf("children out of arrival order")
	}
	if root.Children[0].Children[0].Comment.ID != 3 {
		t.Fatalf("expected comment 3 under comment 2")
	}
	// Nested replies inherit the owning post id.
	if got := root.Children[0].Comment.PostID; got != 1 {
		t.Fatalf("expected inherited post id 1, got %d", got)
	}
}

func TestBuildPreservesArrivalOrder(t *testing.T) {
	comments := []model.Comment{
		flatComment(10, nil),
		flatComment(5, nil),
		flatComment(7, ptr(5)),
		flatComment(6, ptr(5)),
	}

	f := Build(1, comments)
	var visited []int64
	f.Walk(func(n *Node) { visited = append(visited, n.Comment.ID) })

	want := []int64{10, 5, 7, 6}
	if len(visited) != len(want) {
		t.Fatalf("expected %d nodes, got %d", len(want), len(visited))
	}
	for i := range want {
		if visited[i] != want[i] {
			t.Fatalf("walk order %v, want %v", visited, want)
		}
	}
}

func TestBuildOrphanBecomesRoot(t *testing.T) {
	comments := []model.Comment{
		flatComment(1, nil),
		flatComment(2, ptr(99)),
	}

	f := Build(1, comments)
	if f.Count() != 2 {
		t.Fatalf("expected 2 nodes, got %d", f.Count())
	}
	if len(f.Roots) != 2 {
		t.Fatalf("expected orphan promoted to root, got %d roots", len(f.Roots))
	}
	if len(f.Warnings) != 1 || !strings.Contains(f.Warnings[0], "unknown parent") {
		t.Fatalf("expected unknown-parent warning, got %v", f.Warnings)
	}
}

func TestBuildSelfParentBecomesRoot(t *testing.T) {
	f := Build(1, []model.Comment{flatComment(1, ptr(1))})
	if len(f.Roots) != 1 || f.Roots[0].Comment.ID != 1 {
		t.Fatalf("expected self-parenting comment promoted to root")
	}
	if len(f.Warnings) != 1 {
		t.Fatalf("expected 1 warning, got %v", f.Warnings)
	}
}

func TestBuildBreaksCycle(t *testing.T) {
	// 1 -> 2 -> 3 -> 1 plus a healthy root.
	comments := []model.Comment{
		flatComment(1, ptr(3)),
		flatComment(2, ptr(1)),
		flatComment(3, ptr(2)),
		flatComment(4, nil),
	}

	f := Build(1, comments)
	if f.Count() != 4 {
		t.Fatalf("expected all 4 comments kept, got %d", f.Count())
	}

	var visited int
	f.Walk(func(n *Node) { visited++ })
	if visited != 4 {
		t.Fatalf("walk reached %d of 4 nodes", visited)
	}

	// The first cycle member in arrival order is the one promoted.
	promoted := false
	for _, r := range f.Roots {
		if r.Comment.ID == 1 {
			promoted = true
		}
	}
	if !promoted {
		t.Fatalf("expected comment 1 promoted to root, roots: %v", rootIDs(f))
	}

	found := false
	for _, w := range f.Warnings {
		if strings.Contains(w, "cycle") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected cycle warning, got %v", f.Warnings)
	}
}

func rootIDs(f *Forest) []int64 {
	ids := make([]int64, 0, len(f.Roots))
	for _, r := range f.Roots {
		ids = append(ids, r.Comment.ID)
	}
	return ids
}

func TestBuildDropsForeignComments(t *testing.T) {
	comments := []model.Comment{
		flatComment(1, nil),
		{ID: 2, PostID: 7},
	}

	f := Build(1, comments)
	if f.Count() != 1 {
		t.Fatalf("expected foreign comment dropped, count %d", f.Count())
	}
	if len(f.Warnings) != 1 || !strings.Contains(f.Warnings[0], "dropping") {
		t.Fatalf("expected drop warning, got %v", f.Warnings)
	}
}

func TestBuildDropsDuplicateIDs(t *testing.T) {
	comments := []model.Comment{
		flatComment(1, nil),
		flatComment(1, nil),
	}

	f := Build(1, comments)
	if f.Count() != 1 {
		t.Fatalf("expected duplicate dropped, count %d", f.Count())
	}
	if len(f.Warnings) != 1 || !strings.Contains(f.Warnings[0], "duplicate") {
		t.Fatalf("expected duplicate warning, got %v", f.Warnings)
	}
}

func TestDisplayLevelPrefersServerValue(t *testing.T) {
	comments := []model.Comment{
		flatComment(1, nil),
		{ID: 2, PostID: 1, ParentID: ptr(1), Level: lvl(5)},
	}

	f := Build(1, comments)
	child := f.Roots[0].Children[0]
	if child.Depth != 1 {
		t.Fatalf("expected recomputed depth 1, got %d", child.Depth)
	}
	if child.DisplayLevel() != 5 {
		t.Fatalf("expected server level 5 to win for display, got %d", child.DisplayLevel())
	}

	found := false
	for _, w := range f.Warnings {
		if strings.Contains(w, "declares level 5") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected level mismatch warning, got %v", f.Warnings)
	}
}

func TestDisplayLevelHonorsExplicitZero(t *testing.T) {
	comments := []model.Comment{
		flatComment(1, nil),
		{ID: 2, PostID: 1, ParentID: ptr(1), Level: lvl(0)},
	}

	f := Build(1, comments)
	child := f.Roots[0].Children[0]
	if child.Depth != 1 {
		t.Fatalf("expected recomputed depth 1, got %d", child.Depth)
	}
	// An explicit 0 is a delivered value, not an absent one.
	if child.DisplayLevel() != 0 {
		t.Fatalf("expected explicit level 0 to win for display, got %d", child.DisplayLevel())
	}

	found := false
	for _, w := range f.Warnings {
		if strings.Contains(w, "declares level 0") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected level mismatch warning, got %v", f.Warnings)
	}
}

func TestDisplayLevelFallsBackToDepth(t *testing.T) {
	comments := []model.Comment{
		flatComment(1, nil),
		flatComment(2, ptr(1)),
	}

	f := Build(1, comments)
	if len(f.Warnings) != 0 {
		t.Fatalf("flat payload without levels should not warn: %v", f.Warnings)
	}
	if got := f.Roots[0].Children[0].DisplayLevel(); got != 1 {
		t.Fatalf("expected fallback display level 1, got %d", got)
	}
}

func TestNestedRoundTrip(t *testing.T) {
	comments := []model.Comment{
		flatComment(1, nil),
		flatComment(2, ptr(1)),
		flatComment(3, ptr(2)),
		flatComment(4, nil),
	}

	nested := Build(1, comments).Nested()
	if len(nested) != 2 {
		t.Fatalf("expected 2 roots, got %d", len(nested))
	}
	if nested[0].ID != 1 || nested[1].ID != 4 {
		t.Fatalf("unexpected root order: %d, %d", nested[0].ID, nested[1].ID)
	}
	if len(nested[0].Replies) != 1 || nested[0].Replies[0].ID != 2 {
		t.Fatalf("expected reply 2 under root 1")
	}
	if nested[0].Replies[0].Replies[0].ID != 3 {
		t.Fatalf("expected reply 3 under reply 2")
	}
	if nested[1].Replies == nil {
		t.Fatalf("leaf replies must be empty, not nil")
	}

	// Rebuilding from the nested form yields the same shape.
	again := Build(1, nested)
	if again.Count() != 4 {
		t.Fatalf("rebuild lost comments: %d", again.Count())
	}
}

func TestWalkDeepChainDoesNotRecurse(t *testing.T) {
	const depth = 50000
	comments := make([]model.Comment, 0, depth)
	comments = append(comments, flatComment(1, nil))
	for i := int64(2); i <= depth; i++ {
		comments = append(comments, flatComment(i, ptr(i-1)))
	}

	f := Build(1, comments)
	if f.Count() != depth {
		t.Fatalf("expected %d nodes, got %d", depth, f.Count())
	}
	var last *Node
	f.Walk(func(n *Node) { last = n })
	if last.Depth != depth-1 {
		t.Fatalf("expected deepest depth %d, got %d", depth-1, last.Depth)
	}
}

func TestIndentPx(t *testing.T) {
	cases := []struct {
		level int
		want  int
	}{
		{0, 0},
		{1, 20},
		{2, 40},
		{3, 60},
		{4, 60},
		{100, 60},
	}
	for _, c := range cases {
		if got := IndentPx(c.level); got != c.want {
			t.Errorf("IndentPx(%d) = %d, want %d", c.level, got, c.want)
		}
	}
}
