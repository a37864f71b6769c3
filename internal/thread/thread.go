// Package thread reconstructs render-ready comment trees from the raw
// comment payloads a post detail fetch delivers. Input may be flat
// (parent_id links) or already nested (replies populated); both are
// normalized to the same canonical forest.
package thread

import (
	"fmt"

	"github.com/karmafeed/karmafeed/internal/model"
)

// Indentation is presentation-only: depth saturates at the cap, the
// tree itself has no structural depth limit.
const (
	indentPerLevel = 20
	maxIndent      = 60
)

// Node is one comment in the canonical forest. Children holds direct
// replies only, in arrival order; Depth is the recomputed distance from
// the post (roots at 0).
type Node struct {
	Comment  model.Comment
	Depth    int
	Children []*Node
}

// DisplayLevel is the level shown next to the comment: the
// server-assigned value when one was delivered, the recomputed depth
// otherwise. An explicit level of 0 counts as delivered.
func (n *Node) DisplayLevel() int {
	if n.Comment.Level != nil {
		return *n.Comment.Level
	}
	return n.Depth
}

// Forest is the canonical nested form of a post's comments.
type Forest struct {
	Roots []*Node

	// Warnings collects non-fatal data-integrity findings: dropped
	// foreign comments, broken parent cycles, level mismatches.
	Warnings []string

	count int
}

// Count returns the total number of nodes in the forest.
func (f *Forest) Count() int {
	return f.count
}

// Walk visits every node depth-first in arrival order without
// recursing, so pathological reply depth cannot blow the stack.
func (f *Forest) Walk(visit func(n *Node)) {
	stack := make([]*Node, 0, len(f.Roots))
	for i := len(f.Roots) - 1; i >= 0; i-- {
		stack = append(stack, f.Roots[i])
	}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		visit(n)
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, n.Children[i])
		}
	}
}

// Nested materializes the forest back into nested model.Comment
// values: each comment's Replies holds exactly its direct children.
// Children are built before their parents (reverse pre-order), so no
// recursion is involved.
func (f *Forest) Nested() []model.Comment {
	var pre []*Node
	f.Walk(func(n *Node) { pre = append(pre, n) })

	built := make(map[*Node]model.Comment, len(pre))
	for i := len(pre) - 1; i >= 0; i-- {
		n := pre[i]
		c := n.Comment
		c.Replies = make([]model.Comment, 0, len(n.Children))
		for _, child := range n.Children {
			c.Replies = append(c.Replies, built[child])
		}
		built[n] = c
	}

	roots := make([]model.Comment, 0, len(f.Roots))
	for _, n := range f.Roots {
		roots = append(roots, built[n])
	}
	return roots
}

// IndentPx returns the visual indent offset for a level. Saturates at
// the maximum offset; deeper replies still nest structurally.
func IndentPx(level int) int {
	px := level * indentPerLevel
	if px > maxIndent {
		return maxIndent
	}
	return px
}

// Build normalizes a post's raw comments into a validated forest.
// Comments referencing a different post are dropped with a warning. A
// comment whose parent_id does not resolve within the same post becomes
// a root, which also breaks any parent cycle the payload smuggled in.
func Build(postID int64, comments []model.Comment) *Forest {
	f := &Forest{}

	flat := flatten(postID, comments, &f.Warnings)

	// Arena keyed by id; attachment is a pair of lookups, no recursion.
	arena := make(map[int64]*Node, len(flat))
	order := make([]*Node, 0, len(flat))
	for _, c := range flat {
		c.Replies = nil
		n := &Node{Comment: c}
		if _, dup := arena[c.ID]; dup {
			f.Warnings = append(f.Warnings, fmt.Sprintf("duplicate comment id %d dropped", c.ID))
			continue
		}
		arena[c.ID] = n
		order = append(order, n)
	}
	f.count = len(order)

	parentOf := make(map[*Node]*Node, len(order))
	for _, n := range order {
		pid := n.Comment.ParentID
		if pid == nil {
			f.Roots = append(f.Roots, n)
			continue
		}
		parent, ok := arena[*pid]
		if !ok || parent == n {
			// Unresolvable parent: treat as root per input constraint.
			f.Warnings = append(f.Warnings, fmt.Sprintf("comment %d references unknown parent %d, treating as root", n.Comment.ID, *pid))
			f.Roots = append(f.Roots, n)
			continue
		}
		parent.Children = append(parent.Children, n)
		parentOf[n] = parent
	}

	f.breakCycles(order, parentOf)
	f.assignDepths()
	return f
}

// breakCycles detaches the first member (in arrival order) of every
// parent cycle and promotes it to a root, so the forest is always
// finite and every parent chain terminates.
func (f *Forest) breakCycles(order []*Node, parentOf map[*Node]*Node) {
	reached := f.reachable()
	for _, n := range order {
		if reached[n] {
			continue
		}
		parent := parentOf[n]
		parent.Children = removeChild(parent.Children, n)
		delete(parentOf, n)
		f.Roots = append(f.Roots, n)
		f.Warnings = append(f.Warnings, fmt.Sprintf("comment %d is part of a parent cycle, promoting to root", n.Comment.ID))
		reached = f.reachable()
	}
}

func (f *Forest) reachable() map[*Node]bool {
	reached := make(map[*Node]bool, f.count)
	f.Walk(func(n *Node) { reached[n] = true })
	return reached
}

func removeChild(children []*Node, target *Node) []*Node {
	for i, c := range children {
		if c == target {
			return append(children[:i], children[i+1:]...)
		}
	}
	return children
}

// assignDepths recomputes depth from the roots and cross-checks any
// server-declared level. Mismatch is a data-integrity warning, not
// fatal; the server value still wins for display.
func (f *Forest) assignDepths() {
	type frame struct {
		n     *Node
		depth int
	}
	stack := make([]frame, 0, len(f.Roots))
	for i := len(f.Roots) - 1; i >= 0; i-- {
		stack = append(stack, frame{f.Roots[i], 0})
	}
	for len(stack) > 0 {
		fr := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		fr.n.Depth = fr.depth
		if lvl := fr.n.Comment.Level; lvl != nil && *lvl != fr.depth {
			f.Warnings = append(f.Warnings, fmt.Sprintf("comment %d declares level %d but sits at depth %d", fr.n.Comment.ID, *lvl, fr.depth))
		}
		for i := len(fr.n.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{fr.n.Children[i], fr.depth + 1})
		}
	}
}

// flatten linearizes possibly-nested input into arrival order. Nested
// replies inherit the enclosing comment as parent when they carry no
// parent_id of their own, and the owning post id when theirs is unset.
// Comments claiming a different post are dropped.
func flatten(postID int64, comments []model.Comment, warnings *[]string) []model.Comment {
	type frame struct {
		c      model.Comment
		parent *int64
	}
	var out []model.Comment
	stack := make([]frame, 0, len(comments))
	for i := len(comments) - 1; i >= 0; i-- {
		stack = append(stack, frame{comments[i], nil})
	}
	for len(stack) > 0 {
		fr := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		c := fr.c
		if c.PostID == 0 {
			c.PostID = postID
		}
		if c.PostID != postID {
			*warnings = append(*warnings, fmt.Sprintf("comment %d belongs to post %d, not %d, dropping", c.ID, c.PostID, postID))
			continue
		}
		if c.ParentID == nil && fr.parent != nil {
			c.ParentID = fr.parent
		}

		replies := c.Replies
		c.Replies = nil
		out = append(out, c)

		id := c.ID
		for i := len(replies) - 1; i >= 0; i-- {
			stack = append(stack, frame{replies[i], &id})
		}
	}
	return out
}
