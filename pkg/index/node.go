package index

import (
	"github.com/cuemby/strata/pkg/flake"
	"github.com/cuemby/strata/pkg/serde"
)

// EmptyID marks a node that has never been written to storage.
const EmptyID = "empty"

// Node is a tree node: branch or leaf. An unresolved node carries only its
// summary (id, boundaries, size); Resolve attaches Children or Flakes.
// Nodes are immutable once written; a new index generation writes new
// nodes under fresh keys and supersedes the old ones via garbage records.
type Node struct {
	ID       string
	Idx      flake.Index
	Leaf     bool
	First    *flake.Flake // smallest flake in the subtree
	Rhs      *flake.Flake // exclusive right boundary, nil for rightmost
	Size     int64        // byte weight of the subtree
	Leftmost bool
	Network  string
	Ledger   string
	Block    int64
	T        int64

	// Children is set on resolved branches: ordered child summaries.
	Children []*Node
	// Flakes is set on resolved leaves.
	Flakes *flake.Set
}

// NewEmptyLeaf returns the resolved empty leaf that roots a genesis index.
func NewEmptyLeaf(idx flake.Index, network, ledger string) *Node {
	return &Node{
		ID:       EmptyID,
		Idx:      idx,
		Leaf:     true,
		Leftmost: true,
		Network:  network,
		Ledger:   ledger,
		Flakes:   flake.NewSet(flake.ComparatorFor(idx)),
	}
}

// Resolved reports whether the node's contents are attached.
func (n *Node) Resolved() bool {
	if n.ID == EmptyID {
		return true
	}
	if n.Leaf {
		return n.Flakes != nil
	}
	return n.Children != nil
}

// Summary strips a node to the shape a parent (or db-root) stores.
func (n *Node) Summary() serde.ChildSummary {
	return serde.ChildSummary{
		ID:       n.ID,
		Leaf:     n.Leaf,
		First:    n.First,
		Rhs:      n.Rhs,
		Size:     n.Size,
		Leftmost: n.Leftmost,
		Block:    n.Block,
		T:        n.T,
	}
}

// FromSummary rebuilds an unresolved node from a stored child summary.
func FromSummary(cs serde.ChildSummary, idx flake.Index, network, ledger string) *Node {
	return &Node{
		ID:       cs.ID,
		Idx:      idx,
		Leaf:     cs.Leaf,
		First:    cs.First,
		Rhs:      cs.Rhs,
		Size:     cs.Size,
		Leftmost: cs.Leftmost,
		Network:  network,
		Ledger:   ledger,
		Block:    cs.Block,
		T:        cs.T,
	}
}

// withLeaf returns a resolved copy carrying flakes.
func (n *Node) withLeaf(fs *flake.Set) *Node {
	c := *n
	c.Flakes = fs
	return &c
}

// withChildren returns a resolved copy carrying child summaries.
func (n *Node) withChildren(children []*Node) *Node {
	c := *n
	c.Children = children
	return &c
}
