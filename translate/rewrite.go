package translate

import (
	"github.com/shibukawa/snapodata/expr"
)

// Stage names recorded with each rewrite.
const (
	StageEvaluate  = "evaluate"
	StageNormalize = "normalize"
)

// Rewrite is one recorded node substitution.
type Rewrite struct {
	Stage       string
	Original    expr.Node
	Replacement expr.Node
}

// RewriteMap records substitutions keyed by the original node's ID,
// preserving the order in which they were made.
type RewriteMap struct {
	entries []Rewrite
	index   map[expr.NodeID]int
}

func NewRewriteMap() *RewriteMap {
	return &RewriteMap{index: make(map[expr.NodeID]int)}
}

// Record notes that original was replaced. A later record for the same
// original overwrites the replacement but keeps the original position.
func (m *RewriteMap) Record(stage string, original, replacement expr.Node) {
	if i, ok := m.index[original.ID()]; ok {
		m.entries[i] = Rewrite{Stage: stage, Original: original, Replacement: replacement}
		return
	}

	m.index[original.ID()] = len(m.entries)
	m.entries = append(m.entries, Rewrite{Stage: stage, Original: original, Replacement: replacement})
}

// Lookup returns the replacement recorded for id.
func (m *RewriteMap) Lookup(id expr.NodeID) (expr.Node, bool) {
	i, ok := m.index[id]
	if !ok {
		return nil, false
	}

	return m.entries[i].Replacement, true
}

// Resolve follows the chain of replacements starting at n.
func (m *RewriteMap) Resolve(n expr.Node) expr.Node {
	for range len(m.entries) + 1 {
		next, ok := m.Lookup(n.ID())
		if !ok {
			return n
		}

		n = next
	}

	return n
}

func (m *RewriteMap) Len() int {
	return len(m.entries)
}

// Entries returns a copy of the recorded rewrites in order.
func (m *RewriteMap) Entries() []Rewrite {
	return append([]Rewrite(nil), m.entries...)
}
