package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linearWorkflow() *Workflow {
	return &Workflow{
		ID: "wf",
		Nodes: []*Node{
			{ID: "A", Type: NodeTypeTrigger},
			{ID: "B", Type: NodeTypeAgent},
			{ID: "C", Type: NodeTypeAgent},
		},
		Edges: []*Edge{
			{ID: "e1", Source: "A", Target: "B"},
			{ID: "e2", Source: "B", Target: "C"},
		},
	}
}

func TestWorkflow_Validate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, linearWorkflow().Validate())

	t.Run("dangling source", func(t *testing.T) {
		wf := linearWorkflow()
		wf.Edges = append(wf.Edges, &Edge{ID: "bad", Source: "ghost", Target: "A"})
		assert.Error(t, wf.Validate())
	})

	t.Run("duplicate node ID", func(t *testing.T) {
		wf := linearWorkflow()
		wf.Nodes = append(wf.Nodes, &Node{ID: "A", Type: NodeTypeAgent})
		assert.Error(t, wf.Validate())
	})

	t.Run("empty node ID", func(t *testing.T) {
		wf := linearWorkflow()
		wf.Nodes = append(wf.Nodes, &Node{Type: NodeTypeAgent})
		assert.Error(t, wf.Validate())
	})
}

func TestWorkflow_Roots(t *testing.T) {
	t.Parallel()

	wf := linearWorkflow()
	roots := wf.Roots()
	require.Len(t, roots, 1)
	assert.Equal(t, "A", roots[0].ID)

	// Error edges do not make a node non-root: a handler reachable only via
	// an error edge still counts as a root for validation, but the runner
	// does not start from it and rejects a workflow whose only roots are
	// such handlers.
	wf.Edges = append(wf.Edges, &Edge{ID: "err", Source: "B", Target: "H", SourceHandle: HandleError})
	wf.Nodes = append(wf.Nodes, &Node{ID: "H", Type: NodeTypeAgent})
	roots = wf.Roots()
	ids := []string{roots[0].ID, roots[1].ID}
	assert.Contains(t, ids, "A")
	assert.Contains(t, ids, "H")
}

func TestWorkflow_ErrorEdgeFirstWins(t *testing.T) {
	t.Parallel()

	wf := linearWorkflow()
	wf.Nodes = append(wf.Nodes, &Node{ID: "H1"}, &Node{ID: "H2"})
	wf.Edges = append(wf.Edges,
		&Edge{ID: "err1", Source: "B", Target: "H1", SourceHandle: HandleError},
		&Edge{ID: "err2", Source: "B", Target: "H2", SourceHandle: HandleError},
	)

	edge, ok := wf.ErrorEdge("B")
	require.True(t, ok)
	assert.Equal(t, "H1", edge.Target)

	_, ok = wf.ErrorEdge("A")
	assert.False(t, ok)
}

func TestWorkflow_ErrorEdgeSkipsMissingTarget(t *testing.T) {
	t.Parallel()

	wf := linearWorkflow()
	wf.Edges = append(wf.Edges,
		&Edge{ID: "err1", Source: "B", Target: "missing", SourceHandle: HandleError},
	)
	// Validation would reject this workflow; the lookup itself tolerates it
	// and reports no usable error edge.
	_, ok := wf.ErrorEdge("B")
	assert.False(t, ok)
}

func TestNode_Name(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "n1", (&Node{ID: "n1"}).Name())
	assert.Equal(t, "Writer", (&Node{ID: "n1", Data: map[string]any{"name": "Writer"}}).Name())
	assert.Equal(t, "Label", (&Node{ID: "n1", Data: map[string]any{"label": "Label"}}).Name())
}
