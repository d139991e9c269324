package models

import (
	"time"
)

// NodeType identifies the kind of a workflow node.
type NodeType string

const (
	NodeTypeTrigger      NodeType = "trigger"
	NodeTypeAgent        NodeType = "agent"
	NodeTypeMCPTool      NodeType = "mcp_tool"
	NodeTypeCondition    NodeType = "condition"
	NodeTypeParallel     NodeType = "parallel"
	NodeTypeFeedbackLoop NodeType = "feedback_loop"
	NodeTypeRAG          NodeType = "rag"
	NodeTypeMultiAgent   NodeType = "multi_agent"
)

// Edge source-handle tokens. Absence of a handle means default data flow.
const (
	HandleTrue  = "true"
	HandleFalse = "false"
	HandleError = "error"
)

// Position is the node's placement on the visual canvas.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is a single typed step in a workflow. The Data map is opaque to the
// graph runtime; each executor interprets the keys it cares about.
type Node struct {
	ID       string         `json:"id"`
	Type     NodeType       `json:"type"`
	Data     map[string]any `json:"data"`
	Position *Position      `json:"position,omitempty"`
}

// Name returns the display name from node data, falling back to the node ID.
func (n *Node) Name() string {
	if n.Data != nil {
		if name, ok := n.Data["name"].(string); ok && name != "" {
			return name
		}
		if label, ok := n.Data["label"].(string); ok && label != "" {
			return label
		}
	}
	return n.ID
}

// Edge connects two nodes. SourceHandle selects condition branches
// ("true"/"false") or marks error-recovery routing ("error").
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"source_handle,omitempty"`
	TargetHandle string `json:"target_handle,omitempty"`
}

// IsError reports whether the edge is an error-recovery edge.
func (e *Edge) IsError() bool {
	return e.SourceHandle == HandleError
}

// Workflow is a named DAG of typed nodes owned by a user.
// A nil OwnerID marks a legacy/shared workflow.
type Workflow struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Nodes       []*Node   `json:"nodes"`
	Edges       []*Edge   `json:"edges"`
	Status      string    `json:"status"`
	OwnerID     *string   `json:"owner_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Node returns the node with the given ID.
func (w *Workflow) Node(id string) (*Node, bool) {
	for _, n := range w.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return nil, false
}

// Roots returns nodes with no inbound edges, error edges excluded.
func (w *Workflow) Roots() []*Node {
	hasInbound := make(map[string]bool, len(w.Nodes))
	for _, e := range w.Edges {
		if !e.IsError() {
			hasInbound[e.Target] = true
		}
	}

	var roots []*Node
	for _, n := range w.Nodes {
		if !hasInbound[n.ID] {
			roots = append(roots, n)
		}
	}
	return roots
}

// OutgoingEdges returns all edges originating at the given node,
// in declared order.
func (w *Workflow) OutgoingEdges(nodeID string) []*Edge {
	var out []*Edge
	for _, e := range w.Edges {
		if e.Source == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// IncomingEdges returns all edges terminating at the given node,
// in declared order.
func (w *Workflow) IncomingEdges(nodeID string) []*Edge {
	var in []*Edge
	for _, e := range w.Edges {
		if e.Target == nodeID {
			in = append(in, e)
		}
	}
	return in
}

// ErrorEdge returns the first error edge out of the given node whose target
// exists. First by insertion order wins when duplicates are present.
func (w *Workflow) ErrorEdge(nodeID string) (*Edge, bool) {
	for _, e := range w.Edges {
		if e.Source == nodeID && e.IsError() {
			if _, ok := w.Node(e.Target); ok {
				return e, true
			}
		}
	}
	return nil, false
}

// Validate checks the structural invariants required before execution:
// unique node IDs, edges referencing existing nodes, and at least one root
// when the workflow has nodes.
func (w *Workflow) Validate() error {
	seen := make(map[string]bool, len(w.Nodes))
	for _, n := range w.Nodes {
		if n.ID == "" {
			return &ValidationError{Field: "nodes", Message: "node ID is required"}
		}
		if seen[n.ID] {
			return &ValidationError{Field: "nodes", Message: "duplicate node ID: " + n.ID}
		}
		seen[n.ID] = true
	}

	for _, e := range w.Edges {
		if !seen[e.Source] {
			return &ValidationError{Field: "edges", Message: "edge " + e.ID + " references unknown source node: " + e.Source}
		}
		if !seen[e.Target] {
			return &ValidationError{Field: "edges", Message: "edge " + e.ID + " references unknown target node: " + e.Target}
		}
	}

	if len(w.Nodes) > 0 && len(w.Roots()) == 0 {
		return &ValidationError{Field: "edges", Message: "workflow has no root node"}
	}

	return nil
}
