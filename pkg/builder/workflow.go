// Package builder constructs workflow definitions fluently. It exists for
// tests, examples, and programmatic workflow creation; the visual editor
// produces the same shapes as JSON.
package builder

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/flowline-ai/flowline/pkg/models"
)

// WorkflowBuilder accumulates nodes and edges and validates on Build.
// Errors accumulate; the first one surfaces from Build.
type WorkflowBuilder struct {
	workflow  *models.Workflow
	nodeOrder []string
	nodes     map[string]*models.Node
	err       error
}

// NewWorkflow creates a builder for a named workflow.
func NewWorkflow(name string) *WorkflowBuilder {
	return &WorkflowBuilder{
		workflow: &models.Workflow{
			ID:     uuid.NewString(),
			Name:   name,
			Status: "draft",
		},
		nodes: make(map[string]*models.Node),
	}
}

// WithID overrides the generated workflow ID.
func (wb *WorkflowBuilder) WithID(id string) *WorkflowBuilder {
	wb.workflow.ID = id
	return wb
}

// WithOwner sets the workflow owner.
func (wb *WorkflowBuilder) WithOwner(ownerID string) *WorkflowBuilder {
	wb.workflow.OwnerID = &ownerID
	return wb
}

// WithDescription sets the description.
func (wb *WorkflowBuilder) WithDescription(desc string) *WorkflowBuilder {
	wb.workflow.Description = desc
	return wb
}

// AddNode adds a node of the given type with its data map.
func (wb *WorkflowBuilder) AddNode(id string, nodeType models.NodeType, data map[string]any) *WorkflowBuilder {
	if wb.err != nil {
		return wb
	}
	if id == "" {
		wb.err = fmt.Errorf("node ID cannot be empty")
		return wb
	}
	if _, exists := wb.nodes[id]; exists {
		wb.err = fmt.Errorf("duplicate node ID %q", id)
		return wb
	}
	node := &models.Node{ID: id, Type: nodeType, Data: data}
	wb.nodes[id] = node
	wb.nodeOrder = append(wb.nodeOrder, id)
	return wb
}

// Connect adds a default data-flow edge from one node to another.
func (wb *WorkflowBuilder) Connect(from, to string) *WorkflowBuilder {
	return wb.connect(from, to, "")
}

// ConnectHandle adds an edge with a source handle ("true"/"false" out of a
// condition node).
func (wb *WorkflowBuilder) ConnectHandle(from, to, handle string) *WorkflowBuilder {
	return wb.connect(from, to, handle)
}

// ConnectError adds an error-recovery edge taken when the source fails.
func (wb *WorkflowBuilder) ConnectError(from, to string) *WorkflowBuilder {
	return wb.connect(from, to, models.HandleError)
}

func (wb *WorkflowBuilder) connect(from, to, handle string) *WorkflowBuilder {
	if wb.err != nil {
		return wb
	}
	if _, ok := wb.nodes[from]; !ok {
		wb.err = fmt.Errorf("edge references unknown source node %q", from)
		return wb
	}
	if _, ok := wb.nodes[to]; !ok {
		wb.err = fmt.Errorf("edge references unknown target node %q", to)
		return wb
	}
	wb.workflow.Edges = append(wb.workflow.Edges, &models.Edge{
		ID:           fmt.Sprintf("edge_%s_%s", from, to),
		Source:       from,
		Target:       to,
		SourceHandle: handle,
	})
	return wb
}

// Build validates and returns the workflow.
func (wb *WorkflowBuilder) Build() (*models.Workflow, error) {
	if wb.err != nil {
		return nil, wb.err
	}
	for _, id := range wb.nodeOrder {
		wb.workflow.Nodes = append(wb.workflow.Nodes, wb.nodes[id])
	}
	if err := wb.workflow.Validate(); err != nil {
		return nil, err
	}
	return wb.workflow, nil
}

// MustBuild builds and panics on error; for tests and examples.
func (wb *WorkflowBuilder) MustBuild() *models.Workflow {
	wf, err := wb.Build()
	if err != nil {
		panic(err)
	}
	return wf
}
