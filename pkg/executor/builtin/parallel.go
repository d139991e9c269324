package builtin

import (
	"context"

	"github.com/flowline-ai/flowline/pkg/executor"
	"github.com/flowline-ai/flowline/pkg/models"
)

// Parallel is a fan-out marker. Its output is its input unchanged; the graph
// runtime interprets the node by scheduling all untagged outgoing edges
// concurrently.
type Parallel struct{}

// Execute implements executor.Executor.
func (p *Parallel) Execute(_ context.Context, _ *models.Node, input any, _ executor.Context) (any, error) {
	return input, nil
}
