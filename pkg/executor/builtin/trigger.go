package builtin

import (
	"context"

	"github.com/flowline-ai/flowline/pkg/executor"
	"github.com/flowline-ai/flowline/pkg/models"
)

// Trigger is the workflow root marker. It passes the workflow input through
// unchanged so downstream nodes have a well-defined upstream.
type Trigger struct{}

// Execute implements executor.Executor.
func (t *Trigger) Execute(_ context.Context, _ *models.Node, _ any, execCtx executor.Context) (any, error) {
	return execCtx[executor.KeyInput], nil
}
