// Package builtin provides one executor per node kind, plus the mock
// registry that replaces all of them in mock mode.
package builtin

import (
	"github.com/flowline-ai/flowline/internal/infrastructure/logger"
	"github.com/flowline-ai/flowline/pkg/executor"
	"github.com/flowline-ai/flowline/pkg/models"
	"github.com/flowline-ai/flowline/pkg/provider"
)

// Deps carries the external collaborators executors need.
type Deps struct {
	Providers *provider.Resolver
	MCP       executor.MCPManager
	Log       *logger.Logger
}

// NewManager builds the full executor registry.
func NewManager(deps Deps) (*executor.Manager, error) {
	if deps.Log == nil {
		deps.Log = logger.New("executor")
	}

	m := executor.NewManager()
	registrations := map[models.NodeType]executor.Executor{
		models.NodeTypeTrigger:      &Trigger{},
		models.NodeTypeAgent:        &AgentExecutor{deps: deps},
		models.NodeTypeMCPTool:      &MCPToolExecutor{deps: deps},
		models.NodeTypeCondition:    &Condition{},
		models.NodeTypeParallel:     &Parallel{},
		models.NodeTypeFeedbackLoop: &FeedbackLoop{deps: deps},
		models.NodeTypeRAG:          &RAGExecutor{deps: deps},
		models.NodeTypeMultiAgent:   &MultiAgentExecutor{deps: deps},
	}
	for nodeType, exec := range registrations {
		if err := m.Register(nodeType, exec); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// NewMockManager builds a registry where every node kind resolves to the
// synthetic mock executor. No external I/O occurs in mock mode.
func NewMockManager() (*executor.Manager, error) {
	m := executor.NewManager()
	mock := &Mock{}
	for _, nodeType := range []models.NodeType{
		models.NodeTypeTrigger,
		models.NodeTypeAgent,
		models.NodeTypeMCPTool,
		models.NodeTypeCondition,
		models.NodeTypeParallel,
		models.NodeTypeFeedbackLoop,
		models.NodeTypeRAG,
		models.NodeTypeMultiAgent,
	} {
		if err := m.Register(nodeType, mock); err != nil {
			return nil, err
		}
	}
	return m, nil
}
