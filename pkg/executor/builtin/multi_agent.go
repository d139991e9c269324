package builtin

import (
	"context"
	"fmt"

	"github.com/flowline-ai/flowline/pkg/executor"
	"github.com/flowline-ai/flowline/pkg/models"
	"github.com/flowline-ai/flowline/pkg/orchestration"
)

// MultiAgentExecutor builds an ephemeral agent team from node data and runs
// its orchestration strategy on the node input. Team events flow back into
// the engine log through the callback manager.
type MultiAgentExecutor struct {
	deps Deps
}

// Execute implements executor.Executor.
func (e *MultiAgentExecutor) Execute(ctx context.Context, node *models.Node, input any, execCtx executor.Context) (any, error) {
	teamName, _ := node.Data["teamName"].(string)
	if teamName == "" {
		teamName = node.Name()
	}
	strategy, _ := node.Data["strategy"].(string)
	maxRounds := intValue(node.Data["maxRounds"], 0)
	enableConsult, _ := node.Data["enableConsult"].(bool)
	maxConsultDepth := intValue(node.Data["maxConsultDepth"], 1)

	userID, _ := execCtx[executor.KeyUserID].(string)

	members, agents, err := e.buildMembers(ctx, node, userID)
	if err != nil {
		return nil, err
	}

	var coordinator *orchestration.Agent
	if coordData, ok := node.Data["coordinator"].(map[string]any); ok {
		coordinator, err = e.buildAgent(ctx, coordData, userID)
		if err != nil {
			return nil, fmt.Errorf("multi_agent node %s coordinator: %w", node.ID, err)
		}
	}

	callbacks := orchestration.NewCallbackManager()
	log := e.deps.Log
	callbacks.Register(func(_ context.Context, event orchestration.CallbackEvent, fields map[string]any) {
		log.Debug("team event", "team", teamName, "event", string(event), "fields", fields)
	})

	team, err := orchestration.NewTeam(orchestration.TeamConfig{
		Name:            teamName,
		Members:         members,
		Agents:          agents,
		Coordinator:     coordinator,
		Strategy:        strategy,
		MaxRounds:       maxRounds,
		Callbacks:       callbacks,
		EnableConsult:   enableConsult,
		MaxConsultDepth: maxConsultDepth,
	})
	if err != nil {
		return nil, fmt.Errorf("multi_agent node %s: %w", node.ID, err)
	}

	result, err := team.Run(ctx, executor.FormatValue(input))
	if err != nil {
		return nil, fmt.Errorf("multi_agent node %s: %w", node.ID, err)
	}

	var modelUsed string
	if len(members) > 0 {
		modelUsed = members[0].Model
	}
	execCtx[executor.UsageKey(node.ID)] = map[string]any{
		"prompt_tokens":     0,
		"completion_tokens": result.TotalTokens,
		"cost":              result.TotalCost,
		"model":             modelUsed,
	}

	agentOutputs := make(map[string]any, len(result.AgentOutputs))
	for key, out := range result.AgentOutputs {
		agentOutputs[key] = map[string]any{
			"agent_name":  out.AgentName,
			"role":        string(out.Role),
			"output":      out.Output,
			"tokens":      out.Tokens,
			"duration_ms": out.DurationMs,
		}
	}

	return map[string]any{
		"output":        result.Output,
		"agent_outputs": agentOutputs,
		"strategy":      result.Strategy,
		"rounds":        result.Rounds,
		"converged":     result.Converged,
		"total_tokens":  result.TotalTokens,
	}, nil
}

func (e *MultiAgentExecutor) buildMembers(ctx context.Context, node *models.Node, userID string) ([]orchestration.Member, map[string]*orchestration.Agent, error) {
	raw, ok := node.Data["agents"].([]any)
	if !ok || len(raw) == 0 {
		return nil, nil, fmt.Errorf("multi_agent node %s declares no agents", node.ID)
	}

	var members []orchestration.Member
	agents := make(map[string]*orchestration.Agent, len(raw))
	for i, item := range raw {
		data, ok := item.(map[string]any)
		if !ok {
			return nil, nil, fmt.Errorf("multi_agent node %s: agent %d is not an object", node.ID, i)
		}
		agent, err := e.buildAgent(ctx, data, userID)
		if err != nil {
			return nil, nil, fmt.Errorf("multi_agent node %s agent %d: %w", node.ID, i, err)
		}

		role := orchestration.RoleWorker
		if r, _ := data["role"].(string); r == string(orchestration.RoleCoordinator) {
			role = orchestration.RoleCoordinator
		}
		members = append(members, orchestration.Member{
			Name:         agent.Name,
			Role:         role,
			Model:        agent.Model,
			SystemPrompt: agent.SystemPrompt,
			Capabilities: stringSlice(data["capabilities"]),
			MCPTools:     stringSlice(data["mcpTools"]),
		})
		agents[agent.Name] = agent
	}
	return members, agents, nil
}

func (e *MultiAgentExecutor) buildAgent(ctx context.Context, data map[string]any, userID string) (*orchestration.Agent, error) {
	name, _ := data["name"].(string)
	if name == "" {
		return nil, fmt.Errorf("agent has no name")
	}
	role, _ := data["role"].(string)
	model, _ := data["model"].(string)
	if model == "" {
		model = "gpt-4o-mini"
	}
	systemPrompt, _ := data["systemPrompt"].(string)

	chat, err := e.deps.Providers.Chat(ctx, model, userID)
	if err != nil {
		return nil, err
	}
	agent := orchestration.NewAgent(name, role, model, systemPrompt, chat)

	if bindings := stringSlice(data["mcpTools"]); len(bindings) > 0 && e.deps.MCP != nil {
		agentExec := &AgentExecutor{deps: e.deps}
		tools, err := agentExec.bindMCPTools(ctx, &models.Node{ID: name, Data: map[string]any{"mcpTools": data["mcpTools"]}})
		if err != nil {
			return nil, err
		}
		agent.BindTools(tools)
	}
	return agent, nil
}
