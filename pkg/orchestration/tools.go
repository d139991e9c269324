package orchestration

import (
	"context"
	"encoding/json"
	"fmt"
)

// taskParameters is the schema shared by delegation and consult tools.
func taskParameters(description string) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"task": map[string]any{
				"type":        "string",
				"description": description,
			},
		},
		"required": []string{"task"},
	}
}

// NewDelegationTools builds one delegate_to_<name> tool per worker. Each tool
// runs the worker's model on the delegated task, records the exchange on the
// bus, and reports the result back through onResult.
func NewDelegationTools(
	members []Member,
	agents map[string]*Agent,
	bus *MessageBus,
	senderName string,
	onResult func(ctx context.Context, agentName string, role TeamRole, result *RunResult),
) []Tool {
	var tools []Tool
	for _, member := range members {
		worker, ok := agents[member.Name]
		if !ok {
			continue
		}
		member := member

		description := fmt.Sprintf("Delegate a task to %s", member.Name)
		if worker.Role != "" {
			description += fmt.Sprintf(" (%s)", worker.Role)
		}
		if len(member.Capabilities) > 0 {
			description += fmt.Sprintf(". Capabilities: %s", joinStrings(member.Capabilities))
		}

		tools = append(tools, Tool{
			Name:        "delegate_to_" + member.Name,
			Description: description,
			Parameters:  taskParameters("The task to delegate"),
			Call: func(ctx context.Context, args map[string]any) (string, error) {
				task, _ := args["task"].(string)

				if bus != nil {
					_ = bus.Send(ctx, AgentMessage{
						Sender:    senderName,
						Recipient: member.Name,
						Type:      MessageTask,
						Content:   task,
					})
				}

				result, err := worker.Run(ctx, task)
				if err != nil {
					return "", err
				}

				if bus != nil {
					_ = bus.Send(ctx, AgentMessage{
						Sender:    member.Name,
						Recipient: senderName,
						Type:      MessageResult,
						Content:   result.Output,
					})
				}
				if onResult != nil {
					role := member.Role
					if role == "" {
						role = RoleWorker
					}
					onResult(ctx, member.Name, role, result)
				}
				return result.Output, nil
			},
		})
	}
	return tools
}

// NewContextTools exposes the team's shared context to an agent as
// read/write/list tools scoped to the agent's name.
func NewContextTools(shared *SharedContext, agentName string) []Tool {
	return []Tool{
		{
			Name:        "read_shared_context",
			Description: "Read a value from the team's shared context",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"key": map[string]any{"type": "string", "description": "Context key to read"},
				},
				"required": []string{"key"},
			},
			Call: func(_ context.Context, args map[string]any) (string, error) {
				key, _ := args["key"].(string)
				value := shared.Get(key)
				if value == nil {
					return "", nil
				}
				raw, err := json.Marshal(value)
				if err != nil {
					return fmt.Sprintf("%v", value), nil
				}
				return string(raw), nil
			},
		},
		{
			Name:        "write_shared_context",
			Description: "Write a value into the team's shared context",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"key":   map[string]any{"type": "string", "description": "Context key to write"},
					"value": map[string]any{"type": "string", "description": "Value to store"},
				},
				"required": []string{"key", "value"},
			},
			Call: func(_ context.Context, args map[string]any) (string, error) {
				key, _ := args["key"].(string)
				shared.Set(key, args["value"], agentName)
				return "ok", nil
			},
		},
		{
			Name:        "list_shared_context",
			Description: "List the keys currently in the team's shared context",
			Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
			Call: func(_ context.Context, _ map[string]any) (string, error) {
				raw, err := json.Marshal(shared.Keys())
				if err != nil {
					return "[]", nil
				}
				return string(raw), nil
			},
		},
	}
}

// NewConsultTools gives the current agent one consult_<peer> tool per peer.
// Depth bounds chained consultation: a consulted peer at the final depth runs
// without consult tools, so mutual invocation cannot recurse unboundedly.
func NewConsultTools(
	peers []Member,
	agents map[string]*Agent,
	currentAgent string,
	bus *MessageBus,
	maxDepth int,
) []Tool {
	if maxDepth <= 0 {
		return nil
	}

	var tools []Tool
	for _, peer := range peers {
		if peer.Name == currentAgent {
			continue
		}
		agent, ok := agents[peer.Name]
		if !ok {
			continue
		}
		peer := peer

		tools = append(tools, Tool{
			Name:        "consult_" + peer.Name,
			Description: fmt.Sprintf("Ask %s for input on a question", peer.Name),
			Parameters:  taskParameters("The question to ask"),
			Call: func(ctx context.Context, args map[string]any) (string, error) {
				question, _ := args["task"].(string)

				if bus != nil {
					_ = bus.Send(ctx, AgentMessage{
						Sender:    currentAgent,
						Recipient: peer.Name,
						Type:      MessageConsult,
						Content:   question,
					})
				}

				// Depth decreases by one per hop; at depth 1 the peer gets no
				// consult tools of its own.
				nested := NewConsultTools(peers, agents, peer.Name, bus, maxDepth-1)
				result, err := agent.RunWithTools(ctx, question, nested, 0, "")
				if err != nil {
					return "", err
				}
				return result.Output, nil
			},
		})
	}
	return tools
}

func joinStrings(items []string) string {
	out := ""
	for i, item := range items {
		if i > 0 {
			out += ", "
		}
		out += item
	}
	return out
}
