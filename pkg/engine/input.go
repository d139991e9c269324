package engine

import (
	"github.com/flowline-ai/flowline/pkg/executor"
	"github.com/flowline-ai/flowline/pkg/models"
)

// ResolveInput decides a node's input, in priority order:
//
//  1. An inputTemplate in node data, resolved against the context.
//  2. An inputSource key, read from the context with nested templates
//     resolved.
//  3. Incoming edges: no resolved upstream falls back to the workflow input,
//     one unwraps its output, several concatenate.
//
// A nil edge list means the caller did not provide edge information; that is
// not a failure, just the workflow-input fallback.
func ResolveInput(node *models.Node, execCtx executor.Context, incoming []*models.Edge) any {
	engine := executor.NewTemplateEngine(execCtx)

	if node.Data != nil {
		if tmpl, ok := node.Data["inputTemplate"].(string); ok && tmpl != "" {
			return engine.Resolve(tmpl)
		}
		if source, ok := node.Data["inputSource"].(string); ok && source != "" {
			return engine.ResolveAny(execCtx[source])
		}
	}

	if incoming == nil {
		return execCtx[executor.KeyInput]
	}

	var outputs []any
	for _, e := range incoming {
		if e.IsError() {
			continue
		}
		if out, ok := execCtx[e.Source]; ok {
			outputs = append(outputs, out)
		}
	}

	switch len(outputs) {
	case 0:
		return execCtx[executor.KeyInput]
	case 1:
		return unwrapOutput(outputs[0])
	default:
		joined := ""
		for _, out := range outputs {
			if out == nil {
				continue
			}
			if joined != "" {
				joined += "\n\n"
			}
			joined += executor.FormatValue(out)
		}
		return joined
	}
}

// unwrapOutput unwraps a single upstream output: dict outputs with an
// "output" field yield that field, other dicts are stringified, scalars pass
// through.
func unwrapOutput(out any) any {
	m, ok := out.(map[string]any)
	if !ok {
		return out
	}
	if inner, ok := m["output"]; ok {
		return inner
	}
	return executor.FormatValue(m)
}
