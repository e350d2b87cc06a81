// Package toolloop runs agentic tool-calling conversations against large language models.
//
// # Overview
//
// A model may answer a request with tool calls instead of text. Run sends the conversation
// through a Provider (the vendor's wire format) and a Runtime (the transport), executes the
// requested tools in order, appends their results to the history and asks again, until the
// model answers without tools or the agent's iteration bound is reached.
//
// Pipeline: Go function + argument struct → NewTool (reflection + schema) → Tool[C] →
// AgentConfig → Run (build request, send, parse, execute tools) → RunResult.
//
// # Key concepts
//
//   - Erased typed tools: NewTool captures the typed handler in a closure, so tools with
//     different argument types share one Toolset while each handler stays fully typed.
//   - Single Source of Truth: one set of struct tags drives both the schema sent to the model
//     and the validation of incoming JSON.
//   - Self-Correction: ParseError and ExecutionError are returned to the model as tool results
//     rather than ending the run.
//   - Immutable configuration: AgentConfig With* methods return modified copies.
//
// Provider implementations live in the providers/ subpackages and an HTTP Runtime in httpruntime.
//
// # Example
//
//	type Args struct { City string `json:"city" jsonschema:"City name"` }
//	weather, err := toolloop.NewTool("weather", "Get weather", func(_ context.Context, _ struct{}, a Args) (string, error) {
//	    return "22.5°C in " + a.City, nil
//	})
//	if err != nil { ... }
//	agent := toolloop.NewAgent[struct{}](anthropic.New("claude-sonnet-4-5", anthropic.WithAPIKey(key))).
//	    WithSystemPrompt("You are a weather assistant.").
//	    WithTool(weather)
//	res, err := toolloop.Run(ctx, agent, struct{}{}, []toolloop.Message{toolloop.UserMessage("Weather in Oslo?")}, httpruntime.New())
package toolloop
