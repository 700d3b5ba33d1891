// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package orchestrator drives one chat turn end to end: it assembles the
// message list a model sees (leading prompt bundle, persisted session
// history, optional RAG context, the new user message), streams the model's
// reply, and executes any tool calls the model issues along the way —
// looping until the model produces a final answer or a bounded number of
// tool iterations is exhausted.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/llamafarm/llamafarm-core/pkg/config"
	"github.com/llamafarm/llamafarm-core/pkg/llmclient"
	"github.com/llamafarm/llamafarm-core/pkg/mcp"
	"github.com/llamafarm/llamafarm-core/pkg/observability"
	"github.com/llamafarm/llamafarm-core/pkg/utils"
)

// defaultMaxIterations bounds how many times the orchestrator will let a
// model call a tool and look at the result before it stops the turn.
const defaultMaxIterations = 10

// EventType tags the variant held by an Event.
type EventType string

const (
	// EventContent is a streamed fragment of the model's reply text.
	EventContent EventType = "content"
	// EventToolCall announces a tool the model is about to invoke.
	EventToolCall EventType = "tool_call"
	// EventToolResult announces a tool's result once the call completes.
	EventToolResult EventType = "tool_result"
	// EventDone marks a successfully finished turn.
	EventDone EventType = "done"
	// EventError marks a turn that ended in failure.
	EventError EventType = "error"
)

// Event is one item the orchestrator emits while driving a turn.
type Event struct {
	Type       EventType
	Content    string
	ToolCall   *llmclient.ToolCall
	ToolResult string
	Err        error
}

// Config configures a new Orchestrator.
type Config struct {
	ProjectDir string
	Project    *config.ProjectConfig

	// ModelName selects a runtime.models[] entry by name. Empty defaults to
	// runtime.default_model.
	ModelName string

	// SessionID, when set, persists turn history to
	// ProjectDir/sessions/SessionID/history.json across Orchestrator
	// instances. Empty keeps history in memory only for this instance.
	SessionID string

	// Tools are the MCP-backed tools offered to the model this turn.
	Tools []mcp.BoundTool

	// RAG, when set, is consulted once per turn for retrieval context.
	RAG RAGSearcher

	// MaxIterations overrides defaultMaxIterations when positive.
	MaxIterations int

	// Tracer, when set, wraps RAG retrieval and tool execution in spans.
	// Nil is fine: every Tracer method tolerates a nil receiver.
	Tracer *observability.Tracer
}

// Orchestrator drives chat turns for one resolved model, tool set, and
// session history.
type Orchestrator struct {
	client        llmclient.Client
	projectDir    string
	leading       []llmclient.Message
	toolDefs      []llmclient.ToolDefinition
	toolsByName   map[string]mcp.BoundTool
	rag           RAGSearcher
	maxIterations int
	tracer        *observability.Tracer

	// tokens counts tokens against contextWindow to decide how much
	// persisted history fits alongside the leading prompts, RAG context, and
	// new user message; nil when no encoding could be resolved, in which
	// case history is never trimmed.
	tokens          *utils.TokenCounter
	contextWindow   int
	maxOutputTokens int

	mu    sync.Mutex
	hist  *history
	turns []llmclient.Message
}

// New resolves cfg's model, builds the leading prompt bundle, restores any
// persisted history, and returns a ready-to-drive Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Project == nil {
		return nil, fmt.Errorf("orchestrator: Config.Project is required")
	}
	if cfg.SessionID != "" && !utils.ValidIdentifier(cfg.SessionID) {
		return nil, fmt.Errorf("orchestrator: invalid session id %q", cfg.SessionID)
	}

	modelName := cfg.ModelName
	if modelName == "" {
		modelName = cfg.Project.Runtime.DefaultModel
	}
	if modelName == "" {
		return nil, fmt.Errorf("orchestrator: no model specified and runtime.default_model is unset")
	}
	model, ok := cfg.Project.FindModel(modelName)
	if !ok {
		return nil, fmt.Errorf("orchestrator: model %q not found in runtime.models", modelName)
	}

	client, err := llmclient.NewClient(*model)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: build model client: %w", err)
	}

	leading := leadingMessages(cfg.Project, model.Prompts)

	toolsByName := make(map[string]mcp.BoundTool, len(cfg.Tools))
	toolDefs := make([]llmclient.ToolDefinition, 0, len(cfg.Tools))
	for _, t := range cfg.Tools {
		toolsByName[t.Definition.Name] = t
		toolDefs = append(toolDefs, t.Definition)
	}

	maxIter := cfg.MaxIterations
	if maxIter <= 0 {
		maxIter = defaultMaxIterations
	}

	hist := newHistory(cfg.ProjectDir, cfg.SessionID)
	turns, err := hist.load()
	if err != nil {
		return nil, err
	}

	tokens, err := utils.NewTokenCounter(model.Model)
	if err != nil {
		// No encoding resolved for this model; history trimming is skipped
		// rather than failing the turn over a budgeting nicety.
		slog.Warn("orchestrator: token counter unavailable, history will not be trimmed", "model", model.Model, "error", err)
		tokens = nil
	}

	return &Orchestrator{
		client:          client,
		projectDir:      cfg.ProjectDir,
		leading:         leading,
		toolDefs:        toolDefs,
		toolsByName:     toolsByName,
		rag:             cfg.RAG,
		maxIterations:   maxIter,
		tracer:          cfg.Tracer,
		tokens:          tokens,
		contextWindow:   model.ContextWindow,
		maxOutputTokens: model.MaxTokens,
		hist:            hist,
		turns:           turns,
	}, nil
}

// leadingMessages expands the prompt bundles named by the model (falling
// back to every project-level prompt when the model names none) into the
// fixed leading message slice prepended to every turn.
func leadingMessages(project *config.ProjectConfig, promptNames []string) []llmclient.Message {
	var bundles []config.PromptConfig
	if len(promptNames) > 0 {
		for _, name := range promptNames {
			if p, ok := project.FindPrompt(name); ok {
				bundles = append(bundles, *p)
			}
		}
	} else {
		bundles = project.Prompts
	}

	var out []llmclient.Message
	for _, bundle := range bundles {
		for _, m := range bundle.Messages {
			out = append(out, llmclient.Message{Role: m.Role, Content: m.Content})
		}
	}
	return out
}

// Close releases the orchestrator's model client.
func (o *Orchestrator) Close() error {
	return o.client.Close()
}

// Run drives one chat turn: it streams content and tool-call events on the
// returned channel and closes it when the turn finishes (successfully or
// not). params may be nil to skip RAG retrieval.
func (o *Orchestrator) Run(ctx context.Context, userMessage string, params *RAGParams) <-chan Event {
	out := make(chan Event, 16)
	go o.run(ctx, userMessage, params, out)
	return out
}

func (o *Orchestrator) run(ctx context.Context, userMessage string, params *RAGParams, out chan<- Event) {
	defer close(out)

	o.mu.Lock()
	defer o.mu.Unlock()

	ragContext, err := o.performRAG(ctx, params, userMessage)
	if err != nil {
		// RAG failures become conversation content rather than a fatal event,
		// the same treatment invokeTool gives tool-execution failures: the
		// model sees the retrieval failed and answers without it.
		ragContext = fmt.Sprintf("Retrieval failed: %v. Answer using your own knowledge instead.", err)
	}

	messages := o.buildMessages(ragContext, userMessage)
	turns := append(append([]llmclient.Message{}, o.turns...), llmclient.Message{Role: llmclient.RoleUser, Content: userMessage})

	for iteration := 0; iteration < o.maxIterations; iteration++ {
		request := make([]llmclient.Message, 0, len(o.leading)+len(messages))
		request = append(request, o.leading...)
		request = append(request, messages...)
		events, err := o.client.StreamChatWithTools(request, o.toolDefs)
		if err != nil {
			out <- Event{Type: EventError, Err: fmt.Errorf("orchestrator: stream chat: %w", err)}
			return
		}

		var content string
		var toolCall *llmclient.ToolCall
		var streamErr error
	drain:
		for {
			select {
			case <-ctx.Done():
				out <- Event{Type: EventError, Err: ctx.Err()}
				return
			case ev, ok := <-events:
				if !ok {
					break drain
				}
				switch ev.Type {
				case llmclient.EventContent:
					content += ev.Text
					out <- Event{Type: EventContent, Content: ev.Text}
				case llmclient.EventToolCall:
					toolCall = ev.ToolCall
				case llmclient.EventError:
					streamErr = ev.Err
				case llmclient.EventDone:
					break drain
				}
			}
		}
		if streamErr != nil {
			out <- Event{Type: EventError, Err: fmt.Errorf("orchestrator: model stream: %w", streamErr)}
			return
		}

		if toolCall == nil {
			if content != "" {
				turns = append(turns, llmclient.Message{Role: llmclient.RoleAssistant, Content: content})
				messages = append(messages, llmclient.Message{Role: llmclient.RoleAssistant, Content: content})
			}
			o.finish(turns, out)
			return
		}

		if content != "" {
			assistantMsg := llmclient.Message{Role: llmclient.RoleAssistant, Content: content, ToolCalls: []llmclient.ToolCall{*toolCall}}
			turns = append(turns, assistantMsg)
			messages = append(messages, assistantMsg)
		} else {
			assistantMsg := llmclient.Message{Role: llmclient.RoleAssistant, ToolCalls: []llmclient.ToolCall{*toolCall}}
			turns = append(turns, assistantMsg)
			messages = append(messages, assistantMsg)
		}

		out <- Event{Type: EventToolCall, ToolCall: toolCall}
		result := o.invokeTool(ctx, toolCall)
		out <- Event{Type: EventToolResult, ToolCall: toolCall, ToolResult: result}

		toolMsg := llmclient.Message{Role: llmclient.RoleTool, Content: result, ToolCallID: toolCall.ID, Name: toolCall.Name}
		turns = append(turns, toolMsg)
		messages = append(messages, toolMsg)

		guidance := toolResultGuidance(toolCall.Name)
		guidanceMsg := llmclient.Message{Role: llmclient.RoleAssistant, Content: guidance}
		turns = append(turns, guidanceMsg)
		messages = append(messages, guidanceMsg)
	}

	out <- Event{Type: EventContent, Content: maxIterationsMessage}
	turns = append(turns, llmclient.Message{Role: llmclient.RoleAssistant, Content: maxIterationsMessage})
	o.finish(turns, out)
}

const maxIterationsMessage = "I reached the maximum number of tool calls for this turn without producing a final answer. Please rephrase your request or try again."

func (o *Orchestrator) finish(turns []llmclient.Message, out chan<- Event) {
	o.turns = turns
	if err := o.hist.persist(turns); err != nil {
		// Persistence failures are not reported and never fail the turn: the
		// user already has their answer.
		out <- Event{Type: EventDone}
		return
	}
	out <- Event{Type: EventDone}
}

// buildMessages assembles persisted turns plus, immediately before the new
// user message, an optional RAG context message — rebuilt fresh every turn
// rather than folded into the persisted history itself.
func (o *Orchestrator) buildMessages(ragContext, userMessage string) []llmclient.Message {
	var tail []llmclient.Message
	if ragContext != "" {
		tail = append(tail, llmclient.Message{Role: llmclient.RoleSystem, Content: ragContext})
	}
	tail = append(tail, llmclient.Message{Role: llmclient.RoleUser, Content: userMessage})

	history := o.fitHistory(o.turns, tail)

	msgs := make([]llmclient.Message, 0, len(history)+len(tail))
	msgs = append(msgs, history...)
	msgs = append(msgs, tail...)
	return msgs
}

// fitHistory drops the oldest persisted turns until what remains, together
// with the leading prompts and tail (RAG context + new user message), fits
// within the model's context window less its reserved output budget. Turns
// are dropped in whole groups (one user message through the assistant/tool
// messages that answer it) so a tool call is never separated from its
// result. Returns turns unchanged when no token encoding is available.
func (o *Orchestrator) fitHistory(turns []llmclient.Message, tail []llmclient.Message) []llmclient.Message {
	if o.tokens == nil {
		return turns
	}

	budget := o.contextWindow - o.maxOutputTokens
	budget -= o.tokens.CountMessages(toCountable(o.leading))
	budget -= o.tokens.CountMessages(toCountable(tail))
	if budget <= 0 {
		return nil
	}

	groups := groupTurns(turns)
	var kept []llmclient.Message
	used := 0
	for i := len(groups) - 1; i >= 0; i-- {
		n := o.tokens.CountMessages(toCountable(groups[i]))
		if used+n > budget {
			break
		}
		kept = append(groups[i], kept...)
		used += n
	}
	return kept
}

// groupTurns splits a flat turn list into groups, each starting at a user
// message and running through every message that follows it up to (not
// including) the next user message.
func groupTurns(turns []llmclient.Message) [][]llmclient.Message {
	var groups [][]llmclient.Message
	for _, m := range turns {
		if m.Role == llmclient.RoleUser || len(groups) == 0 {
			groups = append(groups, []llmclient.Message{m})
			continue
		}
		groups[len(groups)-1] = append(groups[len(groups)-1], m)
	}
	return groups
}

func toCountable(msgs []llmclient.Message) []utils.Message {
	out := make([]utils.Message, len(msgs))
	for i, m := range msgs {
		out[i] = utils.Message{Role: m.Role, Content: m.Content}
	}
	return out
}

func (o *Orchestrator) performRAG(ctx context.Context, params *RAGParams, userMessage string) (string, error) {
	if o.rag == nil || params == nil {
		return "", nil
	}
	ctx, span := o.tracer.StartRAGSearch(ctx, params.Target)
	defer span.End()

	queries := params.Queries
	if len(queries) == 0 {
		queries = []string{userMessage}
	}
	results, err := o.rag.Search(ctx, o.projectDir, queries, params.Target, params.TopK, params.Strategy)
	if err != nil {
		o.tracer.RecordError(span, err)
		return "", err
	}
	o.tracer.AddRAGResultCount(span, len(results))
	return formatRAGContext(results), nil
}

func (o *Orchestrator) invokeTool(ctx context.Context, call *llmclient.ToolCall) string {
	ctx, span := o.tracer.StartToolExecution(ctx, call.Name, call.ID)
	defer span.End()

	tool, ok := o.toolsByName[call.Name]
	if !ok {
		err := fmt.Errorf("no tool named %q is available", call.Name)
		o.tracer.RecordError(span, err)
		return "error: " + err.Error()
	}
	result, err := tool.Call(ctx, call.Arguments)
	if err != nil {
		o.tracer.RecordError(span, err)
		return fmt.Sprintf("error: tool %q failed: %v", call.Name, err)
	}
	o.tracer.AddToolPayload(span, call.RawArgs, result)
	return result
}

// toolResultGuidance nudges the model to use the tool result it was just
// given rather than looping on the same call again.
func toolResultGuidance(toolName string) string {
	return fmt.Sprintf(
		"Based on the tool result above, please provide your complete final answer now. "+
			"Do not call %s again unless the user asks a new question that requires it.",
		toolName,
	)
}
