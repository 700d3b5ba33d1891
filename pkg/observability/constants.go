// Package observability names the span and attribute keys every component
// of the daemon (chat orchestrator, model provider clients, HTTP server)
// uses when it instruments itself, so a trace backend sees one consistent
// vocabulary regardless of which package emitted the span.
package observability

const (
	AttrServiceName     = "service.name"
	AttrServiceVersion  = "service.version"
	AttrAgentName       = "agent.name"
	AttrAgentLLM        = "agent.llm"
	AttrToolName        = "tool.name"
	AttrLLMModel        = "llm.model"
	AttrLLMTokensInput  = "llm.tokens.input"
	AttrLLMTokensOutput = "llm.tokens.output"
	AttrErrorType       = "error.type"
	AttrEventID         = "llamafarm.event_id"

	// HTTP server attributes, set by HTTPMiddleware on the request span.
	AttrHTTPMethod       = "http.method"
	AttrHTTPPath         = "http.route"
	AttrHTTPStatusCode   = "http.status_code"
	AttrHTTPRequestSize  = "http.request.body.size"
	AttrHTTPResponseSize = "http.response.body.size"

	SpanAgentRun      = "agent.run"
	SpanLLMRequest    = "agent.llm_request"
	SpanToolExecution = "agent.tool_execution"
	SpanMemoryLookup  = "agent.memory_lookup"
	SpanRAGSearch     = "agent.rag_search"
	SpanHTTPRequest   = "http.request"

	// GenAI operation names, set on LLM-request and tool-execution spans.
	AttrGenAIOperationName = "gen_ai.operation.name"
	OpChat                 = "chat"
	OpToolCall             = "execute_tool"

	// RAG retrieval attributes, set on SpanRAGSearch by performRAG.
	AttrRAGTarget      = "rag.target"
	AttrRAGResultCount = "rag.result_count"

	DefaultServiceName  = "llamafarmd"
	DefaultSamplingRate = 1.0
	DefaultOTLPEndpoint = "localhost:4317"
	DefaultMetricsPath  = "/metrics"
)
