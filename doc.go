// Package llamafarmcore is the core of LlamaFarm: a local-first platform
// for standing up a self-hosted AI project — model runtimes, RAG retrieval,
// datasets, and tool-using chat agents — driven through a uniform HTTP API.
//
// A project is declared with a single YAML document (schema version v1)
// naming its runtime models, prompt library, RAG databases and processing
// strategies, datasets, and MCP tool-server wiring. This module turns that
// declaration into two running HTTP surfaces:
//
//   - the universal model runtime (pkg/runtime), an OpenAI-compatible
//     chat/embeddings/models API plus anomaly detection, a polars-style
//     sliding buffer, and TTL-cached file uploads;
//   - the control plane (pkg/api), a multi-project surface for project
//     config, dataset management, and RAG query/preview.
//
// # Quick Start
//
//	llamafarmd serve --config my-project/config.yaml
//
// # Key packages
//
//   - pkg/config: project YAML loading, validation, hot-reload, and the
//     schema manipulator behind LLM-driven config edits
//   - pkg/orchestrator: the agentic chat loop (RAG injection, tool calls,
//     streaming)
//   - pkg/modelcache, pkg/models: TTL-cached model residency and the
//     per-kind model wrappers (language, GGUF, encoder, OCR, anomaly)
//   - pkg/anomaly, pkg/polarsbuffer: the streaming anomaly detector and its
//     sliding-window feature buffer
//   - pkg/mcp: MCP tool-server connections and tool adaptation
//   - pkg/ragclient: the process-invoking adapter onto the external RAG
//     retrieval subsystem
//
// # Architecture
//
//	HTTP request -> Chat API -> Chat Orchestrator -> (RAG search, MCP tools)
//	  -> Agent Client -> Model Runtime -> streamed response
//
// RAG ingestion, chunking, and vector storage are external collaborators
// reached through a single Search interface, not reimplemented here.
package llamafarmcore
