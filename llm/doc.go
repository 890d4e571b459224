// Copyright (c) SubLLM Authors.
// Licensed under the MIT License.

/*
Package llm provides the provider abstraction at the heart of SubLLM: one
completion/streaming contract dispatched to heterogeneous backend execution
surfaces (claude-code, codex, gemini), each reached through its own CLI or
persistent client process.

# Core pieces

  - Provider           — the backend contract (Complete / Stream / CheckAuth)
  - Capabilities       — static per-backend feature declaration
  - Event              — canonical stream event (delta / usage / error / end)
  - Collect / Relay    — response normalization for both call modes
  - BuildPrompt        — conversation replay strategy (native vs stateless)
  - Router             — model resolution ("backend/alias") and dispatch
  - RunBatch           — bounded-concurrency batch execution

# Data flow

Request → Router (resolve backend + capabilities) → BuildPrompt (shape input)
→ Provider (execute via internal/cliexec) → backend parser (canonical events)
→ Collect/Relay (normalized response) → caller.

All errors carry a types.ErrorCode; the router adds backend and model alias
context without rewriting the originating code.
*/
package llm
