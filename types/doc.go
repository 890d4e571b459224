// Copyright (c) SubLLM Authors.
// Licensed under the MIT License.

/*
Package types provides the global shared types for SubLLM.

types is the lowest-level common package. It depends on nothing inside the
module and gives the llm, providers, and api layers a single type contract,
so cross-package sharing never creates an import cycle.

Core types:

  - Message / Role     — conversation message (system / user / assistant)
  - ImageContent       — multimodal image part (url or base64)
  - Error / ErrorCode  — structured error taxonomy with backend/model context

Error codes cover routing (UNKNOWN_BACKEND, UNKNOWN_MODEL_ALIAS) and backend
execution (SPAWN_FAILURE, ABNORMAL_EXIT, MALFORMED_OUTPUT, BROKEN_PIPE,
TIMEOUT, AUTH_NOT_CONFIGURED, PARTIAL_STREAM_ERROR).
*/
package types
