// Copyright (c) SubLLM Authors.
// Licensed under the MIT License.

// Package handlers implements the OpenAI-compatible HTTP adapter. Handlers
// are thin: decode, delegate to llm.Router, encode. No routing or backend
// logic lives here.
package handlers
