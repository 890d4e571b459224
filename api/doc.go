// Copyright (c) SubLLM Authors.
// Licensed under the MIT License.

// Package api defines the wire types of the OpenAI-compatible HTTP surface.
// Response shapes reuse the llm package types directly; only the request
// side needs its own types because the wire request carries string-encoded
// fields (timeout) that the core types keep as Go values.
package api
