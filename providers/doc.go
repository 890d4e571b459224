// Copyright (c) SubLLM Authors.
// Licensed under the MIT License.

// Package providers holds per-backend configuration and helpers shared by the
// backend adapter packages (claudecode, codex, gemini). Each adapter wraps
// one local CLI behind the llm.Provider contract.
package providers
