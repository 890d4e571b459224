// Copyright (c) SubLLM Authors.
// Licensed under the MIT License.

// Package server manages the HTTP listener lifecycle: non-blocking start,
// graceful shutdown with a bounded drain window, and SIGINT/SIGTERM handling.
package server
