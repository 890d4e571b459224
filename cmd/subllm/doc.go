// Copyright (c) SubLLM Authors.
// Licensed under the MIT License.

// Command subllm runs the multi-backend LLM dispatcher.
//
//	subllm serve  [--config subllm.yaml]   start the HTTP proxy
//	subllm models [--config subllm.yaml]   list routable model ids
//	subllm auth   [--config subllm.yaml]   probe backend auth state
//	subllm version                         print version info
package main
