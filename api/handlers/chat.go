package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Mathews-Tom/SubLLM/api"
	"github.com/Mathews-Tom/SubLLM/internal/metrics"
	"github.com/Mathews-Tom/SubLLM/llm"
	"github.com/Mathews-Tom/SubLLM/types"
)

// ChatHandler serves POST /v1/chat/completions. One endpoint covers both
// modes: the request's stream flag selects JSON or SSE framing.
type ChatHandler struct {
	router    *llm.Router
	collector *metrics.Collector // optional
	logger    *zap.Logger
}

// NewChatHandler creates the chat completions handler. collector may be nil.
func NewChatHandler(router *llm.Router, collector *metrics.Collector, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		router:    router,
		collector: collector,
		logger:    logger.With(zap.String("component", "chat_handler")),
	}
}

// HandleCompletions decodes a chat request and delegates to the router.
func (h *ChatHandler) HandleCompletions(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost, h.logger) {
		return
	}

	var wireReq api.ChatRequest
	if err := DecodeJSONBody(w, r, &wireReq, h.logger); err != nil {
		return
	}

	req, err := wireReq.ToLLMRequest()
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	ctx := r.Context()
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	if req.Stream {
		h.serveStream(ctx, w, req)
		return
	}
	h.serveCompletion(ctx, w, req)
}

func (h *ChatHandler) serveCompletion(ctx context.Context, w http.ResponseWriter, req *llm.ChatRequest) {
	backend, alias := splitModelID(req.Model)

	start := time.Now()
	resp, err := h.router.Completion(ctx, req)
	duration := time.Since(start)

	if err != nil {
		h.recordCompletion(backend, alias, "error", duration, nil)
		WriteError(w, err, h.logger)
		return
	}

	h.recordCompletion(backend, alias, "ok", duration, resp)
	WriteJSON(w, http.StatusOK, resp)
}

// serveStream writes SSE frames: one "data: <chunk JSON>" event per chunk,
// terminated by "data: [DONE]". Errors surfacing before the first chunk get
// a plain JSON error response; errors mid-stream arrive as the terminal
// chunk's error field because the status line is already on the wire.
func (h *ChatHandler) serveStream(ctx context.Context, w http.ResponseWriter, req *llm.ChatRequest) {
	backend, alias := splitModelID(req.Model)

	start := time.Now()
	stream, err := h.router.Stream(ctx, req)
	if err != nil {
		h.recordCompletion(backend, alias, "error", time.Since(start), nil)
		WriteError(w, err, h.logger)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, types.NewError(types.ErrInternalError, "streaming unsupported by connection"), h.logger)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	var (
		chunks int
		usage  *llm.ChatUsage
		failed bool
	)
	for chunk := range stream {
		if chunk.Err != nil {
			failed = true
			h.logger.Warn("stream failed",
				zap.String("backend", backend),
				zap.String("code", string(chunk.Err.Code)),
				zap.Int("delivered", chunks),
			)
		}
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
		if chunk.Delta.Content != "" {
			chunks++
		}

		payload, err := json.Marshal(chunk)
		if err != nil {
			h.logger.Error("chunk marshal failed", zap.Error(err))
			break
		}
		w.Write([]byte("data: "))
		w.Write(payload)
		w.Write([]byte("\n\n"))
		flusher.Flush()
	}

	w.Write([]byte("data: [DONE]\n\n"))
	flusher.Flush()

	status := "ok"
	if failed {
		status = "error"
	}
	if h.collector != nil {
		h.collector.RecordStreamChunks(backend, alias, chunks)
		prompt, completion := 0, 0
		if usage != nil {
			prompt, completion = usage.PromptTokens, usage.CompletionTokens
		}
		h.collector.RecordCompletion(backend, alias, status, time.Since(start),
			prompt, completion, usage != nil && usage.Estimated)
	}
}

func (h *ChatHandler) recordCompletion(backend, alias, status string, duration time.Duration, resp *llm.ChatResponse) {
	if h.collector == nil {
		return
	}
	prompt, completion, estimated := 0, 0, false
	if resp != nil {
		prompt = resp.Usage.PromptTokens
		completion = resp.Usage.CompletionTokens
		estimated = resp.Usage.Estimated
	}
	h.collector.RecordCompletion(backend, alias, status, duration, prompt, completion, estimated)
}

// splitModelID is best-effort label extraction; unresolvable ids keep the
// raw string as the backend label so failures stay attributable.
func splitModelID(model string) (backend, alias string) {
	backend, alias, ok := strings.Cut(model, "/")
	if !ok {
		return model, ""
	}
	return backend, alias
}
