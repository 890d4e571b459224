package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/Mathews-Tom/SubLLM/api"
	"github.com/Mathews-Tom/SubLLM/internal/metrics"
	"github.com/Mathews-Tom/SubLLM/llm"
	"github.com/Mathews-Tom/SubLLM/types"
)

// maxBatchSize caps one batch submission; larger workloads should page.
const maxBatchSize = 64

// BatchHandler serves POST /v1/batch: independent completions executed
// under the bounded-concurrency batch executor, results in input order.
type BatchHandler struct {
	router             *llm.Router
	collector          *metrics.Collector // optional
	defaultConcurrency int
	logger             *zap.Logger
}

// NewBatchHandler creates the batch handler. collector may be nil.
func NewBatchHandler(router *llm.Router, collector *metrics.Collector, defaultConcurrency int, logger *zap.Logger) *BatchHandler {
	return &BatchHandler{
		router:             router,
		collector:          collector,
		defaultConcurrency: defaultConcurrency,
		logger:             logger.With(zap.String("component", "batch_handler")),
	}
}

// HandleBatch runs all submitted requests and reports per-item outcomes.
// One item failing never fails the HTTP call.
func (h *BatchHandler) HandleBatch(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost, h.logger) {
		return
	}

	var wireReq api.BatchRequest
	if err := DecodeJSONBody(w, r, &wireReq, h.logger); err != nil {
		return
	}
	if len(wireReq.Requests) == 0 {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "requests must not be empty"), h.logger)
		return
	}
	if len(wireReq.Requests) > maxBatchSize {
		WriteError(w, types.Errorf(types.ErrInvalidRequest,
			"batch size %d exceeds limit %d", len(wireReq.Requests), maxBatchSize), h.logger)
		return
	}

	requests := make([]*llm.ChatRequest, len(wireReq.Requests))
	for i := range wireReq.Requests {
		req, err := wireReq.Requests[i].ToLLMRequest()
		if err != nil {
			WriteError(w, types.Errorf(types.ErrInvalidRequest,
				"request %d: %s", i, err.Error()), h.logger)
			return
		}
		requests[i] = req
	}

	concurrency := wireReq.Concurrency
	if concurrency <= 0 {
		concurrency = h.defaultConcurrency
	}

	items := h.router.RunBatch(r.Context(), requests, concurrency)

	resp := api.BatchResponse{Items: make([]api.BatchItemResult, len(items))}
	succeeded, failed := 0, 0
	for i, item := range items {
		result := api.BatchItemResult{Index: item.Index, Response: item.Response}
		if item.Err != nil {
			failed++
			var typed *types.Error
			if e, ok := item.Err.(*types.Error); ok {
				typed = e
			} else {
				typed = types.NewError(types.ErrInternalError, item.Err.Error())
			}
			detail := ErrorDetail(typed)
			result.Error = &detail
		} else {
			succeeded++
		}
		resp.Items[i] = result
	}

	if h.collector != nil {
		h.collector.RecordBatch(succeeded, failed)
	}
	WriteJSON(w, http.StatusOK, resp)
}
