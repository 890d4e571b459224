package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/Mathews-Tom/SubLLM/api"
	"github.com/Mathews-Tom/SubLLM/llm"
)

// ModelsHandler serves GET /v1/models.
type ModelsHandler struct {
	router *llm.Router
	logger *zap.Logger
}

// NewModelsHandler creates the model listing handler.
func NewModelsHandler(router *llm.Router, logger *zap.Logger) *ModelsHandler {
	return &ModelsHandler{router: router, logger: logger}
}

// HandleList enumerates every routable "backend/alias" id in the OpenAI
// list shape, sorted by id.
func (h *ModelsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, h.logger) {
		return
	}

	infos := h.router.ListModels()
	list := api.ModelList{
		Object: "list",
		Data:   make([]api.ModelEntry, 0, len(infos)),
	}
	for _, info := range infos {
		list.Data = append(list.Data, api.ModelEntry{
			ID:      info.ID,
			Object:  "model",
			OwnedBy: info.Backend,
			Model:   info.Model,
		})
	}

	WriteJSON(w, http.StatusOK, list)
}
