package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Mathews-Tom/SubLLM/api"
	"github.com/Mathews-Tom/SubLLM/types"
)

func postBatch(t *testing.T, h *BatchHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/batch", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.HandleBatch(rec, req)
	return rec
}

func TestBatchHandler_OrderAndIsolation(t *testing.T) {
	h := NewBatchHandler(newTestRouter(newStubProvider("claude-code")), nil, 3, zap.NewNop())

	rec := postBatch(t, h, `{
		"requests": [
			{"model": "claude-code/sonnet", "messages": [{"role": "user", "content": "a"}]},
			{"model": "nonexistent/model", "messages": [{"role": "user", "content": "b"}]},
			{"model": "claude-code/haiku", "messages": [{"role": "user", "content": "c"}]}
		]
	}`)

	require.Equal(t, http.StatusOK, rec.Code, "item failures never fail the HTTP call")

	var resp api.BatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 3)

	assert.Equal(t, 0, resp.Items[0].Index)
	require.NotNil(t, resp.Items[0].Response)
	assert.Nil(t, resp.Items[0].Error)

	assert.Equal(t, 1, resp.Items[1].Index)
	assert.Nil(t, resp.Items[1].Response)
	require.NotNil(t, resp.Items[1].Error)
	assert.Equal(t, string(types.ErrUnknownBackend), resp.Items[1].Error.Code)

	require.NotNil(t, resp.Items[2].Response)
	assert.Equal(t, "stub reply", resp.Items[2].Response.Choices[0].Message.Content)
}

func TestBatchHandler_EmptyRequests(t *testing.T) {
	h := NewBatchHandler(newTestRouter(newStubProvider("claude-code")), nil, 3, zap.NewNop())

	rec := postBatch(t, h, `{"requests": []}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBatchHandler_SizeLimit(t *testing.T) {
	h := NewBatchHandler(newTestRouter(newStubProvider("claude-code")), nil, 3, zap.NewNop())

	var sb strings.Builder
	sb.WriteString(`{"requests": [`)
	for i := 0; i <= maxBatchSize; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(`{"model": "claude-code/sonnet", "messages": [{"role": "user", "content": "x"}]}`)
	}
	sb.WriteString(`]}`)

	rec := postBatch(t, h, sb.String())
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var errResp api.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Contains(t, errResp.Error.Message, "exceeds limit")
}

func TestBatchHandler_BadItemTimeoutRejectsWholeBatch(t *testing.T) {
	h := NewBatchHandler(newTestRouter(newStubProvider("claude-code")), nil, 3, zap.NewNop())

	rec := postBatch(t, h, `{
		"requests": [
			{"model": "claude-code/sonnet", "messages": [{"role": "user", "content": "a"}], "timeout": "bogus"}
		]
	}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
