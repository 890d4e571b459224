package providers

import (
	"github.com/Mathews-Tom/SubLLM/llm"
)

// ShapePrompt returns the prompt payload for a request. The router shapes it
// via the replay strategy before delegating; a provider called directly
// builds it here so both entry points see identical prompts.
func ShapePrompt(req *llm.ChatRequest, caps llm.Capabilities) (llm.PromptPayload, error) {
	if req.Prompt != nil {
		return *req.Prompt, nil
	}
	return llm.BuildPrompt(req, caps)
}
