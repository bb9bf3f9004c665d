//go:build llama

package engine

import (
	"errors"
	"strings"

	llama "github.com/go-skynet/go-llama.cpp"
)

// Open loads a gguf weights file into an in-process llama.cpp context.
// Compiled only with the 'llama' build tag so default builds stay CGO-free.
func Open(weightsPath string, params Params) (Handle, error) {
	if strings.TrimSpace(weightsPath) == "" {
		return nil, errors.New("weights path is empty")
	}
	mo := []llama.ModelOption{}
	if params.ContextSize > 0 {
		mo = append(mo, llama.SetContext(params.ContextSize))
	}
	m, err := llama.New(weightsPath, mo...)
	if err != nil {
		return nil, err
	}
	return &llamaHandle{model: m, params: params}, nil
}

type llamaHandle struct {
	model  *llama.LLama
	params Params
}

func (h *llamaHandle) Run(input Input, params Params, cb Callback) error {
	if h.model == nil {
		return errors.New("llama handle already destroyed")
	}
	if len(input.Audio) > 0 {
		cb(Result{}, StateError)
		return ErrAudioUnsupported
	}
	h.model.SetTokenCallback(func(tok string) bool {
		cb(Result{Text: tok}, StateNormal)
		return true
	})
	po := []llama.PredictOption{
		llama.SetThreads(maxInt(1, params.Threads)),
	}
	if params.MaxTokens > 0 {
		po = append(po, llama.SetTokens(params.MaxTokens))
	}
	if params.SavePromptCache && params.PromptCachePath != "" {
		po = append(po, llama.SetPathPromptCache(params.PromptCachePath))
	}
	if _, err := h.model.Predict(input.Prompt, po...); err != nil {
		cb(Result{}, StateError)
		return err
	}
	cb(Result{}, StateFinish)
	return nil
}

func (h *llamaHandle) Destroy() error {
	if h.model != nil {
		h.model.Free()
		h.model = nil
	}
	return nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
