// Package compute invokes the image-generation backend.
package compute

import "imagebot/pkg/config"

// GenerationRequest is the workflow input sent to the backend.
type GenerationRequest struct {
	PositivePrompt string `json:"positive_prompt"`
	NegativePrompt string `json:"negative_prompt"`
	PromptFile     string `json:"prompt_file"`
}

// Policy holds the request fields that are fixed by deployment rather than by users:
// the content-safety negative prompt and the ComfyUI workflow file.
type Policy struct {
	NegativePrompt string
	PromptFile     string
}

// PolicyFromConfig copies the fixed request policy out of compute settings.
func PolicyFromConfig(cfg config.ComputeConfig) Policy {
	return Policy{
		NegativePrompt: cfg.NegativePrompt,
		PromptFile:     cfg.PromptFile,
	}
}

// BuildRequest wraps a user prompt with the policy fields. The prompt is passed through
// verbatim, blank or not; whatever it contains cannot change the policy fields.
func (p Policy) BuildRequest(prompt string) GenerationRequest {
	return GenerationRequest{
		PositivePrompt: prompt,
		NegativePrompt: p.NegativePrompt,
		PromptFile:     p.PromptFile,
	}
}
