// Package prompt manages the Genkit prompts used for answer synthesis.
package prompt

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// SynthesisPromptName is the registry name of the answer synthesis prompt.
const SynthesisPromptName = "synthesize_answer"

// synthesisTemplate instructs the model to answer strictly from the supplied
// evidence and to self-report confidence on a trailing line. Answers outside
// the evidence are worth less than no answer in this domain.
const synthesisTemplate = `You are a careful medical assistant. Answer the question using ONLY the evidence below.
If the evidence does not support an answer, say so plainly.

Question: {{question}}

Evidence:
{{evidence}}

Rules:
- Cite no facts that are absent from the evidence.
- Do not give patient-specific medical advice.
- End your reply with a line of the form "CONFIDENCE: <0.0-1.0>" reflecting how well the evidence supports your answer.`

// Registry manages the loading and execution of Genkit prompts.
type Registry struct {
	genkitInstance *genkit.Genkit
}

// NewRegistry initializes the Genkit environment and creates a prompt registry.
// Callers pass Genkit initialization options such as plugin configurations and
// the prompt directory.
func NewRegistry(ctx context.Context, opts ...genkit.GenkitOption) (*Registry, error) {
	g, err := genkit.Init(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Genkit: %w", err)
	}

	return &Registry{
		genkitInstance: g,
	}, nil
}

// Genkit exposes the underlying Genkit instance for flow definitions.
func (r *Registry) Genkit() *genkit.Genkit {
	return r.genkitInstance
}

// GetPrompt retrieves a loaded prompt by its name using Genkit's lookup.
func (r *Registry) GetPrompt(name string) (*ai.Prompt, error) {
	p := genkit.LookupPrompt(r.genkitInstance, name)
	if p == nil {
		return nil, fmt.Errorf("prompt '%s' not found", name)
	}
	return p, nil
}

// ExecutePrompt retrieves a prompt by name, renders it with the given input,
// and executes it using the Genkit instance.
func (r *Registry) ExecutePrompt(ctx context.Context, promptName string, input map[string]interface{}, execOpts ...ai.PromptExecuteOption) (*ai.ModelResponse, error) {
	p, err := r.GetPrompt(promptName)
	if err != nil {
		return nil, err
	}

	allOpts := append([]ai.PromptExecuteOption{ai.WithInput(input)}, execOpts...)

	resp, err := p.Execute(ctx, allOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute prompt '%s': %w", promptName, err)
	}

	return resp, nil
}

// DefinePrompt allows defining prompts programmatically via the registry.
func (r *Registry) DefinePrompt(name string, opts ...ai.PromptOption) (*ai.Prompt, error) {
	p, err := genkit.DefinePrompt(r.genkitInstance, name, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to define prompt '%s': %w", name, err)
	}
	return p, nil
}

// DefineSynthesisPrompt registers the built-in answer synthesis prompt,
// unless a prompt directory already supplies one under the same name.
func (r *Registry) DefineSynthesisPrompt() (*ai.Prompt, error) {
	if existing := genkit.LookupPrompt(r.genkitInstance, SynthesisPromptName); existing != nil {
		return existing, nil
	}
	return r.DefinePrompt(SynthesisPromptName, ai.WithPrompt(synthesisTemplate))
}
