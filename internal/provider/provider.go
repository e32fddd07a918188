// ABOUTME: Uniform text-generation interface over hosted and local LLM backends
// ABOUTME: Registry resolves "provider:model" references to configured adapters

package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coevo/coevo-node/internal/config"
)

// ErrConfig indicates a provider misconfiguration: an unknown provider tag
// or a backend that was never registered because it has no credential.
var ErrConfig = errors.New("provider configuration error")

// ErrUpstream indicates the backend itself failed: transport error, non-2xx
// status, or an unusable response body.
var ErrUpstream = errors.New("provider upstream error")

// Request is one generation call. The prompts are already fully assembled;
// adapters only translate them into each backend's wire shape.
type Request struct {
	Model        string
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
}

// Generator produces a completion for a request. Implementations are safe
// for concurrent use.
type Generator interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
}

const requestTimeout = 60 * time.Second

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: requestTimeout}
}

// Registry holds the generation backends that were configured at startup.
// The set is closed after construction; an unknown provider tag is a
// configuration error, never a fallback.
type Registry struct {
	generators map[string]Generator
	defaultTag string
	logger     *slog.Logger
}

// NewRegistry builds a registry from provider configuration. Backends with
// no credential (or, for ollama, no base URL) are skipped entirely.
func NewRegistry(cfg config.ProvidersConfig, logger *slog.Logger) *Registry {
	r := &Registry{
		generators: make(map[string]Generator),
		defaultTag: cfg.Default,
		logger:     logger.With("component", "provider"),
	}

	if cfg.Anthropic.APIKey != "" {
		r.register(newAnthropic(cfg.Anthropic))
	}
	if cfg.OpenAI.APIKey != "" {
		r.register(newChatCompat("openai", "https://api.openai.com/v1", cfg.OpenAI))
	}
	if cfg.OpenRouter.APIKey != "" {
		r.register(newChatCompat("openrouter", "https://openrouter.ai/api/v1", cfg.OpenRouter))
	}
	if cfg.Gemini.APIKey != "" {
		r.register(newGemini(cfg.Gemini))
	}
	if cfg.Ollama.BaseURL != "" {
		r.register(newOllama(cfg.Ollama))
	}

	return r
}

func (r *Registry) register(g Generator) {
	r.generators[g.Name()] = g
	r.logger.Info("registered provider", "provider", g.Name())
}

// Providers returns the names of all registered backends
func (r *Registry) Providers() []string {
	names := make([]string, 0, len(r.generators))
	for name := range r.generators {
		names = append(names, name)
	}
	return names
}

// Resolve splits a "provider:model" reference into a registered generator
// and a bare model name. A reference with no provider prefix resolves
// against the configured default provider.
func (r *Registry) Resolve(modelRef string) (Generator, string, error) {
	tag := r.defaultTag
	model := modelRef
	if i := strings.Index(modelRef, ":"); i >= 0 {
		tag = modelRef[:i]
		model = modelRef[i+1:]
	}
	if model == "" {
		return nil, "", fmt.Errorf("%w: model reference %q has no model name", ErrConfig, modelRef)
	}

	g, ok := r.generators[tag]
	if !ok {
		return nil, "", fmt.Errorf("%w: provider %q is not configured", ErrConfig, tag)
	}
	return g, model, nil
}

// Generate resolves a model reference and runs the generation in one step
func (r *Registry) Generate(ctx context.Context, modelRef, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	g, model, err := r.Resolve(modelRef)
	if err != nil {
		return "", err
	}
	return g.Generate(ctx, Request{
		Model:        model,
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		MaxTokens:    maxTokens,
	})
}
