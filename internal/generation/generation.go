// Package generation provides pluggable text generation backends.
package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/castmark/persona-engine/internal/model"
	"github.com/castmark/persona-engine/internal/prompt"
)

// Generator produces text for an assembled request. Every call is
// fallible I/O; callers own retry policy.
type Generator interface {
	Generate(ctx context.Context, req *model.GenerationRequest) (string, error)
}

// --- OpenAI-compatible Provider ---

// OpenAIGenerator uses any OpenAI-compatible chat completions API.
type OpenAIGenerator struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// NewOpenAIGenerator creates a generator using an OpenAI-compatible API.
func NewOpenAIGenerator(baseURL, apiKey, genModel string) *OpenAIGenerator {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if genModel == "" {
		genModel = "gpt-4o-mini"
	}
	return &OpenAIGenerator{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   genModel,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, req *model.GenerationRequest) (string, error) {
	messages := []chatMessage{{Role: "system", Content: req.SystemPreamble}}
	if len(req.KnowledgeSnippets) > 0 || req.HistorySnippet != "" {
		body := prompt.RenderFlat(&model.GenerationRequest{
			KnowledgeSnippets: req.KnowledgeSnippets,
			HistorySnippet:    req.HistorySnippet,
			UserMessage:       req.UserMessage,
		})
		messages = append(messages, chatMessage{Role: "user", Content: body})
	} else {
		messages = append(messages, chatMessage{Role: "user", Content: req.UserMessage})
	}

	payload, _ := json.Marshal(chatRequest{
		Model:     g.model,
		Messages:  messages,
		MaxTokens: req.MaxTokensBudget,
	})
	httpReq, err := http.NewRequestWithContext(ctx, "POST", g.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", &model.GenerationError{Provider: "openai", Transient: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		b, _ := io.ReadAll(resp.Body)
		return "", &model.GenerationError{
			Provider:  "openai",
			Transient: resp.StatusCode >= 500 || resp.StatusCode == 429,
			Err:       fmt.Errorf("status %d: %s", resp.StatusCode, string(b)),
		}
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", &model.GenerationError{Provider: "openai", Transient: false, Err: err}
	}
	if len(result.Choices) == 0 {
		return "", &model.GenerationError{Provider: "openai", Transient: false, Err: fmt.Errorf("no choices returned")}
	}
	return result.Choices[0].Message.Content, nil
}

// --- Factory ---

// NewFromEnv creates a generator from environment variables.
// PERSONA_ENGINE_GEN_PROVIDER: "openai" | "gemini"
// PERSONA_ENGINE_GEN_MODEL: model name
// PERSONA_ENGINE_GEN_URL: base URL override (openai)
// OPENAI_API_KEY / GEMINI_API_KEY: credentials
func NewFromEnv(ctx context.Context) (Generator, error) {
	provider := os.Getenv("PERSONA_ENGINE_GEN_PROVIDER")
	genModel := os.Getenv("PERSONA_ENGINE_GEN_MODEL")

	switch provider {
	case "openai", "":
		url := os.Getenv("PERSONA_ENGINE_GEN_URL")
		key := os.Getenv("OPENAI_API_KEY")
		return NewOpenAIGenerator(url, key, genModel), nil
	case "gemini":
		key := os.Getenv("GEMINI_API_KEY")
		return NewGeminiGenerator(ctx, key, genModel)
	default:
		return nil, fmt.Errorf("unknown generation provider %q", provider)
	}
}
