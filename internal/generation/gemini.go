package generation

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/castmark/persona-engine/internal/model"
	"github.com/castmark/persona-engine/internal/prompt"
)

// GeminiGenerator uses the Gemini API via the genai SDK.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

// NewGeminiGenerator creates a Gemini-backed generator.
func NewGeminiGenerator(ctx context.Context, apiKey, genModel string) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if genModel == "" {
		genModel = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &GeminiGenerator{client: client, model: genModel}, nil
}

func (g *GeminiGenerator) Generate(ctx context.Context, req *model.GenerationRequest) (string, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.SystemPreamble, genai.RoleUser),
	}
	if req.MaxTokensBudget > 0 {
		config.MaxOutputTokens = int32(req.MaxTokensBudget)
	}

	body := prompt.RenderFlat(&model.GenerationRequest{
		KnowledgeSnippets: req.KnowledgeSnippets,
		HistorySnippet:    req.HistorySnippet,
		UserMessage:       req.UserMessage,
	})

	res, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(body), config)
	if err != nil {
		return "", &model.GenerationError{Provider: "gemini", Transient: true, Err: err}
	}

	if len(res.Candidates) == 0 || res.Candidates[0].Content == nil || len(res.Candidates[0].Content.Parts) == 0 {
		return "", &model.GenerationError{Provider: "gemini", Transient: false,
			Err: fmt.Errorf("empty response (safety block?)")}
	}

	return res.Candidates[0].Content.Parts[0].Text, nil
}
