// Package completion adapts language-model backends to the assembler's
// Completer interface.
package completion

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/rcliao/branch-memory/internal/assembler"
	"github.com/rcliao/branch-memory/internal/model"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

// Gemini completes prompts with Google's Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini returns a Gemini completer.
func NewGemini(ctx context.Context, apiKey, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if modelName == "" {
		modelName = DefaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Gemini{client: client, model: modelName}, nil
}

// Complete sends turns and returns the reply text and total token count.
func (g *Gemini) Complete(ctx context.Context, turns []model.Turn) (assembler.Completion, error) {
	system, contents := splitTurns(turns)
	if len(contents) == 0 {
		return assembler.Completion{}, fmt.Errorf("no user turn to complete")
	}

	cfg := &genai.GenerateContentConfig{}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return assembler.Completion{}, fmt.Errorf("generate content: %w", err)
	}

	out := assembler.Completion{Text: resp.Text()}
	if resp.UsageMetadata != nil {
		out.TokensUsed = int(resp.UsageMetadata.TotalTokenCount)
	}
	return out, nil
}

// splitTurns joins system turns into one instruction and converts the rest
// to Gemini contents.
func splitTurns(turns []model.Turn) (string, []*genai.Content) {
	var system []string
	var contents []*genai.Content
	for _, t := range turns {
		switch t.Role {
		case model.RoleSystem:
			system = append(system, t.Content)
		case model.RoleUser:
			contents = append(contents, genai.NewContentFromText(t.Content, genai.RoleUser))
		default:
			contents = append(contents, genai.NewContentFromText(t.Content, genai.RoleModel))
		}
	}
	return strings.Join(system, "\n\n"), contents
}
