// Package gemini is an llm.Provider over the Gemini API.
package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/nidohq/nido/internal/llm"
)

// Provider implements llm.Provider using google.golang.org/genai.
type Provider struct {
	client *genai.Client
	model  string
	cfg    llm.Config
}

var _ llm.Provider = (*Provider)(nil)

// Register wires this provider into the llm factory registry under
// the name "gemini".
func Register() {
	llm.RegisterFactory("gemini", func(ctx context.Context, cfg llm.Config) (llm.Provider, error) {
		return New(ctx, cfg)
	})
}

// New creates a Gemini provider.
func New(ctx context.Context, cfg llm.Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini provider requires an api key")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &Provider{client: client, model: model, cfg: cfg}, nil
}

func (p *Provider) Name() string { return "gemini" }

func (p *Provider) Stream(ctx context.Context, req *llm.Request) (<-chan llm.Event, error) {
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := genai.Role(genai.RoleUser)
		if m.Role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature > 0 {
		config.Temperature = genai.Ptr(float32(req.Temperature))
	}

	out := make(chan llm.Event)
	go func() {
		defer close(out)
		for resp, err := range p.client.Models.GenerateContentStream(ctx, p.model, contents, config) {
			if err != nil {
				out <- llm.Event{Err: fmt.Errorf("gemini stream error: %w", err)}
				return
			}
			if text := resp.Text(); text != "" {
				out <- llm.Event{Delta: text}
			}
		}
	}()
	return out, nil
}
