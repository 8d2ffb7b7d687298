package llm

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/genai"
)

// GeminiClient calls Gemini models through the Vertex AI backend.
type GeminiClient struct {
	project  string
	location string

	once    sync.Once
	client  *genai.Client
	initErr error
}

func NewGeminiClient(project, location string) *GeminiClient {
	if project == "" {
		return nil
	}
	return &GeminiClient{project: project, location: location}
}

func (c *GeminiClient) init(ctx context.Context) (*genai.Client, error) {
	c.once.Do(func() {
		c.client, c.initErr = genai.NewClient(ctx, &genai.ClientConfig{
			Backend:  genai.BackendVertexAI,
			Project:  c.project,
			Location: c.location,
		})
	})
	return c.client, c.initErr
}

func (c *GeminiClient) Generate(ctx context.Context, messages []Message, params Params) (string, Usage, error) {
	if len(messages) == 0 {
		return "", Usage{}, nil
	}
	if err := validateParams(params); err != nil {
		return "", Usage{}, err
	}

	client, err := c.init(ctx)
	if err != nil {
		return "", Usage{}, fmt.Errorf("gemini client: %w", err)
	}

	contents, cfg := buildGeminiRequest(messages, params)

	resp, err := client.Models.GenerateContent(ctx, params.Model, contents, cfg)
	if err != nil {
		return "", Usage{}, fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", Usage{}, fmt.Errorf("gemini: empty response")
	}

	usage := Usage{}
	if resp.UsageMetadata != nil {
		usage = Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return resp.Candidates[0].Content.Parts[0].Text, usage, nil
}

// GenerateStream yields text deltas from the Vertex streaming call.
func (c *GeminiClient) GenerateStream(ctx context.Context, messages []Message, params Params) (<-chan string, error) {
	if len(messages) == 0 {
		out := make(chan string)
		close(out)
		return out, nil
	}
	if err := validateParams(params); err != nil {
		return nil, err
	}

	client, err := c.init(ctx)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	contents, cfg := buildGeminiRequest(messages, params)

	out := make(chan string)
	go func() {
		defer close(out)
		for resp, err := range client.Models.GenerateContentStream(ctx, params.Model, contents, cfg) {
			if err != nil {
				return
			}
			text := resp.Text()
			if text == "" {
				continue
			}
			select {
			case out <- text:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func buildGeminiRequest(messages []Message, params Params) ([]*genai.Content, *genai.GenerateContentConfig) {
	systemInstruction, converted := convertForGemini(messages)
	contents := make([]*genai.Content, 0, len(converted))
	for _, m := range converted {
		contents = append(contents, &genai.Content{
			Role:  m.Role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:        genai.Ptr(float32(params.Temperature)),
		TopP:               genai.Ptr(float32(params.TopP)),
		PresencePenalty:    genai.Ptr(float32(params.PresencePenalty)),
		FrequencyPenalty:   genai.Ptr(float32(params.FrequencyPenalty)),
		MaxOutputTokens:    int32(params.MaxTokens),
		ResponseModalities: []string{"TEXT"},
		SafetySettings: []*genai.SafetySetting{
			{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdOff},
			{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdOff},
			{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdOff},
			{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdOff},
		},
	}
	if systemInstruction != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemInstruction}},
		}
	}
	return contents, cfg
}
