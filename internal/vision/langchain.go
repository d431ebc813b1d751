package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

const analysisPrompt = `You are a professional photography judge. Study the photo together with its capture parameters and reply with JSON only, no markdown fences.

Capture parameters (possibly incomplete):
%s

Requirements:
1. description: 2-3 sentences covering subject, scene, light and atmosphere.
2. tags: 5-8 tags ordered by relevance.
3. subjects: short description of the main subject.
4. mood: the emotional tone.
5. scores: composition/color/lighting/sharpness between 1.0 and 5.0 with one decimal, plus reason and suggestions.
6. creativity: optional 1.0-5.0, used for the overall rating.
7. Scores must differentiate; ordinary snapshots sit around 2.8-3.8, only clearly excellent work goes above 4.2.
8. Let the capture parameters inform technical judgement (high ISO noise, slow shutter blur, aperture and depth of field).
9. suggestions: 3-5 actionable tips, parameter-level where possible.

JSON shape:
{"description":"...","tags":["..."],"subjects":"...","mood":"...","scores":{"composition":0,"color":0,"lighting":0,"sharpness":0,"reason":"...","suggestions":["..."]},"creativity":0}`

// Options configures the LangChain-backed analyzer.
type Options struct {
	Provider   string // "openai" or "ollama"
	Model      string
	APIKey     string
	BaseURL    string // OpenAI-compatible gateway, optional
	OllamaHost string
	MaxSide    int
}

// LangChain analyzes photos through a multimodal chat model.
type LangChain struct {
	llm     llms.Model
	maxSide int
}

// NewLangChain creates an analyzer for the configured provider.
func NewLangChain(opts Options) (*LangChain, error) {
	var model llms.Model
	var err error

	switch opts.Provider {
	case "openai":
		if opts.APIKey == "" {
			return nil, fmt.Errorf("vision api key required")
		}
		oaiOpts := []openai.Option{
			openai.WithToken(opts.APIKey),
			openai.WithModel(opts.Model),
		}
		if opts.BaseURL != "" {
			oaiOpts = append(oaiOpts, openai.WithBaseURL(opts.BaseURL))
		}
		model, err = openai.New(oaiOpts...)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}
	case "ollama":
		model, err = ollama.New(
			ollama.WithModel(opts.Model),
			ollama.WithServerURL(opts.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported vision provider: %s", opts.Provider)
	}

	return &LangChain{llm: model, maxSide: opts.MaxSide}, nil
}

// Analyze sends the photo and its capture context to the model and parses
// the structured reply.
func (l *LangChain) Analyze(ctx context.Context, path string, capture Capture) (Result, error) {
	imageData, err := prepareImageBase64(path, l.maxSide)
	if err != nil {
		return Result{}, fmt.Errorf("prepare image: %w", err)
	}

	prompt := fmt.Sprintf(analysisPrompt, captureContext(capture))
	messages := []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.ImageURLPart("data:image/jpeg;base64," + imageData),
				llms.TextPart(prompt),
			},
		},
	}

	resp, err := l.llm.GenerateContent(ctx, messages, llms.WithMaxTokens(800))
	if err != nil {
		return Result{}, fmt.Errorf("vision request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Result{}, fmt.Errorf("vision request: no choices returned")
	}

	return parseAnalysis(resp.Choices[0].Content)
}

type rawAnalysis struct {
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Subjects    string   `json:"subjects"`
	Mood        string   `json:"mood"`
	Creativity  *float64 `json:"creativity"`
	Scores      struct {
		Composition float64  `json:"composition"`
		Color       float64  `json:"color"`
		Lighting    float64  `json:"lighting"`
		Sharpness   float64  `json:"sharpness"`
		Reason      string   `json:"reason"`
		Suggestions []string `json:"suggestions"`
	} `json:"scores"`
}

// parseAnalysis decodes the model reply and normalizes scores and tags.
func parseAnalysis(content string) (Result, error) {
	var raw rawAnalysis
	if err := json.Unmarshal([]byte(stripFences(content)), &raw); err != nil {
		return Result{}, fmt.Errorf("parse vision response: %w", err)
	}

	tags := raw.Tags
	if tags == nil {
		tags = []string{}
	}
	if raw.Mood != "" && !contains(tags, raw.Mood) {
		tags = append(tags, raw.Mood)
	}
	if raw.Subjects != "" && !contains(tags, raw.Subjects) {
		tags = append(tags, raw.Subjects)
	}

	composition := SafeScore(raw.Scores.Composition, DefaultScore)
	color := SafeScore(raw.Scores.Color, DefaultScore)
	lighting := SafeScore(raw.Scores.Lighting, DefaultScore)
	sharpness := SafeScore(raw.Scores.Sharpness, DefaultScore)

	suggestions := raw.Scores.Suggestions
	if len(suggestions) > 5 {
		suggestions = suggestions[:5]
	}

	result := Result{
		Description: raw.Description,
		Tags:        tags,
		Subjects:    raw.Subjects,
		Mood:        raw.Mood,
	}
	result.Scores.Composition = composition
	result.Scores.Color = color
	result.Scores.Lighting = lighting
	result.Scores.Sharpness = sharpness
	result.Scores.Overall = Overall(composition, color, lighting, sharpness, raw.Creativity)
	result.Scores.Reason = raw.Scores.Reason
	result.Scores.Suggestions = suggestions
	return result, nil
}

// stripFences removes markdown code fences some models insist on emitting.
func stripFences(content string) string {
	content = strings.TrimSpace(content)
	if idx := strings.Index(content, "```json"); idx >= 0 {
		content = content[idx+len("```json"):]
	} else if idx := strings.Index(content, "```"); idx >= 0 {
		content = content[idx+3:]
	} else {
		return content
	}
	if end := strings.Index(content, "```"); end >= 0 {
		content = content[:end]
	}
	return strings.TrimSpace(content)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
