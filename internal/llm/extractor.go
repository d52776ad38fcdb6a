// Package llm is an optional second extraction path: it hands a page's
// recognized text to a chat model and asks for the template's fields as a
// JSON object. Used to backfill fields the positional locator missed on noisy
// scans; disabled unless an API key is configured.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/avast/retry-go/v4"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/formfill/formfill/internal/ocr"
	"github.com/formfill/formfill/internal/template"
)

const (
	// DefaultModel is used when the config names none.
	DefaultModel = "gpt-4o"
	// DefaultConfidence is assigned to model-extracted values; the model
	// reports no per-field confidence, so one configured level applies.
	DefaultConfidence = 0.6
	// notFound is the sentinel the model is told to use for absent fields.
	notFound = "N/A"
)

// Config configures an Extractor.
type Config struct {
	APIKey     string
	Model      string
	Confidence float64
	Attempts   uint
	Logger     *slog.Logger
}

// Extractor asks a chat model to read form fields out of page text.
type Extractor struct {
	client     openai.Client
	model      string
	confidence float64
	attempts   uint
	logger     *slog.Logger
}

// New creates an Extractor. Returns an error when no API key is given; the
// caller decides whether that disables the path or fails startup.
func New(cfg Config) (*Extractor, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	confidence := cfg.Confidence
	if confidence <= 0 {
		confidence = DefaultConfidence
	}
	attempts := cfg.Attempts
	if attempts == 0 {
		attempts = 2
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		client:     openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:      model,
		confidence: confidence,
		attempts:   attempts,
		logger:     logger.With("component", "llm"),
	}, nil
}

// Confidence returns the configured confidence for model-extracted values.
func (e *Extractor) Confidence() float64 {
	return e.confidence
}

// ExtractFields asks the model for the template's field values given one
// page's token text. The result maps logical names to raw strings; absent
// fields are omitted.
func (e *Extractor) ExtractFields(ctx context.Context, tmpl *template.Template, tokens []ocr.Token) (map[string]string, error) {
	pageText := joinTokens(tokens)
	if strings.TrimSpace(pageText) == "" {
		return nil, fmt.Errorf("no page text to extract from")
	}

	systemPrompt, userPrompt := buildPrompts(tmpl, pageText)

	var content string
	err := retry.Do(
		func() error {
			completion, err := e.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
				Model: e.model,
				Messages: []openai.ChatCompletionMessageParamUnion{
					openai.SystemMessage(systemPrompt),
					openai.UserMessage(userPrompt),
				},
				ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
					OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
				},
			})
			if err != nil {
				return err
			}
			if len(completion.Choices) == 0 {
				return fmt.Errorf("empty completion")
			}
			content = completion.Choices[0].Message.Content
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(e.attempts),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("field extraction request failed: %w", err)
	}

	var raw map[string]string
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("model returned invalid JSON: %w", err)
	}

	out := make(map[string]string, len(raw))
	for name, value := range raw {
		value = strings.TrimSpace(value)
		if value == "" || strings.EqualFold(value, notFound) {
			continue
		}
		if tmpl.Field(name) == nil {
			e.logger.Debug("model returned unknown field", "field", name)
			continue
		}
		out[name] = value
	}

	e.logger.Debug("model extraction complete", "template", tmpl.ID, "fields", len(out))
	return out, nil
}

func buildPrompts(tmpl *template.Template, pageText string) (system, user string) {
	var defs strings.Builder
	names := make([]string, 0, len(tmpl.Fields))
	for _, f := range tmpl.Fields {
		names = append(names, f.LogicalName)
		label := f.LogicalName
		if len(f.Aliases) > 0 {
			label = f.Aliases[0]
		}
		fmt.Fprintf(&defs, "- %s: the area labeled %q\n", f.LogicalName, label)
	}
	namesJSON, _ := json.Marshal(names)

	system = fmt.Sprintf(
		"You are an assistant extracting structured data from a scanned %s form. "+
			"Use these field definitions:\n%s"+
			"Return one JSON object mapping field name to string value. "+
			"If a value is not found, use %q.",
		tmpl.Description, defs.String(), notFound)
	user = fmt.Sprintf(
		"Extract values for these fields from the page text below.\n\nPAGE TEXT:\n---\n%s\n---\n\nFIELDS:\n%s",
		pageText, namesJSON)
	return system, user
}

func joinTokens(tokens []ocr.Token) string {
	parts := make([]string, 0, len(tokens))
	for _, t := range tokens {
		parts = append(parts, t.Text)
	}
	return strings.Join(parts, " ")
}
