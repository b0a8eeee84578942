package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/andresmejia3/moodscan/internal/emotion"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

const DefaultOpenAIModel = "gpt-4.1-mini"

// OpenAIText asks a chat model to score a transcript over emotion.Vocabulary.
type OpenAIText struct {
	client openai.Client
	model  string
}

func NewOpenAIText(apiKey, baseURL, model string, opts ...option.RequestOption) *OpenAIText {
	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if strings.TrimSpace(baseURL) != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(baseURL))
	}
	clientOpts = append(clientOpts, opts...)
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIText{client: openai.NewClient(clientOpts...), model: model}
}

func (o *OpenAIText) Classify(ctx context.Context, text string) (emotion.Distribution, error) {
	labels := make([]string, len(emotion.Vocabulary))
	for i, l := range emotion.Vocabulary {
		labels[i] = string(l)
	}
	systemPrompt := "You rate the emotions expressed in a spoken transcript. Reply with JSON only."
	userPrompt := "Give every label a score between 0 and 1. Scores should sum to about 1.\n" +
		"Labels: " + strings.Join(labels, ", ") + "\n" +
		`Format: {"happy":0.0,"sad":0.0,...}` + "\n\n" +
		"Transcript:\n" + text

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		Model:       shared.ChatModel(o.model),
		Temperature: openai.Float(0),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{Type: "json_object"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai text classifier: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai text classifier: no choices returned")
	}
	return parseScores(resp.Choices[0].Message.Content)
}

// parseScores reads a label->score object, keeping vocabulary labels and
// clamping scores to [0,1].
func parseScores(raw string) (emotion.Distribution, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("openai text classifier: empty response")
	}
	var parsed map[string]float64
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("openai text classifier: parse scores: %w", err)
	}

	known := make(map[emotion.Label]bool, len(emotion.Vocabulary))
	for _, l := range emotion.Vocabulary {
		known[l] = true
	}
	out := make(emotion.Distribution)
	for k, v := range parsed {
		label := emotion.Label(strings.ToLower(strings.TrimSpace(k)))
		if !known[label] {
			continue
		}
		out[label] = min(max(v, 0), 1)
	}
	return out, nil
}
