package models

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/parentline/guardian/pkg/config"
	"github.com/parentline/guardian/pkg/observability/logging"
)

// Client talks to an OpenAI-compatible endpoint for the crisis classifier,
// the emotion classifier, and the response content producer. Handles are
// injected into components at construction, never reached as globals.
type Client struct {
	client        openai.Client
	crisisModel   string
	emotionModel  string
	responseModel string
}

// NewClient builds a Client from the models section of the config.
func NewClient(cfg config.ModelsConfig) *Client {
	opts := []option.RequestOption{}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(cfg.Endpoint))
	}
	if cfg.APIKeyEnv != "" {
		if key := os.Getenv(cfg.APIKeyEnv); key != "" {
			opts = append(opts, option.WithAPIKey(key))
		}
	}
	return &Client{
		client:        openai.NewClient(opts...),
		crisisModel:   cfg.CrisisModel,
		emotionModel:  cfg.EmotionModel,
		responseModel: cfg.ResponseModel,
	}
}

const crisisSystemPrompt = `You are a crisis risk classifier for a parent-support service.
Rate the self-harm or violence risk of the user message on a scale from 0.0 to 1.0.
Respond with only the number.`

// ScoreCrisis asks the crisis model for a risk score in [0,1].
func (c *Client) ScoreCrisis(ctx context.Context, text string) (float64, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.crisisModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(crisisSystemPrompt),
			openai.UserMessage(text),
		},
		MaxCompletionTokens: openai.Int(8),
		Temperature:         openai.Float(0),
	})
	if err != nil {
		return 0, fmt.Errorf("crisis model call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return 0, fmt.Errorf("crisis model returned no choices")
	}
	score, err := strconv.ParseFloat(strings.TrimSpace(resp.Choices[0].Message.Content), 64)
	if err != nil {
		return 0, fmt.Errorf("crisis model returned non-numeric score %q: %w",
			resp.Choices[0].Message.Content, err)
	}
	return clamp01(score), nil
}

const emotionSystemPrompt = `You are an emotion classifier for a parent-support service.
Given the user message, respond with a JSON object mapping emotion labels to
probabilities in [0,1]. Labels: despair, fear, anger, sadness, shame, guilt,
anxiety, loneliness, hope, joy, gratitude, neutral. Respond with JSON only.`

// ClassifyEmotion asks the emotion model for label probabilities.
func (c *Client) ClassifyEmotion(ctx context.Context, text string) (map[string]float64, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.emotionModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(emotionSystemPrompt),
			openai.UserMessage(text),
		},
		MaxCompletionTokens: openai.Int(200),
		Temperature:         openai.Float(0),
	})
	if err != nil {
		return nil, fmt.Errorf("emotion model call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("emotion model returned no choices")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	// Some models wrap JSON in a code fence despite instructions.
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	probs := map[string]float64{}
	if err := json.Unmarshal([]byte(content), &probs); err != nil {
		return nil, fmt.Errorf("emotion model returned malformed JSON: %w", err)
	}
	for label, p := range probs {
		probs[label] = clamp01(p)
	}
	return probs, nil
}

// Generate produces response text from the content model for the given
// system prompt and scrubbed user message.
func (c *Client) Generate(ctx context.Context, systemPrompt, userText string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.responseModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userText),
		},
	})
	if err != nil {
		return "", fmt.Errorf("content model call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("content model returned no choices")
	}
	logging.Debugf("Content model produced %d bytes", len(resp.Choices[0].Message.Content))
	return resp.Choices[0].Message.Content, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
