package openai

import (
	"context"
	"errors"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/bryanwahyu/insights-copilot/internal/domain/ai"
)

const (
	defaultModel     = "gpt-4o-mini"
	defaultMaxTokens = 2048

	// go-openai drops a zero temperature (omitempty) and the API then
	// samples at 1.0; this is the closest value that is still sent.
	minTemperature = 1e-6
)

type Client struct {
	*openai.Client
	Model string
}

// NewClient builds a chat client. baseURL is optional and points the client
// at an OpenAI-compatible endpoint.
func NewClient(apiKey, model, baseURL string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if model == "" {
		model = defaultModel
	}
	return &Client{Client: openai.NewClientWithConfig(cfg), Model: model}
}

func (c *Client) Provider() string { return "openai" }

// Complete sends one system+user exchange and returns the text of the first
// choice.
func (c *Client) Complete(ctx context.Context, r ai.Request) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.Model,
		Temperature: r.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: r.System},
			{Role: openai.ChatMessageRoleUser, Content: r.User},
		},
	}
	if r.JSON {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	tokens := r.MaxTokens
	if tokens <= 0 {
		tokens = defaultMaxTokens
	}
	// reasoning models (o1/o3/o4/gpt-5*) take MaxCompletionTokens and a fixed temperature
	if reasoningModel(c.Model) {
		req.MaxCompletionTokens = tokens
		req.Temperature = 0
	} else {
		req.MaxTokens = tokens
		if req.Temperature <= 0 {
			req.Temperature = minTemperature
		}
	}

	resp, err := c.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classify(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return "", ai.NewError(ai.ErrMalformedResponse, errors.New("openai: no choices in response"))
	}
	return resp.Choices[0].Message.Content, nil
}

func reasoningModel(model string) bool {
	for _, p := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}

func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ai.NewError(ai.ErrTimeout, err)
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	return ai.NewError(ai.SentinelForStatus(status), err)
}
