package anthropic

import (
	"context"
	"errors"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/bryanwahyu/insights-copilot/internal/domain/ai"
)

const (
	defaultModel     = "claude-sonnet-4-5-20250929"
	defaultMaxTokens = 2048
)

// Client implements ai.Client on the Messages API.
type Client struct {
	client sdk.Client
	Model  string
}

// NewClient builds a client. The SDK's own retries are disabled; a failed
// call surfaces to the caller as is.
func NewClient(apiKey, model, baseURL string) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = defaultModel
	}
	return &Client{client: sdk.NewClient(opts...), Model: model}
}

func (c *Client) Provider() string { return "anthropic" }

func (c *Client) Complete(ctx context.Context, r ai.Request) (string, error) {
	tokens := int64(r.MaxTokens)
	if tokens <= 0 {
		tokens = defaultMaxTokens
	}
	user := r.User
	if r.JSON {
		// Messages API has no JSON mode
		user += "\n\nReply with the JSON object only."
	}

	params := sdk.MessageNewParams{
		Model:       sdk.Model(c.Model),
		MaxTokens:   tokens,
		Messages:    []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(user))},
		Temperature: sdk.Float(float64(r.Temperature)),
	}
	if r.System != "" {
		params.System = []sdk.TextBlockParam{{Text: r.System}}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", classify(ctx, err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", ai.NewError(ai.ErrMalformedResponse, errors.New("anthropic: no text in response"))
	}
	return b.String(), nil
}

func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ai.NewError(ai.ErrTimeout, err)
	}
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return ai.NewError(ai.SentinelForStatus(apiErr.StatusCode), err)
	}
	return ai.NewError(ai.ErrModelUnavailable, err)
}
