package ai

import "context"

// Request is one system + user exchange with the model.
type Request struct {
	System      string
	User        string
	Temperature float32
	MaxTokens   int
	// JSON asks the provider for a JSON-object reply when it supports one.
	JSON bool
}

// Client is the text-generation service the pipeline talks to.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
	Provider() string
}
