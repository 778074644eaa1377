package ai

import "context"

// Request is one single-turn completion.
type Request struct {
	Model             string
	SystemInstruction string
	Prompt            string
	Temperature       float64
	// ResponseSchema, when set, asks for a JSON reply matching it.
	ResponseSchema map[string]any
}

// Generator produces completion text. Implementations return
// *RemoteAPIError for error statuses from the service.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}
